package storage

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"
)

// MockObjectStore is a testify mock of ObjectStore.
type MockObjectStore struct {
	mock.Mock
}

// PutObject records the call. The reader is drained so callers see the same
// behaviour as a real backend.
func (m *MockObjectStore) PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error) {
	_, _ = io.Copy(io.Discard, r)
	args := m.Called(ctx, path, contentType)
	return args.String(0), args.Error(1) //nolint:wrapcheck
}
