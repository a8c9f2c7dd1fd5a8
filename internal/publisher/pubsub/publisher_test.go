package pubsub

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "t", map[string]string{"k": "v"})
	assert.Error(t, err)
	assert.NoError(t, New(nil).Close())
}

func TestDialRequiresNames(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "", "topic")
	assert.Error(t, err)
	_, err = Dial(context.Background(), "project", "")
	assert.Error(t, err)
}

func TestCarrier(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc-def-01")
	c.Set("tracestate", "k=v")
	assert.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	keys := c.Keys()
	sort.Strings(keys)
	assert.Equal(t, []string{"traceparent", "tracestate"}, keys)
}
