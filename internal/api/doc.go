// Package api hosts the optional HTTP status server that runs alongside a
// crawl. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /records for the current session's persisted records, paged with
//     limit and offset.
//   - GET /status for the latest progress snapshot, fed by StatusTracker.
package api
