// Package api hosts the HTTP server that triggers loader runs. Routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/runs to run the loader synchronously (409 while a run is in flight).
//   - GET /v1/runs/last for the most recent run summary.
package api
