// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/ingest/runs to run one ingestion pass synchronously.
//   - POST /v1/updates/{update_id}/match and /v1/watchlists/{watchlist_id}/backfill
//     to drive the matching engine by hand.
//   - POST /v1/matches/{match_id}/review|dismiss for match triage.
//   - GET /v1/linked/{entity_type}/{entity_id} for cross references.
//
// Owner-scoped routes read the caller's owner id from the X-Owner-ID header.
package api
