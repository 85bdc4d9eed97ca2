// Package api hosts the HTTP server, middleware, and JSON handlers for
// operator access. Notable routes:
//   - GET /healthz / readyz for Kubernetes health checks.
//   - GET /metrics for Prometheus scraping.
//   - /v1/leads for browsing leads, moving them through the funnel,
//     re-qualifying them, and drafting proposals.
//   - /v1/sources for managing the sources searched for leads.
//   - POST /v1/search to run a search cycle on demand.
package api
