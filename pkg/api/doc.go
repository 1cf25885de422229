// Package api wires the portal's HTTP surface.
//
// # Routes
//
//	GET    /healthz                                         liveness
//	GET    /readyz                                          readiness (database, redis)
//	GET    /metrics                                         Prometheus scrape
//
//	GET    /api/v1/orgs/{orgID}/pages/{slug}                render a published page
//	POST   /api/v1/pages/{pageID}/guest-submissions/validate
//
//	POST   /api/v1/pages                                    composer
//	PUT    /api/v1/pages/{pageID}
//	DELETE /api/v1/pages/{pageID}                           archive
//	POST   /api/v1/pages/{pageID}/publish|unpublish|restore
//	POST   /api/v1/themes, PUT|DELETE /api/v1/themes/{id}, POST /api/v1/themes/{id}/default
//	POST   /api/v1/datasources, PUT|DELETE /api/v1/datasources/{id}
//
//	GET    /api/v1/orgs/{orgID}/audit[...]                  requires portal.audit.read
//
// # Denials
//
// A refused render answers with the reason code only:
//
//	404 {"error":"not_found"}
//	401 {"error":"authentication_required"}
//	403 {"error":"insufficient_role"} or {"error":"insufficient_permissions"}
//	429 {"error":"rate_limited"} with Retry-After
//
// # Usage
//
//	server := api.NewServer(api.Deps{
//		Pipeline:      pipeline,
//		Composer:      composerService,
//		AuditStore:    auditStore,
//		Authenticator: authenticator,
//		Oracle:        oracle,
//		Health:        health,
//		Metrics:       metrics,
//		Logger:        logger,
//	})
//	http.ListenAndServe(":8080", server)
package api
