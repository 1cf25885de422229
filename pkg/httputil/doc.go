// Package httputil provides HTTP utilities for standardized request/response
// handling.
//
// # Response Helpers
//
//	httputil.WriteJSON(w, http.StatusOK, page)
//	httputil.WriteErrorMessage(w, http.StatusForbidden, "insufficient_role")
//	httputil.WriteTooManyRequests(w, "rate_limited", resetAt)
//
// # Request Parsing
//
//	var req ValidateRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // Error response already written
//	}
//	limit, err := httputil.ParseQueryInt(r, "limit", 50)
//	since, err := httputil.ParseQueryTime(r, "start")
//	ip := proxies.ClientIP(r) // proxies from httputil.ParseTrustedProxies
//
// # Middleware
//
//	httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//		httputil.MaxBytesMiddleware(1<<20),
//	)
package httputil
