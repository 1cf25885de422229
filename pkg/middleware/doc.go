// Package middleware provides guest rate limiting and principal extraction
// for the portal HTTP surface.
//
// # Guest Rate Limiting
//
// RateLimiter is an in-process fixed-window limiter keyed by client IP.
// The composition root owns its sweep schedule:
//
//	limiter := middleware.NewRateLimiter(middleware.DefaultRateLimitConfig(), logger)
//	limiter.Start()
//	defer limiter.Stop()
//
//	res, err := limiter.CheckAndIncrement(ctx, clientIP)
//	if !res.Allowed {
//		// 429 until res.ResetAt
//	}
//
// DistributedRateLimiter offers the same contract on Redis so that several
// instances share one budget per IP.
//
// # Principal Extraction
//
//	router.Use(middleware.Authenticate(authenticator, oracle, logger))
//
// Requests without an Authorization header continue as anonymous. Requests
// with an invalid token are rejected with 401. Authenticated requests carry
// a *portal.Principal whose permissions resolve lazily through the oracle.
package middleware
