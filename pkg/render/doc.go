// Package render orchestrates a page render: lookup, access decision, guest
// rate limiting, block tree filtering and the view count bump. It also
// validates guest submissions against the same guest budget.
//
//	pipeline := render.NewPipeline(render.Config{
//		Pages:    cachedPages,
//		Decider:  access.NewDecider(logger, metrics),
//		Filter:   access.NewFilter(access.NewEvaluator(logger, metrics)),
//		Limiter:  limiter,
//		Recorder: recorder,
//		Logger:   logger,
//		Metrics:  metrics,
//	})
//
//	outcome, err := pipeline.Render(ctx, render.Request{Principal: p, OrgID: org, Slug: slug, IPAddress: ip})
//
// Denials are reported through Outcome.Reason; the error return is reserved
// for store failures.
package render
