package middleware

import (
	"strconv"

	"github.com/valyala/fasthttp"

	httpctx "careershift/internal/http/ctx"
	"careershift/internal/metrics"
	"careershift/internal/ratelimit"
)

// RateLimitMessage is the body of every 429 response.
const RateLimitMessage = "Too many requests. Please try again later."

// RateLimit counts every call against the caller's fixed window: signed-in
// users by id under authed, everyone else by client IP under anon. It expects
// LoadSession to have run.
func RateLimit(limiter *ratelimit.Limiter, anon, authed ratelimit.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			cfg, preset, userID := anon, "anonymous", ""
			if user, ok := httpctx.UserFromCtx(ctx); ok {
				cfg, preset, userID = authed, "authenticated", strconv.FormatUint(uint64(user.ID), 10)
			}

			res := limiter.Check(ctx, ratelimit.Identifier(userID, ratelimit.ClientIP(ctx)), cfg)

			h := &ctx.Response.Header
			h.Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			h.Set("X-RateLimit-Reset", strconv.Itoa(res.RetryAfterSeconds()))

			if !res.Allowed {
				metrics.RateLimitDecisions.WithLabelValues(preset, "denied").Inc()
				h.Set("Retry-After", strconv.Itoa(res.RetryAfterSeconds()))
				writeJSONError(ctx, fasthttp.StatusTooManyRequests, RateLimitMessage)
				return
			}
			metrics.RateLimitDecisions.WithLabelValues(preset, "allowed").Inc()
			next(ctx)
		}
	}
}
