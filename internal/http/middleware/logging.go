package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	httpctx "careershift/internal/http/ctx"
	"careershift/internal/logger"
	"careershift/internal/ratelimit"
)

const requestIDHeader = "X-Request-ID"

// RequestLogger assigns a request id and logs one line per request. Cookie
// values never reach the log and an Authorization header is masked.
func RequestLogger(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()

		reqID := string(ctx.Request.Header.Peek(requestIDHeader))
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		httpctx.SetRequestID(ctx, reqID)
		ctx.Response.Header.Set(requestIDHeader, reqID)

		next(ctx)

		status := ctx.Response.StatusCode()
		fields := []zap.Field{
			zap.String("method", string(ctx.Method())),
			zap.String("path", string(ctx.Path())),
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.String("ip", ratelimit.ClientIP(ctx)),
			zap.String("request_id", reqID),
		}
		if user, ok := httpctx.UserFromCtx(ctx); ok {
			fields = append(fields, zap.Uint("user_id", user.ID))
		}
		if auth := ctx.Request.Header.Peek("Authorization"); len(auth) > 0 {
			fields = append(fields, zap.String("authorization", logger.MaskAuthorization(string(auth))))
		}

		switch {
		case status >= 500:
			zap.L().Error("request", fields...)
		case status >= 400:
			zap.L().Warn("request", fields...)
		default:
			zap.L().Info("request", fields...)
		}
	}
}
