package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	dbpkg "careershift/internal/db"
	httpctx "careershift/internal/http/ctx"
)

// MustUser returns the current user from context, or sends 401 and returns (nil, false).
func MustUser(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	user, ok := httpctx.UserFromCtx(ctx)
	if !ok {
		jsonError(ctx, fasthttp.StatusUnauthorized, "Authentication required.")
		return nil, false
	}
	return user, true
}

func jsonResponse(ctx *fasthttp.RequestCtx, status int, data any) {
	body, err := json.Marshal(data)
	if err != nil {
		internalError(ctx, "encode response", err)
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func jsonError(ctx *fasthttp.RequestCtx, status int, msg string) {
	jsonResponse(ctx, status, map[string]any{"error": msg})
}

// internalError logs err with the failing operation and sends a generic 500.
func internalError(ctx *fasthttp.RequestCtx, op string, err error) {
	zap.L().Error(op+" failed",
		zap.String("path", string(ctx.Path())),
		zap.String("request_id", httpctx.RequestIDFromCtx(ctx)),
		zap.Error(err))
	body, _ := json.Marshal(map[string]any{"error": "Internal server error."})
	ctx.SetStatusCode(fasthttp.StatusInternalServerError)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// decodeJSON sends 400 and returns false when the body is not valid JSON for v.
func decodeJSON(ctx *fasthttp.RequestCtx, v any) bool {
	if err := json.Unmarshal(ctx.PostBody(), v); err != nil {
		jsonError(ctx, fasthttp.StatusBadRequest, "Invalid JSON body.")
		return false
	}
	return true
}

func stringParam(ctx *fasthttp.RequestCtx, name string) string {
	s, _ := ctx.UserValue(name).(string)
	return s
}

// uintParam parses a numeric path parameter, sending 400 when it is not one.
func uintParam(ctx *fasthttp.RequestCtx, name string) (uint, bool) {
	id, err := strconv.ParseUint(stringParam(ctx, name), 10, 32)
	if err != nil || id == 0 {
		jsonError(ctx, fasthttp.StatusBadRequest, "Invalid "+name+".")
		return 0, false
	}
	return uint(id), true
}
