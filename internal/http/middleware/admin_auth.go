package middleware

import (
	"github.com/valyala/fasthttp"

	httpctx "careershift/internal/http/ctx"
)

// RequireAdmin lets only admin users through. It expects LoadSession to have
// run and behaves like RequireUser for anonymous callers.
func RequireAdmin(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return RequireUser(func(ctx *fasthttp.RequestCtx) {
		user, _ := httpctx.UserFromCtx(ctx)
		if !user.IsAdmin {
			if isAPI(ctx) {
				writeJSONError(ctx, fasthttp.StatusForbidden, "Admin access required.")
				return
			}
			ctx.SetStatusCode(fasthttp.StatusForbidden)
			ctx.SetBodyString("forbidden")
			return
		}
		next(ctx)
	})
}
