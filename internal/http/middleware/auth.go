package middleware

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"gorm.io/gorm"

	dbpkg "careershift/internal/db"
	httpctx "careershift/internal/http/ctx"
	"careershift/internal/session"
)

// LoadSession resolves the session cookie to a user and sets it on the
// context. Missing or invalid cookies, and cookies issued before the user's
// session version was last bumped, leave the request anonymous.
func LoadSession(db *gorm.DB, signer *session.Signer) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			cookie := ctx.Request.Header.Cookie(session.CookieName)
			if len(cookie) == 0 {
				next(ctx)
				return
			}
			claims, err := signer.Parse(string(cookie))
			if err != nil {
				next(ctx)
				return
			}

			var user dbpkg.User
			if err := db.WithContext(ctx).First(&user, claims.UserID).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					zap.L().Error("session user lookup failed", zap.Uint("user_id", claims.UserID), zap.Error(err))
				}
				next(ctx)
				return
			}
			if user.SessionVersion != claims.Version {
				next(ctx)
				return
			}

			httpctx.SetUser(ctx, &user)
			next(ctx)
		}
	}
}

// RequireUser rejects anonymous requests: API paths get a 401 JSON body,
// pages are redirected to the login form.
func RequireUser(next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := httpctx.UserFromCtx(ctx); !ok {
			if isAPI(ctx) {
				writeJSONError(ctx, fasthttp.StatusUnauthorized, "Authentication required.")
				return
			}
			ctx.Redirect("/login", fasthttp.StatusSeeOther)
			return
		}
		next(ctx)
	}
}

// BearerToken guards a handler with a static token. An empty token disables
// the handler entirely.
func BearerToken(token string) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if token == "" {
				ctx.SetStatusCode(fasthttp.StatusNotFound)
				ctx.SetBodyString("not found")
				return
			}

			auth := ctx.Request.Header.Peek("Authorization")
			const prefix = "Bearer "
			if !bytes.HasPrefix(auth, []byte(prefix)) {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("missing bearer token")
				return
			}
			got := strings.TrimSpace(string(auth[len(prefix):]))
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				ctx.SetStatusCode(fasthttp.StatusUnauthorized)
				ctx.SetBodyString("invalid bearer token")
				return
			}
			next(ctx)
		}
	}
}

func isAPI(ctx *fasthttp.RequestCtx) bool {
	return bytes.HasPrefix(ctx.Path(), []byte("/api/"))
}

func writeJSONError(ctx *fasthttp.RequestCtx, status int, msg string) {
	body, _ := json.Marshal(map[string]any{"error": msg})
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}
