package ctx

import (
	"github.com/valyala/fasthttp"

	dbpkg "careershift/internal/db"
)

const (
	UserKey      = "user"
	RequestIDKey = "requestID"
)

func SetUser(ctx *fasthttp.RequestCtx, user *dbpkg.User) {
	ctx.SetUserValue(UserKey, user)
}

// UserFromCtx returns the signed-in user loaded by the session middleware.
func UserFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	u, ok := ctx.UserValue(UserKey).(*dbpkg.User)
	return u, ok && u != nil
}

func SetRequestID(ctx *fasthttp.RequestCtx, id string) {
	ctx.SetUserValue(RequestIDKey, id)
}

func RequestIDFromCtx(ctx *fasthttp.RequestCtx) string {
	id, _ := ctx.UserValue(RequestIDKey).(string)
	return id
}
