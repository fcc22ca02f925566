package ratelimit

import (
	"strings"

	"github.com/valyala/fasthttp"
)

const loopbackIP = "127.0.0.1"

// Identifier keys signed-in callers by user id, so one account keeps one
// bucket across networks, and everyone else by IP.
func Identifier(userID, ip string) string {
	if userID != "" {
		return "user:" + userID
	}
	return "ip:" + ip
}

// ClientIP reads X-Forwarded-For (first entry), then X-Real-IP. The headers
// are trusted as-is, which is only sound behind a reverse proxy that
// overwrites them.
func ClientIP(ctx *fasthttp.RequestCtx) string {
	if fwd := string(ctx.Request.Header.Peek("X-Forwarded-For")); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if realIP := strings.TrimSpace(string(ctx.Request.Header.Peek("X-Real-IP"))); realIP != "" {
		return realIP
	}
	return loopbackIP
}
