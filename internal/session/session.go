// Package session issues and checks signed session cookies. A cookie value
// is "<userID>.<version>.<expiryUnix>.<hex hmac>", so the server keeps no
// session state and a user id cannot be forged without the secret. The
// version is the user's session version at sign-in; bumping it on the user
// row revokes every cookie issued before.
package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

const (
	CookieName = "session"
	Lifetime   = 30 * 24 * time.Hour
)

var ErrInvalid = errors.New("invalid session")

type Signer struct {
	secret []byte
	now    func() time.Time
	secure bool
}

type Option func(*Signer)

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// WithSecureCookies marks issued cookies Secure.
func WithSecureCookies(secure bool) Option {
	return func(s *Signer) {
		s.secure = secure
	}
}

func NewSigner(secret string, opts ...Option) *Signer {
	s := &Signer{secret: []byte(secret), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RandomSecret returns a hex secret for processes started without one.
func RandomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Claims is what a valid cookie carries.
type Claims struct {
	UserID  uint
	Version uint
}

// Issue returns a cookie value for userID at the given session version,
// valid for Lifetime.
func (s *Signer) Issue(userID, version uint) string {
	payload := fmt.Sprintf("%d.%d.%d", userID, version, s.now().Add(Lifetime).Unix())
	return payload + "." + s.sign(payload)
}

// Parse returns the claims carried by value, or ErrInvalid when the value
// is malformed, tampered with or past its expiry. Callers still compare
// Version with the user's current one.
func (s *Signer) Parse(value string) (Claims, error) {
	idx := strings.LastIndexByte(value, '.')
	if idx < 0 {
		return Claims{}, ErrInvalid
	}
	payload, sig := value[:idx], value[idx+1:]
	if !hmac.Equal([]byte(sig), []byte(s.sign(payload))) {
		return Claims{}, ErrInvalid
	}

	parts := strings.Split(payload, ".")
	if len(parts) != 3 {
		return Claims{}, ErrInvalid
	}
	id, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil || id == 0 {
		return Claims{}, ErrInvalid
	}
	version, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return Claims{}, ErrInvalid
	}
	exp, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil || !s.now().Before(time.Unix(exp, 0)) {
		return Claims{}, ErrInvalid
	}
	return Claims{UserID: uint(id), Version: uint(version)}, nil
}

// SetCookie writes a fresh session cookie for userID at version.
func (s *Signer) SetCookie(ctx *fasthttp.RequestCtx, userID, version uint) {
	var c fasthttp.Cookie
	c.SetKey(CookieName)
	c.SetValue(s.Issue(userID, version))
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetSecure(s.secure)
	c.SetSameSite(fasthttp.CookieSameSiteLaxMode)
	c.SetMaxAge(int(Lifetime / time.Second))
	ctx.Response.Header.SetCookie(&c)
}

// ClearCookie expires the session cookie.
func ClearCookie(ctx *fasthttp.RequestCtx) {
	var c fasthttp.Cookie
	c.SetKey(CookieName)
	c.SetValue("")
	c.SetPath("/")
	c.SetHTTPOnly(true)
	c.SetMaxAge(-1)
	ctx.Response.Header.SetCookie(&c)
}

func (s *Signer) sign(payload string) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}
