package handlers

import (
	"bytes"
	"errors"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"careershift/internal/config"
	dbpkg "careershift/internal/db"
	"careershift/internal/session"
	ui "careershift/web"
)

const minPasswordLength = 8

func LoginForm(_ *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		renderLogin(ctx, fasthttp.StatusOK, map[string]any{"Mode": string(ctx.QueryArgs().Peek("mode"))})
	}
}

func LoginSubmit(db *gorm.DB, signer *session.Signer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		email := normalizeEmail(string(ctx.PostArgs().Peek("email")))
		password := string(ctx.PostArgs().Peek("password"))

		var user dbpkg.User
		if err := db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				renderLoginError(ctx, "", "Invalid email or password.")
				return
			}
			zap.L().Error("login lookup failed", zap.Error(err))
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("database error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			renderLoginError(ctx, "", "Invalid email or password.")
			return
		}

		signer.SetCookie(ctx, user.ID, user.SessionVersion)
		ctx.Redirect("/", fasthttp.StatusSeeOther)
	}
}

// Signup creates a FREE account and signs it in.
func Signup(db *gorm.DB, signer *session.Signer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		email := normalizeEmail(string(ctx.PostArgs().Peek("email")))
		password := string(ctx.PostArgs().Peek("password"))
		name := strings.TrimSpace(string(ctx.PostArgs().Peek("name")))

		if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
			renderLoginError(ctx, "signup", "Enter a valid email address.")
			return
		}
		if utf8.RuneCountInString(password) < minPasswordLength {
			renderLoginError(ctx, "signup", "Password must be at least 8 characters.")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to hash password")
			return
		}

		user := &dbpkg.User{
			Email:        email,
			PasswordHash: string(hash),
			Name:         name,
			Tier:         dbpkg.TierFree,
		}
		if err := db.WithContext(ctx).Create(user).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				renderLoginError(ctx, "signup", "An account with this email already exists.")
				return
			}
			zap.L().Error("signup failed", zap.Error(err))
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to create account")
			return
		}

		zap.L().Info("account created", zap.Uint("user_id", user.ID))
		signer.SetCookie(ctx, user.ID, user.SessionVersion)
		ctx.Redirect("/", fasthttp.StatusSeeOther)
	}
}

func renderLogin(ctx *fasthttp.RequestCtx, status int, data map[string]any) {
	t := ui.Templates().Lookup("login.html")
	if t == nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("login template not found")
		return
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("render error")
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(buf.Bytes())
}

func renderLoginError(ctx *fasthttp.RequestCtx, mode, errMsg string) {
	status := fasthttp.StatusUnauthorized
	if mode == "signup" {
		status = fasthttp.StatusBadRequest
	}
	renderLogin(ctx, status, map[string]any{"Error": errMsg, "Mode": mode})
}

func Logout() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		session.ClearCookie(ctx)
		ctx.Redirect("/login", fasthttp.StatusSeeOther)
	}
}

// ChangePasswordSelf signs out every other session of the user and keeps
// the current one signed in with a fresh cookie.
func ChangePasswordSelf(db *gorm.DB, cfg *config.Config, signer *session.Signer) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if isBootstrapAdmin(user, cfg) {
			ctx.SetStatusCode(fasthttp.StatusForbidden)
			ctx.SetBodyString("cannot change password for bootstrap admin user")
			return
		}

		current := string(ctx.PostArgs().Peek("current_password"))
		newPassword := string(ctx.PostArgs().Peek("new_password"))
		confirm := string(ctx.PostArgs().Peek("confirm_password"))

		if current == "" || newPassword == "" || confirm == "" {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("all password fields are required")
			return
		}
		if newPassword != confirm {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("new passwords do not match")
			return
		}
		if utf8.RuneCountInString(newPassword) < minPasswordLength {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("new password must be at least 8 characters")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)); err != nil {
			ctx.SetStatusCode(fasthttp.StatusUnauthorized)
			ctx.SetBodyString("current password is incorrect")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to hash password")
			return
		}

		if err := dbpkg.SetPasswordHash(db.WithContext(ctx), user, string(hash)); err != nil {
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to update password")
			return
		}

		signer.SetCookie(ctx, user.ID, user.SessionVersion)
		ctx.Redirect("/", fasthttp.StatusSeeOther)
	}
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func isBootstrapAdmin(user *dbpkg.User, cfg *config.Config) bool {
	return cfg.AdminEmail != "" && user.Email == normalizeEmail(cfg.AdminEmail)
}
