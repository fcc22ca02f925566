package handlers

import (
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"careershift/internal/config"
	dbpkg "careershift/internal/db"
)

// AdminListUsers returns every account, newest first.
func AdminListUsers(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var users []dbpkg.User
		if err := db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
			internalError(ctx, "list users", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"users": users})
	}
}

type setTierRequest struct {
	Tier string `json:"tier"`
}

// AdminSetTier grants a tier by hand, e.g. for support cases. Payments are
// left untouched, so a later refund recomputes from purchases alone.
func AdminSetTier(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := uintParam(ctx, "id")
		if !ok {
			return
		}
		var body setTierRequest
		if !decodeJSON(ctx, &body) {
			return
		}
		tier, valid := dbpkg.ParseTier(body.Tier)
		if !valid {
			jsonError(ctx, fasthttp.StatusBadRequest, "Tier must be FREE, PROFESSIONAL or PREMIUM.")
			return
		}

		res := db.WithContext(ctx).Model(&dbpkg.User{}).Where("id = ?", id).Update("tier", tier)
		if res.Error != nil {
			internalError(ctx, "set tier", res.Error)
			return
		}
		if res.RowsAffected == 0 {
			jsonError(ctx, fasthttp.StatusNotFound, "User not found.")
			return
		}
		zap.L().Info("tier set by admin", zap.Uint("user_id", id), zap.String("tier", string(tier)))
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"id": id, "tier": tier})
	}
}

func ResetPassword(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := loadUserParam(ctx, db)
		if !ok {
			return
		}
		if isBootstrapAdmin(user, cfg) {
			ctx.SetStatusCode(fasthttp.StatusForbidden)
			ctx.SetBodyString("cannot modify bootstrap admin user")
			return
		}

		password := string(ctx.PostArgs().Peek("password"))
		if len(password) < minPasswordLength {
			ctx.SetStatusCode(fasthttp.StatusBadRequest)
			ctx.SetBodyString("password must be at least 8 characters")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
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

		ctx.Redirect("/admin", fasthttp.StatusSeeOther)
	}
}

// DeleteUser removes the account together with its roadmaps, revision
// requests and payments.
func DeleteUser(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := loadUserParam(ctx, db)
		if !ok {
			return
		}
		if isBootstrapAdmin(user, cfg) {
			ctx.SetStatusCode(fasthttp.StatusForbidden)
			ctx.SetBodyString("cannot delete bootstrap admin user")
			return
		}

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			for _, model := range []any{&dbpkg.Roadmap{}, &dbpkg.RevisionRequest{}, &dbpkg.Payment{}} {
				if err := tx.Where("user_id = ?", user.ID).Delete(model).Error; err != nil {
					return err
				}
			}
			return tx.Delete(user).Error
		})
		if err != nil {
			zap.L().Error("delete user failed", zap.Uint("user_id", user.ID), zap.Error(err))
			ctx.SetStatusCode(fasthttp.StatusInternalServerError)
			ctx.SetBodyString("failed to delete user")
			return
		}

		ctx.Redirect("/admin", fasthttp.StatusSeeOther)
	}
}

func loadUserParam(ctx *fasthttp.RequestCtx, db *gorm.DB) (*dbpkg.User, bool) {
	id, err := strconv.ParseUint(stringParam(ctx, "id"), 10, 32)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusBadRequest)
		ctx.SetBodyString("invalid user ID")
		return nil, false
	}

	var user dbpkg.User
	if err := db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			ctx.SetStatusCode(fasthttp.StatusNotFound)
			ctx.SetBodyString("user not found")
			return nil, false
		}
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("database error")
		return nil, false
	}
	return &user, true
}
