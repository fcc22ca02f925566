package handlers

import (
	"bytes"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "careershift/internal/db"
	httpctx "careershift/internal/http/ctx"
	"careershift/internal/payment"
	"careershift/internal/revision"
	"careershift/internal/roadmap"
	ui "careershift/web"
)

type LayoutData struct {
	Title        string
	ActivePage   string
	PageTemplate string
	IsAdmin      bool
	Email        string
	Tier         dbpkg.Tier

	CanGenerate       bool
	Roadmaps          []RoadmapRow
	Revisions         []RevisionRow
	Payments          []PaymentRow
	Plans             []PlanRow
	Eligible          bool
	EligibilityReason string

	Pending []RevisionRow
	Users   []UserRow
}

type RoadmapRow struct {
	ID      uint
	Title   string
	Tier    dbpkg.Tier
	Created string
}

type RevisionRow struct {
	ID            string
	UserID        uint
	Reason        string
	Status        dbpkg.RevisionStatus
	AdminResponse string
	Requested     string
	Expires       string
	Responded     string
	IsExpired     bool
}

type PaymentRow struct {
	Reference string
	Tier      dbpkg.Tier
	Amount    string
	Status    dbpkg.PaymentStatus
	Created   string
	Paid      string
}

type PlanRow struct {
	Tier  dbpkg.Tier
	Price string
	Owned bool
}

type UserRow struct {
	ID      uint
	Email   string
	Name    string
	Tier    dbpkg.Tier
	IsAdmin bool
	Created string
}

func getLayoutData(ctx *fasthttp.RequestCtx, activePage, title, pageTemplate string) LayoutData {
	data := LayoutData{
		Title:        title,
		ActivePage:   activePage,
		PageTemplate: pageTemplate,
	}
	if user, ok := httpctx.UserFromCtx(ctx); ok {
		data.Email = user.Email
		data.Tier = user.Tier
		data.IsAdmin = user.IsAdmin
	}
	return data
}

func renderLayout(ctx *fasthttp.RequestCtx, data LayoutData) {
	var buf bytes.Buffer
	if err := ui.Templates().ExecuteTemplate(&buf, "layout", data); err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("render error")
		return
	}
	ctx.SetContentType("text/html; charset=utf-8")
	ctx.SetBody(buf.Bytes())
}

// Dashboard shows the signed-in user's tier, roadmaps, revision requests and
// purchases.
func Dashboard(roadmaps *roadmap.Service, revisions *revision.Service, payments *payment.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := httpctx.UserFromCtx(ctx)
		if !ok {
			ctx.Redirect("/login", fasthttp.StatusSeeOther)
			return
		}
		data := getLayoutData(ctx, "dashboard", "Dashboard", "dashboard")
		data.CanGenerate = roadmaps.CanGenerate()

		rms, err := roadmaps.List(ctx, user.ID)
		if err != nil {
			pageError(ctx, "load roadmaps", err)
			return
		}
		for _, rm := range rms {
			data.Roadmaps = append(data.Roadmaps, RoadmapRow{ID: rm.ID, Title: rm.Title, Tier: rm.Tier, Created: FormatDate(rm.CreatedAt)})
		}

		views, err := revisions.ListForUser(ctx, user.ID)
		if err != nil {
			pageError(ctx, "load revisions", err)
			return
		}
		data.Revisions = revisionRows(views)

		elig, err := revisions.CheckEligibility(ctx, user.ID)
		if err != nil {
			pageError(ctx, "check eligibility", err)
			return
		}
		data.Eligible = elig.Eligible
		if !elig.Eligible {
			_, data.EligibilityReason = revisionMessage(elig.Reason)
		}

		pays, err := payments.List(ctx, user.ID)
		if err != nil {
			pageError(ctx, "load payments", err)
			return
		}
		for _, p := range pays {
			data.Payments = append(data.Payments, PaymentRow{
				Reference: p.Reference,
				Tier:      p.Tier,
				Amount:    FormatMoney(p.AmountCents, p.Currency),
				Status:    p.Status,
				Created:   FormatDate(p.CreatedAt),
				Paid:      FormatDateTime(p.PaidAt),
			})
		}

		for _, tier := range []dbpkg.Tier{dbpkg.TierProfessional, dbpkg.TierPremium} {
			if cents, ok := payments.Price(tier); ok {
				data.Plans = append(data.Plans, PlanRow{
					Tier:  tier,
					Price: FormatMoney(cents, payments.Currency()),
					Owned: user.Tier.Rank() >= tier.Rank(),
				})
			}
		}

		renderLayout(ctx, data)
	}
}

// AdminPage shows the pending revision queue and the account list.
func AdminPage(db *gorm.DB, revisions *revision.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		data := getLayoutData(ctx, "admin", "Admin", "admin")

		pending, err := revisions.ListPending(ctx)
		if err != nil {
			pageError(ctx, "load pending revisions", err)
			return
		}
		data.Pending = revisionRows(pending)

		var users []dbpkg.User
		if err := db.WithContext(ctx).Order("created_at DESC").Find(&users).Error; err != nil {
			pageError(ctx, "load users", err)
			return
		}
		for _, u := range users {
			data.Users = append(data.Users, UserRow{
				ID: u.ID, Email: u.Email, Name: u.Name, Tier: u.Tier, IsAdmin: u.IsAdmin, Created: FormatDate(u.CreatedAt),
			})
		}

		renderLayout(ctx, data)
	}
}

func revisionRows(views []revision.View) []RevisionRow {
	rows := make([]RevisionRow, 0, len(views))
	for _, v := range views {
		rows = append(rows, RevisionRow{
			ID:            v.ID,
			UserID:        v.UserID,
			Reason:        v.Reason,
			Status:        v.Status,
			AdminResponse: v.AdminResponse,
			Requested:     FormatDate(v.RequestedAt),
			Expires:       FormatDate(v.ExpiresAt),
			Responded:     FormatDateTime(v.RespondedAt),
			IsExpired:     v.IsExpired,
		})
	}
	return rows
}

func pageError(ctx *fasthttp.RequestCtx, op string, err error) {
	internalError(ctx, op, err)
	ctx.SetContentType("text/plain; charset=utf-8")
	ctx.SetBodyString("failed to " + strings.TrimSpace(op))
}
