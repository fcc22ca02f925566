package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"

	dbpkg "careershift/internal/db"
	"careershift/internal/payment"
)

type checkoutRequest struct {
	Tier string `json:"tier"`
}

func Checkout(svc *payment.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		var body checkoutRequest
		if !decodeJSON(ctx, &body) {
			return
		}
		tier, valid := dbpkg.ParseTier(body.Tier)
		if !valid {
			jsonError(ctx, fasthttp.StatusBadRequest, "Unknown tier.")
			return
		}

		co, err := svc.Checkout(ctx, user.ID, tier)
		switch {
		case err == nil:
			jsonResponse(ctx, fasthttp.StatusCreated, map[string]any{"checkout": co})
		case errors.Is(err, payment.ErrInvalidTier):
			jsonError(ctx, fasthttp.StatusBadRequest, "This tier cannot be purchased.")
		case errors.Is(err, payment.ErrAlreadyEntitled):
			jsonError(ctx, fasthttp.StatusConflict, "You already have this tier or a higher one.")
		case errors.Is(err, payment.ErrUserNotFound):
			jsonError(ctx, fasthttp.StatusNotFound, "User not found.")
		default:
			internalError(ctx, "checkout", err)
		}
	}
}

func ListPayments(svc *payment.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		payments, err := svc.List(ctx, user.ID)
		if err != nil {
			internalError(ctx, "list payments", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"payments": payments})
	}
}

// PaymentWebhook receives processor events. Duplicates and ignored types are
// acknowledged with 200 so the processor stops retrying; unexpected failures
// return 500 so it retries.
func PaymentWebhook(svc *payment.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		err := svc.HandleWebhook(ctx, ctx.PostBody(), string(ctx.Request.Header.Peek(payment.SignatureHeader)))
		switch {
		case err == nil:
			jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"received": true})
		case errors.Is(err, payment.ErrEventAlreadyProcessed):
			jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"received": true, "duplicate": true})
		case errors.Is(err, payment.ErrEventIgnored):
			jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"received": true, "ignored": true})
		case errors.Is(err, payment.ErrInvalidSignature):
			jsonError(ctx, fasthttp.StatusUnauthorized, "invalid signature")
		case errors.Is(err, payment.ErrInvalidPayload):
			jsonError(ctx, fasthttp.StatusBadRequest, "invalid payload")
		case errors.Is(err, payment.ErrAmountMismatch):
			jsonError(ctx, fasthttp.StatusUnprocessableEntity, "amount mismatch")
		case errors.Is(err, payment.ErrNotFound):
			jsonError(ctx, fasthttp.StatusNotFound, "unknown reference")
		default:
			internalError(ctx, "payment webhook", err)
		}
	}
}
