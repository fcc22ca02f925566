package handlers

import (
	"encoding/json"
	"errors"

	"github.com/valyala/fasthttp"

	dbpkg "careershift/internal/db"
	"careershift/internal/revision"
	"careershift/internal/roadmap"
)

// revisionMessage is the user-facing text for expected revision failures.
func revisionMessage(err error) (int, string) {
	switch {
	case errors.Is(err, revision.ErrUserNotFound):
		return fasthttp.StatusNotFound, "User not found"
	case errors.Is(err, revision.ErrPremiumOnly):
		return fasthttp.StatusForbidden, "Revision requests are only available on the Premium plan"
	case errors.Is(err, revision.ErrActiveRequest):
		return fasthttp.StatusConflict, "You already have an active revision request"
	case errors.Is(err, revision.ErrReasonRequired):
		return fasthttp.StatusBadRequest, "Please describe what should change"
	case errors.Is(err, revision.ErrReasonTooShort):
		return fasthttp.StatusBadRequest, "Please describe what should change in at least 10 characters"
	case errors.Is(err, revision.ErrResponseRequired):
		return fasthttp.StatusBadRequest, "A response for the user is required"
	case errors.Is(err, revision.ErrInvalidAction):
		return fasthttp.StatusBadRequest, "Action must be approve or reject"
	case errors.Is(err, revision.ErrNotFound):
		return fasthttp.StatusNotFound, "Revision request not found"
	case errors.Is(err, revision.ErrNotPending):
		return fasthttp.StatusConflict, "This request has already been answered"
	case errors.Is(err, revision.ErrExpired):
		return fasthttp.StatusConflict, "This request has expired"
	}
	return 0, ""
}

func ListRevisions(svc *revision.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		views, err := svc.ListForUser(ctx, user.ID)
		if err != nil {
			internalError(ctx, "list revisions", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"revisions": views})
	}
}

func RevisionEligibility(svc *revision.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		elig, err := svc.CheckEligibility(ctx, user.ID)
		if err != nil {
			internalError(ctx, "check revision eligibility", err)
			return
		}
		resp := map[string]any{"eligible": elig.Eligible}
		if !elig.Eligible {
			_, resp["reason"] = revisionMessage(elig.Reason)
		}
		jsonResponse(ctx, fasthttp.StatusOK, resp)
	}
}

type createRevisionRequest struct {
	RoadmapID     *uint           `json:"roadmapId"`
	OriginalInput json.RawMessage `json:"originalInput"`
	Reason        string          `json:"reason"`
}

// CreateRevision files a request. When roadmapId is given the roadmap's
// stored input becomes the snapshot; otherwise originalInput is required.
func CreateRevision(svc *revision.Service, roadmaps *roadmap.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		var body createRevisionRequest
		if !decodeJSON(ctx, &body) {
			return
		}

		snapshot := body.OriginalInput
		if body.RoadmapID != nil {
			rm, err := roadmaps.Get(ctx, user.ID, *body.RoadmapID)
			if errors.Is(err, roadmap.ErrNotFound) {
				revisionFailure(ctx, fasthttp.StatusNotFound, "Roadmap not found")
				return
			}
			if err != nil {
				internalError(ctx, "load roadmap for revision", err)
				return
			}
			if len(snapshot) == 0 || string(snapshot) == "null" {
				snapshot = json.RawMessage(rm.Input)
			}
		}
		if len(snapshot) == 0 || string(snapshot) == "null" {
			revisionFailure(ctx, fasthttp.StatusBadRequest, "roadmapId or originalInput is required")
			return
		}

		req, err := svc.Create(ctx, revision.CreateParams{
			UserID:        user.ID,
			RoadmapID:     body.RoadmapID,
			OriginalInput: snapshot,
			Reason:        body.Reason,
		})
		if err != nil {
			if status, msg := revisionMessage(err); status != 0 {
				revisionFailure(ctx, status, msg)
				return
			}
			internalError(ctx, "create revision", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusCreated, map[string]any{
			"success":    true,
			"revisionId": req.ID,
			"revision":   req,
		})
	}
}

// GetRevision only shows a request to its owner; anything else is a 404.
func GetRevision(svc *revision.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		id := stringParam(ctx, "id")
		if !svc.UserOwns(ctx, user.ID, id) {
			jsonError(ctx, fasthttp.StatusNotFound, "Revision request not found")
			return
		}
		view, err := svc.Get(ctx, id)
		if err != nil {
			internalError(ctx, "get revision", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"revision": view})
	}
}

func AdminListRevisions(svc *revision.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		status := dbpkg.RevisionStatus(ctx.QueryArgs().Peek("status"))

		var (
			views []revision.View
			err   error
		)
		switch status {
		case "":
			views, err = svc.ListAll(ctx, "")
		case dbpkg.RevisionPending:
			views, err = svc.ListPending(ctx)
		case dbpkg.RevisionApproved, dbpkg.RevisionRejected, dbpkg.RevisionCompleted, dbpkg.RevisionExpired:
			views, err = svc.ListAll(ctx, status)
		default:
			jsonError(ctx, fasthttp.StatusBadRequest, "Unknown status.")
			return
		}
		if err != nil {
			internalError(ctx, "list revisions", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"revisions": views})
	}
}

type respondRequest struct {
	Action   string `json:"action"`
	Response string `json:"response"`
}

func AdminRespondRevision(svc *revision.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var body respondRequest
		if !decodeJSON(ctx, &body) {
			return
		}
		action, ok := revision.ParseAction(body.Action)
		if !ok {
			jsonError(ctx, fasthttp.StatusBadRequest, "Action must be approve or reject")
			return
		}

		req, err := svc.Respond(ctx, stringParam(ctx, "id"), action, body.Response)
		if err != nil {
			if status, msg := revisionMessage(err); status != 0 {
				jsonError(ctx, status, msg)
				return
			}
			internalError(ctx, "respond to revision", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"revision": req})
	}
}

func AdminCompleteRevision(svc *revision.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id := stringParam(ctx, "id")
		if err := svc.Complete(ctx, id); err != nil {
			if status, msg := revisionMessage(err); status != 0 {
				jsonError(ctx, status, msg)
				return
			}
			internalError(ctx, "complete revision", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"id": id, "status": dbpkg.RevisionCompleted})
	}
}

// AdminSweepRevisions runs the expiration pass on demand.
func AdminSweepRevisions(svc *revision.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		n, err := svc.MarkExpired(ctx)
		if err != nil {
			internalError(ctx, "sweep revisions", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"expired": n})
	}
}

func revisionFailure(ctx *fasthttp.RequestCtx, status int, msg string) {
	jsonResponse(ctx, status, map[string]any{"success": false, "error": msg})
}
