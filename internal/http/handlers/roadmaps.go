package handlers

import (
	"context"
	"errors"

	"github.com/valyala/fasthttp"

	httpctx "careershift/internal/http/ctx"
	"careershift/internal/roadmap"
)

// CreateRoadmap generates a roadmap. Signed-in users get it saved at their
// tier; anonymous callers get a FREE roadmap back without it being saved.
func CreateRoadmap(svc *roadmap.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !svc.CanGenerate() {
			jsonError(ctx, fasthttp.StatusServiceUnavailable, "Roadmap generation is not available right now.")
			return
		}
		var in roadmap.Input
		if !decodeJSON(ctx, &in) {
			return
		}

		user, _ := httpctx.UserFromCtx(ctx)
		rm, err := svc.Generate(ctx, user, in)
		switch {
		case err == nil:
		case errors.Is(err, roadmap.ErrInvalidInput):
			jsonError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		case errors.Is(err, roadmap.ErrEmptyResponse):
			jsonError(ctx, fasthttp.StatusBadGateway, "The generator returned an empty roadmap. Please try again.")
			return
		case errors.Is(err, context.DeadlineExceeded):
			jsonError(ctx, fasthttp.StatusGatewayTimeout, "Roadmap generation timed out. Please try again.")
			return
		default:
			internalError(ctx, "generate roadmap", err)
			return
		}

		status := fasthttp.StatusOK
		if rm.ID != 0 {
			status = fasthttp.StatusCreated
		}
		jsonResponse(ctx, status, map[string]any{"roadmap": rm, "saved": rm.ID != 0})
	}
}

func ListRoadmaps(svc *roadmap.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		roadmaps, err := svc.List(ctx, user.ID)
		if err != nil {
			internalError(ctx, "list roadmaps", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"roadmaps": roadmaps})
	}
}

func GetRoadmap(svc *roadmap.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		id, ok := uintParam(ctx, "id")
		if !ok {
			return
		}
		rm, err := svc.Get(ctx, user.ID, id)
		if errors.Is(err, roadmap.ErrNotFound) {
			jsonError(ctx, fasthttp.StatusNotFound, "Roadmap not found.")
			return
		}
		if err != nil {
			internalError(ctx, "get roadmap", err)
			return
		}
		jsonResponse(ctx, fasthttp.StatusOK, map[string]any{"roadmap": rm})
	}
}

func DeleteRoadmap(svc *roadmap.Service) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		id, ok := uintParam(ctx, "id")
		if !ok {
			return
		}
		err := svc.Delete(ctx, user.ID, id)
		if errors.Is(err, roadmap.ErrNotFound) {
			jsonError(ctx, fasthttp.StatusNotFound, "Roadmap not found.")
			return
		}
		if err != nil {
			internalError(ctx, "delete roadmap", err)
			return
		}
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}
}
