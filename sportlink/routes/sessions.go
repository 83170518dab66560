package routes

import (
	"net/http"

	"sportlink/sportlink/config"
	"sportlink/sportlink/controllers"
	"sportlink/sportlink/middlewares"
	"sportlink/sportlink/types"
	"sportlink/sportlink/utils/jsonutils"
	utiltypes "sportlink/sportlink/utils/types"

	"github.com/go-chi/chi/v5"
)

func SessionsRoutes(ctrl *controllers.SessionsController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Use(middlewares.AuthMiddleware(cfg))

	// POST /sessions/sync : reconcile chat activity with every known status
	r.Post("/sync", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
		res, err := ctrl.Sync(r.Context(), actor)
		if err != nil {
			return fail(err)
		}
		return res, http.StatusOK, nil
	}))

	r.Post("/{id}/confirm", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
		var req utiltypes.ConfirmSessionRequest
		if err := jsonutils.DecodeBody(r.Body, &req); err != nil {
			return nil, http.StatusBadRequest, err
		}
		if err := ctrl.Confirm(r.Context(), actor, chi.URLParam(r, "id"), req); err != nil {
			return fail(err)
		}
		return nil, http.StatusNoContent, nil
	}))

	r.Post("/{id}/finalize", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
		if err := ctrl.Finalize(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
			return fail(err)
		}
		return nil, http.StatusNoContent, nil
	}))

	// GET /sessions/{view}?category=confirmed&sort=price-desc
	r.Get("/{view}", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
		q := r.URL.Query()
		list, err := ctrl.List(r.Context(), actor, chi.URLParam(r, "view"), q.Get("category"), q.Get("sort"))
		if err != nil {
			return fail(err)
		}
		return list, http.StatusOK, nil
	}))

	r.Get("/{view}/summary", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
		sum, err := ctrl.Summary(r.Context(), actor, chi.URLParam(r, "view"))
		if err != nil {
			return fail(err)
		}
		return sum, http.StatusOK, nil
	}))
	return r
}
