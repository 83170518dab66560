package routes

import (
	"encoding/json"
	"errors"
	"net/http"

	"sportlink/sportlink/chatstore"
	"sportlink/sportlink/controllers"
	"sportlink/sportlink/middlewares"
	"sportlink/sportlink/reconciler"
	"sportlink/sportlink/services/sessions"
	"sportlink/sportlink/sources/storage"
	"sportlink/sportlink/types"
	httputils "sportlink/sportlink/utils/http"
	"sportlink/sportlink/utils/logging"

	"go.uber.org/zap"
)

// generic wrapper to reduce boilerplate
func handleJSON(handler func(r *http.Request) (any, int, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, status, err := handler(r)
		if err != nil {
			if status >= http.StatusInternalServerError {
				logging.ErrorLogger.Error("request failed",
					zap.String("path", r.URL.Path), zap.Int("status", status), zap.Error(err))
			}
			http.Error(w, err.Error(), status)
			return
		}
		if res == nil {
			w.WriteHeader(status)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(res)
	}
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var upstream *httputils.StatusError
	switch {
	case errors.Is(err, controllers.ErrChatNotFound),
		errors.Is(err, reconciler.ErrSessionNotFound),
		errors.Is(err, reconciler.ErrUnknownView):
		return http.StatusNotFound
	case errors.Is(err, sessions.ErrForbidden),
		errors.Is(err, reconciler.ErrViewRole):
		return http.StatusForbidden
	case errors.Is(err, controllers.ErrChatClosed),
		errors.Is(err, sessions.ErrInvalidTransition),
		errors.Is(err, chatstore.ErrVersionConflict):
		return http.StatusConflict
	case errors.Is(err, controllers.ErrBadRequest),
		errors.Is(err, chatstore.ErrInvalidMessageType),
		errors.Is(err, storage.ErrAttachmentType):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrAttachmentSize):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, chatstore.ErrWriteDropped):
		return http.StatusInsufficientStorage
	case errors.Is(err, controllers.ErrNoStorage):
		return http.StatusServiceUnavailable
	case errors.As(err, &upstream):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func actorOf(r *http.Request) (types.Actor, bool) {
	return middlewares.ActorFromContext(r.Context())
}

var errNoActor = errors.New("unauthorized")
