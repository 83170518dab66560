package routes

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"sportlink/sportlink/config"
	"sportlink/sportlink/controllers"
	"sportlink/sportlink/middlewares"
	"sportlink/sportlink/types"
	"sportlink/sportlink/utils/jsonutils"
	"sportlink/sportlink/utils/logging"
	utiltypes "sportlink/sportlink/utils/types"

	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// authed resolves the caller before running handler.
func authed(handler func(r *http.Request, actor types.Actor) (any, int, error)) http.HandlerFunc {
	return handleJSON(func(r *http.Request) (any, int, error) {
		actor, ok := actorOf(r)
		if !ok {
			return nil, http.StatusUnauthorized, errNoActor
		}
		return handler(r, actor)
	})
}

func fail(err error) (any, int, error) {
	return nil, statusFor(err), err
}

func ChatRoutes(ctrl *controllers.ChatController, cfg config.Config) chi.Router {
	r := chi.NewRouter()
	r.Group(func(gr chi.Router) {
		gr.Use(middlewares.AuthMiddleware(cfg))

		// GET /chat/ : active chats of the caller, newest first
		gr.Get("/", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
			chats, err := ctrl.ListChats(r.Context(), actor)
			if err != nil {
				return fail(err)
			}
			return chats, http.StatusOK, nil
		}))

		gr.Route("/session/{session_id}", func(sr chi.Router) {
			// POST opens the chat of a booked session, creating it on first use
			sr.Post("/", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				t, err := ctrl.Open(r.Context(), actor, chi.URLParam(r, "session_id"))
				if err != nil {
					return fail(err)
				}
				return t, http.StatusOK, nil
			}))

			sr.Get("/", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				t, err := ctrl.GetChat(r.Context(), actor, chi.URLParam(r, "session_id"))
				if err != nil {
					return fail(err)
				}
				return t, http.StatusOK, nil
			}))

			sr.Delete("/", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				if err := ctrl.Delete(r.Context(), actor, chi.URLParam(r, "session_id")); err != nil {
					return fail(err)
				}
				return nil, http.StatusNoContent, nil
			}))

			sr.Get("/messages", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				last := 0
				if v := r.URL.Query().Get("last"); v != "" {
					n, err := strconv.Atoi(v)
					if err != nil || n < 0 {
						return nil, http.StatusBadRequest, controllers.ErrBadRequest
					}
					last = n
				}
				msgs, err := ctrl.Messages(r.Context(), actor, chi.URLParam(r, "session_id"), last)
				if err != nil {
					return fail(err)
				}
				return msgs, http.StatusOK, nil
			}))

			sr.Post("/messages", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				var req utiltypes.SendMessageRequest
				if err := jsonutils.DecodeBody(r.Body, &req); err != nil {
					return nil, http.StatusBadRequest, err
				}
				msg, err := ctrl.Send(r.Context(), actor, chi.URLParam(r, "session_id"), req)
				if err != nil {
					return fail(err)
				}
				return msg, http.StatusCreated, nil
			}))

			sr.Post("/attachments", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				file, header, err := r.FormFile("file")
				if err != nil {
					return nil, http.StatusBadRequest, err
				}
				defer file.Close()
				contentType := header.Header.Get("Content-Type")
				msg, err := ctrl.Upload(r.Context(), actor, chi.URLParam(r, "session_id"),
					header.Filename, contentType, file, header.Size)
				if err != nil {
					return fail(err)
				}
				return msg, http.StatusCreated, nil
			}))

			sr.Get("/attachment", func(w http.ResponseWriter, r *http.Request) {
				actor, ok := actorOf(r)
				if !ok {
					http.Error(w, errNoActor.Error(), http.StatusUnauthorized)
					return
				}
				body, att, err := ctrl.Attachment(r.Context(), actor, chi.URLParam(r, "session_id"), r.URL.Query().Get("key"))
				if err != nil {
					http.Error(w, err.Error(), statusFor(err))
					return
				}
				defer body.Close()
				w.Header().Set("Content-Type", att.ContentType)
				if att.FileName != "" {
					w.Header().Set("Content-Disposition", `inline; filename="`+att.FileName+`"`)
				}
				io.Copy(w, body)
			})

			// POST /read marks everything read, or one message with ?message=ID
			sr.Post("/read", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				if err := ctrl.MarkRead(r.Context(), actor, chi.URLParam(r, "session_id"), r.URL.Query().Get("message")); err != nil {
					return fail(err)
				}
				return nil, http.StatusNoContent, nil
			}))

			sr.Get("/unread", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				id := chi.URLParam(r, "session_id")
				n, err := ctrl.Unread(r.Context(), actor, id)
				if err != nil {
					return fail(err)
				}
				return utiltypes.UnreadResponse{SessionID: id, Unread: n}, http.StatusOK, nil
			}))

			sr.Get("/search", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				msgs, err := ctrl.Search(r.Context(), actor, chi.URLParam(r, "session_id"), r.URL.Query().Get("q"))
				if err != nil {
					return fail(err)
				}
				return msgs, http.StatusOK, nil
			}))

			sr.Get("/export", func(w http.ResponseWriter, r *http.Request) {
				actor, ok := actorOf(r)
				if !ok {
					http.Error(w, errNoActor.Error(), http.StatusUnauthorized)
					return
				}
				id := chi.URLParam(r, "session_id")
				doc, err := ctrl.Export(r.Context(), actor, id)
				if err != nil {
					http.Error(w, err.Error(), statusFor(err))
					return
				}
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Content-Disposition", `attachment; filename="chat-`+id+`.json"`)
				io.WriteString(w, doc)
			})

			sr.Get("/summary", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				digest, err := ctrl.Summary(r.Context(), actor, chi.URLParam(r, "session_id"))
				if err != nil {
					return fail(err)
				}
				return digest, http.StatusOK, nil
			}))

			sr.Post("/deactivate", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				if err := ctrl.SetActive(r.Context(), actor, chi.URLParam(r, "session_id"), false); err != nil {
					return fail(err)
				}
				return nil, http.StatusNoContent, nil
			}))

			sr.Post("/reactivate", authed(func(r *http.Request, actor types.Actor) (any, int, error) {
				if err := ctrl.SetActive(r.Context(), actor, chi.URLParam(r, "session_id"), true); err != nil {
					return fail(err)
				}
				return nil, http.StatusNoContent, nil
			}))
		})
	})

	// the websocket authenticates with its first frame instead of a header
	r.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		serveChatSocket(w, r, ctrl, cfg)
	})
	return r
}

func writeFrame(ctx context.Context, conn *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(wctx, websocket.MessageText, data)
}

func serveChatSocket(w http.ResponseWriter, r *http.Request, ctrl *controllers.ChatController, cfg config.Config) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	typ, data, err := conn.Read(ctx)
	if err != nil {
		return
	}
	if typ != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "unsupported data")
		return
	}
	var hello utiltypes.WSHandshake
	if err := json.Unmarshal(data, &hello); err != nil {
		writeFrame(ctx, conn, map[string]string{"error": "invalid json"})
		return
	}
	actor, err := middlewares.ParseToken(cfg.JWTSecret, hello.Token)
	if err != nil {
		writeFrame(ctx, conn, map[string]string{"error": "invalid token"})
		conn.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}
	events, unsubscribe, err := ctrl.Subscribe(ctx, actor, hello.SessionID)
	if err != nil {
		writeFrame(ctx, conn, map[string]string{"error": err.Error()})
		conn.Close(websocket.StatusPolicyViolation, "forbidden")
		return
	}
	defer unsubscribe()
	logging.AppLogger.Info("chat socket opened",
		zap.String("session_id", hello.SessionID), zap.String("user_id", actor.ID))

	go func() {
		defer cancel()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				if err := writeFrame(ctx, conn, ev); err != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if typ != websocket.MessageText {
			continue
		}
		var req utiltypes.SendMessageRequest
		if err := json.Unmarshal(data, &req); err != nil {
			writeFrame(ctx, conn, map[string]string{"error": "invalid json"})
			continue
		}
		// the sent message comes back through the hub like everyone else's
		if _, err := ctrl.Send(ctx, actor, hello.SessionID, req); err != nil {
			writeFrame(ctx, conn, map[string]string{"error": err.Error()})
		}
	}
	conn.Close(websocket.StatusNormalClosure, "")
}
