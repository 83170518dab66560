package controllers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"sportlink/sportlink/reconciler"
	"sportlink/sportlink/services/sessions"
	"sportlink/sportlink/types"
	utiltypes "sportlink/sportlink/utils/types"
)

type SessionsController struct {
	svc *sessions.Service
	loc *time.Location
}

func NewSessionsController(svc *sessions.Service, loc *time.Location) *SessionsController {
	if loc == nil {
		loc = time.Local
	}
	return &SessionsController{svc: svc, loc: loc}
}

func (c *SessionsController) List(ctx context.Context, actor types.Actor, view, category, sortKey string) ([]reconciler.SessionView, error) {
	return c.svc.List(ctx, actor, view, category, sortKey)
}

func (c *SessionsController) Summary(ctx context.Context, actor types.Actor, view string) (reconciler.Summary, error) {
	return c.svc.Summary(ctx, actor, view)
}

// Confirm parses the picked date and time in the local zone.
func (c *SessionsController) Confirm(ctx context.Context, actor types.Actor, sessionID string, req utiltypes.ConfirmSessionRequest) error {
	var when time.Time
	if req.Date != "" || req.Time != "" {
		if req.Date == "" || req.Time == "" {
			return fmt.Errorf("%w: date and time are both required", ErrBadRequest)
		}
		t, err := time.ParseInLocation("2006-01-02 15:04", strings.TrimSpace(req.Date)+" "+strings.TrimSpace(req.Time), c.loc)
		if err != nil {
			return fmt.Errorf("%w: invalid date or time: %v", ErrBadRequest, err)
		}
		when = t
	}
	return c.svc.Confirm(ctx, actor, sessionID, when)
}

func (c *SessionsController) Finalize(ctx context.Context, actor types.Actor, sessionID string) error {
	return c.svc.Finalize(ctx, actor, sessionID)
}

// Sync aligns the actor's chats with every known session status.
func (c *SessionsController) Sync(ctx context.Context, actor types.Actor) (reconciler.SyncResult, error) {
	return c.svc.SyncAll(ctx, actor, []reconciler.Status{
		reconciler.StatusPendiente,
		reconciler.StatusConfirmada,
		reconciler.StatusActiva,
		reconciler.StatusCompletada,
		reconciler.StatusFinalizada,
		reconciler.StatusCancelada,
		reconciler.StatusCalificado,
	})
}
