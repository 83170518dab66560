// Package sessions ties booked sessions from the backend to their chat threads.
package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sportlink/sportlink/chatstore"
	"sportlink/sportlink/reconciler"
	"sportlink/sportlink/services/hub"
	"sportlink/sportlink/types"
	"sportlink/sportlink/utils/logging"

	"go.uber.org/zap"
)

var (
	ErrForbidden         = errors.New("session does not belong to the caller")
	ErrInvalidTransition = errors.New("session status does not allow this change")
)

// Backend is what the service needs from the SportLink REST API.
type Backend interface {
	reconciler.Fetcher
	GetSession(ctx context.Context, id string) (*reconciler.SessionRecord, error)
	UpdateSession(ctx context.Context, u reconciler.SessionUpdate) error
}

type Service struct {
	backend Backend
	rec     *reconciler.Reconciler
	chats   *chatstore.Store
	hub     *hub.Hub
	loc     *time.Location
}

func NewService(backend Backend, rec *reconciler.Reconciler, chats *chatstore.Store, h *hub.Hub, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{backend: backend, rec: rec, chats: chats, hub: h, loc: loc}
}

// List reconciles a built-in view, then applies the optional page filter and sort.
func (s *Service) List(ctx context.Context, actor types.Actor, viewName, category, sortKey string) ([]reconciler.SessionView, error) {
	view, err := reconciler.LookupView(viewName)
	if err != nil {
		return nil, err
	}
	out, err := s.rec.Reconcile(ctx, actor, view)
	if err != nil {
		return nil, err
	}
	out = reconciler.FilterByCategory(out, category)
	if sortKey != "" {
		out = reconciler.SortViews(out, sortKey)
	}
	return out, nil
}

func (s *Service) Summary(ctx context.Context, actor types.Actor, viewName string) (reconciler.Summary, error) {
	list, err := s.List(ctx, actor, viewName, "", "")
	if err != nil {
		return reconciler.Summary{}, err
	}
	return reconciler.Summarize(list), nil
}

// owned loads a session and checks that actor takes part in it.
func (s *Service) owned(ctx context.Context, actor types.Actor, sessionID string) (*reconciler.SessionRecord, error) {
	rec, err := s.backend.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	var owner reconciler.ID
	switch actor.Role {
	case types.RoleCliente:
		if rec.Cliente != nil {
			owner = rec.Cliente.ID
		}
	case types.RoleEntrenador:
		if rec.Entrenador != nil {
			owner = rec.Entrenador.ID
		}
	}
	if owner == "" || owner.String() != actor.ID {
		return nil, fmt.Errorf("%w: %s", ErrForbidden, sessionID)
	}
	return rec, nil
}

// OpenChat returns the thread of a session, creating it from the booking's
// snapshots on first use and aligning its active flag with the status.
func (s *Service) OpenChat(ctx context.Context, actor types.Actor, sessionID string) (*chatstore.Thread, error) {
	rec, err := s.owned(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := s.chats.InitializeChat(ctx, sessionID, rec.ChatSeed()); err != nil {
		return nil, err
	}
	if _, err := reconciler.SyncChatActivity(ctx, s.chats, []reconciler.SessionRecord{*rec}); err != nil {
		return nil, err
	}
	return s.chats.GetChat(ctx, sessionID)
}

// Confirm moves a pending session to Confirmada at the given local time.
// A zero when keeps the booked time.
func (s *Service) Confirm(ctx context.Context, actor types.Actor, sessionID string, when time.Time) error {
	rec, err := s.trainerSession(ctx, actor, sessionID)
	if err != nil {
		return err
	}
	if rec.Estado != reconciler.StatusPendiente {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, sessionID, rec.Estado)
	}
	fecha := rec.FechaHora
	if !when.IsZero() {
		fecha = reconciler.NewDateTime(when.In(s.loc))
	}
	return s.transition(ctx, *rec, reconciler.StatusConfirmada, fecha)
}

// Finalize closes a session that has not ended yet and deactivates its chat.
func (s *Service) Finalize(ctx context.Context, actor types.Actor, sessionID string) error {
	rec, err := s.trainerSession(ctx, actor, sessionID)
	if err != nil {
		return err
	}
	if rec.Estado.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrInvalidTransition, sessionID, rec.Estado)
	}
	return s.transition(ctx, *rec, reconciler.StatusFinalizada, rec.FechaHora)
}

func (s *Service) trainerSession(ctx context.Context, actor types.Actor, sessionID string) (*reconciler.SessionRecord, error) {
	if actor.Role != types.RoleEntrenador {
		return nil, fmt.Errorf("%w: only trainers change session status", ErrForbidden)
	}
	return s.owned(ctx, actor, sessionID)
}

func (s *Service) transition(ctx context.Context, rec reconciler.SessionRecord, to reconciler.Status, fecha reconciler.DateTime) error {
	if err := s.backend.UpdateSession(ctx, reconciler.UpdateFor(rec, to, fecha)); err != nil {
		return fmt.Errorf("update session %s: %w", rec.ID, err)
	}
	logging.AppLogger.Info("session status changed",
		zap.String("session_id", rec.ID.String()), zap.String("from", string(rec.Estado)), zap.String("to", string(to)))

	rec.Estado = to
	rec.FechaHora = fecha
	if _, err := reconciler.SyncChatActivity(ctx, s.chats, []reconciler.SessionRecord{rec}); err != nil {
		return err
	}
	if s.hub != nil {
		active := !to.Terminal()
		s.hub.Publish(hub.Event{Type: hub.EventStatus, SessionID: rec.ID.String(), Active: &active})
	}
	return nil
}

// SyncAll aligns the chats of every session of actor in statuses with the backend.
func (s *Service) SyncAll(ctx context.Context, actor types.Actor, statuses []reconciler.Status) (reconciler.SyncResult, error) {
	var all []reconciler.SessionRecord
	for _, st := range statuses {
		recs, err := s.backend.FetchByStatus(ctx, actor, st)
		if err != nil {
			return reconciler.SyncResult{}, err
		}
		all = append(all, recs...)
	}
	return reconciler.SyncChatActivity(ctx, s.chats, all)
}
