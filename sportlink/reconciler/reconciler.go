// Package reconciler merges the per-status session queries of the SportLink
// backend into the ordered lists the session pages show.
package reconciler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sportlink/sportlink/types"
	"sportlink/sportlink/utils/locale"
	"sportlink/sportlink/utils/logging"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ErrViewRole = errors.New("view does not belong to the caller's role")

// Fetcher loads the sessions of one actor in one status.
type Fetcher interface {
	FetchByStatus(ctx context.Context, actor types.Actor, status Status) ([]SessionRecord, error)
}

type Reconciler struct {
	fetcher Fetcher
	loc     *time.Location
	now     func() time.Time
}

type Option func(*Reconciler)

// WithLocation sets the zone used for "today" and for timestamps without an offset.
func WithLocation(loc *time.Location) Option {
	return func(r *Reconciler) {
		if loc != nil {
			r.loc = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

func New(fetcher Fetcher, opts ...Option) *Reconciler {
	r := &Reconciler{fetcher: fetcher, loc: time.Local, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile fetches every status of view concurrently and waits for all of
// them. Any failed fetch fails the whole call.
func (r *Reconciler) Reconcile(ctx context.Context, actor types.Actor, view View) ([]SessionView, error) {
	defer logging.LogDuration(ctx, "Reconcile."+view.Name)()

	if actor.Role != view.Role {
		return nil, fmt.Errorf("%w: %s as %s", ErrViewRole, view.Name, actor.Role)
	}

	// Siblings are not cancelled on failure; Wait joins them all.
	var g errgroup.Group
	results := make([][]SessionRecord, len(view.Statuses))
	for i, status := range view.Statuses {
		g.Go(func() error {
			recs, err := r.fetcher.FetchByStatus(ctx, actor, status)
			if err != nil {
				return fmt.Errorf("fetch %s sessions: %w", status, err)
			}
			results[i] = recs
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.ErrorLogger.Error("session reconcile failed",
			zap.String("view", view.Name), zap.String("user_id", actor.ID), zap.Error(err))
		return nil, err
	}

	now := r.now().In(r.loc)
	midnight := locale.StartOfDay(now, r.loc)
	seen := make(map[ID]bool)
	out := []SessionView{}
	for _, recs := range results {
		for _, rec := range recs {
			// records without an id cannot be matched, so each one is kept
			if rec.ID != "" {
				if seen[rec.ID] {
					continue
				}
				seen[rec.ID] = true
			}

			at, ok := rec.FechaHora.In(r.loc)
			if !ok {
				logging.AppLogger.Warn("session without usable fechaHora",
					zap.String("session_id", rec.ID.String()), zap.String("fecha_hora", rec.FechaHora.Raw))
				at = now
			}
			if view.Order == Upcoming && at.Before(midnight) {
				continue
			}
			out = append(out, mapRecord(rec, view.Role, at))
		}
	}
	sortViews(out, view.Order)
	return out, nil
}
