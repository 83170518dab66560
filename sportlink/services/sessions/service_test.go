package sessions

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"sportlink/sportlink/chatstore"
	"sportlink/sportlink/reconciler"
	"sportlink/sportlink/services/hub"
	"sportlink/sportlink/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu       sync.Mutex
	sessions map[string]reconciler.SessionRecord
	updates  []reconciler.SessionUpdate
}

func (b *fakeBackend) FetchByStatus(_ context.Context, actor types.Actor, status reconciler.Status) ([]reconciler.SessionRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []reconciler.SessionRecord
	for _, r := range b.sessions {
		if r.Estado != status {
			continue
		}
		if actor.Role == types.RoleEntrenador && r.Entrenador != nil && r.Entrenador.ID.String() == actor.ID {
			out = append(out, r)
		}
		if actor.Role == types.RoleCliente && r.Cliente != nil && r.Cliente.ID.String() == actor.ID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (b *fakeBackend) GetSession(_ context.Context, id string) (*reconciler.SessionRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.sessions[id]
	if !ok {
		return nil, reconciler.ErrSessionNotFound
	}
	return &r, nil
}

func (b *fakeBackend) UpdateSession(_ context.Context, u reconciler.SessionUpdate) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := b.sessions[u.ID.String()]
	r.Estado = u.Estado
	r.FechaHora = u.FechaHora
	b.sessions[u.ID.String()] = r
	b.updates = append(b.updates, u)
	return nil
}

var (
	bogota  = time.FixedZone("COT", -5*3600)
	cliente = types.Actor{ID: "7", Role: types.RoleCliente}
	coach   = types.Actor{ID: "3", Role: types.RoleEntrenador}
)

func setup(t *testing.T) (*Service, *fakeBackend, *chatstore.Store, *hub.Hub) {
	t.Helper()
	backend := &fakeBackend{sessions: map[string]reconciler.SessionRecord{
		"42": {
			ID:         "42",
			FechaHora:  reconciler.DateTime{Raw: "2099-01-02T10:00:00"},
			Estado:     reconciler.StatusPendiente,
			Cliente:    &reconciler.ClienteRef{ID: "7", Nombres: "Ana", Apellidos: "Gómez"},
			Entrenador: &reconciler.EntrenadorRef{ID: "3", Nombres: "Luis"},
			Servicio:   &reconciler.ServicioRef{ID: "9", Nombre: "Tenis"},
		},
	}}
	store := chatstore.NewStore(chatstore.NewMemoryBackend())
	h := hub.New()
	t.Cleanup(h.Close)
	rec := reconciler.New(backend, reconciler.WithLocation(bogota))
	return NewService(backend, rec, store, h, bogota), backend, store, h
}

func TestOpenChatSeedsThread(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setup(t)

	thread, err := svc.OpenChat(ctx, cliente, "42")
	require.NoError(t, err)
	assert.Equal(t, "7", thread.Participants.Cliente.ID)
	assert.Equal(t, "3", thread.Participants.Entrenador.ID)
	assert.Equal(t, "Tenis", thread.Servicio.Nombre)
	assert.True(t, thread.IsActive)

	_, err = svc.OpenChat(ctx, types.Actor{ID: "8", Role: types.RoleCliente}, "42")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = svc.OpenChat(ctx, cliente, "404")
	assert.ErrorIs(t, err, reconciler.ErrSessionNotFound)
}

func TestConfirmThenFinalize(t *testing.T) {
	ctx := context.Background()
	svc, backend, store, h := setup(t)
	_, err := svc.OpenChat(ctx, coach, "42")
	require.NoError(t, err)
	events, cancel := h.Subscribe("42", "7")
	defer cancel()

	err = svc.Confirm(ctx, cliente, "42", time.Time{})
	assert.ErrorIs(t, err, ErrForbidden, "clients cannot confirm")

	when := time.Date(2099, 1, 3, 16, 30, 0, 0, bogota)
	require.NoError(t, svc.Confirm(ctx, coach, "42", when))
	require.Len(t, backend.updates, 1)
	assert.Equal(t, reconciler.StatusConfirmada, backend.updates[0].Estado)
	assert.Equal(t, "2099-01-03T16:30:00", backend.updates[0].FechaHora.Raw)
	assert.Equal(t, reconciler.ID("7"), backend.updates[0].Cliente.ID)

	err = svc.Confirm(ctx, coach, "42", when)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	require.NoError(t, svc.Finalize(ctx, coach, "42"))
	chat, err := store.GetChat(ctx, "42")
	require.NoError(t, err)
	assert.False(t, chat.IsActive, "finalized sessions close their chat")

	ev := <-events
	assert.Equal(t, hub.EventStatus, ev.Type)
	require.NotNil(t, ev.Active)
	assert.True(t, *ev.Active)
	ev = <-events
	assert.False(t, *ev.Active)

	err = svc.Finalize(ctx, coach, "42")
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestListAndSummary(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := setup(t)

	list, err := svc.List(ctx, coach, "trainer-upcoming", "upcoming", "date-asc")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana Gómez", list[0].CounterpartName)

	sum, err := svc.Summary(ctx, coach, "trainer-sessions")
	require.NoError(t, err)
	assert.Equal(t, reconciler.Summary{Total: 1, Upcoming: 1, Pending: 1}, sum)

	_, err = svc.List(ctx, coach, "nope", "", "")
	assert.ErrorIs(t, err, reconciler.ErrUnknownView)
}

func TestSyncAll(t *testing.T) {
	ctx := context.Background()
	svc, backend, store, _ := setup(t)
	_, err := svc.OpenChat(ctx, cliente, "42")
	require.NoError(t, err)

	backend.sessions["42"] = func() reconciler.SessionRecord {
		r := backend.sessions["42"]
		r.Estado = reconciler.StatusCancelada
		return r
	}()
	res, err := svc.SyncAll(ctx, cliente, []reconciler.Status{reconciler.StatusCancelada})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Deactivated)
	chat, _ := store.GetChat(ctx, "42")
	assert.False(t, chat.IsActive)
}
