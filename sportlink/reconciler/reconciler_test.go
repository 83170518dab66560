package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sportlink/sportlink/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var bogota = time.FixedZone("COT", -5*3600)

type stubFetcher struct {
	mu      sync.Mutex
	byState map[Status][]SessionRecord
	fail    map[Status]error
	delay   time.Duration
	calls   []Status
	done    atomic.Int32
}

func (f *stubFetcher) FetchByStatus(_ context.Context, _ types.Actor, status Status) ([]SessionRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, status)
	f.mu.Unlock()
	defer f.done.Add(1)
	if err := f.fail[status]; err != nil {
		return nil, err
	}
	time.Sleep(f.delay)
	return f.byState[status], nil
}

func rec(id string, when string, estado Status) SessionRecord {
	return SessionRecord{ID: ID(id), FechaHora: DateTime{Raw: when}, Estado: estado}
}

func ids(views []SessionView) []string {
	out := make([]string, len(views))
	for i, v := range views {
		out[i] = v.ID.String()
	}
	return out
}

func newReconciler(f Fetcher, now time.Time) *Reconciler {
	return New(f, WithLocation(bogota), WithClock(func() time.Time { return now }))
}

var (
	client  = types.Actor{ID: "7", Role: types.RoleCliente}
	trainer = types.Actor{ID: "3", Role: types.RoleEntrenador}
)

func TestReconcile_UpcomingAscending(t *testing.T) {
	view := View{Name: "test-upcoming", Role: types.RoleCliente,
		Statuses: []Status{StatusPendiente, StatusConfirmada, StatusActiva}, Order: Upcoming}
	f := &stubFetcher{byState: map[Status][]SessionRecord{
		StatusPendiente:  {rec("1", "2024-01-02", StatusPendiente)},
		StatusConfirmada: {rec("2", "2024-01-01", StatusConfirmada)},
		StatusActiva:     {},
	}}
	r := newReconciler(f, time.Date(2023, time.December, 30, 12, 0, 0, 0, bogota))

	got, err := r.Reconcile(context.Background(), client, view)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, ids(got))
	assert.ElementsMatch(t, view.Statuses, f.calls)
}

func TestReconcile_OneFetchFails(t *testing.T) {
	view, err := LookupView("client-upcoming")
	require.NoError(t, err)
	boom := errors.New("backend down")
	f := &stubFetcher{
		byState: map[Status][]SessionRecord{
			StatusPendiente: {rec("1", "2099-01-02", StatusPendiente)},
			StatusActiva:    {rec("3", "2099-01-03", StatusActiva)},
		},
		fail:  map[Status]error{StatusConfirmada: boom},
		delay: 20 * time.Millisecond,
	}
	r := newReconciler(f, time.Date(2024, time.January, 1, 8, 0, 0, 0, bogota))

	got, err := r.Reconcile(context.Background(), client, view)
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, got)
	assert.Equal(t, int32(3), f.done.Load(), "every fetch is joined before returning")
}

func TestReconcile_DedupFirstOccurrenceWins(t *testing.T) {
	view, _ := LookupView("trainer-sessions")
	f := &stubFetcher{byState: map[Status][]SessionRecord{
		StatusPendiente:  {rec("5", "2024-02-01T10:00:00", StatusPendiente)},
		StatusConfirmada: {rec("5", "2024-02-01T10:00:00", StatusConfirmada), rec("6", "2024-02-02T10:00:00", StatusConfirmada)},
	}}
	r := newReconciler(f, time.Date(2024, time.March, 1, 8, 0, 0, 0, bogota))

	got, err := r.Reconcile(context.Background(), trainer, view)
	require.NoError(t, err)
	require.Equal(t, []string{"6", "5"}, ids(got), "history is most recent first")
	assert.Equal(t, StatusPendiente, got[1].Status)
}

func TestReconcile_RecordsWithoutIDAreKept(t *testing.T) {
	view, _ := LookupView("trainer-sessions")
	f := &stubFetcher{byState: map[Status][]SessionRecord{
		StatusPendiente:  {rec("", "2024-02-01T10:00:00", StatusPendiente)},
		StatusConfirmada: {rec("", "2024-02-03T10:00:00", StatusConfirmada), rec("4", "2024-02-02T10:00:00", StatusConfirmada)},
		StatusFinalizada: {rec("4", "2024-02-02T10:00:00", StatusFinalizada)},
	}}
	r := newReconciler(f, time.Date(2024, time.March, 1, 8, 0, 0, 0, bogota))

	got, err := r.Reconcile(context.Background(), trainer, view)
	require.NoError(t, err)
	require.Equal(t, []string{"", "4", ""}, ids(got))
	assert.Equal(t, StatusConfirmada, got[0].Status)
	assert.Equal(t, StatusPendiente, got[2].Status)
}

func TestReconcile_UpcomingDropsPastDays(t *testing.T) {
	view, _ := LookupView("trainer-upcoming")
	f := &stubFetcher{byState: map[Status][]SessionRecord{
		StatusPendiente: {
			rec("1", "2024-05-09T23:59:00", StatusPendiente),
			rec("2", "2024-05-10T00:00:00", StatusPendiente),
			rec("3", "2024-05-10T07:00:00", StatusPendiente),
		},
	}}
	// earlier today still counts as upcoming
	r := newReconciler(f, time.Date(2024, time.May, 10, 18, 0, 0, 0, bogota))

	got, err := r.Reconcile(context.Background(), trainer, view)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "3"}, ids(got))
}

func TestReconcile_HistoryKeepsPastAndTieBreaksOnID(t *testing.T) {
	view, _ := LookupView("client-history")
	f := &stubFetcher{byState: map[Status][]SessionRecord{
		StatusCompletada: {rec("10", "2020-01-01T09:00:00", StatusCompletada)},
		StatusFinalizada: {rec("9", "2020-01-01T09:00:00", StatusFinalizada), rec("2", "2019-06-01T09:00:00", StatusFinalizada)},
	}}
	r := newReconciler(f, time.Date(2024, time.January, 1, 8, 0, 0, 0, bogota))

	got, err := r.Reconcile(context.Background(), client, view)
	require.NoError(t, err)
	assert.Equal(t, []string{"9", "10", "2"}, ids(got))
}

func TestReconcile_RoleMismatch(t *testing.T) {
	view, _ := LookupView("trainer-sessions")
	r := newReconciler(&stubFetcher{}, time.Now())
	_, err := r.Reconcile(context.Background(), client, view)
	assert.ErrorIs(t, err, ErrViewRole)

	_, err = LookupView("nope")
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestMapRecord(t *testing.T) {
	var r SessionRecord
	require.NoError(t, json.Unmarshal([]byte(`{
		"idSesion": 42,
		"fechaHora": "2024-01-03T15:04:00",
		"estado": "calificado",
		"cliente": {"idCliente": 7, "nombres": "Ana", "apellidos": "Gómez", "correo": "ana@x.co"},
		"entrenador": {"idEntrenador": "3", "nombres": "Luis", "apellidos": "Pérez"},
		"servicio": {"idServicio": 9, "nombre": "Tenis", "precio": 50000, "deporte": "Tenis"},
		"resenia": {"idResenia": 1, "calificacion": 4.5, "comentario": "Muy bien"}
	}`), &r))
	at, ok := r.FechaHora.In(bogota)
	require.True(t, ok)

	forClient := mapRecord(r, types.RoleCliente, at)
	assert.Equal(t, ID("42"), forClient.ID)
	assert.Equal(t, StatusCalificado, forClient.Status)
	assert.Equal(t, CategoryRated, forClient.Category)
	assert.Equal(t, "Tenis", forClient.Title)
	assert.Equal(t, "Ubicación no especificada", forClient.Location)
	assert.Equal(t, 60, forClient.Duration)
	assert.Equal(t, "Luis Pérez", forClient.CounterpartName)
	assert.Equal(t, "2024-01-03", forClient.Date)
	assert.Equal(t, "mié, 03 ene", forClient.DateLabel)
	assert.Equal(t, "03:04 p. m.", forClient.Time)
	assert.True(t, forClient.HasReview)
	assert.Equal(t, 4.5, forClient.Rating)
	require.NotNil(t, forClient.Review)
	assert.Equal(t, "Muy bien", *forClient.Review)

	forTrainer := mapRecord(r, types.RoleEntrenador, at)
	assert.Equal(t, "Ana Gómez", forTrainer.CounterpartName)
	assert.Equal(t, ID("7"), forTrainer.CounterpartID)

	bare := mapRecord(SessionRecord{ID: "1", Estado: StatusPendiente}, types.RoleEntrenador, at)
	assert.Equal(t, "Sesión de Entrenamiento", bare.Title)
	assert.Equal(t, "Cliente no especificado", bare.CounterpartName)
	assert.Nil(t, bare.Review)
}

func TestDateTimeLayouts(t *testing.T) {
	cases := map[string]time.Time{
		"2024-01-03T15:04:05":       time.Date(2024, 1, 3, 15, 4, 5, 0, bogota),
		"2024-01-03T15:04":          time.Date(2024, 1, 3, 15, 4, 0, 0, bogota),
		"2024-01-03 15:04":          time.Date(2024, 1, 3, 15, 4, 0, 0, bogota),
		"2024-01-03":                time.Date(2024, 1, 3, 0, 0, 0, 0, bogota),
		"2024-01-03T20:04:05Z":      time.Date(2024, 1, 3, 15, 4, 5, 0, bogota),
		"2024-01-03T15:04:05-05:00": time.Date(2024, 1, 3, 15, 4, 5, 0, bogota),
	}
	for raw, want := range cases {
		got, ok := DateTime{Raw: raw}.In(bogota)
		require.True(t, ok, raw)
		assert.True(t, want.Equal(got), "%s: got %s", raw, got)
	}
	_, ok := DateTime{Raw: "ayer"}.In(bogota)
	assert.False(t, ok)
}

func TestStatus(t *testing.T) {
	st, ok := ParseStatus("FINALIZADA")
	require.True(t, ok)
	assert.Equal(t, StatusFinalizada, st)
	assert.True(t, st.Terminal())
	assert.False(t, StatusActiva.Terminal())

	_, ok = ParseStatus("Reprogramada")
	assert.False(t, ok)

	var s Status
	require.NoError(t, json.Unmarshal([]byte(`"pendiente"`), &s))
	assert.Equal(t, StatusPendiente, s)
}

func TestSummarizeFilterSort(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, bogota)
	sessions := []SessionView{
		{ID: "1", Category: CategoryPending, DateTime: base.Add(48 * time.Hour), Price: 30, CounterpartName: "zoe"},
		{ID: "2", Category: CategoryConfirmed, DateTime: base, Price: 10, CounterpartName: "Ana"},
		{ID: "3", Category: CategoryFinished, DateTime: base.Add(24 * time.Hour), Price: 20, CounterpartName: "Mario"},
		{ID: "4", Category: CategoryRated, DateTime: base.Add(72 * time.Hour), Price: 40, CounterpartName: "beto"},
		{ID: "5", Category: CategoryCancelled, DateTime: base.Add(96 * time.Hour), Price: 5, CounterpartName: "Carla"},
	}

	assert.Equal(t, Summary{Total: 5, Upcoming: 2, Pending: 1, Confirmed: 1, Completed: 2, Cancelled: 1}, Summarize(sessions))

	assert.Equal(t, []string{"1", "2"}, ids(FilterByCategory(sessions, "upcoming")))
	assert.Equal(t, []string{"3", "4"}, ids(FilterByCategory(sessions, "completed")))
	assert.Equal(t, []string{"5"}, ids(FilterByCategory(sessions, "cancelled")))
	assert.Len(t, FilterByCategory(sessions, ""), 5)

	assert.Equal(t, []string{"2", "3", "1", "4", "5"}, ids(SortViews(sessions, "date-asc")))
	assert.Equal(t, []string{"5", "4", "1", "3", "2"}, ids(SortViews(sessions, "date-desc")))
	assert.Equal(t, []string{"4", "1", "3", "2", "5"}, ids(SortViews(sessions, "price-desc")))
	assert.Equal(t, []string{"2", "4", "5", "3", "1"}, ids(SortViews(sessions, "counterpart")))
	assert.Equal(t, ids(sessions), ids(SortViews(sessions, "bogus")))
}

type recordingChats struct {
	active map[string]bool
	fail   string
}

func (c *recordingChats) set(id string, v bool) (bool, error) {
	if id == c.fail {
		return false, errors.New("store unavailable")
	}
	if _, ok := c.active[id]; !ok {
		return false, nil
	}
	c.active[id] = v
	return true, nil
}

func (c *recordingChats) DeactivateChat(_ context.Context, id string) (bool, error) {
	return c.set(id, false)
}

func (c *recordingChats) ReactivateChat(_ context.Context, id string) (bool, error) {
	return c.set(id, true)
}

func TestSyncChatActivity(t *testing.T) {
	chats := &recordingChats{active: map[string]bool{"1": true, "2": false, "3": true}, fail: "9"}
	res, err := SyncChatActivity(context.Background(), chats, []SessionRecord{
		{ID: "1", Estado: StatusFinalizada},
		{ID: "2", Estado: StatusConfirmada},
		{ID: "3", Estado: StatusCancelada},
		{ID: "4", Estado: StatusPendiente},
		{ID: "9", Estado: StatusPendiente},
	})
	require.Error(t, err)
	assert.Equal(t, SyncResult{Deactivated: 2, Reactivated: 1, Missing: 1}, res)
	assert.Equal(t, map[string]bool{"1": false, "2": true, "3": false}, chats.active)
}
