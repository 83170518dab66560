package chatstore

import (
	"context"
	"strings"
	"testing"
	"time"

	"sportlink/sportlink/types"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T, opts ...Option) (*Store, *MemoryBackend, *fakeClock) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)}
	backend := NewMemoryBackend()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewStore(backend, opts...), backend, clock
}

func sessionData(clienteID, entrenadorID string) SessionData {
	return SessionData{
		Cliente:    Profile{ID: clienteID, Nombres: "Ana", Apellidos: "Gómez"},
		Entrenador: Profile{ID: entrenadorID, Nombres: "Luis", Apellidos: "Pérez"},
		Servicio:   ServiceSnapshot{ID: "9", Nombre: "Tenis", Ubicacion: "Bogotá", Precio: 50000, Duracion: 60},
	}
}

func TestInitializeChat_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	first, err := s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)
	assert.True(t, first.IsActive)
	assert.Empty(t, first.Messages)

	ok, err := s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: "hola"})
	require.NoError(t, err)
	require.True(t, ok)
	before, err := s.GetChat(ctx, "S1")
	require.NoError(t, err)

	clock.Advance(time.Hour)
	again, err := s.InitializeChat(ctx, "S1", sessionData("other", "other"))
	require.NoError(t, err)

	if diff := cmp.Diff(before, again); diff != "" {
		t.Errorf("re-initialization changed the thread (-before +after):\n%s", diff)
	}
	assert.Equal(t, "c1", again.Participants.Cliente.ID)
}

func TestAddMessage_Order(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)
	_, err := s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)

	contents := []string{"uno", "dos", "tres", "cuatro"}
	for _, c := range contents {
		clock.Advance(time.Second)
		ok, err := s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: c})
		require.NoError(t, err)
		require.True(t, ok)
	}

	msgs, err := s.GetMessages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, msgs, len(contents))
	seen := map[string]bool{}
	for i, m := range msgs {
		assert.Equal(t, contents[i], m.Content)
		assert.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
	}

	chat, err := s.GetChat(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, clock.Now().Equal(chat.UpdatedAt))
}

func TestAddMessage_Defaults(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)
	_, err := s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)

	_, err = s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: "hola"})
	require.NoError(t, err)
	msgs, err := s.GetMessages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	m := msgs[0]
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, types.RoleCliente, m.SenderType)
	assert.Equal(t, "Usuario", m.SenderName)
	assert.Equal(t, MessageText, m.Type)
	assert.False(t, m.Read)
	assert.True(t, m.Timestamp.Equal(clock.Now()))

	// a caller-supplied id that already exists is replaced
	_, err = s.AddMessage(ctx, "S1", Message{ID: m.ID, SenderID: "t1", Content: "hey"})
	require.NoError(t, err)
	msgs, _ = s.GetMessages(ctx, "S1")
	assert.NotEqual(t, msgs[0].ID, msgs[1].ID)
}

func TestAddMessage_MissingThreadAndBadType(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	ok, err := s.AddMessage(ctx, "nope", Message{SenderID: "c1", Content: "hola"})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)
	ok, err = s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: "x", Type: "video"})
	assert.ErrorIs(t, err, ErrInvalidMessageType)
	assert.False(t, ok)
}

func TestUnreadScenario(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	_, err := s.InitializeChat(ctx, "S1", SessionData{
		Cliente:    Profile{ID: "c1"},
		Entrenador: Profile{ID: "t1"},
	})
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: "hola", Type: MessageText})
	require.NoError(t, err)

	n, err := s.GetUnreadCount(ctx, "S1", "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.GetUnreadCount(ctx, "S1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.NoError(t, s.MarkAllMessagesAsRead(ctx, "S1"))
	for _, user := range []string{"t1", "c1", "someone"} {
		n, err := s.GetUnreadCount(ctx, "S1", user)
		require.NoError(t, err)
		assert.Equal(t, 0, n, user)
	}
}

func TestMarkMessageAsRead(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	_, err := s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)
	for _, id := range []string{"m1", "m2"} {
		_, err := s.AddMessage(ctx, "S1", Message{ID: id, SenderID: "t1", Content: id})
		require.NoError(t, err)
	}

	require.NoError(t, s.MarkMessageAsRead(ctx, "S1", "m1"))
	require.NoError(t, s.MarkMessageAsRead(ctx, "S1", "missing"))
	require.NoError(t, s.MarkMessageAsRead(ctx, "missing", "m1"))

	msgs, err := s.GetMessages(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, msgs[0].Read)
	assert.False(t, msgs[1].Read)

	n, _ := s.GetUnreadCount(ctx, "S1", "c1")
	assert.Equal(t, 1, n)
}

func TestDeleteAndAbsent(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)

	chat, err := s.GetChat(ctx, "never")
	require.NoError(t, err)
	assert.Nil(t, chat)
	msgs, err := s.GetMessages(ctx, "never")
	require.NoError(t, err)
	assert.NotNil(t, msgs)
	assert.Empty(t, msgs)

	_, err = s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)
	ok, err := s.DeleteChat(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, ok)

	chat, err = s.GetChat(ctx, "S1")
	require.NoError(t, err)
	assert.Nil(t, chat)

	ok, err = s.DeleteChat(ctx, "S1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeactivateReactivate(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	_, err := s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: "hola"})
	require.NoError(t, err)

	ok, err := s.DeactivateChat(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, ok)
	chats, err := s.GetUserChats(ctx, "c1", types.RoleCliente)
	require.NoError(t, err)
	assert.Empty(t, chats)

	msgs, _ := s.GetMessages(ctx, "S1")
	assert.Len(t, msgs, 1, "deactivation keeps data")

	ok, err = s.ReactivateChat(ctx, "S1")
	require.NoError(t, err)
	assert.True(t, ok)
	chats, err = s.GetUserChats(ctx, "c1", types.RoleCliente)
	require.NoError(t, err)
	assert.Len(t, chats, 1)

	ok, err = s.DeactivateChat(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCleanOldChats_Boundary(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	_, err := s.InitializeChat(ctx, "stale", sessionData("c1", "t1"))
	require.NoError(t, err)
	clock.Advance(time.Second)
	_, err = s.InitializeChat(ctx, "edge", sessionData("c1", "t1"))
	require.NoError(t, err)
	clock.Advance(10 * 24 * time.Hour)
	_, err = s.InitializeChat(ctx, "fresh", sessionData("c1", "t1"))
	require.NoError(t, err)

	// "edge" is now exactly 30 days old, "stale" 30 days and one second
	clock.Advance(20 * 24 * time.Hour)
	removed, err := s.CleanOldChats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	for id, want := range map[string]bool{"stale": false, "edge": true, "fresh": true} {
		ok, err := s.ChatExists(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, ok, id)
	}
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	_, err := s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)
	name := "rutina.pdf"
	size := int64(2048)
	_, err = s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: "hola"})
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "S1", Message{SenderID: "t1", SenderType: types.RoleEntrenador,
		Content: "attachments/S1/x", Type: MessageFile, FileName: &name, FileSize: &size})
	require.NoError(t, err)

	doc, ok, err := s.ExportChat(ctx, "S1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(doc, "{\n  \"sessionId\""))

	parsed, err := ParseExport(doc)
	require.NoError(t, err)
	chat, err := s.GetChat(ctx, "S1")
	require.NoError(t, err)
	if diff := cmp.Diff(chat, parsed); diff != "" {
		t.Errorf("export round trip mismatch (-chat +parsed):\n%s", diff)
	}

	_, ok, err = s.ExportChat(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGetUserChats(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t)

	_, err := s.InitializeChat(ctx, "A", sessionData("c1", "t1"))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.InitializeChat(ctx, "B", sessionData("c1", "t2"))
	require.NoError(t, err)
	clock.Advance(time.Minute)
	_, err = s.InitializeChat(ctx, "C", sessionData("c2", "t1"))
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.AddMessage(ctx, "A", Message{SenderID: "t1", SenderType: types.RoleEntrenador, Content: "¿lista?"})
	require.NoError(t, err)

	chats, err := s.GetUserChats(ctx, "c1", types.RoleCliente)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, "A", chats[0].SessionID, "most recently updated first")
	assert.Equal(t, 1, chats[0].UnreadCount)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "¿lista?", chats[0].LastMessage.Content)
	assert.Equal(t, "B", chats[1].SessionID)
	assert.Nil(t, chats[1].LastMessage)
	assert.Equal(t, "Sin mensajes", chats[1].LastMessageTime)

	trainer, err := s.GetUserChats(ctx, "t1", types.RoleEntrenador)
	require.NoError(t, err)
	assert.Len(t, trainer, 2)

	// id matches but role does not
	none, err := s.GetUserChats(ctx, "c1", types.RoleEntrenador)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSearchAndHelpers(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	_, err := s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "S1", Message{SenderID: "c1", SenderName: "Ana", Content: "Nos vemos en la CANCHA"})
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "S1", Message{SenderID: "t1", SenderName: "Luis Cancha", Content: "listo"})
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "S1", Message{SenderID: "c1", SenderName: "Ana", Content: "gracias"})
	require.NoError(t, err)

	found, err := s.SearchMessages(ctx, "S1", "cancha")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = s.SearchMessages(ctx, "missing", "cancha")
	require.NoError(t, err)
	assert.Empty(t, found)

	last, err := s.GetLastMessages(ctx, "S1", 2)
	require.NoError(t, err)
	require.Len(t, last, 2)
	assert.Equal(t, "listo", last[0].Content)

	n, err := s.GetMessageCountByUser(ctx, "S1", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	lm, err := s.GetLastMessage(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, "gracias", lm.Content)

	digest, err := s.GetChatSummary(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 3, digest.TotalMessages)
	assert.Equal(t, "Ana Gómez", digest.ClienteName)
	assert.Equal(t, "Luis Pérez", digest.EntrenadorName)
	assert.Equal(t, "Tenis", digest.Servicio)

	_, err = s.InitializeChat(ctx, "S2", SessionData{})
	require.NoError(t, err)
	digest, err = s.GetChatSummary(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, "Desconocido", digest.ClienteName)
	assert.Equal(t, "Sin servicio", digest.Servicio)
}

func TestQuotaCleanupAndRetry(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, WithMaxStorageKB(2))

	_, err := s.InitializeChat(ctx, "old", SessionData{})
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "old", Message{SenderID: "c1", Content: strings.Repeat("x", 1000)})
	require.NoError(t, err)

	clock.Advance(31 * 24 * time.Hour)
	_, err = s.InitializeChat(ctx, "new", SessionData{})
	require.NoError(t, err)
	ok, err := s.AddMessage(ctx, "new", Message{SenderID: "c1", Content: strings.Repeat("y", 500)})
	require.NoError(t, err)
	assert.True(t, ok)

	exists, err := s.ChatExists(ctx, "old")
	require.NoError(t, err)
	assert.False(t, exists, "old chat evicted to make room")
	msgs, err := s.GetMessages(ctx, "new")
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	stats, err := s.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.DroppedWrites)
}

func TestQuotaDroppedWrite(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t, WithMaxStorageKB(1))

	_, err := s.InitializeChat(ctx, "S1", SessionData{})
	require.NoError(t, err)
	ok, err := s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: strings.Repeat("z", 2000)})
	require.NoError(t, err, "quota failures are swallowed")
	assert.True(t, ok)

	msgs, err := s.GetMessages(ctx, "S1")
	require.NoError(t, err)
	assert.Empty(t, msgs)

	stats, err := s.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.DroppedWrites)
	assert.Equal(t, 1, stats.TotalChats)
}

func TestAppendMessageReturnsStoredMessage(t *testing.T) {
	ctx := context.Background()
	s, _, clock := newTestStore(t, WithMaxStorageKB(1))
	_, err := s.InitializeChat(ctx, "S1", SessionData{})
	require.NoError(t, err)

	first, err := s.AppendMessage(ctx, "S1", Message{SenderID: "c1", Content: "hola"})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, MessageText, first.Type)
	assert.True(t, first.Timestamp.Equal(clock.Now()))

	dropped, err := s.AppendMessage(ctx, "S1", Message{SenderID: "c1", Content: strings.Repeat("z", 2000)})
	assert.ErrorIs(t, err, ErrWriteDropped)
	assert.Nil(t, dropped)

	msgs, err := s.GetMessages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, first.ID, msgs[0].ID)

	missing, err := s.AppendMessage(ctx, "nope", Message{SenderID: "c1", Content: "hola"})
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStorageStats(t *testing.T) {
	ctx := context.Background()
	s, backend, _ := newTestStore(t)
	_, err := s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)
	_, err = s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: "hola"})
	require.NoError(t, err)
	_, err = s.InitializeChat(ctx, "S2", sessionData("c1", "t1"))
	require.NoError(t, err)

	stats, err := s.GetStorageStats(ctx)
	require.NoError(t, err)
	size, _ := backend.Size(ctx)
	assert.Equal(t, 2, stats.TotalChats)
	assert.Equal(t, 1, stats.TotalMessages)
	assert.Equal(t, float64(5120), stats.MaxStorageKB)
	assert.InDelta(t, float64(size)/1024, stats.EstimatedSizeKB, 0.01)
	assert.InDelta(t, float64(size)/(5120*1024)*100, stats.PercentageUsed, 0.01)
}

func TestCorruptRecordIsReported(t *testing.T) {
	ctx := context.Background()
	s, backend, clock := newTestStore(t)
	_, err := backend.Put(ctx, Record{Key: "bad", Data: []byte("{not json"), UpdatedAt: clock.Now()}, 0)
	require.NoError(t, err)
	_, err = s.InitializeChat(ctx, "good", sessionData("c1", "t1"))
	require.NoError(t, err)

	_, err = s.GetChat(ctx, "bad")
	assert.ErrorIs(t, err, ErrCorruptThread)

	chats, err := s.GetUserChats(ctx, "c1", types.RoleCliente)
	require.NoError(t, err)
	assert.Len(t, chats, 1)

	stats, err := s.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.CorruptChats)
}

// racingBackend lets another writer commit right before the first versioned Put.
type racingBackend struct {
	Backend
	race  func()
	fired bool
}

func (b *racingBackend) Put(ctx context.Context, rec Record, expected int64) (int64, error) {
	if expected != 0 && !b.fired {
		b.fired = true
		b.race()
	}
	return b.Backend.Put(ctx, rec, expected)
}

func TestConcurrentWriterIsNotLost(t *testing.T) {
	ctx := context.Background()
	inner := NewMemoryBackend()
	other := NewStore(inner)
	_, err := other.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)

	racing := &racingBackend{Backend: inner, race: func() {
		_, err := other.AddMessage(ctx, "S1", Message{SenderID: "t1", Content: "otra pestaña"})
		require.NoError(t, err)
	}}
	s := NewStore(racing)
	ok, err := s.AddMessage(ctx, "S1", Message{SenderID: "c1", Content: "esta pestaña"})
	require.NoError(t, err)
	require.True(t, ok)

	msgs, err := s.GetMessages(ctx, "S1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "otra pestaña", msgs[0].Content)
	assert.Equal(t, "esta pestaña", msgs[1].Content)

	chat, _ := s.GetChat(ctx, "S1")
	assert.Equal(t, int64(3), chat.Version)
}

func TestClearAllChats(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestStore(t)
	_, err := s.InitializeChat(ctx, "S1", sessionData("c1", "t1"))
	require.NoError(t, err)
	require.NoError(t, s.ClearAllChats(ctx))
	stats, err := s.GetStorageStats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalChats)
	assert.Zero(t, stats.EstimatedSizeKB)
}

func TestMessagePreview(t *testing.T) {
	name := "plan.pdf"
	size := int64(1536)
	assert.Equal(t, "hola", Message{Type: MessageText, Content: "hola"}.Preview())
	assert.Equal(t, "📷 Imagen", Message{Type: MessageImage}.Preview())
	assert.Equal(t, "📎 plan.pdf (1.5 KiB)", Message{Type: MessageFile, FileName: &name, FileSize: &size}.Preview())

	_, err := ParseMessageType("audio")
	assert.ErrorIs(t, err, ErrInvalidMessageType)
	mt, err := ParseMessageType(" Image ")
	require.NoError(t, err)
	assert.Equal(t, MessageImage, mt)
}
