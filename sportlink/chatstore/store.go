// Package chatstore persists the chat thread of every booked session.
package chatstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"sportlink/sportlink/types"
	"sportlink/sportlink/utils/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultRetention    = 30 * 24 * time.Hour
	DefaultMaxStorageKB = 5 * 1024

	defaultSenderName  = "Usuario"
	maxConflictRetries = 3
)

// Store owns every chat thread. Calls are serialized within the process;
// writers in other processes are detected through record versions.
type Store struct {
	mu              sync.Mutex
	backend         Backend
	now             func() time.Time
	retention       time.Duration
	maxStorageBytes int64
	droppedWrites   int64
}

type Option func(*Store)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithRetention(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.retention = d
		}
	}
}

// WithMaxStorageKB sets the namespace quota; 0 disables it.
func WithMaxStorageKB(kb int) Option {
	return func(s *Store) {
		if kb >= 0 {
			s.maxStorageBytes = int64(kb) * 1024
		}
	}
}

func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:         backend,
		now:             time.Now,
		retention:       DefaultRetention,
		maxStorageBytes: DefaultMaxStorageKB * 1024,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// InitializeChat creates the thread for sessionID, or returns the existing one untouched.
func (s *Store) InitializeChat(ctx context.Context, sessionID string, data SessionData) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		logging.AppLogger.Info("existing chat recovered", zap.String("session_id", sessionID))
		return existing, nil
	}

	now := s.now().UTC()
	t := &Thread{
		SessionID: sessionID,
		Messages:  []Message{},
		Participants: Participants{
			Cliente:    data.Cliente,
			Entrenador: data.Entrenador,
		},
		Servicio:  data.Servicio,
		CreatedAt: now,
		UpdatedAt: now,
		IsActive:  true,
	}
	if err := s.persist(ctx, t); err != nil {
		if !errors.Is(err, ErrVersionConflict) {
			return nil, err
		}
		// another writer created it first
		existing, err := s.load(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return existing, nil
		}
		return nil, fmt.Errorf("initialize chat %s: %w", sessionID, ErrVersionConflict)
	}
	logging.AppLogger.Info("chat initialized", zap.String("session_id", sessionID))
	return t, nil
}

// AddMessage appends msg to the thread. It returns false when the thread does
// not exist. A write dropped by the storage quota is not reported.
func (s *Store) AddMessage(ctx context.Context, sessionID string, msg Message) (bool, error) {
	_, found, err := s.appendMessage(ctx, sessionID, msg)
	if errors.Is(err, ErrWriteDropped) {
		return true, nil
	}
	return found, err
}

// AppendMessage appends msg and returns it as stored. It returns (nil, nil)
// when the thread does not exist and ErrWriteDropped when the quota rejected
// the write even after cleanup.
func (s *Store) AppendMessage(ctx context.Context, sessionID string, msg Message) (*Message, error) {
	m, _, err := s.appendMessage(ctx, sessionID, msg)
	return m, err
}

func (s *Store) appendMessage(ctx context.Context, sessionID string, msg Message) (*Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if msg.Type != "" {
		if _, err := ParseMessageType(string(msg.Type)); err != nil {
			return nil, false, err
		}
	}

	var appended Message
	dropped := s.droppedWrites
	found, err := s.update(ctx, sessionID, func(t *Thread) bool {
		now := s.now().UTC()
		appended = normalizeMessage(msg, t, now)
		t.Messages = append(t.Messages, appended)
		t.UpdatedAt = now
		return true
	})
	if err != nil {
		return nil, found, err
	}
	if !found {
		logging.ErrorLogger.Error("chat not found for message", zap.String("session_id", sessionID))
		return nil, false, nil
	}
	if s.droppedWrites != dropped {
		return nil, true, fmt.Errorf("add message to %s: %w", sessionID, ErrWriteDropped)
	}
	return &appended, true, nil
}

func normalizeMessage(msg Message, t *Thread, now time.Time) Message {
	if msg.ID == "" || t.hasMessage(msg.ID) {
		msg.ID = uuid.NewString()
	}
	if msg.SenderType == "" {
		msg.SenderType = types.RoleCliente
	}
	if msg.SenderName == "" {
		msg.SenderName = defaultSenderName
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = now
	}
	if msg.Type == "" {
		msg.Type = MessageText
	}
	return msg
}

func (t *Thread) hasMessage(id string) bool {
	for _, m := range t.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

// GetMessages returns the messages in append order, or an empty slice.
func (s *Store) GetMessages(ctx context.Context, sessionID string) ([]Message, error) {
	t, err := s.GetChat(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		logging.AppLogger.Debug("no chat for session", zap.String("session_id", sessionID))
		return []Message{}, nil
	}
	return t.Messages, nil
}

// GetChat returns nil when no thread exists for sessionID.
func (s *Store) GetChat(ctx context.Context, sessionID string) (*Thread, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx, sessionID)
}

func (s *Store) ChatExists(ctx context.Context, sessionID string) (bool, error) {
	t, err := s.GetChat(ctx, sessionID)
	return t != nil, err
}

func (s *Store) MarkMessageAsRead(ctx context.Context, sessionID, messageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.update(ctx, sessionID, func(t *Thread) bool {
		for i := range t.Messages {
			if t.Messages[i].ID == messageID {
				if t.Messages[i].Read {
					return false
				}
				t.Messages[i].Read = true
				return true
			}
		}
		return false
	})
	return err
}

func (s *Store) MarkAllMessagesAsRead(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.update(ctx, sessionID, func(t *Thread) bool {
		changed := false
		for i := range t.Messages {
			if !t.Messages[i].Read {
				t.Messages[i].Read = true
				changed = true
			}
		}
		return changed
	})
	if err == nil {
		logging.AppLogger.Info("all messages marked as read", zap.String("session_id", sessionID))
	}
	return err
}

// GetUnreadCount counts unread messages in the thread not sent by userID.
func (s *Store) GetUnreadCount(ctx context.Context, sessionID, userID string) (int, error) {
	t, err := s.GetChat(ctx, sessionID)
	if err != nil || t == nil {
		return 0, err
	}
	return t.UnreadFor(userID), nil
}

func (s *Store) DeleteChat(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	deleted, err := s.backend.Delete(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete chat %s: %w", sessionID, err)
	}
	if !deleted {
		logging.AppLogger.Warn("chat to delete not found", zap.String("session_id", sessionID))
		return false, nil
	}
	logging.AppLogger.Info("chat deleted", zap.String("session_id", sessionID))
	return true, nil
}

// DeactivateChat hides the thread from user chat lists without deleting it.
func (s *Store) DeactivateChat(ctx context.Context, sessionID string) (bool, error) {
	return s.setActive(ctx, sessionID, false)
}

func (s *Store) ReactivateChat(ctx context.Context, sessionID string) (bool, error) {
	return s.setActive(ctx, sessionID, true)
}

func (s *Store) setActive(ctx context.Context, sessionID string, active bool) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.update(ctx, sessionID, func(t *Thread) bool {
		if t.IsActive == active {
			return false
		}
		t.IsActive = active
		return true
	})
}

// ClearAllChats removes the whole namespace.
func (s *Store) ClearAllChats(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear chats: %w", err)
	}
	logging.AppLogger.Warn("all chats removed")
	return nil
}

// load returns (nil, nil) for an absent thread.
func (s *Store) load(ctx context.Context, sessionID string) (*Thread, error) {
	rec, err := s.backend.Get(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load chat %s: %w", sessionID, err)
	}
	return decodeThread(rec)
}

func decodeThread(rec Record) (*Thread, error) {
	var t Thread
	if err := json.Unmarshal(rec.Data, &t); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptThread, rec.Key, err)
	}
	if t.Messages == nil {
		t.Messages = []Message{}
	}
	t.SessionID = rec.Key
	t.Version = rec.Version
	return &t, nil
}

// update runs a read-modify-write on one thread. mutate returns false when
// nothing changed. A version conflict re-reads the record and tries again.
func (s *Store) update(ctx context.Context, sessionID string, mutate func(*Thread) bool) (bool, error) {
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		t, err := s.load(ctx, sessionID)
		if err != nil {
			return false, err
		}
		if t == nil {
			return false, nil
		}
		if !mutate(t) {
			return true, nil
		}
		err = s.persist(ctx, t)
		if errors.Is(err, ErrVersionConflict) {
			logging.ErrorLogger.Warn("chat write conflict, retrying",
				zap.String("session_id", sessionID), zap.Int("attempt", attempt+1))
			continue
		}
		return true, err
	}
	return true, fmt.Errorf("update chat %s: %w", sessionID, ErrVersionConflict)
}

func (s *Store) persist(ctx context.Context, t *Thread) error {
	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode chat %s: %w", t.SessionID, err)
	}
	rec := Record{Key: t.SessionID, Data: data, UpdatedAt: t.UpdatedAt}
	version, err := s.write(ctx, rec, t.Version)
	if err != nil {
		return err
	}
	t.Version = version
	return nil
}

// write stores rec. When the quota is exceeded it evicts old chats and retries
// once; a second quota failure is logged and dropped.
func (s *Store) write(ctx context.Context, rec Record, expected int64) (int64, error) {
	version, err := s.put(ctx, rec, expected)
	if !errors.Is(err, ErrQuotaExceeded) {
		return version, err
	}

	logging.ErrorLogger.Warn("chat storage quota exceeded, cleaning old chats", zap.String("session_id", rec.Key))
	if _, cerr := s.cleanOldChats(ctx); cerr != nil {
		logging.ErrorLogger.Error("cleaning old chats failed", zap.Error(cerr))
	}
	if expected != 0 {
		// the cleanup may have evicted this very record
		if _, gerr := s.backend.Get(ctx, rec.Key); errors.Is(gerr, ErrNotFound) {
			expected = 0
		}
	}

	version, err = s.put(ctx, rec, expected)
	if errors.Is(err, ErrQuotaExceeded) {
		s.droppedWrites++
		logging.ErrorLogger.Error("chat write dropped after cleanup",
			zap.String("session_id", rec.Key), zap.Int("bytes", len(rec.Data)))
		return expected, nil
	}
	if err == nil {
		logging.AppLogger.Info("chat saved after cleanup", zap.String("session_id", rec.Key))
	}
	return version, err
}

func (s *Store) put(ctx context.Context, rec Record, expected int64) (int64, error) {
	if s.maxStorageBytes > 0 {
		used, err := s.backend.Size(ctx)
		if err != nil {
			return 0, fmt.Errorf("measure chat storage: %w", err)
		}
		var previous int64
		if expected != 0 {
			if cur, err := s.backend.Get(ctx, rec.Key); err == nil {
				previous = int64(len(cur.Data))
			}
		}
		if used-previous+int64(len(rec.Data)) > s.maxStorageBytes {
			return 0, ErrQuotaExceeded
		}
	}
	return s.backend.Put(ctx, rec, expected)
}
