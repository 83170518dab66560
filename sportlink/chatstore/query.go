package chatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"sportlink/sportlink/types"
	"sportlink/sportlink/utils/jsonutils"
	"sportlink/sportlink/utils/locale"
	"sportlink/sportlink/utils/logging"

	"go.uber.org/zap"
)

const defaultLastMessages = 50

// CleanOldChats deletes every thread whose updatedAt is older than the
// retention window and returns how many were removed.
func (s *Store) CleanOldChats(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cleanOldChats(ctx)
}

func (s *Store) cleanOldChats(ctx context.Context) (int, error) {
	records, err := s.backend.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("list chats: %w", err)
	}
	cutoff := s.now().Add(-s.retention)
	deleted := 0
	for _, rec := range records {
		if !rec.UpdatedAt.Before(cutoff) {
			continue
		}
		ok, err := s.backend.Delete(ctx, rec.Key)
		if err != nil {
			return deleted, fmt.Errorf("delete chat %s: %w", rec.Key, err)
		}
		if ok {
			deleted++
		}
	}
	logging.AppLogger.Info("old chats removed", zap.Int("deleted", deleted), zap.Time("cutoff", cutoff))
	return deleted, nil
}

// decodeAll decodes every record, skipping corrupt ones.
func (s *Store) decodeAll(ctx context.Context) ([]*Thread, int, error) {
	records, err := s.backend.List(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("list chats: %w", err)
	}
	threads := make([]*Thread, 0, len(records))
	corrupt := 0
	for _, rec := range records {
		t, err := decodeThread(rec)
		if err != nil {
			corrupt++
			logging.ErrorLogger.Warn("skipping corrupt chat", zap.String("session_id", rec.Key), zap.Error(err))
			continue
		}
		threads = append(threads, t)
	}
	return threads, corrupt, nil
}

// GetUserChats lists the active threads where userID holds role, newest activity first.
func (s *Store) GetUserChats(ctx context.Context, userID string, role types.Role) ([]ChatSummary, error) {
	s.mu.Lock()
	threads, _, err := s.decodeAll(ctx)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	out := []ChatSummary{}
	for _, t := range threads {
		if !t.IsActive || !t.HasParticipant(userID, role) {
			continue
		}
		summary := ChatSummary{
			Thread:          *t,
			UnreadCount:     t.UnreadFor(userID),
			LastMessage:     t.LastMessage(),
			LastMessageTime: "Sin mensajes",
		}
		if summary.LastMessage != nil {
			summary.LastMessageTime = locale.DateTime(summary.LastMessage.Timestamp)
		}
		out = append(out, summary)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

// SearchMessages matches term case-insensitively against content or sender name.
func (s *Store) SearchMessages(ctx context.Context, sessionID, term string) ([]Message, error) {
	messages, err := s.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(term)
	out := []Message{}
	for _, m := range messages {
		if strings.Contains(strings.ToLower(m.Content), needle) ||
			strings.Contains(strings.ToLower(m.SenderName), needle) {
			out = append(out, m)
		}
	}
	return out, nil
}

// GetLastMessages returns up to limit trailing messages; limit <= 0 means 50.
func (s *Store) GetLastMessages(ctx context.Context, sessionID string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = defaultLastMessages
	}
	messages, err := s.GetMessages(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	return messages, nil
}

func (s *Store) GetLastMessage(ctx context.Context, sessionID string) (*Message, error) {
	t, err := s.GetChat(ctx, sessionID)
	if err != nil || t == nil {
		return nil, err
	}
	return t.LastMessage(), nil
}

func (s *Store) GetMessageCountByUser(ctx context.Context, sessionID, userID string) (int, error) {
	messages, err := s.GetMessages(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range messages {
		if m.SenderID == userID {
			n++
		}
	}
	return n, nil
}

// GetChatSummary returns nil when the thread does not exist.
func (s *Store) GetChatSummary(ctx context.Context, sessionID string) (*ChatDigest, error) {
	t, err := s.GetChat(ctx, sessionID)
	if err != nil || t == nil {
		return nil, err
	}
	servicio := t.Servicio.Nombre
	if servicio == "" {
		servicio = "Sin servicio"
	}
	return &ChatDigest{
		SessionID:      sessionID,
		LastMessage:    t.LastMessage(),
		TotalMessages:  len(t.Messages),
		CreatedAt:      t.CreatedAt,
		UpdatedAt:      t.UpdatedAt,
		ClienteName:    t.Participants.Cliente.DisplayName("Desconocido"),
		EntrenadorName: t.Participants.Entrenador.DisplayName("Desconocido"),
		Servicio:       servicio,
	}, nil
}

// ExportChat serializes the thread as indented JSON. ok is false when it does not exist.
func (s *Store) ExportChat(ctx context.Context, sessionID string) (string, bool, error) {
	t, err := s.GetChat(ctx, sessionID)
	if err != nil {
		return "", false, err
	}
	if t == nil {
		logging.AppLogger.Warn("chat to export not found", zap.String("session_id", sessionID))
		return "", false, nil
	}
	out, err := jsonutils.ToJSON(t)
	if err != nil {
		return "", false, fmt.Errorf("export chat %s: %w", sessionID, err)
	}
	return out, true, nil
}

// ParseExport reads a document produced by ExportChat.
func ParseExport(doc string) (*Thread, error) {
	var t Thread
	if err := json.Unmarshal([]byte(doc), &t); err != nil {
		return nil, fmt.Errorf("parse chat export: %w", err)
	}
	if t.Messages == nil {
		t.Messages = []Message{}
	}
	return &t, nil
}

// GetStorageStats measures the namespace against the configured quota.
func (s *Store) GetStorageStats(ctx context.Context) (StorageStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	threads, corrupt, err := s.decodeAll(ctx)
	if err != nil {
		return StorageStats{}, err
	}
	used, err := s.backend.Size(ctx)
	if err != nil {
		return StorageStats{}, fmt.Errorf("measure chat storage: %w", err)
	}

	stats := StorageStats{
		TotalChats:      len(threads),
		EstimatedSizeKB: round2(float64(used) / 1024),
		MaxStorageKB:    round2(float64(s.maxStorageBytes) / 1024),
		DroppedWrites:   s.droppedWrites,
		CorruptChats:    corrupt,
	}
	for _, t := range threads {
		stats.TotalMessages += len(t.Messages)
	}
	if s.maxStorageBytes > 0 {
		stats.PercentageUsed = round2(float64(used) / float64(s.maxStorageBytes) * 100)
	}
	return stats, nil
}

// DebugInfo dumps one thread, or an overview of all of them, to log.
func (s *Store) DebugInfo(ctx context.Context, log *zap.Logger, sessionID string) error {
	if sessionID != "" {
		t, err := s.GetChat(ctx, sessionID)
		if err != nil {
			return err
		}
		if t == nil {
			log.Info("debug chat: not found", zap.String("session_id", sessionID))
			return nil
		}
		log.Info("debug chat",
			zap.String("session_id", sessionID),
			zap.Int("messages", len(t.Messages)),
			zap.Bool("active", t.IsActive),
			zap.Int64("version", t.Version),
			zap.Time("created_at", t.CreatedAt),
			zap.Time("updated_at", t.UpdatedAt),
		)
		return nil
	}

	s.mu.Lock()
	threads, _, err := s.decodeAll(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	log.Info("debug chats", zap.Int("total", len(threads)))
	for _, t := range threads {
		log.Info("debug chat", zap.String("session_id", t.SessionID), zap.Int("messages", len(t.Messages)))
	}
	stats, err := s.GetStorageStats(ctx)
	if err != nil {
		return err
	}
	log.Info("debug storage", zap.Any("stats", stats))
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
