package chatstore

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"sportlink/sportlink/types"

	"github.com/dustin/go-humanize"
)

// MessageType is the closed set of message payload kinds.
type MessageType string

const (
	MessageText  MessageType = "text"
	MessageImage MessageType = "image"
	MessageFile  MessageType = "file"
)

// ParseMessageType maps "" to text and rejects anything outside the closed set.
func ParseMessageType(s string) (MessageType, error) {
	switch MessageType(strings.ToLower(strings.TrimSpace(s))) {
	case "", MessageText:
		return MessageText, nil
	case MessageImage:
		return MessageImage, nil
	case MessageFile:
		return MessageFile, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMessageType, s)
}

func (t *MessageType) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// IsAttachment reports whether Content holds an object reference instead of text.
func (t MessageType) IsAttachment() bool {
	switch t {
	case MessageText:
		return false
	case MessageImage, MessageFile:
		return true
	}
	return false
}

// Profile is the snapshot of a participant taken when the thread is created.
type Profile struct {
	ID         string `json:"id"`
	Nombres    string `json:"nombres,omitempty"`
	Apellidos  string `json:"apellidos,omitempty"`
	Correo     string `json:"correo,omitempty"`
	Telefono   string `json:"telefono,omitempty"`
	FotoPerfil string `json:"fotoPerfil,omitempty"`
}

// DisplayName joins first and last names, or returns fallback when both are empty.
func (p Profile) DisplayName(fallback string) string {
	name := strings.TrimSpace(p.Nombres + " " + p.Apellidos)
	if name == "" {
		return fallback
	}
	return name
}

type Participants struct {
	Cliente    Profile `json:"cliente"`
	Entrenador Profile `json:"entrenador"`
}

// Of returns the snapshot for role.
func (p Participants) Of(role types.Role) Profile {
	if role == types.RoleEntrenador {
		return p.Entrenador
	}
	return p.Cliente
}

// ServiceSnapshot is the booked service as it was when the thread started.
type ServiceSnapshot struct {
	ID          string  `json:"id,omitempty"`
	Nombre      string  `json:"nombre,omitempty"`
	Descripcion string  `json:"descripcion,omitempty"`
	Precio      float64 `json:"precio,omitempty"`
	Ubicacion   string  `json:"ubicacion,omitempty"`
	Deporte     string  `json:"deporte,omitempty"`
	Duracion    int     `json:"duracion,omitempty"`
}

// SessionData seeds a new thread.
type SessionData struct {
	Cliente    Profile         `json:"cliente"`
	Entrenador Profile         `json:"entrenador"`
	Servicio   ServiceSnapshot `json:"servicio"`
}

type Message struct {
	ID         string      `json:"id"`
	SenderID   string      `json:"senderId"`
	SenderType types.Role  `json:"senderType"`
	SenderName string      `json:"senderName"`
	Content    string      `json:"content"`
	Timestamp  time.Time   `json:"timestamp"`
	Type       MessageType `json:"type"`
	FileName   *string     `json:"fileName,omitempty"`
	FileSize   *int64      `json:"fileSize,omitempty"`
	Read       bool        `json:"read"`
}

// Preview is the one-line text shown in chat lists.
func (m Message) Preview() string {
	switch m.Type {
	case MessageImage:
		return "📷 Imagen"
	case MessageFile:
		name := "Archivo"
		if m.FileName != nil && *m.FileName != "" {
			name = *m.FileName
		}
		if m.FileSize != nil {
			return fmt.Sprintf("📎 %s (%s)", name, humanize.IBytes(uint64(*m.FileSize)))
		}
		return "📎 " + name
	case MessageText:
		return m.Content
	}
	return m.Content
}

// Thread is the persisted conversation of one booked session.
type Thread struct {
	SessionID    string          `json:"sessionId"`
	Messages     []Message       `json:"messages"`
	Participants Participants    `json:"participants"`
	Servicio     ServiceSnapshot `json:"servicio"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	IsActive     bool            `json:"isActive"`
	Version      int64           `json:"version"`
}

// HasParticipant reports whether userID occupies role in the thread.
func (t *Thread) HasParticipant(userID string, role types.Role) bool {
	if userID == "" || !role.Valid() {
		return false
	}
	return t.Participants.Of(role).ID == userID
}

// LastMessage returns nil for an empty thread.
func (t *Thread) LastMessage() *Message {
	if len(t.Messages) == 0 {
		return nil
	}
	m := t.Messages[len(t.Messages)-1]
	return &m
}

// UnreadFor counts unread messages not sent by userID.
func (t *Thread) UnreadFor(userID string) int {
	n := 0
	for _, m := range t.Messages {
		if !m.Read && m.SenderID != userID {
			n++
		}
	}
	return n
}

// ChatSummary is one entry of a user's chat list.
type ChatSummary struct {
	Thread
	UnreadCount     int      `json:"unreadCount"`
	LastMessage     *Message `json:"lastMessage"`
	LastMessageTime string   `json:"lastMessageTime"`
}

// ChatDigest is the compact listing form of a thread.
type ChatDigest struct {
	SessionID      string    `json:"sessionId"`
	LastMessage    *Message  `json:"lastMessage"`
	TotalMessages  int       `json:"totalMessages"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
	ClienteName    string    `json:"clienteName"`
	EntrenadorName string    `json:"entrenadorName"`
	Servicio       string    `json:"servicio"`
}

type StorageStats struct {
	TotalChats      int     `json:"totalChats"`
	TotalMessages   int     `json:"totalMessages"`
	EstimatedSizeKB float64 `json:"estimatedSizeKB"`
	MaxStorageKB    float64 `json:"maxStorageKB"`
	PercentageUsed  float64 `json:"percentageUsed"`
	DroppedWrites   int64   `json:"droppedWrites"`
	CorruptChats    int     `json:"corruptChats"`
}
