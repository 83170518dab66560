// sportlink/controllers/chat.go
package controllers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"sportlink/sportlink/chatstore"
	"sportlink/sportlink/services/hub"
	"sportlink/sportlink/services/sessions"
	"sportlink/sportlink/sources/storage"
	"sportlink/sportlink/types"
	"sportlink/sportlink/utils/logging"
	utiltypes "sportlink/sportlink/utils/types"

	"go.uber.org/zap"
)

var (
	ErrChatNotFound = errors.New("chat not found")
	ErrChatClosed   = errors.New("chat is closed")
	ErrNoStorage    = errors.New("attachment storage not configured")
	ErrBadRequest   = errors.New("bad request")
)

// AttachmentStore is the blob side of image and file messages.
type AttachmentStore interface {
	UploadAttachment(ctx context.Context, sessionID, fileName, contentType string, body io.Reader, size int64) (*storage.Attachment, error)
	GetAttachment(ctx context.Context, key string) (io.ReadCloser, *storage.Attachment, error)
}

type ChatController struct {
	store         *chatstore.Store
	sessions      *sessions.Service
	hub           *hub.Hub
	blobs         AttachmentStore
	maxAttachment int64
}

func NewChatController(store *chatstore.Store, svc *sessions.Service, h *hub.Hub, blobs AttachmentStore, maxAttachmentBytes int64) *ChatController {
	return &ChatController{store: store, sessions: svc, hub: h, blobs: blobs, maxAttachment: maxAttachmentBytes}
}

// Authorize loads a thread and checks that actor is one of its participants.
func (c *ChatController) Authorize(ctx context.Context, actor types.Actor, sessionID string) (*chatstore.Thread, error) {
	t, err := c.store.GetChat(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, sessionID)
	}
	if !t.HasParticipant(actor.ID, actor.Role) {
		return nil, fmt.Errorf("%w: %s", sessions.ErrForbidden, sessionID)
	}
	return t, nil
}

func (c *ChatController) ListChats(ctx context.Context, actor types.Actor) ([]chatstore.ChatSummary, error) {
	return c.store.GetUserChats(ctx, actor.ID, actor.Role)
}

func (c *ChatController) Open(ctx context.Context, actor types.Actor, sessionID string) (*chatstore.Thread, error) {
	return c.sessions.OpenChat(ctx, actor, sessionID)
}

func (c *ChatController) GetChat(ctx context.Context, actor types.Actor, sessionID string) (*chatstore.Thread, error) {
	return c.Authorize(ctx, actor, sessionID)
}

// Messages returns the whole thread, or only the last n messages when n > 0.
func (c *ChatController) Messages(ctx context.Context, actor types.Actor, sessionID string, last int) ([]chatstore.Message, error) {
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	if last > 0 {
		return c.store.GetLastMessages(ctx, sessionID, last)
	}
	return c.store.GetMessages(ctx, sessionID)
}

// Send appends a message from actor and pushes it to the session's listeners.
func (c *ChatController) Send(ctx context.Context, actor types.Actor, sessionID string, req utiltypes.SendMessageRequest) (*chatstore.Message, error) {
	t, err := c.Authorize(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	if !t.IsActive {
		return nil, fmt.Errorf("%w: %s", ErrChatClosed, sessionID)
	}
	msgType, err := chatstore.ParseMessageType(req.Type)
	if err != nil {
		return nil, err
	}
	if msgType == chatstore.MessageText && strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: message content is empty", ErrBadRequest)
	}

	name := req.SenderName
	if name == "" {
		name = actor.DisplayName
	}
	if name == "" {
		name = t.Participants.Of(actor.Role).DisplayName("")
	}
	msg, err := c.store.AppendMessage(ctx, sessionID, chatstore.Message{
		SenderID:   actor.ID,
		SenderType: actor.Role,
		SenderName: name,
		Content:    req.Content,
		Type:       msgType,
		FileName:   req.FileName,
		FileSize:   req.FileSize,
	})
	if err != nil {
		return nil, err
	}
	if msg == nil {
		// deleted between the check and the write
		return nil, fmt.Errorf("%w: %s", ErrChatNotFound, sessionID)
	}
	if c.hub != nil {
		c.hub.Publish(hub.Event{Type: hub.EventMessage, SessionID: sessionID, Message: msg})
	}
	return msg, nil
}

// Upload stores an attachment and posts it as an image or file message.
func (c *ChatController) Upload(ctx context.Context, actor types.Actor, sessionID, fileName, contentType string, body io.Reader, size int64) (*chatstore.Message, error) {
	if c.blobs == nil {
		return nil, ErrNoStorage
	}
	kind, err := storage.CheckAttachment(contentType, size, c.maxAttachment)
	if err != nil {
		return nil, err
	}
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	att, err := c.blobs.UploadAttachment(ctx, sessionID, fileName, contentType, body, size)
	if err != nil {
		logging.ErrorLogger.Error("attachment upload failed", zap.String("session_id", sessionID), zap.Error(err))
		return nil, err
	}
	return c.Send(ctx, actor, sessionID, utiltypes.SendMessageRequest{
		Content:  att.Key,
		Type:     kind,
		FileName: &att.FileName,
		FileSize: &att.Size,
	})
}

// Attachment opens a stored upload that belongs to sessionID.
func (c *ChatController) Attachment(ctx context.Context, actor types.Actor, sessionID, key string) (io.ReadCloser, *storage.Attachment, error) {
	if c.blobs == nil {
		return nil, nil, ErrNoStorage
	}
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return nil, nil, err
	}
	if !strings.HasPrefix(key, "attachments/"+sessionID+"/") {
		return nil, nil, fmt.Errorf("%w: %s", sessions.ErrForbidden, key)
	}
	return c.blobs.GetAttachment(ctx, key)
}

// MarkRead marks one message, or every message when messageID is empty.
func (c *ChatController) MarkRead(ctx context.Context, actor types.Actor, sessionID, messageID string) error {
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return err
	}
	var err error
	if messageID == "" {
		err = c.store.MarkAllMessagesAsRead(ctx, sessionID)
	} else {
		err = c.store.MarkMessageAsRead(ctx, sessionID, messageID)
	}
	if err == nil && c.hub != nil {
		c.hub.Publish(hub.Event{Type: hub.EventRead, SessionID: sessionID})
	}
	return err
}

func (c *ChatController) Unread(ctx context.Context, actor types.Actor, sessionID string) (int, error) {
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return 0, err
	}
	return c.store.GetUnreadCount(ctx, sessionID, actor.ID)
}

func (c *ChatController) Search(ctx context.Context, actor types.Actor, sessionID, term string) ([]chatstore.Message, error) {
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	return c.store.SearchMessages(ctx, sessionID, term)
}

func (c *ChatController) Export(ctx context.Context, actor types.Actor, sessionID string) (string, error) {
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return "", err
	}
	doc, ok, err := c.store.ExportChat(ctx, sessionID)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrChatNotFound, sessionID)
	}
	return doc, nil
}

func (c *ChatController) Summary(ctx context.Context, actor types.Actor, sessionID string) (*chatstore.ChatDigest, error) {
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	return c.store.GetChatSummary(ctx, sessionID)
}

// SetActive opens or closes a thread by hand. Only the trainer may do it.
func (c *ChatController) SetActive(ctx context.Context, actor types.Actor, sessionID string, active bool) error {
	if actor.Role != types.RoleEntrenador {
		return fmt.Errorf("%w: only trainers open or close chats", sessions.ErrForbidden)
	}
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return err
	}
	if active {
		_, err := c.store.ReactivateChat(ctx, sessionID)
		return err
	}
	_, err := c.store.DeactivateChat(ctx, sessionID)
	return err
}

func (c *ChatController) Delete(ctx context.Context, actor types.Actor, sessionID string) error {
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return err
	}
	_, err := c.store.DeleteChat(ctx, sessionID)
	return err
}

// Subscribe attaches a live listener to a thread actor may read.
func (c *ChatController) Subscribe(ctx context.Context, actor types.Actor, sessionID string) (<-chan hub.Event, func(), error) {
	if _, err := c.Authorize(ctx, actor, sessionID); err != nil {
		return nil, nil, err
	}
	ch, cancel := c.hub.Subscribe(sessionID, actor.ID)
	return ch, cancel, nil
}
