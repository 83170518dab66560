// sportlink/utils/types/chat.go
package types

// SendMessageRequest is the body of POST /chat/session/{id}/messages and of
// every websocket frame after the handshake.
type SendMessageRequest struct {
	Content    string  `json:"content"`
	Type       string  `json:"type,omitempty"`
	FileName   *string `json:"fileName,omitempty"`
	FileSize   *int64  `json:"fileSize,omitempty"`
	SenderName string  `json:"senderName,omitempty"`
}

// WSHandshake is the first websocket frame.
type WSHandshake struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
}

// ConfirmSessionRequest carries the date (yyyy-mm-dd) and time (HH:MM) a
// trainer picks when confirming. Both empty keeps the booked time.
type ConfirmSessionRequest struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

type UnreadResponse struct {
	SessionID string `json:"sessionId"`
	Unread    int    `json:"unread"`
}
