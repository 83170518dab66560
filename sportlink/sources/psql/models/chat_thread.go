// sportlink/sources/psql/models/chat_thread.go
package models

import "time"

// ChatThread holds one serialized chat thread. Version backs optimistic
// concurrency and SizeBytes feeds the storage quota.
type ChatThread struct {
	SessionID    string    `json:"session_id" gorm:"type:varchar(255);primaryKey"`
	Data         []byte    `json:"-" gorm:"not null"`
	Version      int64     `json:"version" gorm:"not null"`
	SizeBytes    int64     `json:"size_bytes" gorm:"not null"`
	LastActivity time.Time `json:"last_activity" gorm:"column:last_activity;not null;index"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
}

func (ChatThread) TableName() string {
	return "chat_threads"
}
