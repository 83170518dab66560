// sportlink/sources/psql/dao/dao.chat_thread.go
package dao

import (
	"context"
	"errors"

	"sportlink/sportlink/chatstore"
	"sportlink/sportlink/sources/psql/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ChatThreadDAO stores chat threads in the chat_threads table. It satisfies
// chatstore.Backend.
type ChatThreadDAO struct {
	DB *gorm.DB
}

var _ chatstore.Backend = (*ChatThreadDAO)(nil)

func NewChatThreadDAO(db *gorm.DB) *ChatThreadDAO {
	return &ChatThreadDAO{DB: db}
}

func toRecord(m models.ChatThread) chatstore.Record {
	return chatstore.Record{
		Key:       m.SessionID,
		Data:      m.Data,
		Version:   m.Version,
		UpdatedAt: m.LastActivity,
	}
}

func (dao *ChatThreadDAO) Get(ctx context.Context, key string) (chatstore.Record, error) {
	var m models.ChatThread
	err := dao.DB.WithContext(ctx).Where("session_id = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return chatstore.Record{}, chatstore.ErrNotFound
	}
	if err != nil {
		return chatstore.Record{}, err
	}
	return toRecord(m), nil
}

// Put inserts when expectedVersion is 0 and otherwise updates only the row
// still at expectedVersion.
func (dao *ChatThreadDAO) Put(ctx context.Context, rec chatstore.Record, expectedVersion int64) (int64, error) {
	if expectedVersion == 0 {
		m := models.ChatThread{
			SessionID:    rec.Key,
			Data:         rec.Data,
			Version:      1,
			SizeBytes:    int64(len(rec.Data)),
			LastActivity: rec.UpdatedAt,
		}
		res := dao.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&m)
		if res.Error != nil {
			return 0, res.Error
		}
		if res.RowsAffected == 0 {
			return 0, chatstore.ErrVersionConflict
		}
		return 1, nil
	}

	res := dao.DB.WithContext(ctx).
		Model(&models.ChatThread{}).
		Where("session_id = ? AND version = ?", rec.Key, expectedVersion).
		Updates(map[string]interface{}{
			"data":          rec.Data,
			"version":       expectedVersion + 1,
			"size_bytes":    int64(len(rec.Data)),
			"last_activity": rec.UpdatedAt,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, chatstore.ErrVersionConflict
	}
	return expectedVersion + 1, nil
}

func (dao *ChatThreadDAO) Delete(ctx context.Context, key string) (bool, error) {
	res := dao.DB.WithContext(ctx).Where("session_id = ?", key).Delete(&models.ChatThread{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (dao *ChatThreadDAO) List(ctx context.Context) ([]chatstore.Record, error) {
	var rows []models.ChatThread
	if err := dao.DB.WithContext(ctx).Order("session_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]chatstore.Record, 0, len(rows))
	for _, m := range rows {
		out = append(out, toRecord(m))
	}
	return out, nil
}

func (dao *ChatThreadDAO) Size(ctx context.Context) (int64, error) {
	var total int64
	err := dao.DB.WithContext(ctx).
		Model(&models.ChatThread{}).
		Select("COALESCE(SUM(size_bytes), 0)").
		Scan(&total).Error
	return total, err
}

func (dao *ChatThreadDAO) Clear(ctx context.Context) error {
	return dao.DB.WithContext(ctx).Where("1 = 1").Delete(&models.ChatThread{}).Error
}
