package reconciler

import (
	"context"
	"errors"
	"fmt"

	"sportlink/sportlink/utils/logging"

	"go.uber.org/zap"
)

// ChatActivity is the part of the chat store that follows session status.
type ChatActivity interface {
	DeactivateChat(ctx context.Context, sessionID string) (bool, error)
	ReactivateChat(ctx context.Context, sessionID string) (bool, error)
}

type SyncResult struct {
	Deactivated int `json:"deactivated"`
	Reactivated int `json:"reactivated"`
	Missing     int `json:"missing"`
}

// SyncChatActivity closes the chats of sessions in a terminal state and
// reopens the rest. Sessions without a chat are counted as missing. Every
// record is attempted; failures are joined.
func SyncChatActivity(ctx context.Context, chats ChatActivity, records []SessionRecord) (SyncResult, error) {
	var res SyncResult
	var errs []error
	for _, rec := range records {
		id := rec.ID.String()
		if id == "" {
			continue
		}
		var (
			found bool
			err   error
		)
		if rec.Estado.Terminal() {
			found, err = chats.DeactivateChat(ctx, id)
		} else {
			found, err = chats.ReactivateChat(ctx, id)
		}
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("sync chat %s: %w", id, err))
		case !found:
			res.Missing++
		case rec.Estado.Terminal():
			res.Deactivated++
		default:
			res.Reactivated++
		}
	}
	if len(errs) > 0 {
		logging.ErrorLogger.Error("chat activity sync failed", zap.Int("failures", len(errs)))
	}
	return res, errors.Join(errs...)
}
