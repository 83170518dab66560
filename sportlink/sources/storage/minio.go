package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"sportlink/sportlink/config"
	"sportlink/sportlink/utils/logging"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

var (
	ErrAttachmentType = errors.New("attachment type not allowed")
	ErrAttachmentSize = errors.New("attachment too large")
)

// AllowedAttachmentTypes maps accepted content types to the chat message kind.
var AllowedAttachmentTypes = map[string]string{
	"image/jpeg":      "image",
	"image/png":       "image",
	"image/gif":       "image",
	"application/pdf": "file",
}

// CheckAttachment validates an upload before it reaches the bucket and
// returns the message kind for it.
func CheckAttachment(contentType string, size, maxBytes int64) (string, error) {
	kind, ok := AllowedAttachmentTypes[strings.ToLower(strings.TrimSpace(contentType))]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrAttachmentType, contentType)
	}
	if maxBytes > 0 && size > maxBytes {
		return "", fmt.Errorf("%w: %d bytes", ErrAttachmentSize, size)
	}
	return kind, nil
}

type MinIOClient struct {
	client *minio.Client
	bucket string
}

// Attachment is a stored chat upload. Key is what the message content refers to.
type Attachment struct {
	Key         string `json:"key"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
	Size        int64  `json:"size"`
}

func NewMinIOClient(ctx context.Context, cfg config.Config) (*MinIOClient, error) {
	bucket := cfg.MinIOBucket
	client, err := minio.New(
		cfg.MinIOEndpoint,
		&minio.Options{
			Creds:  credentials.NewStaticV4(cfg.MinIOAccessKey, cfg.MinIOSecretKey, ""),
			Secure: cfg.MinIOUseSSL,
		},
	)
	if err != nil {
		return nil, err
	}
	// Create bucket if not exists
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, err
		}
	}
	logging.AppLogger.Info("attachment bucket ready", zap.String("bucket", bucket), zap.String("endpoint", cfg.MinIOEndpoint))
	return &MinIOClient{client: client, bucket: bucket}, nil
}

// AttachmentKey builds attachments/<session>/<uuid><ext>.
func AttachmentKey(sessionID, fileName string) string {
	return path.Join("attachments", sessionID, uuid.NewString()+strings.ToLower(path.Ext(fileName)))
}

func (m *MinIOClient) UploadAttachment(ctx context.Context, sessionID, fileName, contentType string, body io.Reader, size int64) (*Attachment, error) {
	key := AttachmentKey(sessionID, fileName)
	_, err := m.client.PutObject(ctx, m.bucket, key, body, size, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: map[string]string{"session-id": sessionID, "file-name": fileName},
	})
	if err != nil {
		return nil, fmt.Errorf("upload attachment: %w", err)
	}
	return &Attachment{Key: key, FileName: fileName, ContentType: contentType, Size: size}, nil
}

// GetAttachment streams an object back; the caller closes it.
func (m *MinIOClient) GetAttachment(ctx context.Context, key string) (io.ReadCloser, *Attachment, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, err
	}
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		return nil, nil, err
	}
	return obj, &Attachment{
		Key:         key,
		FileName:    info.UserMetadata["File-Name"],
		ContentType: info.ContentType,
		Size:        info.Size,
	}, nil
}
