// internal/project/draft.go
package project

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"project-desk/internal/common/errors"
	"project-desk/internal/common/logger"
	"project-desk/internal/common/metrics"
	"project-desk/internal/common/validation"

	"github.com/redis/go-redis/v9"
)

// DraftStore keeps unsaved field edits outside the process. Implementations
// never fail the caller; problems are logged.
type DraftStore interface {
	Read(ctx context.Context, projectID string) map[string]string
	Write(ctx context.Context, projectID string, field Field, value string)
	Clear(ctx context.Context, projectID string)
}

var errCorruptDraft = stderrors.New("corrupt draft entry")

var draftSchema = validation.MustCompileSchema(`{
	"type": "object",
	"additionalProperties": {"type": "string"}
}`)

// RedisDraftStore stores one JSON object per project under <prefix>:<id>.
type RedisDraftStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger logger.Logger

	mu sync.Mutex
}

func NewRedisDraftStore(client *redis.Client, prefix string, ttl time.Duration, log logger.Logger) *RedisDraftStore {
	if prefix == "" {
		prefix = "project-draft"
	}
	return &RedisDraftStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.ForComponent(log, "draft"),
	}
}

func (d *RedisDraftStore) key(projectID string) string {
	return fmt.Sprintf("%s:%s", d.prefix, projectID)
}

func (d *RedisDraftStore) Read(ctx context.Context, projectID string) map[string]string {
	draft, err := d.read(ctx, projectID)
	if err != nil {
		d.logger.Warn("Ignoring draft", map[string]interface{}{
			"projectId": projectID,
			"error":     err,
		})
		return map[string]string{}
	}
	return draft
}

func (d *RedisDraftStore) read(ctx context.Context, projectID string) (map[string]string, error) {
	raw, err := d.client.Get(ctx, d.key(projectID)).Bytes()
	if err == redis.Nil {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, errors.NewDraftStoreFailedError("read", err)
	}

	if result := draftSchema.ValidateBytes(raw); !result.Valid {
		return nil, errors.NewDraftStoreFailedError("read",
			fmt.Errorf("%w: %v", errCorruptDraft, result.GetErrorMessages()))
	}

	draft := map[string]string{}
	if err := json.Unmarshal(raw, &draft); err != nil {
		return nil, errors.NewDraftStoreFailedError("read", fmt.Errorf("%w: %v", errCorruptDraft, err))
	}
	return draft, nil
}

// Write merges one field into the stored draft.
func (d *RedisDraftStore) Write(ctx context.Context, projectID string, field Field, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.write(ctx, projectID, field, value); err != nil {
		metrics.DraftWrites.WithLabelValues(metrics.ResultFailure).Inc()
		d.logger.Warn("Draft write failed", map[string]interface{}{
			"projectId": projectID,
			"field":     string(field),
			"error":     err,
		})
		return
	}
	metrics.DraftWrites.WithLabelValues(metrics.ResultSuccess).Inc()
}

func (d *RedisDraftStore) write(ctx context.Context, projectID string, field Field, value string) error {
	draft, err := d.read(ctx, projectID)
	if err != nil {
		// A corrupt entry is replaced; a transport error is not.
		if !stderrors.Is(err, errCorruptDraft) {
			return err
		}
		draft = map[string]string{}
	}
	draft[string(field)] = value

	data, err := json.Marshal(draft)
	if err != nil {
		return errors.NewDraftStoreFailedError("write", err)
	}
	if err := d.client.Set(ctx, d.key(projectID), data, d.ttl).Err(); err != nil {
		return errors.NewDraftStoreFailedError("write", err)
	}
	return nil
}

func (d *RedisDraftStore) Clear(ctx context.Context, projectID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.client.Del(ctx, d.key(projectID)).Err(); err != nil {
		d.logger.Warn("Draft clear failed", map[string]interface{}{
			"projectId": projectID,
			"error":     err,
		})
		return
	}
	d.logger.Debug("Draft cleared", map[string]interface{}{"projectId": projectID})
}
