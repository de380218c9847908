package project

import (
	"context"
	"errors"
	"testing"
	"time"

	"project-desk/internal/common/logger"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisDraftStore_WriteRead(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewRedisDraftStore(client, "draft", time.Hour, logger.NewTestLogger(t))
	ctx := context.Background()

	store.Write(ctx, testProjectID, FieldContent, "first")
	store.Write(ctx, testProjectID, FieldCredits, "4")
	store.Write(ctx, testProjectID, FieldContent, "second")

	draft := store.Read(ctx, testProjectID)
	assert.Equal(t, map[string]string{"content": "second", "credits": "4"}, draft)

	raw, err := mr.Get("draft:" + testProjectID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"content":"second","credits":"4"}`, raw)
	assert.Equal(t, time.Hour, mr.TTL("draft:"+testProjectID))
}

func TestRedisDraftStore_ReadMissing(t *testing.T) {
	_, client := setupRedis(t)
	store := NewRedisDraftStore(client, "", 0, logger.NewTestLogger(t))

	assert.Empty(t, store.Read(context.Background(), testProjectID))
}

func TestRedisDraftStore_Clear(t *testing.T) {
	mr, client := setupRedis(t)
	store := NewRedisDraftStore(client, "", 0, logger.NewTestLogger(t))
	ctx := context.Background()

	store.Write(ctx, testProjectID, FieldContent, "pending")
	require.True(t, mr.Exists("project-draft:"+testProjectID))

	store.Clear(ctx, testProjectID)
	assert.False(t, mr.Exists("project-draft:"+testProjectID))
	assert.Empty(t, store.Read(ctx, testProjectID))
}

func TestRedisDraftStore_CorruptEntry(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"not json", `{"content":`},
		{"wrong value type", `{"credits": 4}`},
		{"array", `["content"]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mr, client := setupRedis(t)
			store := NewRedisDraftStore(client, "draft", 0, logger.NewTestLogger(t))
			ctx := context.Background()
			require.NoError(t, mr.Set("draft:"+testProjectID, tt.raw))

			assert.Empty(t, store.Read(ctx, testProjectID))

			// The next write replaces the corrupt entry.
			store.Write(ctx, testProjectID, FieldContent, "fresh")
			assert.Equal(t, map[string]string{"content": "fresh"}, store.Read(ctx, testProjectID))
		})
	}
}

func TestRedisDraftStore_FailuresAreSwallowed(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedisDraftStore(client, "draft", 0, logger.NewTestLogger(t))
	ctx := context.Background()
	key := "draft:" + testProjectID

	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	assert.Empty(t, store.Read(ctx, testProjectID))

	mock.ExpectGet(key).RedisNil()
	mock.Regexp().ExpectSet(key, `.*`, 0).SetErr(errors.New("OOM command not allowed when used memory > 'maxmemory'"))
	assert.NotPanics(t, func() { store.Write(ctx, testProjectID, FieldContent, "x") })

	mock.ExpectGet(key).SetErr(errors.New("connection refused"))
	store.Write(ctx, testProjectID, FieldContent, "y")

	mock.ExpectDel(key).SetErr(errors.New("connection refused"))
	store.Clear(ctx, testProjectID)

	assert.NoError(t, mock.ExpectationsWereMet())
}
