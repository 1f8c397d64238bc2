package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisNotifier_PushesStartRequest(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	n := NewRedisNotifier(client, "fuzzjobs:dispatch")
	require.NoError(t, n.StartJob(context.Background(), "simulation", "http://front/api/v1/back/jobs/s1"))
	require.NoError(t, n.StartJob(context.Background(), "pdf", "http://front/api/v1/back/jobs/s2"))

	items, err := mr.List("fuzzjobs:dispatch")
	require.NoError(t, err)
	require.Len(t, items, 2)

	// LPUSH puts the newest first; workers pop from the right.
	var oldest StartRequest
	require.NoError(t, json.Unmarshal([]byte(items[1]), &oldest))
	assert.Equal(t, StartRequest{Kind: "simulation", CallbackURL: "http://front/api/v1/back/jobs/s1"}, oldest)
}

func TestRedisNotifier_ServerDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	err := NewRedisNotifier(client, "q").StartJob(context.Background(), "pdf", "http://x")
	assert.Error(t, err)
}
