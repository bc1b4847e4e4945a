package cache

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"
)

func TestNewPingsServer(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := New(context.Background(), mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())
}

func TestNewFailsWhenUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := New(context.Background(), addr)
	require.Error(t, err)
}

func TestOptionsAcceptsURL(t *testing.T) {
	opts, err := Options("redis://:s3cret@cache.internal:6380/2")
	require.NoError(t, err)
	require.Equal(t, "cache.internal:6380", opts.Addr)
	require.Equal(t, "s3cret", opts.Password)
	require.Equal(t, 2, opts.DB)
	require.Equal(t, dialTimeout, opts.DialTimeout)
}

func TestQueueOptMatchesClientOptions(t *testing.T) {
	conn, err := QueueOpt("redis://:s3cret@cache.internal:6380/2")
	require.NoError(t, err)
	opt, ok := conn.(asynq.RedisClientOpt)
	require.True(t, ok)
	require.Equal(t, "cache.internal:6380", opt.Addr)
	require.Equal(t, "s3cret", opt.Password)
	require.Equal(t, 2, opt.DB)

	conn, err = QueueOpt("127.0.0.1:6379")
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:6379", conn.(asynq.RedisClientOpt).Addr)
}

func TestOptionsRejectsEmptyAndBadURL(t *testing.T) {
	_, err := Options("  ")
	require.Error(t, err)
	_, err = Options("redis://cache.internal:6379/not-a-db")
	require.Error(t, err)
}
