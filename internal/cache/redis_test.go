package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnectRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	addr := mr.Addr()

	rdb, err := ConnectRedis(addr, "", 0)
	require.NoError(t, err)
	assert.NoError(t, DisconnectRedis(rdb))
	assert.NoError(t, DisconnectRedis(nil))

	mr.Close()
	_, err = ConnectRedis(addr, "", 0)
	assert.Error(t, err)
}

func TestWindowCounter_Hit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb, err := ConnectRedis(mr.Addr(), "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	c := NewWindowCounter(rdb, "ratelimit")
	ctx := context.Background()
	window := time.Hour

	for want := int64(1); want <= 3; want++ {
		n, err := c.Hit(ctx, "10.0.0.1", window)
		require.NoError(t, err)
		assert.Equal(t, want, n)
	}
	n, err := c.Hit(ctx, "10.0.0.2", window)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	keys := mr.Keys()
	require.Len(t, keys, 2)
	assert.Equal(t, window, mr.TTL(keys[0]))
}
