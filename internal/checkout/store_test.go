package checkout

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestRedisStoreRoundTrip(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := &RedisStore{Client: client, Retention: time.Hour}
	ctx := context.Background()

	d := validData()
	require.NoError(t, store.Save(ctx, d))
	require.Equal(t, time.Hour, mr.TTL("checkout:session:sess-1"))

	got, err := store.Get(ctx, "sess-1")
	require.NoError(t, err)
	require.Equal(t, d.UserID, got.UserID)
	require.Equal(t, "2.00", got.Items[0].UnitPrice.String())
	require.Equal(t, "50", got.Items[0].SellerDiscountPercent.String())
	require.Equal(t, *d.ShippingAddress, *got.ShippingAddress)
	require.True(t, d.ExpiresAt.Equal(*got.ExpiresAt))

	_, err = store.Get(ctx, "nope")
	require.ErrorIs(t, err, ErrSessionNotFound)

	require.Error(t, store.Save(ctx, &Data{}))
}
