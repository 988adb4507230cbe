package audit

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func appendN(t *testing.T, s Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, s.Append(context.Background(), Entry{ID: fmt.Sprint(i), Event: EventLogin}))
	}
}

func entryIDs(entries []Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.ID
	}
	return out
}

func TestRingStoreKeepsNewestFirst(t *testing.T) {
	s := NewRingStore(5)
	appendN(t, s, 3)

	got, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1", "0"}, entryIDs(got))

	got, err = s.Recent(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "1"}, entryIDs(got))
}

func TestRingStoreEvictsOldest(t *testing.T) {
	s := NewRingStore(1000)
	appendN(t, s, 1001)

	assert.Equal(t, 1000, s.Len())
	got, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 1000)
	assert.Equal(t, "1000", got[0].ID)
	assert.Equal(t, "1", got[len(got)-1].ID)
	for i, e := range got {
		assert.Equal(t, fmt.Sprint(1000-i), e.ID)
	}
}

func TestRingStoreDefaultCapacity(t *testing.T) {
	assert.Equal(t, DefaultCapacity, NewRingStore(0).Capacity())
}

func TestRingStoreConcurrentAppends(t *testing.T) {
	s := NewRingStore(50)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = s.Append(context.Background(), Entry{ID: fmt.Sprintf("%d-%d", g, i)})
			}
		}(g)
	}
	wg.Wait()

	got, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, got, 50)
	seen := make(map[string]bool)
	for _, e := range got {
		assert.NotEmpty(t, e.ID)
		assert.False(t, seen[e.ID], "duplicate %s", e.ID)
		seen[e.ID] = true
	}
}

func newRedisStore(t *testing.T, capacity int) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, "", capacity), mr
}

func TestRedisStoreCapsList(t *testing.T) {
	s, mr := newRedisStore(t, 3)
	appendN(t, s, 5)

	got, err := s.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "3", "2"}, entryIDs(got))

	got, err = s.Recent(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"4"}, entryIDs(got))

	items, err := mr.List(DefaultRedisKey)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestRedisStoreReportsOutage(t *testing.T) {
	s, mr := newRedisStore(t, 3)
	mr.Close()
	assert.Error(t, s.Append(context.Background(), Entry{ID: "x"}))
	_, err := s.Recent(context.Background(), 1)
	assert.Error(t, err)
}

func TestOpenRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := OpenRedis(context.Background(), "redis://"+mr.Addr())
	require.NoError(t, err)
	require.NoError(t, client.Close())

	_, err = OpenRedis(context.Background(), "")
	assert.Error(t, err)
	_, err = OpenRedis(context.Background(), "not a url")
	assert.Error(t, err)
}
