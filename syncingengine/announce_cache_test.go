package syncingengine

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnnounceCachePutGet(t *testing.T) {
	c := newAnnounceCache(2)
	hash := blockHash(1)
	_, ok := c.get(hash)
	require.False(t, ok)

	c.put(hash, []byte("data"))
	v, ok := c.get(hash)
	require.True(t, ok)
	require.Equal(t, []byte("data"), v)
}

func TestAnnounceCachePutIgnoresEmptyData(t *testing.T) {
	c := newAnnounceCache(2)
	hash := blockHash(1)
	c.put(hash, nil)
	_, ok := c.get(hash)
	require.False(t, ok)
}

func TestAnnounceCacheResizeCarriesOverEntries(t *testing.T) {
	c := newAnnounceCache(4)
	hash := blockHash(1)
	c.put(hash, []byte("data"))

	c.resize(8)
	v, ok := c.get(hash)
	require.True(t, ok)
	require.Equal(t, []byte("data"), v)
}

func TestAnnounceCacheFloorsCapacityAtOne(t *testing.T) {
	require.NotPanics(t, func() { newAnnounceCache(0) })
}
