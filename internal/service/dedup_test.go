package service

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDedupCacheSeen(t *testing.T) {
	c := NewDedupCache(4)

	assert.False(t, c.Seen("a"))
	assert.True(t, c.Seen("a"), "second sighting is a duplicate")
	assert.False(t, c.Seen("b"))
}

func TestDedupCacheEvictsOldest(t *testing.T) {
	c := NewDedupCache(3)

	for i := 0; i < 3; i++ {
		c.Seen(fmt.Sprintf("key-%d", i))
	}
	assert.Equal(t, 3, c.Len())

	c.Seen("key-3") // evicts key-0

	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("key-0"), "evicted key is forgotten")
	assert.True(t, c.Seen("key-3"))
}
