package cache

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datainspect/internal/models"
)

func entry(v float64) Entry {
	arr := models.NewArray(2, 2)
	for i := range arr.Data {
		arr.Data[i] = v
	}
	return Entry{Data: arr, Transform: models.Identity(2)}
}

func key(src string, i int) models.Key {
	return models.Key{Source: src, Index: i}
}

func TestTakeMovesOwnership(t *testing.T) {
	c := New()
	e := entry(1)

	require.True(t, c.Put(key("CT", 3), e))
	assert.True(t, c.Has(key("CT", 3)))

	got, ok := c.Take(key("CT", 3))
	require.True(t, ok)
	assert.Same(t, e.Data, got.Data)
	assert.Same(t, e.Transform, got.Transform)

	_, ok = c.Take(key("CT", 3))
	assert.False(t, ok, "second take must miss")
	assert.Equal(t, 0, c.Len())
}

func TestPutIsInsertIfAbsent(t *testing.T) {
	c := New()
	first, second := entry(1), entry(2)

	assert.True(t, c.Put(key("CT", 0), first))
	assert.False(t, c.Put(key("CT", 0), second))

	got, ok := c.Take(key("CT", 0))
	require.True(t, ok)
	assert.Same(t, first.Data, got.Data, "first writer wins")
}

func TestPrune(t *testing.T) {
	c := New()
	for _, src := range []string{"CT", "Mask", "Old"} {
		for i := 0; i < 4; i++ {
			c.Put(key(src, i), entry(float64(i)))
		}
	}

	c.Prune(2, []string{"CT", "Mask"})

	assert.Equal(t, []models.Key{key("CT", 2), key("Mask", 2)}, c.Keys())
}

func TestPruneRecordsActiveSources(t *testing.T) {
	c := New()
	assert.True(t, c.Put(key("Anything", 0), entry(0)), "every source is accepted before the first prune")

	c.Prune(0, []string{"CT"})

	assert.False(t, c.Put(key("Removed", 1), entry(1)), "late write for an inactive source is dropped")
	assert.True(t, c.Put(key("CT", 1), entry(1)))
	assert.False(t, c.Has(key("Anything", 0)))
}

func TestPruneEmptyActiveClearsAll(t *testing.T) {
	c := New()
	c.Put(key("CT", 0), entry(0))

	c.Prune(0, nil)

	assert.Equal(t, 0, c.Len())
	assert.False(t, c.Put(key("CT", 0), entry(0)))
}

func TestDropSource(t *testing.T) {
	c := New()
	c.Put(key("CT", 0), entry(0))
	c.Put(key("CT", 1), entry(1))
	c.Put(key("Mask", 1), entry(1))

	c.DropSource("CT")

	assert.Equal(t, []models.Key{key("Mask", 1)}, c.Keys())
}

func TestSizeBytes(t *testing.T) {
	c := New()
	c.Put(key("CT", 0), entry(0))
	c.Put(key("CT", 1), Entry{Data: models.NewArray(3), Transform: nil})

	assert.Equal(t, (4+3)*8, c.SizeBytes())
}

func TestConcurrentPutTake(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				k := key(fmt.Sprintf("s%d", w%2), i)
				c.Put(k, entry(float64(i)))
				c.Take(k)
				c.Has(k)
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, len(c.Keys()), c.Len())
}
