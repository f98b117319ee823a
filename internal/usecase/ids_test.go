package usecase

import (
	"sort"
	"sync"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewIDIsOrderedAndUnique(t *testing.T) {
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = NewID()
	}
	assert.True(t, sort.StringsAreSorted(ids), "ids sort in issue order")

	_, err := ulid.ParseStrict(ids[0])
	require.NoError(t, err)

	var mu sync.Mutex
	seen := make(map[string]bool)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				id := NewID()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 400)
}
