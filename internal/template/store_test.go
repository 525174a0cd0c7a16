package template

import (
	"sync"
	"testing"

	stderrors "intent-gateway/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSet(ids ...string) *TemplateSet {
	templates := make([]Template, 0, len(ids))
	for _, id := range ids {
		templates = append(templates, Template{ID: id, Kind: KindSQL})
	}
	return NewTemplateSet(templates)
}

func TestStore_GetAndAll(t *testing.T) {
	store := NewStore(testSet("a", "b", "c"))

	tmpl, err := store.Get("b")
	require.NoError(t, err)
	assert.Equal(t, "b", tmpl.ID)

	all := store.All()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{all[0].ID, all[1].ID, all[2].ID})
}

func TestStore_GetUnknownID(t *testing.T) {
	store := NewStore(testSet("a"))

	_, err := store.Get("missing")
	require.Error(t, err)

	var stdErr *stderrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, stderrors.ErrCodeTemplateNotFound, stdErr.Code)
}

func TestStore_ReplaceIsAtomic(t *testing.T) {
	store := NewStore(testSet("old_a", "old_b"))

	before := store.Snapshot()
	store.Replace(testSet("new_a"))

	// The old snapshot is untouched for in-flight readers.
	assert.Equal(t, 2, before.Len())
	assert.Equal(t, 1, store.Snapshot().Len())

	_, err := store.Get("old_a")
	assert.Error(t, err)

	tmpl, err := store.Get("new_a")
	require.NoError(t, err)
	assert.Equal(t, "new_a", tmpl.ID)
}

func TestStore_ConcurrentReadersDuringReplace(t *testing.T) {
	store := NewStore(testSet("a", "b"))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				set := store.Snapshot()
				// Any snapshot is internally consistent: all ids resolve.
				for _, tmpl := range set.All() {
					got, ok := set.Get(tmpl.ID)
					assert.True(t, ok)
					assert.Equal(t, tmpl.ID, got.ID)
				}
			}
		}()
	}

	for j := 0; j < 100; j++ {
		store.Replace(testSet("a", "b", "c"))
		store.Replace(testSet("a"))
	}
	wg.Wait()
}

func TestStore_NilSetBecomesEmpty(t *testing.T) {
	store := NewStore(nil)
	assert.Empty(t, store.All())

	store.Replace(nil)
	assert.Empty(t, store.All())
}
