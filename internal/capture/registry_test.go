package capture

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Record(t *testing.T) {
	r := NewRegistry(2)

	r.Record(Job{ID: "a", Stage: StageDownloading})
	r.Record(Job{ID: "b", Stage: StageDone})
	assert.Equal(t, 1, r.Active())

	t.Run("update_in_place", func(t *testing.T) {
		r.Record(Job{ID: "a", Stage: StageDone})
		got, ok := r.Get("a")
		require.True(t, ok)
		assert.Equal(t, StageDone, got.Stage)
		assert.Len(t, r.List(), 2)
		assert.Equal(t, 0, r.Active())
	})

	t.Run("evicts_oldest", func(t *testing.T) {
		r.Record(Job{ID: "c", Stage: StageFetching})
		_, ok := r.Get("a")
		assert.False(t, ok)

		list := r.List()
		require.Len(t, list, 2)
		assert.Equal(t, "b", list[0].ID)
		assert.Equal(t, "c", list[1].ID)
	})

	t.Run("ignores_missing_id", func(t *testing.T) {
		r.Record(Job{Stage: StageFetching})
		assert.Len(t, r.List(), 2)
	})
}

func TestRegistry_NewID_unique(t *testing.T) {
	r := NewRegistry(0)
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := r.NewID()
		require.False(t, seen[id], fmt.Sprintf("duplicate id %s", id))
		seen[id] = true
	}
}

func TestExitError(t *testing.T) {
	err := &ExitError{Code: 1, Detail: "Connection refused"}
	assert.Equal(t, "exit code 1: Connection refused", err.Error())
	assert.Equal(t, "b", lastLine("a\nb\n"))
}
