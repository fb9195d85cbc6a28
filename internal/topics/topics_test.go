package topics

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	got, ok := Lookup("from.task")
	require.True(t, ok)
	assert.Equal(t, FromTask, got)

	_, ok = Lookup("not.a.topic")
	assert.False(t, ok)
}

func TestAll(t *testing.T) {
	all := All()
	require.NotEmpty(t, all)

	names := make([]string, len(all))
	for i, topic := range all {
		names[i] = topic.Name()
		assert.NotEmpty(t, topic.Description(), "%s needs a description", topic.Name())
	}
	assert.True(t, sort.StringsAreSorted(names))
	assert.Contains(t, names, FromUI.Name())
	assert.Contains(t, names, TaskProcessUpdate.Name())
}
