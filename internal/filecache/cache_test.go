package filecache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAddUpdateRemove(t *testing.T) {
	c := New(32)

	var changes []Change
	c.Observe(func(ch Change) { changes = append(changes, ch) })

	require.NoError(t, c.Add("notes.txt", 100))
	size, ok := c.Size("notes.txt")
	require.True(t, ok)
	require.EqualValues(t, 100, size)

	require.NoError(t, c.Update("notes.txt", 200))
	size, _ = c.Size("notes.txt")
	require.EqualValues(t, 200, size)

	require.NoError(t, c.Remove("notes.txt"))
	_, ok = c.Size("notes.txt")
	require.False(t, ok)

	require.Len(t, changes, 3)
	require.Equal(t, Added, changes[0].Kind)
	require.Equal(t, Updated, changes[1].Kind)
	require.Equal(t, Removed, changes[2].Kind)
}

func TestAddRejectsDuplicate(t *testing.T) {
	c := New(32)
	require.NoError(t, c.Add("a.txt", 1))
	require.Error(t, c.Add("a.txt", 2))
}

func TestAddRejectsNameOverDeviceLimit(t *testing.T) {
	c := New(4)
	require.Error(t, c.Add("toolong.txt", 1))
}

func TestUpdateRemoveRejectUnknownName(t *testing.T) {
	c := New(32)
	require.Error(t, c.Update("missing.txt", 1))
	require.Error(t, c.Remove("missing.txt"))
}

func TestRefreshReplacesMappingAndMarksInSync(t *testing.T) {
	c := New(32)
	require.NoError(t, c.Add("stale.txt", 1))
	require.False(t, c.InSync())

	c.Refresh(map[string]int64{"fresh.txt": 42})
	require.True(t, c.InSync())
	require.Equal(t, map[string]int64{"fresh.txt": 42}, c.Files())

	c.MarkOutOfSync()
	require.False(t, c.InSync())
}
