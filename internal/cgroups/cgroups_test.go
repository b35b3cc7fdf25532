package cgroups

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestGroupID(t *testing.T) {
	dir := t.TempDir()

	id, err := GroupID(dir)
	require.NoError(t, err)
	assert.NotZero(t, id)

	other := filepath.Join(dir, "child")
	require.NoError(t, os.Mkdir(other, 0o755))
	otherID, err := GroupID(other)
	require.NoError(t, err)
	assert.NotEqual(t, id, otherID)

	_, err = GroupID(filepath.Join(dir, "missing"))
	assert.Error(t, err)
}

func TestMemoryEvents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "memory.events", "low 0\nhigh 42\nmax 3\noom 0\noom_kill 0\n")

	events, err := MemoryEvents(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), events["high"])
	assert.Equal(t, uint64(3), events["max"])
	assert.Zero(t, events["oom"])

	_, err = MemoryEvents(t.TempDir())
	assert.Error(t, err)
}

func TestPSISomeTotal(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "memory.pressure",
		"some avg10=0.00 avg60=0.12 avg300=0.05 total=123456\nfull avg10=0.00 avg60=0.00 avg300=0.00 total=99\n")

	total, err := PSISomeTotal(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(123456), total)

	bad := t.TempDir()
	writeFile(t, bad, "memory.pressure", "full avg10=0.00 total=99\n")
	_, err = PSISomeTotal(bad)
	assert.Error(t, err)
}

func TestMemoryCurrentAndMax(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "memory.current", "104857600\n")
	writeFile(t, dir, "memory.max", "209715200\n")

	cur, err := MemoryCurrent(dir)
	require.NoError(t, err)
	assert.Equal(t, uint64(104857600), cur)

	limit, ok, err := MemoryMax(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, uint64(209715200), limit)

	unlimited := t.TempDir()
	writeFile(t, unlimited, "memory.max", "max\n")
	_, ok, err = MemoryMax(unlimited)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestWriteControlAndAssignPID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "memory.low", "0")
	writeFile(t, dir, "cgroup.procs", "")

	require.NoError(t, WriteControl(dir, "memory.low", "1073741824"))
	got, err := ReadControl(dir, "memory.low")
	require.NoError(t, err)
	assert.Equal(t, "1073741824", got)

	require.NoError(t, AssignPID(dir, 1234))
	got, err = ReadControl(dir, "cgroup.procs")
	require.NoError(t, err)
	assert.Equal(t, "1234", got)
}

func TestSetupHierarchy(t *testing.T) {
	root := t.TempDir()

	require.NoError(t, SetupHierarchy(root, zap.NewNop()))

	assert.DirExists(t, HighPath(root))
	assert.DirExists(t, LowPath(root))

	// Control writes land as plain files on the fake root.
	weight, err := ReadControl(HighPath(root), "cpu.weight")
	require.NoError(t, err)
	assert.Equal(t, "150", weight)
}

func TestScanToolGroups(t *testing.T) {
	high := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(high, "tool_123"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(high, "tool_456"), 0o755))
	require.NoError(t, os.Mkdir(filepath.Join(high, "other"), 0o755))
	writeFile(t, high, "tool_file", "not a dir")

	groups := ScanToolGroups(high)
	assert.Len(t, groups, 2)
	for _, g := range groups {
		assert.Contains(t, g, "tool_")
	}

	assert.Nil(t, ScanToolGroups(filepath.Join(high, "missing")))
}
