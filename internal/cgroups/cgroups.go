// Package cgroups provides access to the cgroup v2 control surface:
// resolving paths to group ids, reading pressure and usage signals, and
// writing the memory.low / memory.high knobs the fallback controller
// drives.
package cgroups

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// Session cgroup names created under the managed root.
const (
	SessionHigh = "session_high"
	SessionLow  = "session_low"
)

// GroupID resolves a cgroup directory to its group id. The id is the
// inode number of the directory, which is what the kernel reports for
// the cgroup in tracepoint events.
func GroupID(path string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	return st.Ino, nil
}

// ReadControl reads a cgroup control file and returns its trimmed
// contents.
func ReadControl(path, name string) (string, error) {
	raw, err := os.ReadFile(filepath.Join(path, name))
	if err != nil {
		return "", fmt.Errorf("read %s/%s: %w", path, name, err)
	}
	return strings.TrimSpace(string(raw)), nil
}

// WriteControl writes a value to a cgroup control file.
func WriteControl(path, name, value string) error {
	file := filepath.Join(path, name)
	if err := os.WriteFile(file, []byte(value), 0o644); err != nil {
		return fmt.Errorf("write %q to %s: %w", value, file, err)
	}
	return nil
}

// AssignPID moves a process into a cgroup.
func AssignPID(path string, pid int) error {
	return WriteControl(path, "cgroup.procs", strconv.Itoa(pid))
}

// MemoryEvents parses memory.events into name → count.
func MemoryEvents(path string) (map[string]uint64, error) {
	raw, err := ReadControl(path, "memory.events")
	if err != nil {
		return nil, err
	}
	events := make(map[string]uint64)
	for _, line := range strings.Split(raw, "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		events[fields[0]] = n
	}
	return events, nil
}

// PSISomeTotal reads the total stall time in microseconds from the
// "some" line of memory.pressure.
func PSISomeTotal(path string) (uint64, error) {
	raw, err := ReadControl(path, "memory.pressure")
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(raw, "\n") {
		if !strings.HasPrefix(line, "some ") {
			continue
		}
		for _, field := range strings.Fields(line) {
			if v, ok := strings.CutPrefix(field, "total="); ok {
				n, err := strconv.ParseUint(v, 10, 64)
				if err != nil {
					return 0, fmt.Errorf("parse %s/memory.pressure total %q: %w", path, v, err)
				}
				return n, nil
			}
		}
	}
	return 0, fmt.Errorf("no some line in %s/memory.pressure", path)
}

// MemoryCurrent reads memory.current in bytes.
func MemoryCurrent(path string) (uint64, error) {
	raw, err := ReadControl(path, "memory.current")
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s/memory.current %q: %w", path, raw, err)
	}
	return n, nil
}

// MemoryMax reads memory.max in bytes. ok is false when the group is
// unlimited ("max").
func MemoryMax(path string) (limit uint64, ok bool, err error) {
	raw, err := ReadControl(path, "memory.max")
	if err != nil {
		return 0, false, err
	}
	if raw == "max" {
		return 0, false, nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("parse %s/memory.max %q: %w", path, raw, err)
	}
	return n, true, nil
}
