package ubifs

import (
	"bufio"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// DeviceTableEntry is one line of a device-table overlay file, per
// spec.md §6: "path type mode uid gid major minor", plus the additive
// "start increment count" range form recovered from original_source/
// (SPEC_FULL.md's [DEVICE TABLE] module) for provisioning numbered
// device nodes such as /dev/tty%d.
type DeviceTableEntry struct {
	Path  string
	Type  byte // 'f','d','c','b','p','s'
	Mode  uint32
	UID   uint32
	GID   uint32
	Major uint32
	Minor uint32

	// Range form: when Count > 0, Path is a printf-style template
	// ("%d" is substituted) and this entry expands to Count nodes,
	// numbered start, start+increment, start+2*increment, ...
	Start     int
	Increment int
	Count     int
}

// DeviceTable is a parsed overlay file, indexed by path for the Leaf
// Emitter's per-entry override lookup (spec.md §6: "consumed as a
// lookup-by-path interface").
type DeviceTable struct {
	byPath map[string]*DeviceTableEntry
	all    []*DeviceTableEntry
}

// Lookup returns the override for path, if any.
func (t *DeviceTable) Lookup(path string) (*DeviceTableEntry, bool) {
	if t == nil {
		return nil, false
	}
	e, ok := t.byPath[strings.TrimPrefix(path, "/")]
	return e, ok
}

// Synthetic returns every entry that should be injected into the tree
// even if no corresponding host path exists (the common case: /dev
// nodes that aren't present in the source tree at all).
func (t *DeviceTable) Synthetic() []*DeviceTableEntry {
	if t == nil {
		return nil
	}
	return t.all
}

// ParseDeviceTable reads a device-table file in mkfs.ubifs's own
// grammar: one entry per line, fields whitespace-separated, '#' starts a
// comment, blank lines ignored.
func ParseDeviceTable(r io.Reader) (*DeviceTable, error) {
	t := &DeviceTable{byPath: make(map[string]*DeviceTableEntry)}

	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		e, err := parseDeviceTableLine(line, lineNo)
		if err != nil {
			return nil, err
		}
		t.byPath[strings.TrimPrefix(e.Path, "/")] = e
		t.all = append(t.all, e)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "reading device table")
	}
	return t, nil
}

// LoadDeviceTable opens and parses path.
func LoadDeviceTable(path string) (*DeviceTable, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening device table")
	}
	defer f.Close()
	return ParseDeviceTable(f)
}

func parseDeviceTableLine(line string, lineNo int) (*DeviceTableEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 7 {
		return nil, &DeviceTableInvalid{Line: lineNo, Reason: "expected at least 7 fields: path type mode uid gid major minor"}
	}

	typ := fields[1]
	if len(typ) != 1 {
		return nil, &DeviceTableInvalid{Line: lineNo, Reason: "type must be a single character"}
	}

	mode, err := strconv.ParseUint(fields[2], 8, 32)
	if err != nil {
		return nil, &DeviceTableInvalid{Line: lineNo, Reason: "bad mode: " + err.Error()}
	}
	uid, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return nil, &DeviceTableInvalid{Line: lineNo, Reason: "bad uid: " + err.Error()}
	}
	gid, err := strconv.ParseUint(fields[4], 10, 32)
	if err != nil {
		return nil, &DeviceTableInvalid{Line: lineNo, Reason: "bad gid: " + err.Error()}
	}
	major, err := strconv.ParseUint(fields[5], 10, 32)
	if err != nil {
		return nil, &DeviceTableInvalid{Line: lineNo, Reason: "bad major: " + err.Error()}
	}
	minor, err := strconv.ParseUint(fields[6], 10, 32)
	if err != nil {
		return nil, &DeviceTableInvalid{Line: lineNo, Reason: "bad minor: " + err.Error()}
	}

	e := &DeviceTableEntry{
		Path:  strings.TrimPrefix(fields[0], "/"),
		Type:  typ[0],
		Mode:  uint32(mode),
		UID:   uint32(uid),
		GID:   uint32(gid),
		Major: uint32(major),
		Minor: uint32(minor),
	}

	if e.Type == 'f' {
		return nil, &DeviceTableInvalid{Line: lineNo, Reason: "device table cannot create regular files"}
	}

	if len(fields) >= 10 {
		start, err := strconv.Atoi(fields[7])
		if err != nil {
			return nil, &DeviceTableInvalid{Line: lineNo, Reason: "bad range start: " + err.Error()}
		}
		inc, err := strconv.Atoi(fields[8])
		if err != nil {
			return nil, &DeviceTableInvalid{Line: lineNo, Reason: "bad range increment: " + err.Error()}
		}
		count, err := strconv.Atoi(fields[9])
		if err != nil {
			return nil, &DeviceTableInvalid{Line: lineNo, Reason: "bad range count: " + err.Error()}
		}
		e.Start, e.Increment, e.Count = start, inc, count
	}

	return e, nil
}

// Expand returns the concrete set of (path, minor) pairs a range-form
// entry describes, substituting "%d" in Path with each numbered value;
// a non-range entry expands to itself.
func (e *DeviceTableEntry) Expand() []*DeviceTableEntry {
	if e.Count <= 0 {
		return []*DeviceTableEntry{e}
	}
	out := make([]*DeviceTableEntry, 0, e.Count)
	for i := 0; i < e.Count; i++ {
		n := e.Start + i*e.Increment
		clone := *e
		clone.Count = 0
		if strings.Contains(e.Path, "%d") {
			clone.Path = strings.Replace(e.Path, "%d", strconv.Itoa(n), 1)
		}
		clone.Minor = e.Minor + uint32(i*e.Increment)
		out = append(out, &clone)
	}
	return out
}
