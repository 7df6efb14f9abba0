package ubifs

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// selinuxRule is one line of a label file: a path glob (as a regular
// expression, matching mkfs.ubifs's file_contexts-style grammar closely
// enough for this builder's purposes) and the context to stamp onto any
// matching path instead of whatever security.selinux the host reports.
type selinuxRule struct {
	pattern *regexp.Regexp
	context string
}

// SelinuxLabels holds a parsed label file, consulted during xattr
// emission (spec.md §4.4) in place of the host's own security.selinux
// value when a label file was supplied (SPEC_FULL.md's [SELINUX LABELS]
// module).
type SelinuxLabels struct {
	rules []selinuxRule
}

// LoadSelinuxLabels parses a label file of "path_regex context" lines,
// matching the grammar mkfs.ubifs accepts via -L/context-file.
func LoadSelinuxLabels(path string) (*SelinuxLabels, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(&SourceIO{Path: path, Cause: err}, "opening selinux label file")
	}
	defer f.Close()
	return ParseSelinuxLabels(f)
}

// ParseSelinuxLabels parses the label-file grammar from r.
func ParseSelinuxLabels(r io.Reader) (*SelinuxLabels, error) {
	sl := &SelinuxLabels{}
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			return nil, &DeviceTableInvalid{Line: lineNo, Reason: "selinux label file expects \"path_regex context\""}
		}
		re, err := regexp.Compile(fields[0])
		if err != nil {
			return nil, &DeviceTableInvalid{Line: lineNo, Reason: "invalid path regex: " + err.Error()}
		}
		sl.rules = append(sl.rules, selinuxRule{pattern: re, context: fields[1]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return sl, nil
}

// Lookup returns the context to stamp on relPath, and whether a rule
// matched. Later rules override earlier ones, matching file_contexts
// precedence (more specific entries are conventionally listed last).
func (sl *SelinuxLabels) Lookup(relPath string) (string, bool) {
	if sl == nil {
		return "", false
	}
	var match string
	var found bool
	for _, rule := range sl.rules {
		if rule.pattern.MatchString("/" + relPath) {
			match = rule.context
			found = true
		}
	}
	return match, found
}
