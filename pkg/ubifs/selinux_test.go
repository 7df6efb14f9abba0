package ubifs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSelinuxLabelsLookup(t *testing.T) {
	src := `# comment
/bin(/.*)?   system_u:object_r:bin_t:s0
/etc/passwd  system_u:object_r:passwd_file_t:s0
`
	sl, err := ParseSelinuxLabels(strings.NewReader(src))
	require.NoError(t, err)

	ctx, ok := sl.Lookup("etc/passwd")
	require.True(t, ok)
	assert.Equal(t, "system_u:object_r:passwd_file_t:s0", ctx)

	ctx, ok = sl.Lookup("bin/ls")
	require.True(t, ok)
	assert.Equal(t, "system_u:object_r:bin_t:s0", ctx)

	_, ok = sl.Lookup("opt/unlabeled")
	assert.False(t, ok)
}

func TestParseSelinuxLabelsLaterRuleWins(t *testing.T) {
	src := `.*               system_u:object_r:default_t:s0
/etc/shadow       system_u:object_r:shadow_t:s0
`
	sl, err := ParseSelinuxLabels(strings.NewReader(src))
	require.NoError(t, err)

	ctx, ok := sl.Lookup("etc/shadow")
	require.True(t, ok)
	assert.Equal(t, "system_u:object_r:shadow_t:s0", ctx)
}

func TestParseSelinuxLabelsRejectsMissingContextField(t *testing.T) {
	_, err := ParseSelinuxLabels(strings.NewReader("/bin/sh\n"))
	assert.Error(t, err)
}

func TestParseSelinuxLabelsRejectsBadRegex(t *testing.T) {
	_, err := ParseSelinuxLabels(strings.NewReader("(unterminated system_u:object_r:x_t:s0\n"))
	assert.Error(t, err)
}

func TestNilSelinuxLabelsIsSafe(t *testing.T) {
	var sl *SelinuxLabels
	_, ok := sl.Lookup("anything")
	assert.False(t, ok)
}
