package ubifs

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessagesIncludeContext(t *testing.T) {
	assert.Contains(t, (&InvalidGeometry{Reason: "bad fanout"}).Error(), "bad fanout")
	assert.Contains(t, (&InvalidOption{Option: "compr", Reason: "bad"}).Error(), "compr")
	assert.Contains(t, (&TooManyLEBs{Need: 10, Max: 5}).Error(), "10")
	assert.Contains(t, (&IndexTooBig{Size: 99, Max: 50}).Error(), "99")
	assert.Contains(t, (&DeviceTableInvalid{Line: 3, Reason: "bad"}).Error(), "3")
}

func TestSourceIOUnwraps(t *testing.T) {
	cause := errors.New("permission denied")
	err := &SourceIO{Path: "/a", Cause: cause}
	assert.Same(t, cause, errors.Unwrap(err))
	assert.True(t, errors.Is(err, cause))
}

func TestWrappedErrorPreservesCauseChain(t *testing.T) {
	cause := &SourceIO{Path: "/x", Cause: errors.New("boom")}
	wrapped := pkgerrors.Wrap(cause, "scanning source tree")
	assert.Contains(t, wrapped.Error(), "scanning source tree")
	assert.True(t, errors.As(wrapped, &cause))
}
