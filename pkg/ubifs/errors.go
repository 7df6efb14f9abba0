package ubifs

import "fmt"

// The error kinds named in spec.md §7. Each is a distinct type so callers
// can type-switch on failure classification; construction helpers wrap
// these with github.com/pkg/errors at the call site to keep a causal
// chain back through the pipeline stage that produced them.

// InvalidGeometry reports a geometry rule violation detected by the
// validator before any node is written.
type InvalidGeometry struct {
	Reason string
}

func (e *InvalidGeometry) Error() string {
	return fmt.Sprintf("invalid geometry: %s", e.Reason)
}

// InvalidOption reports a configuration value that is structurally
// nonsensical (bad enum value, mutually exclusive flags, etc).
type InvalidOption struct {
	Option string
	Reason string
}

func (e *InvalidOption) Error() string {
	return fmt.Sprintf("invalid option %s: %s", e.Option, e.Reason)
}

// SourceIO reports a failure reading from the host source tree.
type SourceIO struct {
	Path  string
	Cause error
}

func (e *SourceIO) Error() string {
	return fmt.Sprintf("source I/O error at %q: %v", e.Path, e.Cause)
}

func (e *SourceIO) Unwrap() error { return e.Cause }

// SinkIO reports a failure writing to the target sink.
type SinkIO struct {
	Lnum  int
	Cause error
}

func (e *SinkIO) Error() string {
	return fmt.Sprintf("sink I/O error at LEB %d: %v", e.Lnum, e.Cause)
}

func (e *SinkIO) Unwrap() error { return e.Cause }

// TooManyLEBs reports that the image grew past max_leb_cnt.
type TooManyLEBs struct {
	Need int
	Max  int
}

func (e *TooManyLEBs) Error() string {
	return fmt.Sprintf("image requires %d LEBs, exceeds max_leb_cnt %d", e.Need, e.Max)
}

// IndexTooBig reports that a single index node would exceed leb_size.
type IndexTooBig struct {
	Size int
	Max  int
}

func (e *IndexTooBig) Error() string {
	return fmt.Sprintf("index node of %d bytes exceeds LEB capacity %d", e.Size, e.Max)
}

// CompressionFailed reports a compressor backend failure.
type CompressionFailed struct {
	Type  string
	Cause error
}

func (e *CompressionFailed) Error() string {
	return fmt.Sprintf("compression failed (%s): %v", e.Type, e.Cause)
}

func (e *CompressionFailed) Unwrap() error { return e.Cause }

// EncryptionFailed reports a failure in the name/data/symlink cryptor.
type EncryptionFailed struct {
	Context string
	Cause   error
}

func (e *EncryptionFailed) Error() string {
	return fmt.Sprintf("encryption failed (%s): %v", e.Context, e.Cause)
}

func (e *EncryptionFailed) Unwrap() error { return e.Cause }

// SigningFailed reports a failure producing or verifying the authentication
// signature.
type SigningFailed struct {
	Cause error
}

func (e *SigningFailed) Error() string {
	return fmt.Sprintf("signing failed: %v", e.Cause)
}

func (e *SigningFailed) Unwrap() error { return e.Cause }

// DeviceTableInvalid reports a malformed or rejected device-table entry.
type DeviceTableInvalid struct {
	Line   int
	Reason string
}

func (e *DeviceTableInvalid) Error() string {
	return fmt.Sprintf("device table line %d: %s", e.Line, e.Reason)
}

// HostAttrUnavailable is the one recoverable kind: a host attribute (most
// commonly xattrs) couldn't be read. Callers log it with Warnf and
// continue; it is never wrapped into a fatal chain.
type HostAttrUnavailable struct {
	Path string
	Attr string
	Cause error
}

func (e *HostAttrUnavailable) Error() string {
	return fmt.Sprintf("host attribute %s unavailable for %q: %v", e.Attr, e.Path, e.Cause)
}
