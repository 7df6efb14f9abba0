package ubifs

import (
	"github.com/google/renameio"
	"github.com/pkg/errors"
)

// Sink is the write-only target described by spec.md §4.8 and §6: either
// a regular file padded to leb_count*leb_size, or a UBI volume taking
// LEB-change operations. The pipeline never reads the sink back.
type Sink interface {
	// WriteLEB hands a full, already-padded LEB buffer to the sink.
	WriteLEB(lnum uint32, buf []byte) error
	// Finalize is called once leb_cnt is known; for the file sink it
	// commits the renameio temp file to its final path.
	Finalize(lebCnt uint32, lebSize uint32) error
	// Abort discards any partial output (spec.md §5: cancellation
	// discards the output).
	Abort()
}

// FileSink implements Sink against a regular file using
// github.com/google/renameio so that a failed build never corrupts a
// previously-existing image at the same path: all writes land in a
// temp file that is only renamed into place on success.
type FileSink struct {
	path    string
	pending *renameio.PendingFile
	written map[uint32]bool
}

// NewFileSink opens a pending replacement for path.
func NewFileSink(path string) (*FileSink, error) {
	pf, err := renameio.TempFile("", path)
	if err != nil {
		return nil, errors.Wrap(err, "opening file sink")
	}
	return &FileSink{path: path, pending: pf, written: make(map[uint32]bool)}, nil
}

func (s *FileSink) WriteLEB(lnum uint32, buf []byte) error {
	off := int64(lnum) * int64(len(buf))
	if _, err := s.pending.WriteAt(buf, off); err != nil {
		return errors.Wrapf(err, "writing LEB %d", lnum)
	}
	s.written[lnum] = true
	return nil
}

// Finalize pads the file out to leb_cnt*leb_size (any LEB never written
// reads back as 0xFF per spec.md §8) and commits the replacement.
func (s *FileSink) Finalize(lebCnt uint32, lebSize uint32) error {
	total := int64(lebCnt) * int64(lebSize)
	ffLeb := make([]byte, lebSize)
	fillFF(ffLeb)
	for lnum := uint32(0); lnum < lebCnt; lnum++ {
		if s.written[lnum] {
			continue
		}
		if _, err := s.pending.WriteAt(ffLeb, int64(lnum)*int64(lebSize)); err != nil {
			return errors.Wrapf(err, "padding LEB %d", lnum)
		}
	}
	if err := s.pending.Truncate(total); err != nil {
		return errors.Wrap(err, "truncating file sink")
	}
	return errors.Wrap(s.pending.CloseAtomicallyReplace(), "committing file sink")
}

// Abort discards the pending temp file without touching path.
func (s *FileSink) Abort() {
	_ = s.pending.Cleanup()
}

// UBIVolume is the minimal capability a UBI volume driver must expose;
// consumed as an external collaborator per spec.md §1/§6.
type UBIVolume interface {
	LebChange(lnum uint32, buf []byte) error
	LebSize() uint32
	MinIOSize() uint32
}

// UBISink implements Sink against a live UBI volume via leb_change
// operations; it never commits anything itself (there is no "finalize"
// concept on a raw UBI volume), matching spec.md §4.8.
type UBISink struct {
	vol UBIVolume
}

// NewUBISink wraps vol as a Sink.
func NewUBISink(vol UBIVolume) *UBISink {
	return &UBISink{vol: vol}
}

func (s *UBISink) WriteLEB(lnum uint32, buf []byte) error {
	return errors.Wrapf(s.vol.LebChange(lnum, buf), "writing LEB %d", lnum)
}

func (s *UBISink) Finalize(lebCnt uint32, lebSize uint32) error {
	return nil
}

func (s *UBISink) Abort() {}

var _ Sink = (*FileSink)(nil)
var _ Sink = (*UBISink)(nil)
