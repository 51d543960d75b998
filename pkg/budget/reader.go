package budget

import (
	"io"
)

// ReaderAt is an io.ReaderAt over an artifact that charges every byte it
// returns as bytes_read against a tracker. Once the read allowance is spent
// reads are truncated and return an error wrapping ErrBoundExceeded, so
// the bytes read through it can never pass the ceiling.
type ReaderAt struct {
	r       io.ReaderAt
	size    int64
	tracker *Tracker
}

// NewReaderAt wraps r, an artifact of the given size.
func NewReaderAt(r io.ReaderAt, size int64, tracker *Tracker) *ReaderAt {
	return &ReaderAt{r: r, size: size, tracker: tracker}
}

// Size returns the artifact size.
func (b *ReaderAt) Size() int64 {
	return b.size
}

// ReadAt implements io.ReaderAt.
func (b *ReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if off >= b.size {
		return 0, io.EOF
	}

	want := min(int64(len(p)), b.size-off)
	granted, limitErr := b.tracker.Take(BytesRead, want)
	if granted == 0 {
		return 0, limitErr
	}

	n, err := b.r.ReadAt(p[:granted], off)
	if int64(n) < granted {
		b.tracker.Refund(BytesRead, granted-int64(n))
	}
	if err != nil && err != io.EOF {
		return n, err
	}
	if limitErr != nil {
		return n, limitErr
	}
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}
