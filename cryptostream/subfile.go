package cryptostream

import (
	"io"

	"lyra/lyraerr"
)

// Subfile restricts a seekable source to the half-open byte range
// [offset, offset+length) and translates absolute seeks so a decoder
// sees a file that begins at byte 0 and has exactly `length` bytes.
type Subfile struct {
	src    io.ReadSeeker
	offset int64
	length int64
	pos    int64 // position relative to the window, i.e. decoder-visible offset
}

// NewSubfile seeks src to offset immediately so the returned Subfile
// starts reading at relative position 0.
func NewSubfile(src io.ReadSeeker, offset, length int64) (*Subfile, error) {
	if _, err := src.Seek(offset, io.SeekStart); err != nil {
		return nil, lyraerr.Wrap(lyraerr.InvalidArgument, "seek to subfile start", err)
	}
	return &Subfile{src: src, offset: offset, length: length}, nil
}

func (f *Subfile) Read(p []byte) (int, error) {
	remaining := f.length - f.pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := f.src.Read(p)
	f.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker over the windowed view. Seek(End, -n) is
// rejected if it would land before the window's start.
func (f *Subfile) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.pos + offset
	case io.SeekEnd:
		target = f.length + offset
		if target < 0 {
			return 0, lyraerr.New(lyraerr.InvalidArgument, "seek before subfile start")
		}
	default:
		return 0, lyraerr.New(lyraerr.InvalidArgument, "invalid whence")
	}
	if target < 0 {
		return 0, lyraerr.New(lyraerr.InvalidArgument, "seek before subfile start")
	}

	absolute := f.offset + target
	if _, err := f.src.Seek(absolute, io.SeekStart); err != nil {
		return 0, err
	}
	f.pos = target
	return target, nil
}

// Len returns the window's length in bytes.
func (f *Subfile) Len() int64 { return f.length }
