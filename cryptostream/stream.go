// Package cryptostream exposes a seekable byte source that transparently
// decrypts an opaque, cache-backed file with an AES-128 counter-mode
// cipher, plus the Subfile window wrapper the track loader uses to hide
// a container's leading metadata bytes from the decoder.
package cryptostream

import (
	"crypto/aes"
	"crypto/cipher"
	"io"

	"lyra/lyraerr"
)

// Source is the opaque, cache-aware fetcher the encrypted stream reads
// from; on-disk cache storage itself is an external collaborator (spec
// §1), this is just the seekable byte interface it's expected to expose.
type Source interface {
	io.ReadSeeker
}

// Stream decrypts src on the fly with AES-128-CTR. The symmetric
// algorithm isn't named by spec §4.5 beyond "block cipher in counter
// mode keyed by 16 bytes"; AES-128 is the standard-library algorithm
// matching that key size. A nil or empty key makes Stream a pass-through,
// per spec ("absence of key → pass-through; garbled audio is the
// decoder's problem").
type Stream struct {
	src   Source
	block cipher.Block // nil when passthrough
	ctr   cipher.Stream
	pos   int64
}

// New wraps src, decrypting with key (must be 16 bytes, or empty/nil for
// passthrough).
func New(src Source, key []byte) (*Stream, error) {
	s := &Stream{src: src}
	if len(key) == 0 {
		return s, nil
	}
	if len(key) != 16 {
		return nil, lyraerr.New(lyraerr.InvalidArgument, "decryption key must be 16 bytes")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, lyraerr.Wrap(lyraerr.InvalidArgument, "build cipher", err)
	}
	s.block = block
	s.ctr = newCTRAt(block, 0)
	return s, nil
}

// Read implements io.Reader, decrypting in place.
func (s *Stream) Read(p []byte) (int, error) {
	n, err := s.src.Read(p)
	if n > 0 && s.ctr != nil {
		s.ctr.XORKeyStream(p[:n], p[:n])
	}
	s.pos += int64(n)
	return n, err
}

// Seek implements io.Seeker, repositioning both the underlying source
// and the cipher's counter so the keystream lines up with the new byte
// offset.
func (s *Stream) Seek(offset int64, whence int) (int64, error) {
	newPos, err := s.src.Seek(offset, whence)
	if err != nil {
		return 0, err
	}
	s.pos = newPos
	if s.block != nil {
		s.ctr = newCTRAt(s.block, newPos)
	}
	return newPos, nil
}

// newCTRAt builds a CTR stream positioned to decrypt bytes starting at
// absolute offset pos, by advancing the counter to the right block and
// discarding any partial-block keystream prefix.
func newCTRAt(block cipher.Block, pos int64) cipher.Stream {
	blockSize := int64(block.BlockSize())
	blockIdx := pos / blockSize
	blockOffset := pos % blockSize

	iv := make([]byte, blockSize)
	putCounter(iv, blockIdx)

	ctr := cipher.NewCTR(block, iv)
	if blockOffset > 0 {
		discard := make([]byte, blockOffset)
		ctr.XORKeyStream(discard, discard)
	}
	return ctr
}

// putCounter writes blockIdx big-endian into the trailing bytes of iv,
// leaving the leading bytes zero. Offsets are int64 bytes, so blockIdx
// stays below 2^59 at a 16-byte block size, far beyond any real track.
func putCounter(iv []byte, blockIdx int64) {
	for i := len(iv) - 1; i >= 0 && blockIdx > 0; i-- {
		iv[i] = byte(blockIdx)
		blockIdx >>= 8
	}
}
