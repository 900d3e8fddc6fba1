package token

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"lyra/lyraerr"
)

// suffixLen is the fixed width of a hash-cash suffix per spec §4.3 step 2.
const suffixLen = 16

// maxHashCashIterations bounds the brute-force search so a pathological
// (or adversarial) challenge can't hang the caller forever; exceeding it
// is treated as "unsolvable" exactly like a solver-side timeout.
const maxHashCashIterations = 1 << 24

// HashCashSolver finds a suffix such that hash(ctx=∅, prefix, suffix) has
// at least length trailing zero bits. Returns a FailedPrecondition error
// if no suffix is found within the iteration budget (modelled as a
// timeout per spec §4.3 step 2).
type HashCashSolver func(ctx context.Context, prefix []byte, length int) ([suffixLen]byte, error)

// SolveSHA256 is the default HashCashSolver. The exact hash function used
// by the real challenge is an external, undocumented detail (spec §9 open
// question); SHA-256 is the documented default this module is tested
// against.
func SolveSHA256(ctx context.Context, prefix []byte, length int) ([suffixLen]byte, error) {
	var suffix [suffixLen]byte
	buf := make([]byte, len(prefix)+suffixLen)
	copy(buf, prefix)

	for i := 0; i < maxHashCashIterations; i++ {
		encodeCounter(suffix[:], uint64(i))
		copy(buf[len(prefix):], suffix[:])

		select {
		case <-ctx.Done():
			return suffix, lyraerr.Wrap(lyraerr.FailedPrecondition, "hash-cash solve cancelled", ctx.Err())
		default:
		}

		sum := sha256.Sum256(buf)
		if trailingZeroBits(sum[:]) >= length {
			return suffix, nil
		}
	}
	return suffix, lyraerr.New(lyraerr.FailedPrecondition, "hash-cash challenge unsolvable within iteration budget")
}

// encodeCounter writes a little-endian counter into the low bytes of a
// 16-byte suffix buffer, leaving the high bytes zero. This keeps the
// search deterministic and exhaustive over the counter's range.
func encodeCounter(dst []byte, counter uint64) {
	for i := 0; i < len(dst); i++ {
		dst[i] = 0
	}
	for i := 0; i < 8 && i < len(dst); i++ {
		dst[i] = byte(counter >> (8 * i))
	}
}

// trailingZeroBits counts zero bits from the end of data (last byte
// first, least-significant bit of each byte first).
func trailingZeroBits(data []byte) int {
	count := 0
	for i := len(data) - 1; i >= 0; i-- {
		b := data[i]
		if b == 0 {
			count += 8
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if b&(1<<bit) != 0 {
				return count
			}
			count++
		}
	}
	return count
}

// encodeSuffix renders a solved suffix as the upper-case hex string the
// wire protocol expects (32 hex characters for a 16-byte suffix).
func encodeSuffix(suffix [suffixLen]byte) string {
	return strings.ToUpper(hex.EncodeToString(suffix[:]))
}
