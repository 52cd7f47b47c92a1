package protocol

import "errors"

var (
	ErrCOBSOverflow = errors.New("cobs: destination too small")
	ErrCOBSFraming  = errors.New("cobs: framing error")
)

// COBSEncode encodes src into dst using consistent overhead byte stuffing.
// The result contains no zero bytes and does not include the delimiter.
// dst must hold at least len(src) + len(src)/254 + 1 bytes.
func COBSEncode(dst, src []byte) (int, error) {
	if len(dst) < COBSMaxEncodedLen(len(src)) {
		return 0, ErrCOBSOverflow
	}

	codePos := 0
	code := byte(1)
	out := 1
	for _, b := range src {
		if b != 0 {
			dst[out] = b
			out++
			code++
		}
		if b == 0 || code == 0xFF {
			dst[codePos] = code
			code = 1
			codePos = out
			out++
		}
	}
	dst[codePos] = code
	return out, nil
}

// COBSDecode decodes one frame (without delimiter) from src into dst.
func COBSDecode(dst, src []byte) (int, error) {
	in, out := 0, 0
	for in < len(src) {
		code := src[in]
		if code == 0 {
			return 0, ErrCOBSFraming
		}
		in++
		end := in + int(code) - 1
		if end > len(src) {
			return 0, ErrCOBSFraming
		}
		for ; in < end; in++ {
			if src[in] == 0 {
				return 0, ErrCOBSFraming
			}
			if out >= len(dst) {
				return 0, ErrCOBSOverflow
			}
			dst[out] = src[in]
			out++
		}
		// A full block carries no implicit zero; neither does the last block
		if code != 0xFF && in < len(src) {
			if out >= len(dst) {
				return 0, ErrCOBSOverflow
			}
			dst[out] = 0
			out++
		}
	}
	return out, nil
}

// COBSMaxEncodedLen returns the worst-case encoded size for n input bytes
func COBSMaxEncodedLen(n int) int {
	return n + n/254 + 1
}
