package native

import (
	"bytes"
	"fmt"
	"unsafe"
)

// CopyCString copies the bytes of a NUL-terminated buffer, without the
// terminator, into Go memory. A nil pointer yields nil.
func CopyCString(p unsafe.Pointer) []byte {
	if p == nil {
		return nil
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	return out
}

// NewCString returns a fresh NUL-terminated copy of b. It fails if b
// already contains a NUL byte, since the native side would truncate there.
func NewCString(b []byte) ([]byte, error) {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		return nil, fmt.Errorf("nul byte found in provided data at position: %d", i)
	}
	out := make([]byte, len(b)+1)
	copy(out, b)
	return out, nil
}
