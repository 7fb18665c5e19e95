//go:build !linux

package confine

import (
	"bytes"
	"runtime"
	"strconv"
)

// threadID identifies the goroutine running the caller. The worker
// goroutine is locked to its thread, so for it the two coincide.
func threadID() int64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i > 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
