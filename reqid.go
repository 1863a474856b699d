package wgcore

import (
	"crypto/rand"
	"encoding/base32"
)

var reqIDEncoding = base32.NewEncoding("0123456789abcdefghijklmnopqrstuv").WithPadding(base32.NoPadding)

// NewRequestID returns a short, URL-safe, collision-resistant identifier
// suitable for tagging a task or connection for log correlation. wgcore
// does not otherwise need identifiers to be orderable or embed a
// timestamp, so a flat random id is sufficient.
func NewRequestID() string {
	var buf [10]byte
	if _, err := rand.Read(buf[:]); err != nil {
		panic(err)
	}
	return reqIDEncoding.EncodeToString(buf[:])
}
