package checksum

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Fingerprint is the hex MD5 of script text. A leading UTF-8 byte order mark
// is ignored so re-saving a file with or without one does not change it.
func Fingerprint(b []byte) string {
	sum := md5.Sum(bytes.TrimPrefix(b, utf8BOM))
	return hex.EncodeToString(sum[:])
}
