package checksum

import (
	"crypto/md5" //nolint:gosec // ENEX media hashes are defined as MD5
	"crypto/sha256"
	"encoding/hex"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// MediaHash returns the hex-encoded MD5 digest of data, the form the
// container format uses to link <en-media> elements to their resources.
func MediaHash(data []byte) string {
	h := md5.Sum(data) //nolint:gosec
	return hex.EncodeToString(h[:])
}
