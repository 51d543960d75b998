package recorder

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
)

// HashArtifact computes the hex-encoded SHA-256 of size bytes of r.
// An empty artifact hashes like an empty byte string.
func HashArtifact(r io.ReaderAt, size int64) (string, error) {
	h := sha256.New()
	if r != nil && size > 0 {
		n, err := io.Copy(h, io.NewSectionReader(r, 0, size))
		if err != nil {
			return "", fmt.Errorf("failed to hash artifact: %w", err)
		}
		if n != size {
			return "", fmt.Errorf("failed to hash artifact: read %d of %d bytes", n, size)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashBytes is HashArtifact for in-memory content.
func HashBytes(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
