package helper

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
)

// SumReader computes the SHA-256 of everything read from r and returns the
// hex digest plus the byte count. Both the finalize and verification paths
// hash through this single implementation.
func SumReader(r io.Reader) (string, int64, error) {
	hash := sha256.New()
	size, err := io.Copy(hash, r)
	if err != nil {
		return "", 0, err
	}
	return fmt.Sprintf("%x", hash.Sum(nil)), size, nil
}

// CalculateSHA256 calculates the SHA256 hash and size of a file.
func CalculateSHA256(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()

	return SumReader(file)
}
