package fileutils

import (
	"encoding/hex"
	"errors"
	"io"
	"os"

	"github.com/cespare/xxhash"
)

// ComputeHash returns the xxhash of the reader, used for cheap change
// detection (config watching, modified-file checks). Content addressing uses
// cas.HashReader instead.
// It will read the entire contents of the reader. It will not close the reader.
func ComputeHash(r io.Reader) (uint64, error) {
	hash := xxhash.New()
	_, err := io.Copy(hash, r)
	if err != nil {
		return 0, err
	}
	return hash.Sum64(), nil
}

// ComputeFileHash returns the xxhash of the file at path.
func ComputeFileHash(path string) (uint64, error) {
	var err error
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}

	defer func() {
		closeErr := file.Close()
		err = errors.Join(err, closeErr)
	}()

	var hash uint64
	hash, err = ComputeHash(file)

	return hash, err
}

// ShortDigest returns a 16-character hex digest of s, used for shortening
// over-long virtual paths and for naming checkpoint files.
func ShortDigest(s string) string {
	sum := make([]byte, 8)
	h := xxhash.Sum64String(s)
	for i := 7; i >= 0; i-- {
		sum[i] = byte(h)
		h >>= 8
	}
	return hex.EncodeToString(sum)
}
