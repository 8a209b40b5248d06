package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/dshills/docindex-mcp/pkg/types"
)

// hashBlockSize bounds the read buffer, so memory does not grow with the file
const hashBlockSize = 8 * 1024

// HashFile returns the lowercase hex SHA-256 of the file's bytes
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("%w: %s", types.ErrNotFound, path)
		}
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	h := sha256.New()
	buf := make([]byte, hashBlockSize)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", path, err)
		}
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
