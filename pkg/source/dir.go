// A directory source serves values from files under a root directory: the key is a file name and
// the value is that file's contents. A bloom filter built over the file names at construction lets
// absent keys fail fast without touching the disk. The directory is treated as immutable for the
// source's lifetime; files added later are reported as not found.

package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bits-and-blooms/bloom/v3"
)

// ErrKeyNotFound is returned when no file exists for the requested key.
var ErrKeyNotFound = errors.New("key not found")

// filterFalsePositiveRate is the accepted chance that the filter sends a lookup for an absent key
// to the disk anyway.
const filterFalsePositiveRate = 0.01

// Dir is a Retriever backed by the files of a single directory.
type Dir struct {
	root   string
	filter *bloom.BloomFilter // Over the file names present at construction time.
}

// NewDir is the constructor for Dir. It scans the root directory once to build the key filter.
func NewDir(root string) (*Dir, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}
	filter := bloom.NewWithEstimates(uint(max(len(entries), 1)), filterFalsePositiveRate)
	for _, entry := range entries {
		if !entry.IsDir() {
			filter.AddString(entry.Name())
		}
	}
	return &Dir{root: root, filter: filter}, nil
}

// Retrieve loads the value for key. It is safe for concurrent invocation, so any sync mode of the
// cache may be used in front of it.
func (d *Dir) Retrieve(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// Keys name files directly under root; anything that could escape the directory is rejected.
	if key == "" || key == "." || key == ".." || strings.ContainsAny(key, `/\`) {
		return nil, fmt.Errorf("invalid key %q", key)
	}
	// A negative filter answer is definite; skip the disk entirely.
	if !d.filter.TestString(key) {
		return nil, ErrKeyNotFound
	}
	value, err := os.ReadFile(filepath.Join(d.root, key))
	if errors.Is(err, os.ErrNotExist) { // Filter false positive.
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read key %q: %w", key, err)
	}
	return value, nil
}
