// Package hasher computes 64-bit xxHash digests of file contents for the
// optional content check.
package hasher

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/cespare/xxhash/v2"
	"github.com/paulschiretz/recall/pkg/pool"
)

const (
	readerSize = 1024 * 1024
	chunkSize  = 64 * 1024
)

var chunkPool = pool.NewFixedBuffer(chunkSize)

// ErrNotRegular is returned for pipes, sockets and devices, which are never
// opened since reading them can block indefinitely.
var ErrNotRegular = errors.New("not a regular file")

// HashFile streams the file at path through xxHash and returns the digest.
func HashFile(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", ErrNotRegular, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	sum, err := HashReader(f)
	if err != nil {
		return 0, fmt.Errorf("hash %s: %w", path, err)
	}
	return sum, nil
}

// HashReader digests everything r yields.
func HashReader(r io.Reader) (uint64, error) {
	buf := chunkPool.Get()
	defer chunkPool.Put(buf)

	d := xxhash.New()
	br := bufio.NewReaderSize(r, readerSize)
	for {
		n, err := br.Read(*buf)
		if n > 0 {
			d.Write((*buf)[:n])
		}
		if err == io.EOF {
			return d.Sum64(), nil
		}
		if err != nil {
			return 0, err
		}
	}
}
