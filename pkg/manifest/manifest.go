// Package manifest records the outcome of every task of a backup run as
// one JSON object per line, compressed, inside the generation it describes.
package manifest

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"

	"github.com/paulschiretz/recall/pkg/pathsync"
	"github.com/paulschiretz/recall/pkg/util"
)

// BaseName is the manifest file name without its compression extension.
const BaseName = ".recall.manifest.jsonl"

// Format selects the manifest compression.
type Format string

const (
	Zstd Format = "zstd"
	Gzip Format = "gzip"
	None Format = "none"
)

var formatToString = map[Format]string{
	Zstd: "zstd",
	Gzip: "gzip",
	None: "none",
}

var stringToFormat = util.InvertMap(formatToString)

func (f Format) String() string {
	if s, ok := formatToString[f]; ok {
		return s
	}
	return fmt.Sprintf("unknown_manifest_format(%s)", string(f))
}

// ParseFormat parses "zstd", "gzip" or "none".
func ParseFormat(s string) (Format, error) {
	if f, ok := stringToFormat[strings.ToLower(strings.TrimSpace(s))]; ok {
		return f, nil
	}
	return "", fmt.Errorf("invalid manifest format: %q. Must be 'zstd', 'gzip', or 'none'", s)
}

// Extension is the file suffix appended to BaseName.
func (f Format) Extension() string {
	switch f {
	case Zstd:
		return ".zst"
	case Gzip:
		return ".gz"
	default:
		return ""
	}
}

// FileName is the manifest file name for the format.
func (f Format) FileName() string {
	return BaseName + f.Extension()
}

// Entry is one manifest line.
type Entry struct {
	Path   string `json:"path"`
	Action string `json:"action"`
	Ref    string `json:"ref,omitempty"`
	Target string `json:"target,omitempty"`
	Bytes  int64  `json:"bytes,omitempty"`
	Error  string `json:"error,omitempty"`
}

// FromOutcome converts an executor outcome to a manifest entry.
func FromOutcome(o pathsync.Outcome) Entry {
	e := Entry{
		Path:   util.NormalizePath(o.Task.RelPath),
		Action: o.Action.Kind.String(),
		Ref:    o.Action.Ref,
		Target: o.Action.Target,
		Bytes:  o.Bytes,
	}
	if o.Err != nil {
		e.Error = o.Err.Error()
	}
	return e
}

// Writer is a pathsync.Recorder that streams entries to a compressed file.
// It is safe for concurrent use.
type Writer struct {
	mu         sync.Mutex
	path       string
	file       *os.File
	buf        *bufio.Writer
	compressor io.WriteCloser
	enc        *json.Encoder
	count      int
	err        error
}

// Create opens a new manifest in dir. None is rejected: callers skip the
// manifest entirely in that case.
func Create(dir string, format Format) (w *Writer, err error) {
	if format == None {
		return nil, errors.New("manifest format 'none' has nothing to write")
	}
	path := filepath.Join(dir, format.FileName())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, util.UserWritableFilePerms)
	if err != nil {
		return nil, fmt.Errorf("failed to create manifest %s: %w", path, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(path)
		}
	}()

	buf := bufio.NewWriterSize(f, 256*1024)
	var comp io.WriteCloser
	switch format {
	case Zstd:
		zw, zerr := zstd.NewWriter(buf, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zerr != nil {
			return nil, fmt.Errorf("failed to create zstd writer: %w", zerr)
		}
		comp = zw
	case Gzip:
		comp = pgzip.NewWriter(buf)
	default:
		return nil, fmt.Errorf("unsupported manifest format: %s", format)
	}

	return &Writer{
		path:       path,
		file:       f,
		buf:        buf,
		compressor: comp,
		enc:        json.NewEncoder(comp),
	}, nil
}

// Path is the manifest file path.
func (w *Writer) Path() string { return w.path }

// Record implements pathsync.Recorder. The first write error is kept and
// reported by Close; later records are dropped.
func (w *Writer) Record(o pathsync.Outcome) {
	e := FromOutcome(o)
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return
	}
	if err := w.enc.Encode(e); err != nil {
		w.err = fmt.Errorf("failed to write manifest entry for %s: %w", e.Path, err)
		return
	}
	w.count++
}

// Count is the number of entries written so far.
func (w *Writer) Count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.count
}

// Close flushes the compressor, the buffer and the file, in that order.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.err
	if cerr := w.compressor.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("manifest compressor close failed: %w", cerr)
	}
	if ferr := w.buf.Flush(); ferr != nil && err == nil {
		err = fmt.Errorf("manifest buffer flush failed: %w", ferr)
	}
	if ferr := w.file.Close(); ferr != nil && err == nil {
		err = fmt.Errorf("manifest file close failed: %w", ferr)
	}
	return err
}

// Find returns the manifest file present in a generation directory.
func Find(genDir string) (string, error) {
	for _, f := range []Format{Zstd, Gzip} {
		p := filepath.Join(genDir, f.FileName())
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fmt.Errorf("no manifest in %s: %w", genDir, os.ErrNotExist)
}

// Read decodes a manifest, picking the decompressor from the extension.
func Read(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open manifest: %w", err)
	}
	defer f.Close()

	var r io.Reader
	switch filepath.Ext(path) {
	case Zstd.Extension():
		zr, err := zstd.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd reader: %w", err)
		}
		defer zr.Close()
		r = zr
	case Gzip.Extension():
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	default:
		r = f
	}

	var entries []Entry
	dec := json.NewDecoder(r)
	for {
		var e Entry
		if err := dec.Decode(&e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return entries, fmt.Errorf("failed to decode manifest %s: %w", path, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
