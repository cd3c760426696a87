// Package stream serves archive blobs as a lazy sequence of bounded chunks.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"market-archive/internal/metrics"
	"market-archive/internal/models"
)

const (
	MinChunkSize     = 4 * 1024   // exclusive
	MaxChunkSize     = 512 * 1024 // inclusive
	DefaultChunkSize = 32 * 1024
)

var (
	ErrNotFound         = errors.New("file not found")
	ErrInvalidChunkSize = fmt.Errorf("chunk size must be greater than %d and at most %d bytes", MinChunkSize, MaxChunkSize)
	ErrInvalidFilename  = errors.New("filename must be a single path component")
	errClosed           = errors.New("stream closed")
)

// NotFoundError reports a blob missing from its day directory.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string { return fmt.Sprintf("%s: %v", e.Path, ErrNotFound) }

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ReadError reports an I/O failure that ended a stream before the end of the file.
type ReadError struct {
	Path string
	Err  error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read %s: %v", e.Path, e.Err) }

func (e *ReadError) Unwrap() error { return e.Err }

// ChunkSize validates a requested chunk size. Zero selects DefaultChunkSize.
func ChunkSize(n int) (int, error) {
	if n == 0 {
		return DefaultChunkSize, nil
	}
	if n <= MinChunkSize || n > MaxChunkSize {
		return 0, ErrInvalidChunkSize
	}
	return n, nil
}

// Metadata describes a blob before any of it is read.
type Metadata struct {
	Size     int64
	Filename string
}

func (m Metadata) ContentLength() string { return strconv.FormatInt(m.Size, 10) }

// ContentDisposition renders an attachment header, switching to the extended
// filename* form for names that are not plain ASCII.
func (m Metadata) ContentDisposition() string {
	if v := mime.FormatMediaType("attachment", map[string]string{"filename": m.Filename}); v != "" {
		return v
	}
	return "attachment"
}

// Service resolves blobs below <root>/<year>/<month>/<day>.
type Service struct {
	root string
	open func(name string) (io.ReadCloser, error)
}

// Option configures a Service.
type Option func(*Service)

// WithOpener replaces os.Open as the way blob files are opened for reading.
func WithOpener(open func(name string) (io.ReadCloser, error)) Option {
	return func(s *Service) { s.open = open }
}

func NewService(root string, opts ...Option) *Service {
	s := &Service{
		root: root,
		open: func(name string) (io.ReadCloser, error) { return os.Open(name) },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the blob location for date and filename.
func (s *Service) Path(date models.CivilDate, filename string) (string, error) {
	if !validFilename(filename) {
		return "", ErrInvalidFilename
	}
	return filepath.Join(s.root,
		strconv.Itoa(date.Year),
		strconv.Itoa(int(date.Month)),
		strconv.Itoa(date.Day),
		filename,
	), nil
}

func validFilename(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, `/\`+"\x00") {
		return false
	}
	return filepath.Base(name) == name
}

// Open checks that the blob exists and returns a stream over it together with its
// metadata. The file itself is opened by the first call to Next.
func (s *Service) Open(date models.CivilDate, filename string, chunkSize int) (*Stream, Metadata, error) {
	size, err := ChunkSize(chunkSize)
	if err != nil {
		return nil, Metadata{}, err
	}
	path, err := s.Path(date, filename)
	if err != nil {
		return nil, Metadata{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Metadata{}, &NotFoundError{Path: path}
		}
		return nil, Metadata{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, Metadata{}, &NotFoundError{Path: path}
	}

	meta := Metadata{Size: info.Size(), Filename: filename}
	return &Stream{path: path, chunkSize: size, open: s.open}, meta, nil
}

// Stream yields a blob in chunks. It holds at most one open file and buffers only
// the chunk being returned. It is not safe for concurrent use.
type Stream struct {
	path      string
	chunkSize int
	open      func(string) (io.ReadCloser, error)

	file   io.ReadCloser
	done   bool
	closed bool
}

// Next returns the next chunk. The final chunk may be shorter than the chunk size.
// It returns io.EOF once the file is exhausted, a *ReadError if reading fails, or
// the context error if ctx is done. The file is released on every non-nil error.
func (s *Stream) Next(ctx context.Context) ([]byte, error) {
	if s.closed {
		return nil, errClosed
	}
	if s.done {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		s.Close()
		return nil, err
	}
	if s.file == nil {
		f, err := s.open(s.path)
		if err != nil {
			return nil, s.fail(err)
		}
		s.file = f
		metrics.ActiveStreams.Inc()
	}

	buf := make([]byte, s.chunkSize)
	n, err := io.ReadFull(s.file, buf)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		s.release()
		s.done = true
		if n == 0 {
			return nil, io.EOF
		}
	default:
		return nil, s.fail(err)
	}
	metrics.StreamBytes.Add(float64(n))
	return buf[:n], nil
}

// All ranges over the remaining chunks. The stream is closed when the loop ends,
// including on break. A failure is yielded once as the final element.
func (s *Stream) All(ctx context.Context) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		defer s.Close()
		for {
			chunk, err := s.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(chunk, err) || err != nil {
				return
			}
		}
	}
}

// Close releases the file. It is safe to call more than once.
func (s *Stream) Close() error {
	s.closed = true
	return s.release()
}

func (s *Stream) release() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	metrics.ActiveStreams.Dec()
	return err
}

func (s *Stream) fail(err error) error {
	s.release()
	s.closed = true
	metrics.StreamErrors.Inc()
	return &ReadError{Path: s.path, Err: err}
}
