package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"
	"time"

	"market-archive/internal/models"
	"market-archive/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jan5 = models.CivilDate{Year: 2024, Month: time.January, Day: 5}

func writeBlob(t *testing.T, root string, size int) []byte {
	t.Helper()
	data := make([]byte, size)
	rand.New(rand.NewSource(int64(size))).Read(data)
	testutil.WriteFile(t, root, "2024/1/5/BTCETH@Binance.spot.dat", data)
	return data
}

func drain(t *testing.T, s *Stream) [][]byte {
	t.Helper()
	var chunks [][]byte
	for chunk, err := range s.All(context.Background()) {
		require.NoError(t, err)
		chunks = append(chunks, chunk)
	}
	return chunks
}

func TestChunkSizeBounds(t *testing.T) {
	tests := []struct {
		in   int
		want int
		ok   bool
	}{
		{in: 0, want: DefaultChunkSize, ok: true},
		{in: 4096, ok: false},
		{in: 4097, want: 4097, ok: true},
		{in: 524288, want: 524288, ok: true},
		{in: 524289, ok: false},
		{in: -1, ok: false},
	}
	for _, tt := range tests {
		got, err := ChunkSize(tt.in)
		if !tt.ok {
			assert.ErrorIs(t, err, ErrInvalidChunkSize, "chunk %d", tt.in)
			continue
		}
		require.NoError(t, err, "chunk %d", tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStreamChunking(t *testing.T) {
	const chunk = 5000
	for _, size := range []int{1, chunk - 1, chunk, chunk + 1, 3 * chunk, 3*chunk + 17} {
		root := t.TempDir()
		data := writeBlob(t, root, size)

		s, meta, err := NewService(root).Open(jan5, "BTCETH@Binance.spot.dat", chunk)
		require.NoError(t, err)
		assert.EqualValues(t, size, meta.Size)

		chunks := drain(t, s)
		wantCount := (size + chunk - 1) / chunk
		require.Len(t, chunks, wantCount, "size %d", size)
		for _, c := range chunks[:wantCount-1] {
			assert.Len(t, c, chunk)
		}
		last := size % chunk
		if last == 0 {
			last = chunk
		}
		assert.Len(t, chunks[wantCount-1], last)
		assert.Equal(t, data, bytes.Join(chunks, nil))
	}
}

func TestStreamEmptyFile(t *testing.T) {
	root := t.TempDir()
	writeBlob(t, root, 0)

	s, meta, err := NewService(root).Open(jan5, "BTCETH@Binance.spot.dat", 0)
	require.NoError(t, err)
	assert.Zero(t, meta.Size)
	assert.Equal(t, "0", meta.ContentLength())
	assert.Empty(t, drain(t, s))
}

func TestOpenReportsMissingFile(t *testing.T) {
	root := t.TempDir()
	writeBlob(t, root, 10)
	svc := NewService(root)

	_, _, err := svc.Open(jan5, "ETH_USDT@Kucoin.spot.dat", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = svc.Open(models.CivilDate{Year: 2024, Month: time.January, Day: 6}, "BTCETH@Binance.spot.dat", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	// a directory is not a blob
	require.NoError(t, os.MkdirAll(filepath.Join(root, "2024", "1", "5", "dir.dat"), 0o755))
	_, _, err = svc.Open(jan5, "dir.dat", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOpenRejectsTraversal(t *testing.T) {
	root := t.TempDir()
	testutil.WriteFile(t, root, "secret.txt", []byte("nope"))
	svc := NewService(root)

	for _, name := range []string{"", ".", "..", "../../../secret.txt", "a/b.dat", `a\b.dat`, "a\x00.dat"} {
		_, _, err := svc.Open(jan5, name, 0)
		assert.ErrorIs(t, err, ErrInvalidFilename, "filename %q", name)
	}
}

func TestOpenRejectsChunkSize(t *testing.T) {
	root := t.TempDir()
	writeBlob(t, root, 10)

	_, _, err := NewService(root).Open(jan5, "BTCETH@Binance.spot.dat", 4096)
	assert.ErrorIs(t, err, ErrInvalidChunkSize)
}

func TestMetadataHeaders(t *testing.T) {
	meta := Metadata{Size: 1234, Filename: "BTCETH@Binance.spot.dat"}
	assert.Equal(t, "1234", meta.ContentLength())
	assert.Equal(t, `attachment; filename="BTCETH@Binance.spot.dat"`, meta.ContentDisposition())

	assert.Equal(t, "attachment; filename=plain.dat", Metadata{Filename: "plain.dat"}.ContentDisposition())
	assert.Equal(t, "attachment; filename*=utf-8''caf%C3%A9.dat", Metadata{Filename: "café.dat"}.ContentDisposition())
}

// trackingFile counts open handles and can fail after a number of bytes.
type trackingFile struct {
	r       io.Reader
	failAt  int
	read    int
	onClose func()
}

func (f *trackingFile) Read(p []byte) (int, error) {
	if f.failAt >= 0 && f.read >= f.failAt {
		return 0, errors.New("input/output error")
	}
	if f.failAt >= 0 && len(p) > f.failAt-f.read {
		p = p[:f.failAt-f.read]
	}
	n, err := f.r.Read(p)
	f.read += n
	return n, err
}

func (f *trackingFile) Close() error {
	f.onClose()
	return nil
}

func trackedService(t *testing.T, size, failAt int) (*Service, *int) {
	t.Helper()
	root := t.TempDir()
	data := writeBlob(t, root, size)
	open := 0
	svc := NewService(root, WithOpener(func(string) (io.ReadCloser, error) {
		open++
		return &trackingFile{r: bytes.NewReader(data), failAt: failAt, onClose: func() { open-- }}, nil
	}))
	return svc, &open
}

func TestStreamOpensLazilyAndReleasesOnEarlyExit(t *testing.T) {
	svc, open := trackedService(t, 20000, -1)

	s, _, err := svc.Open(jan5, "BTCETH@Binance.spot.dat", 5000)
	require.NoError(t, err)
	assert.Zero(t, *open, "nothing is opened before the first chunk")

	for chunk, err := range s.All(context.Background()) {
		require.NoError(t, err)
		require.Len(t, chunk, 5000)
		assert.Equal(t, 1, *open)
		break
	}
	assert.Zero(t, *open, "breaking out of the loop releases the file")

	_, err = s.Next(context.Background())
	assert.Error(t, err)
}

func TestStreamReleasesOnCancel(t *testing.T) {
	svc, open := trackedService(t, 20000, -1)
	s, _, err := svc.Open(jan5, "BTCETH@Binance.spot.dat", 5000)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	_, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, *open)

	cancel()
	_, err = s.Next(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, *open)
}

func TestStreamSurfacesReadError(t *testing.T) {
	svc, open := trackedService(t, 20000, 7000)
	s, _, err := svc.Open(jan5, "BTCETH@Binance.spot.dat", 5000)
	require.NoError(t, err)

	var (
		chunks  int
		lastErr error
	)
	for _, err := range s.All(context.Background()) {
		if err != nil {
			lastErr = err
			break
		}
		chunks++
	}
	assert.Equal(t, 1, chunks)

	var readErr *ReadError
	require.True(t, errors.As(lastErr, &readErr), "got %v", lastErr)
	assert.Contains(t, readErr.Err.Error(), "input/output error")
	assert.Zero(t, *open)
}

func TestCloseIsIdempotent(t *testing.T) {
	svc, open := trackedService(t, 100, -1)
	s, _, err := svc.Open(jan5, "BTCETH@Binance.spot.dat", 0)
	require.NoError(t, err)

	_, err = s.Next(context.Background())
	require.NoError(t, err)
	assert.NoError(t, s.Close())
	assert.NoError(t, s.Close())
	assert.Zero(t, *open)
}
