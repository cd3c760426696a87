package manifest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"market-archive/internal/catalog"
	"market-archive/internal/models"
	"market-archive/internal/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

type rowCounts struct {
	dates, exchanges, instruments int64
}

func countRows(t *testing.T, db *gorm.DB) rowCounts {
	t.Helper()
	var c rowCounts
	require.NoError(t, db.Model(&models.Date{}).Count(&c.dates).Error)
	require.NoError(t, db.Model(&models.Exchange{}).Count(&c.exchanges).Error)
	require.NoError(t, db.Model(&models.Instrument{}).Count(&c.instruments).Error)
	return c
}

// writeArchive lays out n valid days starting 2023-12-30, each with two exchanges
// holding three instruments in total, plus a data blob next to every manifest.
func writeArchive(t *testing.T, root string, n int) {
	t.Helper()
	dates := []string{"2023-12-30", "2023-12-31", "2024-1-1", "2024-1-2", "2024-1-3", "2024-1-4"}
	require.LessOrEqual(t, n, len(dates))
	for i, date := range dates[:n] {
		testutil.WriteManifest(t, root, date, testutil.ManifestXML(date,
			testutil.Exchange{Name: "Binance.spot", Location: "london", Instruments: []testutil.Instrument{
				{Name: "BTCETH", StorageType: "raw", Levels: "[0, 1, 2, 3]", IID: i, Begin: "1:15", End: "18:00"},
			}},
			testutil.Exchange{Name: "Okex.spot", Location: "sidney", Instruments: []testutil.Instrument{
				{Name: "BTCETH", StorageType: "lite", Levels: "[1, 2]", IID: 100 + i, Begin: "0:5", End: "22:40"},
				{Name: "ETH_USDT", StorageType: "compressed", Levels: "[0]", IID: 200 + i, Begin: "7:30", End: "23:59"},
			}},
		))
		blob := append(splitDate(date), "BTCETH@Binance.spot.dat")
		testutil.WriteFile(t, root, strings.Join(blob, "/"), []byte("payload"))
	}
}

func splitDate(date string) []string {
	var y, m, d int
	_, _ = fmt.Sscanf(date, "%d-%d-%d", &y, &m, &d)
	return []string{fmt.Sprint(y), fmt.Sprint(m), fmt.Sprint(d)}
}

func TestIngestTreeIsIdempotent(t *testing.T) {
	db := testutil.OpenTestDB(t)
	walker := NewWalker(catalog.NewStore(db), zaptest.NewLogger(t))
	root := t.TempDir()
	writeArchive(t, root, 4)

	report, err := walker.IngestTree(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Ingested)
	assert.Empty(t, report.Failures)
	once := countRows(t, db)
	assert.Equal(t, rowCounts{dates: 4, exchanges: 8, instruments: 12}, once)

	report, err = walker.IngestTree(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Ingested)
	assert.Equal(t, once, countRows(t, db))
}

func TestIngestTreeIsolatesBadManifest(t *testing.T) {
	db := testutil.OpenTestDB(t)
	walker := NewWalker(catalog.NewStore(db), zaptest.NewLogger(t))
	root := t.TempDir()
	writeArchive(t, root, 3)
	// sorts between the valid days
	bad := testutil.WriteManifest(t, root, "2023-12-31x", "<ManifestRoot><Date>2023-12-31</Date><Exchanges>")

	report, err := walker.IngestTree(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Ingested)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, bad, report.Failures[0].Path)

	var malformed *MalformedManifestError
	assert.True(t, errors.As(report.Failures[0].Err, &malformed))
	assert.Equal(t, rowCounts{dates: 3, exchanges: 6, instruments: 9}, countRows(t, db))
}

func TestIngestTreeContinuesAfterStorageError(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, 2)
	store := &recordingStore{failKind: "instrument"}

	report, err := NewWalker(store, zaptest.NewLogger(t)).IngestTree(context.Background(), root)
	require.NoError(t, err)
	assert.Zero(t, report.Ingested)
	require.Len(t, report.Failures, 2)
	for _, f := range report.Failures {
		assert.Equal(t, "storage", failureReason(f.Err))
	}
}

func TestIngestTreeFailsOnMissingRoot(t *testing.T) {
	walker := NewWalker(&recordingStore{}, zaptest.NewLogger(t))

	_, err := walker.IngestTree(context.Background(), filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
}

func TestIngestTreeStopsWhenCancelled(t *testing.T) {
	root := t.TempDir()
	writeArchive(t, root, 2)
	store := &recordingStore{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewWalker(store, zaptest.NewLogger(t)).IngestTree(ctx, root)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.calls)
}
