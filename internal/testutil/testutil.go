// Package testutil provides an in-memory catalog database and archive fixtures for tests.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"market-archive/internal/database"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
)

// OpenTestDB returns a migrated in-memory sqlite catalog with foreign keys enforced.
func OpenTestDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := database.Initialize("sqlite", "file::memory:?_pragma=foreign_keys(1)", zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// Instrument describes one <Instrument> element of a fixture manifest.
type Instrument struct {
	Name        string
	StorageType string
	Levels      string
	IID         int
	Begin, End  string
}

// Exchange describes one <Exchange> element of a fixture manifest.
type Exchange struct {
	Name        string
	Location    string
	Instruments []Instrument
}

// ManifestXML renders a manifest in the layout the archive generator produces.
func ManifestXML(date string, exchanges ...Exchange) string {
	var b strings.Builder
	b.WriteString("<ManifestRoot>\n")
	fmt.Fprintf(&b, "  <Date>%s</Date>\n", date)
	b.WriteString("  <Exchanges>\n")
	for _, ex := range exchanges {
		fmt.Fprintf(&b, "    <Exchange Name=%q Location=%q>\n", ex.Name, ex.Location)
		for _, in := range ex.Instruments {
			b.WriteString("      <Instruments>\n")
			fmt.Fprintf(&b, "        <Instrument Name=%q StorageType=%q Levels=%q Iid=\"%d\" AvailableIntervalBegin=%q AvailableIntervalEnd=%q/>\n",
				in.Name, in.StorageType, in.Levels, in.IID, in.Begin, in.End)
			b.WriteString("      </Instruments>\n")
		}
		b.WriteString("    </Exchange>\n")
	}
	b.WriteString("  </Exchanges>\n")
	b.WriteString("</ManifestRoot>\n")
	return b.String()
}

// WriteFile writes content to root/rel, creating parent directories.
func WriteFile(t testing.TB, root, rel string, content []byte) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, content, 0o644))
	return path
}

// WriteManifest writes root/<year>/<month>/<day>/manifest.xml for an unpadded Y-M-D date.
func WriteManifest(t testing.TB, root, date, xml string) string {
	t.Helper()
	parts := strings.Split(date, "-")
	require.Len(t, parts, 3, "date must be Y-M-D")
	return WriteFile(t, root, strings.Join(append(parts, "manifest.xml"), "/"), []byte(xml))
}
