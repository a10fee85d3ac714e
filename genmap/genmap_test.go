package genmap

import (
	"bytes"
	"compress/gzip"
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
)

func writeMap(t *testing.T, name, body string) string {
	dir, cleanup := testutil.TempDir(t, "", "")
	t.Cleanup(cleanup)
	path := filepath.Join(dir, name)
	assert.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestReadParsesFourColumnPlinkMap(t *testing.T) {
	path := writeMap(t, "chr1.map", "chr1 m0 0.0 100\nchr1 m1 1.0 200\nchr2 mX 5.0 900\n")
	m, err := Read(vcontext.Background(), path, "chr1")
	assert.NoError(t, err)
	assert.Equal(t, 100, m.FirstPos())
	assert.Equal(t, 200, m.LastPos())
}

func TestReadRejectsMalformedRow(t *testing.T) {
	path := writeMap(t, "chr1.map", "chr1 m0 0.0 100\nchr1 m1 notanumber 200\n")
	_, err := Read(vcontext.Background(), path, "chr1")
	assert.Error(t, err)
}

func TestReadRejectsNonIncreasingPosition(t *testing.T) {
	path := writeMap(t, "chr1.map", "chr1 m0 0.0 200\nchr1 m1 1.0 100\n")
	_, err := Read(vcontext.Background(), path, "chr1")
	assert.Error(t, err)
}

func TestReadAcceptsGzippedMap(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	t.Cleanup(cleanup)
	path := filepath.Join(dir, "chr1.map.gz")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte("chr1 m0 0.0 100\nchr1 m1 1.0 200\n"))
	assert.NoError(t, err)
	assert.NoError(t, gz.Close())
	assert.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))

	m, err := Read(vcontext.Background(), path, "chr1")
	assert.NoError(t, err)
	assert.Equal(t, 100, m.FirstPos())
}

func testMap() *Map {
	return &Map{
		chrom:   "chr1",
		basePos: []int{100, 200, 300, 500},
		cm:      []float64{0, 1, 2, 4},
	}
}

func TestPosToMorganInterpolates(t *testing.T) {
	m := testMap()
	assert.InDelta(t, 0.0, m.PosToMorgan(100), 1e-12)
	assert.InDelta(t, 0.01, m.PosToMorgan(200), 1e-12)
	assert.InDelta(t, 0.015, m.PosToMorgan(250), 1e-12) // halfway between 1cM and 2cM
	assert.InDelta(t, 0.04, m.PosToMorgan(500), 1e-12)
}

func TestPosToMorganClampsAtEdges(t *testing.T) {
	m := testMap()
	assert.InDelta(t, m.PosToMorgan(100), m.PosToMorgan(50), 1e-12)
	assert.InDelta(t, m.PosToMorgan(500), m.PosToMorgan(600), 1e-12)
}

func TestCMFloorEnforced(t *testing.T) {
	m := &Map{chrom: "chr1", basePos: []int{1, 2, 3}, cm: nil}
	// simulate the floor-enforcement loop Read performs while scanning.
	cm := []float64{0, 0, 0}
	for i := 1; i < len(cm); i++ {
		if cm[i] < cm[i-1]+cmFloor {
			cm[i] = cm[i-1] + cmFloor
		}
	}
	m.cm = cm
	assert.True(t, m.cm[1] >= m.cm[0]+cmFloor)
	assert.True(t, m.cm[2] >= m.cm[1]+cmFloor)
}
