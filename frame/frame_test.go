package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testFrame(t *testing.T) *MarkerFrame {
	markers := []Marker{{100, 2}, {200, 2}, {300, 2}, {400, 2}, {500, 2}}
	morgan := []float64{0, 0.01, 0.02, 0.03, 0.04}
	// 4 haplotypes, alleles chosen so marker 2 (index 2) distinguishes hap 0/1.
	alleles := []uint8{
		0, 0, 0, 0,
		0, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 0, 0,
		0, 0, 0, 0,
	}
	mf, err := New("chr1", markers, morgan, 4, alleles)
	assert.NoError(t, err)
	return mf
}

func TestMarkerFrameAccessors(t *testing.T) {
	mf := testFrame(t)
	assert.Equal(t, 5, mf.NMarkers())
	assert.Equal(t, 4, mf.NHaps())
	assert.Equal(t, 300, mf.BasePos(2))
	assert.Equal(t, 1, mf.Allele(2, 1))
	assert.Equal(t, 0, mf.Allele(2, 0))
}

func TestReverseDuality(t *testing.T) {
	mf := testFrame(t)
	rev, err := Reverse(mf)
	assert.NoError(t, err)
	m := mf.NMarkers()
	for i := 0; i < m; i++ {
		assert.Equal(t, -mf.BasePos(m-1-i), rev.BasePos(i))
		assert.InDelta(t, -mf.Morgan(m-1-i), rev.Morgan(i), 1e-12)
		for h := 0; h < mf.NHaps(); h++ {
			assert.Equal(t, mf.Allele(m-1-i, h), rev.Allele(i, h))
		}
	}
	assert.True(t, rev.Reversed())
	assert.False(t, mf.Reversed())
}

func TestReverseRefusesDoubleWrap(t *testing.T) {
	mf := testFrame(t)
	rev, err := Reverse(mf)
	assert.NoError(t, err)
	_, err = Reverse(rev)
	assert.Error(t, err)
}

func TestMorganFloorEnforced(t *testing.T) {
	markers := []Marker{{1, 2}, {2, 2}, {3, 2}}
	morgan := []float64{0, 0, 0} // degenerate: would violate floor without enforcement
	alleles := make([]uint8, 3*2)
	mf, err := New("chr1", markers, morgan, 2, alleles)
	assert.NoError(t, err)
	assert.True(t, mf.Morgan(1) >= mf.Morgan(0)+morganFloor)
	assert.True(t, mf.Morgan(2) >= mf.Morgan(1)+morganFloor)
}

func TestRejectsNonIncreasingBasePos(t *testing.T) {
	markers := []Marker{{100, 2}, {100, 2}}
	_, err := New("chr1", markers, []float64{0, 1}, 2, make([]uint8, 4))
	assert.Error(t, err)
}

func TestRejectsTooFewHaps(t *testing.T) {
	markers := []Marker{{100, 2}}
	_, err := New("chr1", markers, []float64{0}, 1, make([]uint8, 1))
	assert.Error(t, err)
}
