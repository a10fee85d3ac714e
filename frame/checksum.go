package frame

import (
	"encoding/binary"

	"blainsmith.com/go/seahash"
)

// Checksum returns a content fingerprint of f: every marker's base
// position and the full allele matrix, folded through
// SeaHash. It is logged once at startup as a diagnostic ("which panel did
// this run actually build its models from") and used by modelcache as part
// of a cache entry's fingerprint, so a changed input panel never silently
// reuses a stale cache.
func Checksum(f Frame) uint64 {
	h := seahash.New()
	var buf [8]byte
	m := f.NMarkers()
	for i := 0; i < m; i++ {
		binary.LittleEndian.PutUint64(buf[:], uint64(int64(f.BasePos(i))))
		h.Write(buf[:])
	}
	for i := 0; i < m; i++ {
		n := f.NHaps()
		row := make([]byte, n)
		for j := 0; j < n; j++ {
			row[j] = byte(f.Allele(i, j))
		}
		h.Write(row)
	}
	return h.Sum64()
}
