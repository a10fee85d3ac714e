package pipeline

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sort"

	"github.com/golang/snappy"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/minio/highwayhash"
	"github.com/statgenlab/ibdends/ibs"
)

// cacheMagic versions the on-disk layout; bumped whenever the encoding
// below changes shape.
const cacheMagic = uint32(0x49424453) // "IBDS"

// highwayKey is a fixed 32-byte key for the fingerprint hash. It need not
// be secret: modelcache fingerprints are a cache-hit test, not an
// authentication boundary.
var highwayKey = [32]byte{
	0x69, 0x62, 0x64, 0x65, 0x6e, 0x64, 0x73, 0x2d,
	0x6d, 0x6f, 0x64, 0x65, 0x6c, 0x63, 0x61, 0x63,
	0x68, 0x65, 0x2d, 0x66, 0x69, 0x6e, 0x67, 0x65,
	0x72, 0x70, 0x72, 0x69, 0x6e, 0x74, 0x2d, 0x30,
}

// CacheKey identifies exactly the inputs that determine the IbsCounts and
// GlobalIbsProbs models for a chromosome: changing any field invalidates a
// cached entry.
type CacheKey struct {
	Chrom          string
	LocalHaps      int
	Seed           int64
	MaxLocalCDF    float64
	GlobalPos      int
	GlobalSegments int
	GlobalQuantile float64
	GlobalFactor   float64
	FrameChecksum  uint64
}

func (k CacheKey) fingerprint() [16]byte {
	var buf bytes.Buffer
	buf.WriteString(k.Chrom)
	buf.WriteByte(0)
	binary.Write(&buf, binary.LittleEndian, int64(k.LocalHaps))
	binary.Write(&buf, binary.LittleEndian, k.Seed)
	binary.Write(&buf, binary.LittleEndian, k.MaxLocalCDF)
	binary.Write(&buf, binary.LittleEndian, int64(k.GlobalPos))
	binary.Write(&buf, binary.LittleEndian, int64(k.GlobalSegments))
	binary.Write(&buf, binary.LittleEndian, k.GlobalQuantile)
	binary.Write(&buf, binary.LittleEndian, k.GlobalFactor)
	binary.Write(&buf, binary.LittleEndian, k.FrameChecksum)
	return highwayhash.Sum128(buf.Bytes(), highwayKey[:])
}

// Models is the pair of cacheable, immutable per-chromosome models. Fwd's
// reverse counterpart and the LengthProbs built from both are cheap enough
// to rebuild on every run and are not persisted.
type Models struct {
	Fwd    *ibs.Counts
	Global *ibs.Global
}

func encodeInt32Slice(buf *bytes.Buffer, s []int32) {
	binary.Write(buf, binary.LittleEndian, int64(len(s)))
	binary.Write(buf, binary.LittleEndian, s)
}

func decodeInt32Slice(r *bytes.Reader) ([]int32, error) {
	var n int64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]int32, n)
	if err := binary.Read(r, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeIntSlice(buf *bytes.Buffer, s []int) {
	binary.Write(buf, binary.LittleEndian, int64(len(s)))
	for _, v := range s {
		binary.Write(buf, binary.LittleEndian, int64(v))
	}
}

func decodeIntSlice(r *bytes.Reader) ([]int, error) {
	var n int64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]int, n)
	for i := range out {
		var v int64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return nil, err
		}
		out[i] = int(v)
	}
	return out, nil
}

func encodeFloat64Slice(buf *bytes.Buffer, s []float64) {
	binary.Write(buf, binary.LittleEndian, int64(len(s)))
	binary.Write(buf, binary.LittleEndian, s)
}

func decodeFloat64Slice(r *bytes.Reader) ([]float64, error) {
	var n int64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	out := make([]float64, n)
	if err := binary.Read(r, binary.LittleEndian, out); err != nil {
		return nil, err
	}
	return out, nil
}

// SaveModels writes models to path, snappy-compressed, fingerprinted with
// key. Any write failure is logged and otherwise ignored: the cache is a
// performance optimization, never a correctness dependency.
func SaveModels(ctx context.Context, path string, key CacheKey, m *Models) {
	var payload bytes.Buffer
	binary.Write(&payload, binary.LittleEndian, int64(m.Fwd.M()))
	binary.Write(&payload, binary.LittleEndian, int64(m.Fwd.N()))
	encodeInt32Slice(&payload, m.Fwd.Buf())
	encodeIntSlice(&payload, m.Fwd.Offsets())
	encodeFloat64Slice(&payload, m.Global.Lengths())

	compressed := snappy.Encode(nil, payload.Bytes())

	f, err := file.Create(ctx, path)
	if err != nil {
		log.Error.Printf("modelcache: skipping cache write to %s: %v", path, err)
		return
	}
	defer f.Close(ctx) // nolint: errcheck

	w := f.Writer(ctx)
	fp := key.fingerprint()
	var header bytes.Buffer
	binary.Write(&header, binary.LittleEndian, cacheMagic)
	header.Write(fp[:])
	if _, err := w.Write(header.Bytes()); err != nil {
		log.Error.Printf("modelcache: skipping cache write to %s: %v", path, err)
		return
	}
	if _, err := w.Write(compressed); err != nil {
		log.Error.Printf("modelcache: skipping cache write to %s: %v", path, err)
	}
}

// LoadModels reads path and returns the cached Models if the file exists,
// decompresses cleanly, its fingerprint matches key, and the decoded tables
// are consistent (offsets start at 0, never decrease, and end at the length
// of the counts buffer; pooled lengths are sorted). Any other outcome is a
// miss, reported as ok=false with no error: a corrupt or stale cache entry
// is never fatal. The payload carries no checksum of its own, so a
// corruption that still decodes to consistent tables is not detected.
func LoadModels(ctx context.Context, path string, key CacheKey) (m *Models, ok bool) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, false
	}
	defer f.Close(ctx) // nolint: errcheck

	raw, err := io.ReadAll(f.Reader(ctx))
	if err != nil || len(raw) < 4+16 {
		return nil, false
	}
	magic := binary.LittleEndian.Uint32(raw[:4])
	if magic != cacheMagic {
		return nil, false
	}
	wantFP := key.fingerprint()
	if !bytes.Equal(raw[4:4+16], wantFP[:]) {
		return nil, false
	}

	payload, err := snappy.Decode(nil, raw[4+16:])
	if err != nil {
		return nil, false
	}
	r := bytes.NewReader(payload)

	var mRows, n int64
	if err := binary.Read(r, binary.LittleEndian, &mRows); err != nil {
		return nil, false
	}
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, false
	}
	buf, err := decodeInt32Slice(r)
	if err != nil {
		return nil, false
	}
	offsets, err := decodeIntSlice(r)
	if err != nil {
		return nil, false
	}
	lengths, err := decodeFloat64Slice(r)
	if err != nil {
		return nil, false
	}
	if len(offsets) != int(mRows)+1 || offsets[0] != 0 || offsets[mRows] != len(buf) {
		return nil, false
	}
	for i := 1; i < len(offsets); i++ {
		if offsets[i] < offsets[i-1] {
			return nil, false
		}
	}
	if !sort.Float64sAreSorted(lengths) {
		return nil, false
	}

	fwd := ibs.FromCache(int(mRows), int(n), buf, offsets)
	global := ibs.GlobalFromCache(lengths)
	return &Models{Fwd: fwd, Global: global}, true
}

// CachePath returns the default cache file path for chrom under dir.
func CachePath(dir, chrom string) string {
	return fmt.Sprintf("%s/ibdends-%s.cache", dir, chrom)
}
