package frame

import "testing"

func TestChecksumStableAndSensitive(t *testing.T) {
	f1 := testFrame(t)
	f2 := testFrame(t)
	if Checksum(f1) != Checksum(f2) {
		t.Fatalf("checksum not stable across identical frames")
	}

	alleles := append([]uint8(nil), f1.alleles...)
	alleles[0] ^= 1
	f3, err := New(f1.chrom, f1.markers, f1.morgan, f1.nHaps, alleles)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if Checksum(f1) == Checksum(f3) {
		t.Fatalf("checksum did not change when allele matrix changed")
	}
}
