package main

import (
	"errors"
	"flag"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJoinFloatsParseFloatsRoundTrip(t *testing.T) {
	xs := []float64{0.1, 0.5, 0.9}
	got, err := parseFloats(joinFloats(xs))
	require.NoError(t, err)
	assert.Equal(t, xs, got)
}

func TestParseFloatsRejectsGarbage(t *testing.T) {
	_, err := parseFloats("0.1,nope,0.9")
	assert.Error(t, err)
}

func TestCheckUnknownFlagsAcceptsKnownAndDashHelp(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()

	os.Args = []string{"ibdends", "-vcf=in.vcf", "-min-maf", "0.05", "-help"}
	assert.NoError(t, checkUnknownFlags())
}

func TestCheckUnknownFlagsRejectsUnknownFlag(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()

	os.Args = []string{"ibdends", "-vcfpath=in.vcf"}
	err := checkUnknownFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown flag")
}

func TestCheckUnknownFlagsSuggestsNearMiss(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()

	os.Args = []string{"ibdends", "-chrm=chr1"}
	err := checkUnknownFlags()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean -chrom")
}

func TestCheckUnknownFlagsIgnoresNonFlagArgs(t *testing.T) {
	old := os.Args
	defer func() { os.Args = old }()

	os.Args = []string{"ibdends", "positional-arg"}
	assert.NoError(t, checkUnknownFlags())
}

// TestErrorLineFormat locks in the one-line "ERROR: <message>" diagnostic
// spec.md §7 requires on the program's single recovery point, independent of
// whatever grailbio/base/log would otherwise have printed.
func TestErrorLineFormat(t *testing.T) {
	assert.Equal(t, "ERROR: boom\n", errorLine(errors.New("boom")))
}

func TestFlagDefaultsParse(t *testing.T) {
	// exercises the package-level flag.* declarations and their defaults
	// without touching os.Args, guarding against a bad default value
	// breaking flag registration itself.
	assert.NotNil(t, flag.Lookup("quantiles"))
	assert.NotNil(t, flag.Lookup("min-maf"))
}
