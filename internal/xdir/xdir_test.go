package xdir

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/joydb/joydb/internal/xlog"
)

func TestRescanIgnoresJunkAndSorts(t *testing.T) {
	dir := t.TempDir()
	names := []string{
		"00000000000000000001.xlog",
		"00000000000000000005.xlog",
		"not-a-log.txt",
		"abc.xlog",
	}
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	d := Open(dir, xlog.KindXlog)
	if err := d.Rescan(); err != nil {
		t.Fatalf("Rescan: %v", err)
	}

	got := d.Signatures()
	want := []int64{1, 5}
	if len(got) != len(want) {
		t.Fatalf("Signatures() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Signatures()[%d] = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestFormatFilenameRoundTrips(t *testing.T) {
	cases := []int64{0, 1, 5, 1234567890, -42}
	for _, sig := range cases {
		full := FormatFilename("/var/lib/db", sig, xlog.KindXlog)
		base := filepath.Base(full)
		got, ok := ParseSignature(base, xlog.KindXlog)
		if !ok {
			t.Fatalf("ParseSignature(%q) failed to parse", base)
		}
		if got != sig {
			t.Errorf("round trip for %d produced %d (name %q)", sig, got, base)
		}
	}
}

func TestRescanReplacesListAtomically(t *testing.T) {
	dir := t.TempDir()
	d := Open(dir, xlog.KindXlog)

	os.WriteFile(filepath.Join(dir, FormatFilename(dir, 1, xlog.KindXlog)[len(dir)+1:]), nil, 0644)
	if err := d.Rescan(); err != nil {
		t.Fatalf("first Rescan: %v", err)
	}
	if sigs := d.Signatures(); len(sigs) != 1 || sigs[0] != 1 {
		t.Fatalf("after first rescan: %v", sigs)
	}

	os.WriteFile(filepath.Join(dir, FormatFilename(dir, 2, xlog.KindXlog)[len(dir)+1:]), nil, 0644)
	if err := d.Rescan(); err != nil {
		t.Fatalf("second Rescan: %v", err)
	}
	sigs := d.Signatures()
	if len(sigs) != 2 || sigs[0] != 1 || sigs[1] != 2 {
		t.Fatalf("after second rescan: %v", sigs)
	}
}
