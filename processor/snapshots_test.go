package processor

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"quantflow/models"
)

func writeRawFile(t *testing.T, rawDir, dateStr, hour, coin, content string) {
	t.Helper()
	dir := filepath.Join(rawDir, "l2Book", dateStr, hour)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, coin+".json"), []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestNormalize(t *testing.T) {
	raw := models.RawL2Snapshot{
		Coin: "SOL",
		Time: 1700000000000,
		Levels: [][]models.RawLevel{
			{{Px: "99.95", Sz: "10.5", N: 3}, {Px: "99.90", Sz: "2", N: 1}},
			{{Px: "100.05", Sz: "8.25", N: 2}},
		},
	}

	snap := Normalize(raw)
	if snap.Coin != "SOL" {
		t.Fatalf("unexpected coin: %s", snap.Coin)
	}
	if !snap.Timestamp.Equal(time.UnixMilli(1700000000000).UTC()) {
		t.Fatalf("unexpected timestamp: %v", snap.Timestamp)
	}
	if len(snap.Bids) != 2 || len(snap.Asks) != 1 {
		t.Fatalf("unexpected level counts: %d bids, %d asks", len(snap.Bids), len(snap.Asks))
	}
	bid, _ := snap.BestBid()
	if bid.Price != 99.95 || bid.Size != 10.5 {
		t.Fatalf("unexpected best bid: %+v", bid)
	}
}

func TestNormalizeMissingSide(t *testing.T) {
	raw := models.RawL2Snapshot{
		Coin:   "SOL",
		Time:   1700000000000,
		Levels: [][]models.RawLevel{{{Px: "99.95", Sz: "10", N: 1}}},
	}

	snap := Normalize(raw)
	if len(snap.Asks) != 0 {
		t.Fatalf("expected empty ask side, got %d levels", len(snap.Asks))
	}
	if _, ok := snap.BestAsk(); ok {
		t.Fatal("best ask should be absent")
	}
}

func TestNormalizeUnparseableLevel(t *testing.T) {
	raw := models.RawL2Snapshot{
		Coin: "SOL",
		Time: 1700000000000,
		Levels: [][]models.RawLevel{
			{{Px: "not-a-number", Sz: "10", N: 1}, {Px: "99.90", Sz: "2", N: 1}},
			{{Px: "100.05", Sz: "8", N: 1}},
		},
	}

	snap := Normalize(raw)
	if len(snap.Bids) != 1 || snap.Bids[0].Price != 99.90 {
		t.Fatalf("bad level should be dropped, got %+v", snap.Bids)
	}
}

func TestLoadDayOrdersAcrossHours(t *testing.T) {
	rawDir := t.TempDir()

	// Hour 01 written as a JSON array, hour 00 as one document per line.
	writeRawFile(t, rawDir, "20260801", "01",
		"SOL", `[{"coin":"SOL","time":1700003600000,"levels":[[{"px":"101","sz":"1","n":1}],[{"px":"101.1","sz":"1","n":1}]]}]`)
	writeRawFile(t, rawDir, "20260801", "00", "SOL",
		`{"coin":"SOL","time":1700000000000,"levels":[[{"px":"100","sz":"1","n":1}],[{"px":"100.1","sz":"1","n":1}]]}
{"channel":"l2Book","data":{"coin":"SOL","time":1700000001000,"levels":[[{"px":"100.2","sz":"1","n":1}],[{"px":"100.3","sz":"1","n":1}]]}}
not json at all
`)

	snaps, err := NewProcessor(rawDir).LoadDay("SOL", "20260801")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(snaps) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(snaps))
	}
	for i := 1; i < len(snaps); i++ {
		if snaps[i].Timestamp.Before(snaps[i-1].Timestamp) {
			t.Fatalf("snapshots out of order at index %d", i)
		}
	}
	bid, _ := snaps[2].BestBid()
	if bid.Price != 101 {
		t.Fatalf("latest snapshot should come from hour 01, got bid %v", bid.Price)
	}
}

func TestLoadDayKeepsCrossedSnapshot(t *testing.T) {
	rawDir := t.TempDir()

	// Best bid above best ask. The snapshot is kept, not dropped.
	writeRawFile(t, rawDir, "20260801", "00",
		"SOL", `[{"coin":"SOL","time":1700000000000,"levels":[[{"px":"100.5","sz":"1","n":1}],[{"px":"100.4","sz":"1","n":1}]]}]`)

	snaps, err := NewProcessor(rawDir).LoadDay("SOL", "20260801")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(snaps))
	}
	if !snaps[0].Crossed() {
		t.Fatal("snapshot should report as crossed")
	}
}

func TestLoadDayMissing(t *testing.T) {
	snaps, err := NewProcessor(t.TempDir()).LoadDay("SOL", "20260801")
	if err != nil {
		t.Fatalf("missing day must not error: %v", err)
	}
	if len(snaps) != 0 {
		t.Fatalf("expected no snapshots, got %d", len(snaps))
	}
}
