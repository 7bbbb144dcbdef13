package logging

import (
	"testing"
	"time"
)

func TestDropLedgerChargesRoomsAndThrottlesWarnings(t *testing.T) {
	var ledger dropLedger
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	if !ledger.record("r1", now, time.Second) {
		t.Fatalf("first drop should warn")
	}
	if ledger.record("r1", now.Add(500*time.Millisecond), time.Second) {
		t.Fatalf("drops inside the interval should not warn")
	}
	if ledger.record("", now.Add(600*time.Millisecond), time.Second) {
		t.Fatalf("drops inside the interval should not warn")
	}
	if !ledger.record("r2", now.Add(time.Second), time.Second) {
		t.Fatalf("drop after the interval should warn again")
	}

	total, byRoom := ledger.snapshot()
	if total != 4 {
		t.Fatalf("expected 4 drops, got %d", total)
	}
	if byRoom["r1"] != 2 || byRoom["r2"] != 1 || len(byRoom) != 2 {
		t.Fatalf("unexpected per-room drops %v", byRoom)
	}
	byRoom["r1"] = 99
	if _, again := ledger.snapshot(); again["r1"] != 2 {
		t.Fatalf("snapshot must be a copy")
	}
}
