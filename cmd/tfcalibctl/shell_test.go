package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/c-bata/go-prompt"

	"github.com/xtxerr/tfcalib/internal/calibration/emit"
	"github.com/xtxerr/tfcalib/internal/calibration/store"
	"github.com/xtxerr/tfcalib/internal/calibration/types"
)

func newTestShell(t *testing.T) (*Shell, *bytes.Buffer) {
	t.Helper()

	db, err := store.Open(store.Options{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, start := range []int64{0, 100} {
		rec := types.Record{
			ObjectPath:    "TPC/Calib/MIPS",
			ValidityStart: start,
			ValidityEnd:   99999999999999,
			SlotStart:     start,
			SlotEnd:       start + 100,
			EnoughData:    true,
			Stats: [types.NumSides]types.Statistics{
				{Entries: 10, Centroid: 50, StdDev: 2, Median: 50, Defined: true},
				types.UndefinedStatistics(),
			},
		}
		payload, err := emit.EncodePayload(&rec)
		if err != nil {
			t.Fatalf("EncodePayload: %v", err)
		}
		rec.Payload = payload
		if err := db.Put(context.Background(), rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	var out bytes.Buffer
	return NewShell(db, &out, "TPC/Calib/MIPS"), &out
}

func TestShell_Count(t *testing.T) {
	sh, out := newTestShell(t)

	if sh.Execute("count") {
		t.Fatal("count should not exit")
	}
	if got := out.String(); got != "2 records\n" {
		t.Errorf("expected '2 records', got %q", got)
	}
}

func TestShell_List(t *testing.T) {
	sh, out := newTestShell(t)

	sh.Execute("list")
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 rows, got %d lines:\n%s", len(lines), out.String())
	}
	if !strings.HasPrefix(lines[1], "[0, 99999999999999)") {
		t.Errorf("unexpected first row: %s", lines[1])
	}

	out.Reset()
	sh.Execute("list TPC/Calib/Other")
	if !strings.Contains(out.String(), "no records for TPC/Calib/Other") {
		t.Errorf("unexpected output: %s", out.String())
	}
}

func TestShell_At(t *testing.T) {
	sh, out := newTestShell(t)

	sh.Execute("at TPC/Calib/MIPS 150")
	if !strings.Contains(out.String(), "[100, 200)") {
		t.Errorf("expected slot [100, 200), got:\n%s", out.String())
	}

	out.Reset()
	sh.Execute("at 50")
	if !strings.Contains(out.String(), "[0, 100)") {
		t.Errorf("expected slot [0, 100) on default path, got:\n%s", out.String())
	}

	out.Reset()
	sh.Execute("at TPC/Calib/MIPS -5")
	if !strings.Contains(out.String(), "record not found") {
		t.Errorf("expected not found error, got %q", out.String())
	}

	out.Reset()
	sh.Execute("at TPC/Calib/MIPS soon")
	if !strings.Contains(out.String(), "must be an integer") {
		t.Errorf("expected parse error, got %q", out.String())
	}
}

func TestShell_UnknownAndExit(t *testing.T) {
	sh, out := newTestShell(t)

	if sh.Execute("frobnicate") {
		t.Error("unknown command should not exit")
	}
	if !strings.Contains(out.String(), "unknown command") {
		t.Errorf("unexpected output: %q", out.String())
	}
	if sh.Execute("   ") {
		t.Error("blank line should not exit")
	}
	if !sh.Execute("exit") {
		t.Error("exit should exit")
	}
}

func TestShell_Complete(t *testing.T) {
	sh, _ := newTestShell(t)

	buf := prompt.NewBuffer()
	buf.InsertText("co", false, true)
	got := sh.Complete(*buf.Document())
	if len(got) != 1 || got[0].Text != "count" {
		t.Errorf("expected [count], got %v", got)
	}

	buf = prompt.NewBuffer()
	buf.InsertText("list TPC", false, true)
	if got := sh.Complete(*buf.Document()); got != nil {
		t.Errorf("expected no suggestions for arguments, got %v", got)
	}
}
