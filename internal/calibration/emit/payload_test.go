package emit

import (
	"bytes"
	"math"
	"testing"

	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

func TestPayload_Decode(t *testing.T) {
	rec := types.Record{
		ObjectPath:    "TPC/Calib/MIPS",
		ValidityStart: 1200,
		ValidityEnd:   99999999999999,
		SlotStart:     1200,
		SlotEnd:       1300,
		EnoughData:    true,
	}
	rec.Stats[types.SideA] = types.Statistics{Entries: 150, Centroid: 50.5, StdDev: 3.25, Median: 50.1, Defined: true}
	rec.Stats[types.SideC] = types.UndefinedStatistics()

	data, err := EncodePayload(&rec)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}

	p, err := DecodePayload(data)
	if err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}

	if p.ValidityEnd != 99999999999999 {
		t.Errorf("expected validity end 99999999999999, got %d", p.ValidityEnd)
	}
	if p.SlotEnd != 1300 || !p.EnoughData {
		t.Errorf("unexpected slot metadata: %+v", p)
	}
	if p.Stats[types.SideA] != rec.Stats[types.SideA] {
		t.Errorf("expected side A %+v, got %+v", rec.Stats[types.SideA], p.Stats[types.SideA])
	}
	if p.Stats[types.SideC].Defined || !math.IsNaN(p.Stats[types.SideC].StdDev) {
		t.Errorf("expected undefined side C, got %+v", p.Stats[types.SideC])
	}
}

func TestPayload_Deterministic(t *testing.T) {
	rec := types.Record{ObjectPath: "TPC/Calib/MIPS", ValidityStart: 7}
	rec.Stats[types.SideA] = types.Statistics{Entries: 1, Centroid: 1, Defined: true}
	rec.Stats[types.SideC] = types.UndefinedStatistics()

	first, err := EncodePayload(&rec)
	if err != nil {
		t.Fatalf("EncodePayload: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := EncodePayload(&rec)
		if !bytes.Equal(first, again) {
			t.Fatal("payload encoding is not deterministic")
		}
	}
}

func TestPayload_Corrupt(t *testing.T) {
	if _, err := DecodePayload([]byte{0xff, 0xff, 0xff}); !errors.Is(err, errors.ErrCorruptRecord) {
		t.Errorf("expected corrupt record error, got %v", err)
	}
	if _, err := DecodePayload(nil); !errors.Is(err, errors.ErrCorruptRecord) {
		t.Errorf("expected corrupt record error for empty payload, got %v", err)
	}
}
