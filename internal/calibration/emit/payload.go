package emit

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

// Payload field names.
const (
	fieldObjectPath    = "object_path"
	fieldValidityStart = "validity_start"
	fieldValidityEnd   = "validity_end"
	fieldSlotStart     = "slot_start"
	fieldSlotEnd       = "slot_end"
	fieldEnoughData    = "enough_data"
	fieldSides         = "sides"

	fieldEntries  = "entries"
	fieldCentroid = "centroid"
	fieldStdDev   = "stddev"
	fieldMedian   = "median"
)

// Payload is the decoded form of a record payload.
type Payload struct {
	ObjectPath    string
	ValidityStart int64
	ValidityEnd   int64
	SlotStart     int64
	SlotEnd       int64
	EnoughData    bool
	Stats         [types.NumSides]types.Statistics
}

// EncodePayload serializes the statistics of rec into a deterministic
// protobuf Struct. Undefined values are encoded as null so that a
// consumer cannot mistake a starved side for a zero measurement.
func EncodePayload(rec *types.Record) ([]byte, error) {
	sides := make(map[string]*structpb.Value, types.NumSides)
	for _, side := range types.Sides() {
		sides[side.String()] = structpb.NewStructValue(encodeStatistics(rec.Stats[side]))
	}

	payload := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldObjectPath:    structpb.NewStringValue(rec.ObjectPath),
		fieldValidityStart: structpb.NewNumberValue(float64(rec.ValidityStart)),
		fieldValidityEnd:   structpb.NewNumberValue(float64(rec.ValidityEnd)),
		fieldSlotStart:     structpb.NewNumberValue(float64(rec.SlotStart)),
		fieldSlotEnd:       structpb.NewNumberValue(float64(rec.SlotEnd)),
		fieldEnoughData:    structpb.NewBoolValue(rec.EnoughData),
		fieldSides:         structpb.NewStructValue(&structpb.Struct{Fields: sides}),
	}}

	data, err := proto.MarshalOptions{Deterministic: true}.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return data, nil
}

func encodeStatistics(s types.Statistics) *structpb.Struct {
	fields := map[string]*structpb.Value{
		fieldEntries: structpb.NewNumberValue(float64(s.Entries)),
	}

	if !s.Defined {
		fields[fieldCentroid] = structpb.NewNullValue()
		fields[fieldStdDev] = structpb.NewNullValue()
		fields[fieldMedian] = structpb.NewNullValue()
		return &structpb.Struct{Fields: fields}
	}

	fields[fieldCentroid] = numberOrNull(s.Centroid)
	fields[fieldStdDev] = numberOrNull(s.StdDev)
	fields[fieldMedian] = numberOrNull(s.Median)
	return &structpb.Struct{Fields: fields}
}

// numberOrNull guards against non-finite values, which JSON-style
// number values cannot carry.
func numberOrNull(v float64) *structpb.Value {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return structpb.NewNullValue()
	}
	return structpb.NewNumberValue(v)
}

// DecodePayload parses a payload produced by EncodePayload.
func DecodePayload(data []byte) (*Payload, error) {
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %v: %w", err, errors.ErrCorruptRecord)
	}

	fields := st.GetFields()
	p := &Payload{
		ObjectPath:    fields[fieldObjectPath].GetStringValue(),
		ValidityStart: int64(fields[fieldValidityStart].GetNumberValue()),
		ValidityEnd:   int64(fields[fieldValidityEnd].GetNumberValue()),
		SlotStart:     int64(fields[fieldSlotStart].GetNumberValue()),
		SlotEnd:       int64(fields[fieldSlotEnd].GetNumberValue()),
		EnoughData:    fields[fieldEnoughData].GetBoolValue(),
	}
	if p.ObjectPath == "" {
		return nil, fmt.Errorf("payload without %s: %w", fieldObjectPath, errors.ErrCorruptRecord)
	}

	sides := fields[fieldSides].GetStructValue().GetFields()
	for _, side := range types.Sides() {
		sv, ok := sides[side.String()]
		if !ok {
			return nil, fmt.Errorf("payload without side %s: %w", side, errors.ErrCorruptRecord)
		}
		p.Stats[side] = decodeStatistics(sv.GetStructValue())
	}

	return p, nil
}

func decodeStatistics(st *structpb.Struct) types.Statistics {
	fields := st.GetFields()

	centroid, ok := fields[fieldCentroid].GetKind().(*structpb.Value_NumberValue)
	if !ok {
		s := types.UndefinedStatistics()
		s.Entries = uint64(fields[fieldEntries].GetNumberValue())
		return s
	}

	return types.Statistics{
		Entries:  uint64(fields[fieldEntries].GetNumberValue()),
		Centroid: centroid.NumberValue,
		StdDev:   numberOrNaN(fields[fieldStdDev]),
		Median:   numberOrNaN(fields[fieldMedian]),
		Defined:  true,
	}
}

func numberOrNaN(v *structpb.Value) float64 {
	if n, ok := v.GetKind().(*structpb.Value_NumberValue); ok {
		return n.NumberValue
	}
	return math.NaN()
}
