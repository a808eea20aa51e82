package journal

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

// Batch encoding format (binary, little-endian):
// - CurrentTime (8 bytes)
// - Sample count (4 bytes)
// - Per sample, fixed width:
//   - Timestamp (8 bytes)
//   - Momentum (8 bytes, float64)
//   - ClusterCount (4 bytes)
//   - Value (8 bytes, float64)
//   - Side (1 byte)

const (
	batchHeaderSize = 12
	sampleSize      = 29
)

// encodeBatch encodes one batch into its binary form.
func encodeBatch(b *types.Batch) []byte {
	buf := make([]byte, 0, batchHeaderSize+len(b.Samples)*sampleSize)

	buf = binary.LittleEndian.AppendUint64(buf, uint64(b.CurrentTime))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.Samples)))

	for i := range b.Samples {
		s := &b.Samples[i]
		buf = binary.LittleEndian.AppendUint64(buf, uint64(s.Timestamp))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(s.Momentum))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(s.ClusterCount))
		buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(s.Value))
		buf = append(buf, byte(s.Side))
	}

	return buf
}

// decodeBatch decodes a record payload into a batch.
func decodeBatch(data []byte) (types.Batch, error) {
	if len(data) < batchHeaderSize {
		return types.Batch{}, fmt.Errorf("batch header: %d bytes: %w", len(data), errors.ErrCorruptRecord)
	}

	b := types.Batch{
		CurrentTime: int64(binary.LittleEndian.Uint64(data[0:8])),
	}
	count := int(binary.LittleEndian.Uint32(data[8:12]))

	if want := batchHeaderSize + count*sampleSize; len(data) != want {
		return types.Batch{}, fmt.Errorf("batch of %d samples: expected %d bytes, got %d: %w",
			count, want, len(data), errors.ErrCorruptRecord)
	}
	if count == 0 {
		return b, nil
	}

	b.Samples = make([]types.Sample, count)
	offset := batchHeaderSize

	for i := range b.Samples {
		p := data[offset : offset+sampleSize]
		b.Samples[i] = types.Sample{
			Timestamp:    int64(binary.LittleEndian.Uint64(p[0:8])),
			Momentum:     math.Float64frombits(binary.LittleEndian.Uint64(p[8:16])),
			ClusterCount: int32(binary.LittleEndian.Uint32(p[16:20])),
			Value:        math.Float64frombits(binary.LittleEndian.Uint64(p[20:28])),
			Side:         types.Side(p[28]),
		}
		offset += sampleSize
	}

	return b, nil
}
