package testing

import (
	"context"
	"math/rand"
	"sync"

	"github.com/xtxerr/tfcalib/internal/calibration/types"
	"github.com/xtxerr/tfcalib/internal/errors"
)

// MIPSample returns a side-A sample inside the default cut window.
func MIPSample(ts int64, value float64) types.Sample {
	return types.Sample{
		Timestamp:    ts,
		Momentum:     0.5,
		ClusterCount: 100,
		Value:        value,
		Side:         types.SideA,
	}
}

// SampleStream generates reproducible sample batches. Roughly a quarter of
// the samples fall outside the default momentum window.
type SampleStream struct {
	rng *rand.Rand
}

// NewSampleStream creates a stream seeded with seed.
func NewSampleStream(seed int64) *SampleStream {
	return &SampleStream{rng: rand.New(rand.NewSource(seed))}
}

// Batch returns n samples with timestamps in [from, to).
func (s *SampleStream) Batch(from, to int64, n int) []types.Sample {
	samples := make([]types.Sample, n)
	for i := range samples {
		momentum := 0.4 + s.rng.Float64()*0.2
		if s.rng.Intn(4) == 0 {
			momentum = 1 + s.rng.Float64()
		}
		samples[i] = types.Sample{
			Timestamp:    from + s.rng.Int63n(to-from),
			Momentum:     momentum,
			ClusterCount: int32(60 + s.rng.Intn(100)),
			Value:        50 + s.rng.NormFloat64()*5,
			Side:         types.Side(s.rng.Intn(types.NumSides)),
		}
	}
	return samples
}

// MemoryStore is an in-memory record store keyed like the real one.
// Failures makes the next Put calls fail with ErrStoreUnavailable.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[types.RecordKey]types.Record
	order    []types.RecordKey
	puts     int
	failures int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[types.RecordKey]types.Record)}
}

// Put stores rec, replacing any record with the same key.
func (m *MemoryStore) Put(_ context.Context, rec types.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	if m.failures > 0 {
		m.failures--
		return errors.ErrStoreUnavailable
	}

	key := rec.Key()
	if _, ok := m.records[key]; !ok {
		m.order = append(m.order, key)
	}
	m.records[key] = rec
	return nil
}

// FailNext makes the next n Put calls fail.
func (m *MemoryStore) FailNext(n int) {
	m.mu.Lock()
	m.failures = n
	m.mu.Unlock()
}

// Records returns the stored records in first-insert order.
func (m *MemoryStore) Records() []types.Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Record, len(m.order))
	for i, key := range m.order {
		out[i] = m.records[key]
	}
	return out
}

// Puts returns the number of Put calls, failed ones included.
func (m *MemoryStore) Puts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.puts
}
