// Package telemetry exports engine counters in the Prometheus text
// exposition format.
package telemetry

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/xtxerr/tfcalib/internal/calibration/emit"
	"github.com/xtxerr/tfcalib/internal/calibration/slot"
)

const namespace = "tfcalib"

// Snapshot holds the counters of one engine at a point in time.
type Snapshot struct {
	Window  slot.Stats
	Emitter emit.Stats
}

// Families converts a snapshot into metric families ordered by name.
func Families(s Snapshot) []*dto.MetricFamily {
	w, e := s.Window, s.Emitter

	return []*dto.MetricFamily{
		gauge("active_slots", "Open slots in the window.", float64(w.ActiveSlots)),
		counter("emit_failures_total", "Failed record deliveries.", float64(e.DeliveryFailures)),
		gauge("pending_records", "Records awaiting delivery.", float64(e.Pending)),
		counter("records_built_total", "Records built from finalized slots.", float64(e.RecordsBuilt)),
		counter("records_emitted_total", "Records accepted by the store.", float64(e.RecordsDelivered)),
		counter("samples_received_total", "Samples passed to the window.", float64(w.SamplesReceived)),
		{
			Name: proto.String(namespace + "_samples_total"),
			Help: proto.String("Samples seen by the window, by outcome."),
			Type: dto.MetricType_COUNTER.Enum(),
			Metric: []*dto.Metric{
				resultMetric("accepted", w.SamplesAccepted),
				resultMetric("invalid", w.SamplesInvalid),
				resultMetric("rejected", w.SamplesRejected),
				resultMetric("stale", w.SamplesStale),
			},
		},
		counter("slots_created_total", "Slots opened.", float64(w.SlotsCreated)),
		counter("slots_finalized_total", "Slots finalized.", float64(w.SlotsFinalized)),
	}
}

func counter(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_COUNTER.Enum(),
		Metric: []*dto.Metric{{Counter: &dto.Counter{Value: proto.Float64(v)}}},
	}
}

func gauge(name, help string, v float64) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(namespace + "_" + name),
		Help:   proto.String(help),
		Type:   dto.MetricType_GAUGE.Enum(),
		Metric: []*dto.Metric{{Gauge: &dto.Gauge{Value: proto.Float64(v)}}},
	}
}

func resultMetric(result string, v int64) *dto.Metric {
	return &dto.Metric{
		Label:   []*dto.LabelPair{{Name: proto.String("result"), Value: proto.String(result)}},
		Counter: &dto.Counter{Value: proto.Float64(float64(v))},
	}
}

// Write encodes the snapshot as Prometheus text to w.
func Write(w io.Writer, s Snapshot) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range Families(s) {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile writes the snapshot to path. "-" writes to stdout.
func WriteFile(path string, s Snapshot) error {
	if path == "-" {
		return Write(os.Stdout, s)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create metrics file: %w", err)
	}
	if err := Write(f, s); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
