package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMustRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	RecordSubmission("accepted")
	RecordSubmission("duplicate")
	RecordDelivery("delivered", 120*time.Millisecond)
	RecordDelivery("failed", 0)
	RecordFanout(42)
	UpdateQueueDepth(7)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	want := map[string]bool{
		"postroom_submissions_total":        false,
		"postroom_deliveries_total":         false,
		"postroom_delivery_latency_seconds": false,
		"postroom_fanout_size":              false,
		"postroom_queue_depth":              false,
	}
	for _, mf := range families {
		if _, ok := want[mf.GetName()]; ok {
			want[mf.GetName()] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("metric %s not gathered", name)
		}
	}
}

func TestMustRegisterTwicePanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustRegister(reg)

	defer func() {
		if r := recover(); r == nil {
			t.Error("MustRegister() on the same registry twice did not panic")
		}
	}()
	MustRegister(reg)
}
