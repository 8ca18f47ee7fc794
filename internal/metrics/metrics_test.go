package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNew_Registers(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.BroadcastsSent.Inc()
	m.SkewPeriod.Set(20000)

	if got := testutil.ToFloat64(m.BroadcastsSent); got != 1 {
		t.Errorf("BroadcastsSent = %v", got)
	}
	n, err := testutil.GatherAndCount(reg, BroadcastsSentN, SkewPeriodN)
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("зарегистрировано %d метрик, want 2", n)
	}
}

func TestNew_Unregistered(t *testing.T) {
	// без реестра можно создавать сколько угодно наборов
	a, b := New(nil), New(nil)
	a.FramesReceived.Inc()
	if testutil.ToFloat64(b.FramesReceived) != 0 {
		t.Error("наборы метрик не должны быть общими")
	}
}

func TestPeerDrift_Labels(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.PeerDrift.WithLabelValues("3").Set(12.5)
	m.PeerDrift.WithLabelValues("4").Set(-3)
	if got := testutil.ToFloat64(m.PeerDrift.WithLabelValues("3")); got != 12.5 {
		t.Errorf("drift(3) = %v", got)
	}
	if n, err := testutil.GatherAndCount(reg, PeerDriftN); err != nil || n != 2 {
		t.Errorf("серий %d, err %v; want 2", n, err)
	}
}
