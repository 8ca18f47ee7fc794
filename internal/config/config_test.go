package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Valid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
}

func TestParse_PartialFile(t *testing.T) {
	c, err := Parse([]byte(`
node:
  unique_id: static
  serial: 0x0102
sync:
  mode: s
  broadcast_threshold: 0x4000
radio:
  transport: loopback
`))
	if err != nil {
		t.Fatal(err)
	}
	if c.Node.UniqueID != "static" || c.Node.Serial != 0x0102 {
		t.Errorf("node = %+v", c.Node)
	}
	if c.Sync.Mode != "s" || c.Sync.BroadcastThreshold != 0x4000 {
		t.Errorf("sync = %+v", c.Sync)
	}
	// Не заданные ключи берутся из Default.
	if c.Sync.SchedulingPeriod != 54983 || c.Sync.LinkLatency != 35 || c.Sync.MaxHighStep != 1024 {
		t.Errorf("defaults not applied: %+v", c.Sync)
	}
	if c.Radio.Listen != ":20001" || !c.Diagnostics.Stdout {
		t.Errorf("radio/diag defaults: %+v %+v", c.Radio, c.Diagnostics)
	}
}

func TestParse_ZeroedKeysRestored(t *testing.T) {
	c, err := Parse([]byte("sync:\n  scheduling_period: 0\n  event_queue: 0\nlog:\n  level: \"\"\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Sync.SchedulingPeriod != 54983 || c.Sync.EventQueue != 64 || c.Log.Level != "info" {
		t.Errorf("got %+v %+v", c.Sync, c.Log)
	}
}

func TestParse_ZeroLinkLatencyKept(t *testing.T) {
	c, err := Parse([]byte("sync:\n  link_latency: 0\n"))
	if err != nil {
		t.Fatal(err)
	}
	if c.Sync.LinkLatency != 0 {
		t.Errorf("link_latency = %d, want 0", c.Sync.LinkLatency)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"mode", "sync:\n  mode: x\n"},
		{"skew order", "sync:\n  min_skew_period: 30000\n  initial_skew_period: 20000\n"},
		{"latency", "sync:\n  link_latency: -1\n"},
		{"high step", "sync:\n  max_high_step: 40000\n"},
		{"transport", "radio:\n  transport: tcp\n"},
		{"unique id", "node:\n  unique_id: mac\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestParse_BadYAML(t *testing.T) {
	if _, err := Parse([]byte("sync: [")); err == nil || errors.Is(err, ErrInvalid) {
		t.Errorf("err = %v, want parse error", err)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "randsync.yml")
	if err := os.WriteFile(path, []byte("sync:\n  mode: o\n  monitoring: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Sync.Mode != "o" || !c.Sync.Monitoring {
		t.Errorf("sync = %+v", c.Sync)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Error("missing file: want error")
	}
}
