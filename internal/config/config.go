package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/saveriob/RandSync/internal/syncmsg"
)

// ErrInvalid — значение конфига вне допустимых пределов.
var ErrInvalid = errors.New("invalid config")

// Config — конфигурация узла randsync.
type Config struct {
	Node        NodeConfig        `yaml:"node"`
	Radio       RadioConfig       `yaml:"radio"`
	Console     ConsoleConfig     `yaml:"console"`
	Sync        SyncConfig        `yaml:"sync"`
	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Log         LogConfig         `yaml:"log"`
}

// NodeConfig — адрес узла и источник уникального номера.
type NodeConfig struct {
	Address    uint16 `yaml:"address"`     // 0 — из уникального номера
	UniqueID   string `yaml:"unique_id"`   // auto, onewire, machine-id, random, static
	Serial     uint16 `yaml:"serial"`      // для unique_id: static
	OneWireBus string `yaml:"onewire_bus"` // имя шины periph; пусто — первая зарегистрированная
}

// RadioConfig — широковещательный транспорт.
type RadioConfig struct {
	Transport string `yaml:"transport"` // udp, loopback
	Listen    string `yaml:"listen"`
	Broadcast string `yaml:"broadcast"`
}

// ConsoleConfig — откуда читать однобайтовые команды.
type ConsoleConfig struct {
	Device string `yaml:"device"`
	Baud   int    `yaml:"baud"`
	Stdin  bool   `yaml:"stdin"`
}

// SyncConfig — параметры протокола. Периоды и задержки в тиках 32768 Гц.
type SyncConfig struct {
	Mode               string `yaml:"mode"`
	Monitoring         bool   `yaml:"monitoring"`
	SchedulingPeriod   uint32 `yaml:"scheduling_period"`
	LinkLatency        int16  `yaml:"link_latency"`
	BroadcastThreshold uint16 `yaml:"broadcast_threshold"`
	InitialSkewPeriod  uint16 `yaml:"initial_skew_period"`
	SkewFirstFire      uint32 `yaml:"skew_first_fire"`
	MinSkewPeriod      uint16 `yaml:"min_skew_period"`
	MaxSkewPeriod      uint16 `yaml:"max_skew_period"`
	MaxHighStep        int    `yaml:"max_high_step"`
	EventQueue         int    `yaml:"event_queue"`
}

// DiagnosticsConfig — куда отдавать записи RUN/MON/SKE.
type DiagnosticsConfig struct {
	Stdout    bool   `yaml:"stdout"`
	WebSocket string `yaml:"websocket"` // адрес HTTP-сервера, поток на /diag
}

// MetricsConfig — HTTP-адрес для /metrics; пусто — выключено.
type MetricsConfig struct {
	Listen string `yaml:"listen"`
}

// LogConfig — уровень журнала.
type LogConfig struct {
	Level string `yaml:"level"`
	Quiet bool   `yaml:"quiet"`
}

// Default возвращает конфиг по умолчанию
func Default() *Config {
	return &Config{
		Node: NodeConfig{
			UniqueID: "auto",
		},
		Radio: RadioConfig{
			Transport: "udp",
			Listen:    ":20001",
			Broadcast: "255.255.255.255:20001",
		},
		Console: ConsoleConfig{
			Baud: 115200,
		},
		Sync: SyncConfig{
			Mode:               "n",
			SchedulingPeriod:   54983,
			LinkLatency:        35,
			BroadcastThreshold: 0x004F,
			InitialSkewPeriod:  20000,
			SkewFirstFire:      35000,
			MinSkewPeriod:      200,
			MaxSkewPeriod:      65535,
			MaxHighStep:        1024,
			EventQueue:         64,
		},
		Diagnostics: DiagnosticsConfig{
			Stdout: true,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load читает конфиг из YAML, подставляет значения по умолчанию и проверяет его.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse разбирает YAML. Отсутствующие ключи берутся из Default.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	applyDefaults(c)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// applyDefaults заполняет поля, явно обнулённые в файле.
func applyDefaults(c *Config) {
	d := Default()
	if c.Node.UniqueID == "" {
		c.Node.UniqueID = d.Node.UniqueID
	}
	if c.Radio.Transport == "" {
		c.Radio.Transport = d.Radio.Transport
	}
	if c.Radio.Listen == "" {
		c.Radio.Listen = d.Radio.Listen
	}
	if c.Radio.Broadcast == "" {
		c.Radio.Broadcast = d.Radio.Broadcast
	}
	if c.Console.Baud == 0 {
		c.Console.Baud = d.Console.Baud
	}
	if c.Sync.Mode == "" {
		c.Sync.Mode = d.Sync.Mode
	}
	if c.Sync.SchedulingPeriod == 0 {
		c.Sync.SchedulingPeriod = d.Sync.SchedulingPeriod
	}
	if c.Sync.BroadcastThreshold == 0 {
		c.Sync.BroadcastThreshold = d.Sync.BroadcastThreshold
	}
	if c.Sync.InitialSkewPeriod == 0 {
		c.Sync.InitialSkewPeriod = d.Sync.InitialSkewPeriod
	}
	if c.Sync.SkewFirstFire == 0 {
		c.Sync.SkewFirstFire = d.Sync.SkewFirstFire
	}
	if c.Sync.MinSkewPeriod == 0 {
		c.Sync.MinSkewPeriod = d.Sync.MinSkewPeriod
	}
	if c.Sync.MaxSkewPeriod == 0 {
		c.Sync.MaxSkewPeriod = d.Sync.MaxSkewPeriod
	}
	if c.Sync.MaxHighStep == 0 {
		c.Sync.MaxHighStep = d.Sync.MaxHighStep
	}
	if c.Sync.EventQueue == 0 {
		c.Sync.EventQueue = d.Sync.EventQueue
	}
	if c.Log.Level == "" {
		c.Log.Level = d.Log.Level
	}
}

// Validate проверяет согласованность значений.
func (c *Config) Validate() error {
	s := c.Sync
	if _, err := syncmsg.ParseMode(s.Mode); err != nil {
		return fmt.Errorf("%w: sync.mode: %v", ErrInvalid, err)
	}
	if s.MinSkewPeriod > s.InitialSkewPeriod || s.InitialSkewPeriod > s.MaxSkewPeriod {
		return fmt.Errorf("%w: need min_skew_period <= initial_skew_period <= max_skew_period, got %d, %d, %d",
			ErrInvalid, s.MinSkewPeriod, s.InitialSkewPeriod, s.MaxSkewPeriod)
	}
	if s.LinkLatency < 0 {
		return fmt.Errorf("%w: sync.link_latency %d < 0", ErrInvalid, s.LinkLatency)
	}
	if s.MaxHighStep < 0 || s.MaxHighStep > 32767 {
		return fmt.Errorf("%w: sync.max_high_step %d out of [0, 32767]", ErrInvalid, s.MaxHighStep)
	}
	if s.EventQueue < 0 {
		return fmt.Errorf("%w: sync.event_queue %d < 0", ErrInvalid, s.EventQueue)
	}
	switch c.Radio.Transport {
	case "udp", "loopback":
	default:
		return fmt.Errorf("%w: radio.transport %q", ErrInvalid, c.Radio.Transport)
	}
	switch c.Node.UniqueID {
	case "auto", "onewire", "machine-id", "random", "static":
	default:
		return fmt.Errorf("%w: node.unique_id %q", ErrInvalid, c.Node.UniqueID)
	}
	if c.Console.Baud < 0 {
		return fmt.Errorf("%w: console.baud %d", ErrInvalid, c.Console.Baud)
	}
	return nil
}
