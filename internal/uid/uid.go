// Package uid — уникальный серийный номер узла: из него выводятся адрес в эфире и зерно генератора.
package uid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
)

// ErrNoDevice — источник номера недоступен на этой машине.
var ErrNoDevice = errors.New("uid: no serial number source")

// Serial — два первых байта серийного номера (serial0, serial1).
type Serial [2]byte

// FromUint16 собирает Serial так, что Seed() == v.
func FromUint16(v uint16) Serial {
	return Serial{byte(v >> 8), byte(v)}
}

// Seed — зерно генератора: serial0<<8 | serial1.
func (s Serial) Seed() uint16 {
	return uint16(s[0])<<8 | uint16(s[1])
}

// Address — адрес узла в эфире: serial1<<8 | serial0.
func (s Serial) Address() uint16 {
	return uint16(s[1])<<8 | uint16(s[0])
}

func (s Serial) String() string {
	return fmt.Sprintf("%02x%02x", s[0], s[1])
}

// Source читает серийный номер один раз при старте.
type Source interface {
	ReadSerial() (Serial, error)
}

// Static — заданный в конфиге номер.
type Static Serial

// ReadSerial возвращает заданный номер.
func (s Static) ReadSerial() (Serial, error) {
	return Serial(s), nil
}

// MachineID читает /etc/machine-id (32 шестнадцатеричных символа).
type MachineID struct {
	Path string
}

// ReadSerial берёт первые два байта machine-id.
func (m MachineID) ReadSerial() (Serial, error) {
	path := m.Path
	if path == "" {
		path = "/etc/machine-id"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Serial{}, fmt.Errorf("%w: %s", ErrNoDevice, path)
		}
		return Serial{}, fmt.Errorf("read %s: %w", path, err)
	}
	s := strings.TrimSpace(string(data))
	if len(s) < 4 {
		return Serial{}, fmt.Errorf("machine-id %q too short", s)
	}
	b, err := hex.DecodeString(s[:4])
	if err != nil {
		return Serial{}, fmt.Errorf("parse machine-id: %w", err)
	}
	return Serial{b[0], b[1]}, nil
}

// Random — случайный номер из UUIDv4; меняется при каждом запуске.
type Random struct{}

// ReadSerial возвращает два случайных байта.
func (Random) ReadSerial() (Serial, error) {
	u := uuid.New()
	return Serial{u[0], u[1]}, nil
}

// Chain пробует источники по очереди и возвращает первый успешный.
type Chain []Source

// ReadSerial возвращает номер первого доступного источника.
func (c Chain) ReadSerial() (Serial, error) {
	var errs []error
	for _, s := range c {
		serial, err := s.ReadSerial()
		if err == nil {
			return serial, nil
		}
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		return Serial{}, ErrNoDevice
	}
	return Serial{}, errors.Join(errs...)
}

// New создаёт источник по имени из конфига: auto, onewire, machine-id, random, static.
func New(kind, onewireBus string, static uint16) (Source, error) {
	switch kind {
	case "", "auto":
		return Chain{OneWire{Bus: onewireBus}, MachineID{}, Random{}}, nil
	case "onewire":
		return OneWire{Bus: onewireBus}, nil
	case "machine-id":
		return MachineID{}, nil
	case "random":
		return Random{}, nil
	case "static":
		return Static(FromUint16(static)), nil
	default:
		return nil, fmt.Errorf("unknown unique_id source %q", kind)
	}
}
