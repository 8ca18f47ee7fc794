// Package syncmsg — 6-байтовое широковещательное сообщение синхронизации.
//
// Формат (little-endian):
//
//	byte 0    — зарезервирован, 0
//	byte 1    — код операции: 'n', 'o', 's', 'm'
//	byte 2-3  — старшее слово скорректированного времени отправителя
//	byte 4-5  — младшее слово
package syncmsg

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/saveriob/RandSync/internal/wordclock"
)

// Size — длина сообщения в байтах.
const Size = 6

var (
	ErrShortMessage  = errors.New("syncmsg: message too short")
	ErrUnknownOpcode = errors.New("syncmsg: unknown opcode")
)

// Opcode — назначение сообщения.
type Opcode byte

const (
	OpNone    Opcode = 'n' // режим «без коррекции»
	OpOffset  Opcode = 'o' // коррекция смещения
	OpSkew    Opcode = 's' // коррекция смещения и скорости
	OpMonitor Opcode = 'm' // только мониторинг, часы не трогаем
)

// Valid сообщает, известен ли код.
func (o Opcode) Valid() bool {
	switch o {
	case OpNone, OpOffset, OpSkew, OpMonitor:
		return true
	}
	return false
}

func (o Opcode) String() string {
	if o.Valid() {
		return string(rune(o))
	}
	return fmt.Sprintf("Opcode(%#02x)", byte(o))
}

// Mode — режим синхронизации, распространяемый по сети.
type Mode byte

const (
	ModeNone          Mode = Mode(OpNone)
	ModeOffset        Mode = Mode(OpOffset)
	ModeOffsetAndSkew Mode = Mode(OpSkew)
)

// ParseMode разбирает режим из строки конфига или командного символа.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "n", "none":
		return ModeNone, nil
	case "o", "offset":
		return ModeOffset, nil
	case "s", "skew":
		return ModeOffsetAndSkew, nil
	}
	return ModeNone, fmt.Errorf("unknown sync mode %q", s)
}

// Opcode — код, которым узел в этом режиме рассылает своё время.
func (m Mode) Opcode() Opcode {
	return Opcode(m)
}

func (m Mode) String() string {
	switch m {
	case ModeNone:
		return "none"
	case ModeOffset:
		return "offset correction"
	case ModeOffsetAndSkew:
		return "skew correction"
	default:
		return fmt.Sprintf("Mode(%#02x)", byte(m))
	}
}

// Message — разобранное сообщение.
type Message struct {
	Op   Opcode
	Time wordclock.Time
}

// Encode собирает сообщение: зарезервированный байт, код, high, low.
func Encode(op Opcode, t wordclock.Time) []byte {
	buf := make([]byte, 0, Size)
	return Append(buf, op, t)
}

// Append дописывает сообщение в buf.
func Append(buf []byte, op Opcode, t wordclock.Time) []byte {
	buf = append(buf, 0, byte(op))
	buf = binary.LittleEndian.AppendUint16(buf, t.High)
	buf = binary.LittleEndian.AppendUint16(buf, t.Low)
	return buf
}

// Decode разбирает сообщение. Лишние байты после шестого игнорируются.
func Decode(payload []byte) (Message, error) {
	if len(payload) < Size {
		return Message{}, fmt.Errorf("%w: %d bytes", ErrShortMessage, len(payload))
	}
	op := Opcode(payload[1])
	if !op.Valid() {
		return Message{Op: op}, fmt.Errorf("%w: %v", ErrUnknownOpcode, op)
	}
	return Message{
		Op:   op,
		Time: wordclock.New(binary.LittleEndian.Uint16(payload[2:4]), binary.LittleEndian.Uint16(payload[4:6])),
	}, nil
}
