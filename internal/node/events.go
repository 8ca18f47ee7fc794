package node

import "fmt"

// EventKind — тип события цикла узла.
type EventKind int

const (
	SchedulingTick EventKind = iota + 1
	OverflowTick
	SkewTick
	FrameReceived
	ConsoleByte
	SendComplete
	SendError
)

func (k EventKind) String() string {
	switch k {
	case SchedulingTick:
		return "scheduling-tick"
	case OverflowTick:
		return "overflow-tick"
	case SkewTick:
		return "skew-tick"
	case FrameReceived:
		return "frame-received"
	case ConsoleByte:
		return "console-byte"
	case SendComplete:
		return "send-complete"
	case SendError:
		return "send-error"
	default:
		return fmt.Sprintf("event(%d)", int(k))
	}
}

// Event — одно событие. Заполнены только поля, относящиеся к Kind.
type Event struct {
	Kind EventKind

	// FrameReceived
	Payload []byte
	Src     uint16
	Capture uint64 // полный счётчик таймера в момент приёма

	// ConsoleByte
	Byte byte

	// SendError
	Err error
}
