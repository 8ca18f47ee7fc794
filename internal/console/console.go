// Package console — однобайтовые команды оператора, принятые по последовательному порту или stdin.
package console

import (
	"context"

	"github.com/saveriob/RandSync/internal/syncmsg"
)

// ByteFunc получает каждый принятый байт.
type ByteFunc func(b byte)

// Input — источник байтов консоли.
type Input interface {
	Serve(ctx context.Context, fn ByteFunc) error
	Close() error
}

// Action — что делает команда.
type Action int

const (
	SendMonitor      Action = iota + 1 // 'm': разослать время один раз для мониторинга
	EnableMonitoring                   // 'l': рассылать 'm' на каждом переполнении
	SetMode                            // 'n', 'o', 's': сменить режим и сразу разослать его
)

// Command — разобранная команда и строка подтверждения для оператора.
type Command struct {
	Action Action
	Mode   syncmsg.Mode
	Echo   string
}

var commands = map[byte]Command{
	'm': {Action: SendMonitor, Echo: "Sending my time to others, for monitoring"},
	'l': {Action: EnableMonitoring, Echo: "I will send monitoring messages every second"},
	'n': {Action: SetMode, Mode: syncmsg.ModeNone, Echo: "Sync algorithm: none (broadcasted to all nodes)"},
	'o': {Action: SetMode, Mode: syncmsg.ModeOffset, Echo: "Sync algorithm: offset correction (broadcasted to all nodes)"},
	's': {Action: SetMode, Mode: syncmsg.ModeOffsetAndSkew, Echo: "Sync algorithm: skew correction (broadcasted to all nodes)"},
}

// Parse возвращает команду для байта; неизвестные байты (в том числе перевод строки) — false.
func Parse(b byte) (Command, bool) {
	c, ok := commands[b]
	return c, ok
}
