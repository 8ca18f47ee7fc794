// Package radio — широковещательный транспорт сообщений синхронизации.
package radio

import (
	"context"
	"sync/atomic"
)

// ReceiveFunc вызывается на горутине транспорта сразу после приёма кадра
// (аналог прерывания по SFD); должна быстро вернуть управление.
type ReceiveFunc func(payload []byte, src uint16)

// Transport — радиоканал узла.
type Transport interface {
	// Addr — адрес узла в канале.
	Addr() uint16
	// Broadcast отправляет нагрузку всем узлам.
	Broadcast(payload []byte) error
	// Serve доставляет принятые кадры в fn до отмены ctx.
	Serve(ctx context.Context, fn ReceiveFunc) error
	Close() error
}

// Sender — передатчик «отправил и забыл» с одним кадром в полёте:
// пока предыдущая отправка не завершена, Send возвращает ErrBusy.
type Sender struct {
	t    Transport
	ch   chan []byte
	busy atomic.Bool
	done func(err error)
}

// NewSender создаёт передатчик; done вызывается после каждой отправки (err == nil — успех).
func NewSender(t Transport, done func(err error)) *Sender {
	if done == nil {
		done = func(error) {}
	}
	return &Sender{t: t, ch: make(chan []byte, 1), done: done}
}

// Send ставит нагрузку в очередь, не блокируясь.
func (s *Sender) Send(payload []byte) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	s.ch <- payload
	return nil
}

// Run выполняет отправки до отмены ctx.
func (s *Sender) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case p := <-s.ch:
			err := s.t.Broadcast(p)
			s.busy.Store(false)
			s.done(err)
		}
	}
}

// Direct — передатчик без очереди: Send сразу вызывает Broadcast.
// Годится для транспортов, которые не блокируются (Medium).
type Direct struct {
	T    Transport
	Done func(err error)
}

// Send отправляет нагрузку синхронно; результат сообщается через Done.
func (d Direct) Send(payload []byte) error {
	err := d.T.Broadcast(payload)
	if d.Done != nil {
		d.Done(err)
	}
	return nil
}
