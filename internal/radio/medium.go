package radio

import (
	"context"
	"fmt"
	"sync"
)

// Medium — общий эфир в памяти: всё, что отправил один порт, получают остальные.
// Используется в тестах и в симуляции нескольких узлов в одном процессе.
type Medium struct {
	mu    sync.Mutex
	ports map[uint16]*Port

	// Drop, если задан, решает, потерять ли кадр от src к dst.
	Drop func(src, dst uint16) bool
}

// NewMedium создаёт пустой эфир.
func NewMedium() *Medium {
	return &Medium{ports: make(map[uint16]*Port)}
}

// Attach подключает узел с адресом addr.
func (m *Medium) Attach(addr uint16) (*Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.ports[addr]; ok {
		return nil, fmt.Errorf("radio: address %#04x already attached", addr)
	}
	p := &Port{m: m, addr: addr}
	m.ports[addr] = p
	return p, nil
}

func (m *Medium) deliver(src uint16, frame []byte) {
	m.mu.Lock()
	dst := make([]*Port, 0, len(m.ports))
	for addr, p := range m.ports {
		if addr == src {
			continue
		}
		if m.Drop != nil && m.Drop(src, addr) {
			continue
		}
		dst = append(dst, p)
	}
	m.mu.Unlock()
	for _, p := range dst {
		p.receive(frame)
	}
}

// Port — подключение узла к Medium; реализует Transport.
type Port struct {
	m    *Medium
	addr uint16

	mu     sync.Mutex
	fn     ReceiveFunc
	closed bool
}

// Addr возвращает адрес порта.
func (p *Port) Addr() uint16 {
	return p.addr
}

// Broadcast кодирует кадр и синхронно доставляет его остальным портам.
func (p *Port) Broadcast(payload []byte) error {
	frame, err := EncodeFrame(BroadcastAddr, p.addr, payload)
	if err != nil {
		return err
	}
	p.mu.Lock()
	closed := p.closed
	p.mu.Unlock()
	if closed {
		return fmt.Errorf("radio: port %#04x closed", p.addr)
	}
	p.m.deliver(p.addr, frame)
	return nil
}

// Listen регистрирует обработчик без блокировки.
func (p *Port) Listen(fn ReceiveFunc) {
	p.mu.Lock()
	p.fn = fn
	p.mu.Unlock()
}

// Serve регистрирует обработчик и ждёт отмены ctx.
func (p *Port) Serve(ctx context.Context, fn ReceiveFunc) error {
	p.Listen(fn)
	<-ctx.Done()
	p.Listen(nil)
	return ctx.Err()
}

func (p *Port) receive(frame []byte) {
	p.mu.Lock()
	fn, closed := p.fn, p.closed
	p.mu.Unlock()
	if fn == nil || closed {
		return
	}
	f, err := DecodeFrame(frame)
	if err != nil || !accept(f, p.addr) {
		return
	}
	payload := make([]byte, len(f.Payload))
	copy(payload, f.Payload)
	fn(payload, f.Src)
}

// Close отключает порт от эфира.
func (p *Port) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.m.mu.Lock()
	delete(p.m.ports, p.addr)
	p.m.mu.Unlock()
	return nil
}
