package timer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Host — таймер поверх монотонных часов процесса.
type Host struct {
	start time.Time

	mu     sync.Mutex
	alarms map[Handle]*hostAlarm
	next   Handle
	closed bool
	wg     sync.WaitGroup
}

type hostAlarm struct {
	period atomic.Uint32
	stop   chan struct{}
}

// NewHost создаёт таймер; счётчик начинается с нуля.
func NewHost() *Host {
	return &Host{
		start:  time.Now(),
		alarms: make(map[Handle]*hostAlarm),
	}
}

// Ticks возвращает полное число тиков с момента создания.
func (h *Host) Ticks() uint64 {
	return FromDuration(time.Since(h.start))
}

// Now возвращает младшее слово счётчика.
func (h *Host) Now() uint16 {
	return uint16(h.Ticks())
}

// StartRecurring запускает будильник. Сроки считаются от абсолютного номера тика,
// поэтому задержка обработки не накапливается.
func (h *Host) StartRecurring(first, period uint32, fn func()) Handle {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	a := &hostAlarm{stop: make(chan struct{})}
	a.period.Store(period)
	if h.closed {
		close(a.stop)
		return id
	}
	h.alarms[id] = a

	deadline := h.Ticks() + uint64(first)
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		t := time.NewTimer(h.until(deadline))
		defer t.Stop()
		for {
			select {
			case <-a.stop:
				return
			case <-t.C:
			}
			fn()
			p := a.period.Load()
			if p == 0 {
				p = 1
			}
			deadline += uint64(p)
			t.Reset(h.until(deadline))
		}
	}()
	return id
}

func (h *Host) until(tick uint64) time.Duration {
	d := time.Until(h.start.Add(ToDuration(tick)))
	if d < 0 {
		return 0
	}
	return d
}

// UpdatePeriod меняет период будильника.
func (h *Host) UpdatePeriod(id Handle, period uint32) {
	h.mu.Lock()
	a, ok := h.alarms[id]
	h.mu.Unlock()
	if ok {
		a.period.Store(period)
	}
}

// Stop останавливает будильник.
func (h *Host) Stop(id Handle) {
	h.mu.Lock()
	a, ok := h.alarms[id]
	delete(h.alarms, id)
	h.mu.Unlock()
	if ok {
		close(a.stop)
	}
}

// Close останавливает все будильники и ждёт их горутины.
func (h *Host) Close() error {
	h.mu.Lock()
	h.closed = true
	for id, a := range h.alarms {
		close(a.stop)
		delete(h.alarms, id)
	}
	h.mu.Unlock()
	h.wg.Wait()
	return nil
}
