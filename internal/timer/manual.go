package timer

import "sync"

// Manual — таймер для тестов и симуляции: время идёт только через Advance.
// Будильники вызываются синхронно из Advance в порядке сроков, при равенстве — в порядке создания.
type Manual struct {
	mu     sync.Mutex
	ticks  uint64
	next   Handle
	alarms []*manualAlarm
}

type manualAlarm struct {
	id       Handle
	deadline uint64
	period   uint32
	fn       func()
}

// NewManual создаёт таймер со значением счётчика start.
func NewManual(start uint64) *Manual {
	return &Manual{ticks: start}
}

// Ticks возвращает полное значение счётчика.
func (m *Manual) Ticks() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticks
}

// Now возвращает младшее слово счётчика.
func (m *Manual) Now() uint16 {
	return uint16(m.Ticks())
}

// StartRecurring регистрирует будильник.
func (m *Manual) StartRecurring(first, period uint32, fn func()) Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	m.alarms = append(m.alarms, &manualAlarm{
		id:       m.next,
		deadline: m.ticks + uint64(first),
		period:   period,
		fn:       fn,
	})
	return m.next
}

// UpdatePeriod меняет период; действует со следующего интервала.
func (m *Manual) UpdatePeriod(id Handle, period uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.find(id); a != nil {
		a.period = period
	}
}

// Period возвращает текущий период будильника (0, если его нет).
func (m *Manual) Period(id Handle) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.find(id); a != nil {
		return a.period
	}
	return 0
}

// Stop удаляет будильник.
func (m *Manual) Stop(id Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, a := range m.alarms {
		if a.id == id {
			m.alarms = append(m.alarms[:i], m.alarms[i+1:]...)
			return
		}
	}
}

// Advance продвигает счётчик на n тиков, вызывая все наступившие будильники.
func (m *Manual) Advance(n uint64) {
	m.mu.Lock()
	target := m.ticks + n
	m.mu.Unlock()
	for {
		m.mu.Lock()
		var due *manualAlarm
		for _, a := range m.alarms {
			if a.deadline <= target && (due == nil || a.deadline < due.deadline) {
				due = a
			}
		}
		if due == nil {
			m.ticks = target
			m.mu.Unlock()
			return
		}
		m.ticks = due.deadline
		fn := due.fn
		m.mu.Unlock()
		fn()

		m.mu.Lock()
		p := due.period
		if p == 0 {
			p = 1
		}
		due.deadline += uint64(p)
		m.mu.Unlock()
	}
}

func (m *Manual) find(id Handle) *manualAlarm {
	for _, a := range m.alarms {
		if a.id == id {
			return a
		}
	}
	return nil
}
