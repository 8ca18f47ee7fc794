package sched

// DefaultThreshold — порог монетки: 0x004F/65536 ≈ 1.2e-3.
// При периоде 1.678 с средний интервал между рассылками ≈ 23 мин.
const DefaultThreshold = 0x004F

// Random — источник 16-битных псевдослучайных значений.
type Random interface {
	Value() uint16
	Next() uint16
}

// Decision — что делать на очередном тике.
type Decision int

const (
	Idle Decision = iota
	BroadcastMode
	BroadcastMonitor
)

func (d Decision) String() string {
	switch d {
	case Idle:
		return "idle"
	case BroadcastMode:
		return "broadcast-mode"
	case BroadcastMonitor:
		return "broadcast-monitor"
	default:
		return "unknown"
	}
}

// Scheduler — геометрическое расписание рассылок без координации между узлами.
type Scheduler struct {
	rnd        Random
	threshold  uint16
	Monitoring bool // рассылать 'm' на каждом переполнении

	retry bool
}

// New создаёт планировщик с порогом threshold (0 — DefaultThreshold).
func New(rnd Random, threshold uint16) *Scheduler {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	return &Scheduler{rnd: rnd, threshold: threshold}
}

// Threshold возвращает порог монетки.
func (s *Scheduler) Threshold() uint16 {
	return s.threshold
}

// OnSchedulingTick бросает монетку: текущее значение генератора сравнивается с порогом,
// затем генератор продвигается. Неудавшаяся рассылка, отмеченная RetryNext, повторяется
// на ближайшем тике независимо от монетки.
func (s *Scheduler) OnSchedulingTick() Decision {
	hit := s.rnd.Value() < s.threshold
	s.rnd.Next()
	if hit || s.retry {
		s.retry = false
		return BroadcastMode
	}
	return Idle
}

// OnOverflowTick — принудительная рассылка для мониторинга.
func (s *Scheduler) OnOverflowTick() Decision {
	if s.Monitoring {
		return BroadcastMonitor
	}
	return Idle
}

// RetryNext просит повторить рассылку режима на следующем тике.
func (s *Scheduler) RetryNext() {
	s.retry = true
}
