package servo

import "math"

// Границы периода коррекции скорости (в тиках).
const (
	MinSkewPeriod     = 200
	MaxSkewPeriod     = math.MaxUint16
	DefaultSkewPeriod = 20000
)

// SkewController — пропорциональный регулятор скорости хода.
// Period — интервал будильника, по которому Offset уменьшается на 1;
// чем короче период, тем медленнее идут скорректированные часы.
type SkewController struct {
	Period uint16
	Min    uint16
	Max    uint16
}

// SkewUpdate — результат одного обмена: разность младших слов и период до/после.
type SkewUpdate struct {
	D   int16
	Old uint16
	New uint16
}

// NewSkewController создаёт регулятор. Нулевые границы заменяются на MinSkewPeriod/MaxSkewPeriod,
// начальный период прижимается к [min, max].
func NewSkewController(initial, min, max uint16) *SkewController {
	if min == 0 {
		min = MinSkewPeriod
	}
	if max == 0 {
		max = MaxSkewPeriod
	}
	if initial < min {
		initial = min
	} else if initial > max {
		initial = max
	}
	return &SkewController{Period: initial, Min: min, Max: max}
}

// OnPeerTimestamp подстраивает период по разности d = peerLow − localLow.
// d > 0 (наши часы отстают): период растёт на (Period>>9)·(d>>1), не выше Max.
// d ≤ 0: период уменьшается на ту же величину от |d|, не ниже Min.
func (s *SkewController) OnPeerTimestamp(localLow, peerLow uint16) SkewUpdate {
	d := int16(peerLow - localLow)
	u := SkewUpdate{D: d, Old: s.Period}
	gain := uint32(s.Period >> 9)
	if d > 0 {
		delta := gain * uint32(uint16(d)>>1)
		if delta > uint32(s.Max-s.Period) {
			s.Period = s.Max
		} else {
			s.Period += uint16(delta)
		}
	} else {
		mag := uint16(-int32(d))
		delta := gain * uint32(mag>>1)
		if delta > uint32(s.Period-s.Min) {
			s.Period = s.Min
		} else {
			s.Period -= uint16(delta)
		}
	}
	u.New = s.Period
	return u
}

// OnTick вызывается каждые Period тиков: уменьшает Offset на 1.
// На границе −32768 Offset переходит в 32767 с заёмом из старшего слова; возвращает true при заёме.
func (s *SkewController) OnTick(p *Phase) bool {
	borrow := p.Offset == math.MinInt16
	if borrow {
		p.High--
	}
	p.Offset--
	return borrow
}
