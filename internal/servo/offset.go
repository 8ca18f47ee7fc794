package servo

import (
	"errors"
	"fmt"
	"math"

	"github.com/saveriob/RandSync/internal/wordclock"
)

// DefaultMaxHighStep — допустимое расхождение старших слов с соседом (1024 × 2 с ≈ 34 мин).
const DefaultMaxHighStep = 1024

// ErrUnsynchronizable — часы соседа расходятся с нашими сильнее допустимого шага.
var ErrUnsynchronizable = errors.New("servo: peer clock beyond alignment bound")

// Phase — корректируемые поля логических часов узла:
// старшее слово сырого времени и знаковая микропоправка.
type Phase struct {
	High   uint16
	Offset int16
}

// Corrected возвращает скорректированное время для младшего слова сырого счётчика.
func (p Phase) Corrected(low uint16) wordclock.Time {
	return wordclock.New(p.High, low).Add(p.Offset)
}

// OffsetCorrection — итог одного обмена с соседом.
type OffsetCorrection struct {
	HighStep int16 // на сколько сдвинуто старшее слово при выравнивании
	Delta    int32 // изменение Offset (половина остатка, со знаком)
	Carry    int8  // перенос в старшее слово при выходе Offset за int16
}

// OffsetController — регулятор фазы: за каждый обмен уменьшает расхождение с соседом вдвое.
type OffsetController struct {
	MaxHighStep int
}

// NewOffsetController создаёт регулятор; maxHighStep <= 0 — DefaultMaxHighStep.
func NewOffsetController(maxHighStep int) *OffsetController {
	if maxHighStep <= 0 {
		maxHighStep = DefaultMaxHighStep
	}
	return &OffsetController{MaxHighStep: maxHighStep}
}

// OnPeerTimestamp применяет метку времени соседа peer к фазе p.
// local — наше скорректированное время в момент приёма кадра.
// Ошибка берётся как полная знаковая 32-битная разность peer − local.
// Меньше слова: к Offset добавляется её половина с переносом в High.
// Слово и больше: старшее слово выравнивается одним шагом на ближайшее целое число слов
// (не более MaxHighStep), затем половина остатка идёт в Offset.
// Метки по разные стороны переполнения младшего слова поэтому дают малый остаток, а не скачок.
// При ErrUnsynchronizable p не меняется.
func (c *OffsetController) OnPeerTimestamp(p *Phase, local, peer wordclock.Time) (OffsetCorrection, error) {
	var corr OffsetCorrection
	step, rest, err := c.split(local, peer)
	if err != nil {
		return corr, err
	}
	corr.HighStep = step
	p.High += uint16(step)

	if rest >= 0 {
		d := rest >> 1
		sum := int32(p.Offset) + d
		if sum > math.MaxInt16 {
			p.High++
			corr.Carry = 1
		}
		p.Offset = int16(sum)
		corr.Delta = d
	} else {
		d := (-rest) >> 1
		diff := int32(p.Offset) - d
		if diff < math.MinInt16 {
			p.High--
			corr.Carry = -1
		}
		p.Offset = int16(diff)
		corr.Delta = -d
	}
	return corr, nil
}

// split раскладывает ошибку peer − local на шаг старшего слова и остаток в тиках, |остаток| < 65536.
func (c *OffsetController) split(local, peer wordclock.Time) (int16, int32, error) {
	diff := int64(peer.Sub(local))
	if abs64(diff) > int64(c.MaxHighStep)<<16 {
		return 0, 0, fmt.Errorf("%w: %d ticks (%v vs %v) > %d words", ErrUnsynchronizable, diff, peer, local, c.MaxHighStep)
	}
	if abs64(diff) < 1<<16 {
		return 0, int32(diff), nil
	}
	step := (diff + 1<<15) >> 16 // ближайшее целое число слов
	return int16(step), int32(diff - step<<16), nil
}

// Reachable сообщает, примет ли регулятор обмен local/peer (расхождение не больше MaxHighStep слов).
func (c *OffsetController) Reachable(local, peer wordclock.Time) bool {
	_, _, err := c.split(local, peer)
	return err == nil
}

func abs64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
