package servo

import "github.com/saveriob/RandSync/internal/wordclock"

// DriftWindow — размер окна линейной регрессии.
const DriftWindow = 64

// driftMinSamples — меньше выборок наклон не считается.
const driftMinSamples = 8

// DriftEstimator оценивает уход частоты относительно соседа по мониторинговым выборкам:
// x — момент приёма в секундах, y — разность младших слов (наше − соседа) в тиках.
// Наклон регрессии в тиках в секунду переводится в ppm. Положительный — наши часы спешат.
type DriftEstimator struct {
	xs  [DriftWindow]float64
	ys  [DriftWindow]float64
	n   int
	idx int
}

// Add добавляет выборку и возвращает оценку; ok == false, пока выборок мало.
func (e *DriftEstimator) Add(sec float64, delta int16) (ppm float64, ok bool) {
	e.xs[e.idx] = sec
	e.ys[e.idx] = float64(delta)
	e.idx = (e.idx + 1) % DriftWindow
	if e.n < DriftWindow {
		e.n++
	}
	if e.n < driftMinSamples {
		return 0, false
	}
	n := float64(e.n)
	var mx, my float64
	for i := 0; i < e.n; i++ {
		mx += e.xs[i]
		my += e.ys[i]
	}
	mx /= n
	my /= n
	var sxy, sxx float64
	for i := 0; i < e.n; i++ {
		dx := e.xs[i] - mx
		sxy += dx * (e.ys[i] - my)
		sxx += dx * dx
	}
	if sxx == 0 {
		return 0, false
	}
	slope := sxy / sxx // тиков в секунду
	return slope / wordclock.TickHz * 1e6, true
}

// Reset сбрасывает окно
func (e *DriftEstimator) Reset() {
	e.n = 0
	e.idx = 0
}
