// Package sched решает, когда узел рассылает свою метку времени.
package sched

// zeroSeedReplacement подставляется вместо нулевого зерна: 0 — неподвижная точка xorshift.
const zeroSeedReplacement = 0xACE1

// XorShift16 — 16-битный xorshift с тройкой сдвигов (13, 9, 7).
// Последовательность совпадает с прошивкой узлов, поэтому тройку менять нельзя.
type XorShift16 struct {
	state uint16
}

// NewXorShift16 создаёт генератор с зерном seed.
func NewXorShift16(seed uint16) *XorShift16 {
	if seed == 0 {
		seed = zeroSeedReplacement
	}
	return &XorShift16{state: seed}
}

// Value возвращает текущее значение без продвижения.
func (x *XorShift16) Value() uint16 {
	return x.state
}

// Next продвигает состояние и возвращает новое значение.
func (x *XorShift16) Next() uint16 {
	s := x.state
	s ^= s << 13
	s ^= s >> 9
	s ^= s << 7
	x.state = s
	return s
}
