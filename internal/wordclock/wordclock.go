// Package wordclock — логическое время узла из двух 16-битных слов (high, low).
//
// low — значение аппаратного счётчика тиков (32768 Гц), high увеличивается при каждом
// переполнении low (~2 с). Вся арифметика выполняется по модулю 2^32 с явным переносом
// между словами, как на платформах без атомарных 32-битных операций.
package wordclock

import "fmt"

// TickHz — частота тиков логических часов (ACLK).
const TickHz = 32768

// Time — логическое время: старшее и младшее слово.
type Time struct {
	High uint16
	Low  uint16
}

// New собирает Time из двух слов.
func New(high, low uint16) Time {
	return Time{High: high, Low: low}
}

// FromTicks раскладывает 32-битный счётчик на слова.
func FromTicks(ticks uint32) Time {
	return Time{High: uint16(ticks >> 16), Low: uint16(ticks)}
}

// Ticks возвращает время как 32-битный счётчик.
func (t Time) Ticks() uint32 {
	return uint32(t.High)<<16 | uint32(t.Low)
}

// Add прибавляет знаковую поправку d к младшему слову.
// Старшее слово меняется ровно тогда, когда low переполняется (d > 0) или уходит ниже нуля (d < 0).
func (t Time) Add(d int16) Time {
	if d >= 0 {
		if uint16(d) > 0xFFFF-t.Low {
			t.High++
		}
		t.Low += uint16(d)
		return t
	}
	abs := uint16(-int32(d))
	if abs > t.Low {
		t.High--
	}
	t.Low -= abs
	return t
}

// Sub возвращает знаковую разность t − u в тиках (по модулю 2^32).
func (t Time) Sub(u Time) int32 {
	return int32(t.Ticks() - u.Ticks())
}

// Compare сравнивает t и u с учётом переполнения: −1, если t раньше u, 0 при равенстве, +1 иначе.
func (t Time) Compare(u Time) int {
	switch d := t.Sub(u); {
	case d < 0:
		return -1
	case d > 0:
		return 1
	default:
		return 0
	}
}

// Before сообщает, что t раньше u.
func (t Time) Before(u Time) bool {
	return t.Compare(u) < 0
}

func (t Time) String() string {
	return fmt.Sprintf("%d:%d", t.High, t.Low)
}
