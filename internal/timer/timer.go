// Package timer — счётчик тиков 32768 Гц и периодические будильники поверх него.
package timer

import "time"

// TickHz — частота счётчика.
const TickHz = 32768

// Handle — идентификатор будильника.
type Handle int

// Service — аналог аппаратного таймера: младшее слово счётчика и будильники с изменяемым периодом.
// Обратные вызовы будильников должны быть короткими и не блокироваться.
type Service interface {
	// Now возвращает младшее слово счётчика.
	Now() uint16
	// Ticks возвращает полный монотонный счётчик (младшее слово и число его переполнений).
	Ticks() uint64
	// StartRecurring запускает будильник: первый вызов fn через first тиков, далее каждые period.
	StartRecurring(first, period uint32, fn func()) Handle
	// UpdatePeriod меняет период; действует со следующего интервала.
	UpdatePeriod(h Handle, period uint32)
	// Stop останавливает будильник.
	Stop(h Handle)
}

// ToDuration переводит тики в длительность.
func ToDuration(ticks uint64) time.Duration {
	return time.Duration(ticks/TickHz)*time.Second + time.Duration(ticks%TickHz)*time.Second/TickHz
}

// FromDuration переводит длительность в тики (с округлением вниз).
func FromDuration(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}
	return uint64(d/time.Second)*TickHz + uint64(d%time.Second)*TickHz/uint64(time.Second)
}
