// Package diag — диагностические записи обменов (RUN, MON, SKE) и их приёмники.
// Записи предназначены для внешнего сбора и внутри узла не разбираются.
package diag

import (
	"fmt"
	"io"
	"sync"

	"github.com/saveriob/RandSync/internal/wordclock"
)

// Kind — тип записи.
type Kind string

const (
	KindRun     Kind = "RUN" // обмен с коррекцией смещения/скорости
	KindMonitor Kind = "MON" // мониторинговая выборка
	KindSkew    Kind = "SKE" // изменение периода коррекции скорости
)

// Record — одна диагностическая запись.
type Record struct {
	Kind   Kind
	Peer   uint16
	Self   uint16
	Remote wordclock.Time // время соседа из сообщения
	Local  wordclock.Time // наше скорректированное время приёма

	Delta int16 // MON: Local.Low − Remote.Low

	SkewD   int16 // SKE: разность младших слов
	SkewOld uint16
	SkewNew uint16
}

func (r Record) String() string {
	switch r.Kind {
	case KindMonitor:
		return fmt.Sprintf("MON, %d, %d, %d, %d, %d, %d, %d",
			r.Peer, r.Self, r.Remote.High, r.Remote.Low, r.Local.High, r.Local.Low, r.Delta)
	case KindSkew:
		return fmt.Sprintf("SKE, %d, %d, %d, %d, %d", r.Peer, r.Self, r.SkewD, r.SkewOld, r.SkewNew)
	default:
		return fmt.Sprintf("%s, %d, %d, %d, %d, %d, %d",
			r.Kind, r.Peer, r.Self, r.Remote.High, r.Remote.Low, r.Local.High, r.Local.Low)
	}
}

// Sink принимает записи. Emit не должен блокироваться надолго: его вызывает цикл событий узла.
type Sink interface {
	Emit(r Record)
}

// Writer пишет записи построчно в w.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter создаёт построчный приёмник.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Emit пишет запись; ошибки записи игнорируются.
func (w *Writer) Emit(r Record) {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, _ = fmt.Fprintln(w.w, r.String())
}

// Tee раздаёт записи нескольким приёмникам; nil пропускаются.
func Tee(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

type multi []Sink

func (m multi) Emit(r Record) {
	for _, s := range m {
		s.Emit(r)
	}
}

// Discard отбрасывает записи.
var Discard Sink = discard{}

type discard struct{}

func (discard) Emit(Record) {}

// Memory накапливает записи в памяти.
type Memory struct {
	mu      sync.Mutex
	records []Record
}

// Emit сохраняет запись.
func (m *Memory) Emit(r Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
}

// Records возвращает копию накопленных записей.
func (m *Memory) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Record(nil), m.records...)
}

// Reset очищает накопленное.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = nil
}
