// Package node — владелец состояния синхронизации одного узла.
// Всё состояние меняется только в цикле событий (Run или Drain); таймер, радио,
// консоль и передатчик лишь ставят события в очередь.
package node

import (
	"context"
	"io"
	"sync"

	"github.com/saveriob/RandSync/internal/diag"
	"github.com/saveriob/RandSync/internal/logger"
	"github.com/saveriob/RandSync/internal/metrics"
	"github.com/saveriob/RandSync/internal/sched"
	"github.com/saveriob/RandSync/internal/servo"
	"github.com/saveriob/RandSync/internal/syncmsg"
	"github.com/saveriob/RandSync/internal/timer"
	"github.com/saveriob/RandSync/internal/wordclock"
)

const (
	DefaultSchedulingPeriod = 54983 // ≈ 1.678 с
	DefaultSkewFirstFire    = 35000
	DefaultLinkLatency      = 35 // тиков от отметки отправителя до захвата у получателя
	DefaultEventQueue       = 64

	overflowPeriod = 1 << 16
)

// Config — параметры узла. Нулевые поля, кроме LinkLatency, заменяются значениями по умолчанию.
type Config struct {
	Addr       uint16
	Seed       uint16
	Mode       syncmsg.Mode
	Monitoring bool

	SchedulingPeriod uint32
	SkewFirstFire    uint32
	// LinkLatency вычитается из отметки приёма как есть, 0 — без компенсации.
	// Обычное значение — DefaultLinkLatency.
	LinkLatency       int16
	Threshold         uint16
	InitialSkewPeriod uint16
	MinSkewPeriod     uint16
	MaxSkewPeriod     uint16
	MaxHighStep       int
	EventQueue        int
}

func (c *Config) applyDefaults() {
	if c.Mode == 0 {
		c.Mode = syncmsg.ModeNone
	}
	if c.SchedulingPeriod == 0 {
		c.SchedulingPeriod = DefaultSchedulingPeriod
	}
	if c.SkewFirstFire == 0 {
		c.SkewFirstFire = DefaultSkewFirstFire
	}
	if c.EventQueue <= 0 {
		c.EventQueue = DefaultEventQueue
	}
}

// Transmitter отправляет одну рассылку; результат приходит позже через SendDone.
type Transmitter interface {
	Send(payload []byte) error
}

// Deps — внешние службы узла. Diag, Metrics и Echo могут быть nil.
type Deps struct {
	Timer   timer.Service
	Tx      Transmitter
	Diag    diag.Sink
	Metrics *metrics.Node
	Echo    io.Writer // куда печатать подтверждения консольных команд
}

// Status — снимок состояния узла.
type Status struct {
	Addr       uint16
	Seed       uint16
	Raw        wordclock.Time
	Corrected  wordclock.Time
	Offset     int16
	SkewPeriod uint16
	Mode       syncmsg.Mode
	Monitoring bool
	Threshold  uint16
}

// Node — один узел синхронизации.
type Node struct {
	cfg     Config
	timer   timer.Service
	tx      Transmitter
	diag    diag.Sink
	metrics *metrics.Node
	echo    io.Writer

	events chan Event

	// Принадлежат циклу событий.
	// highAdj — сдвиг старшего слова относительно числа переполнений счётчика:
	// сумма всех выравниваний, переносов и заёмов.
	highAdj   uint16
	offset    int16
	mode      syncmsg.Mode
	offsetCtl *servo.OffsetController
	skew      *servo.SkewController
	sched     *sched.Scheduler
	inflight  syncmsg.Opcode
	alarms    []timer.Handle
	skewAlarm timer.Handle
	drift     map[uint16]*peerDrift

	mu      sync.Mutex
	snap    Status
	snapAdj uint16
}

// New создаёт узел. Будильники регистрирует Start.
func New(cfg Config, deps Deps) *Node {
	cfg.applyDefaults()
	m := deps.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	d := deps.Diag
	if d == nil {
		d = diag.Discard
	}
	n := &Node{
		cfg:       cfg,
		timer:     deps.Timer,
		tx:        deps.Tx,
		diag:      d,
		metrics:   m,
		echo:      deps.Echo,
		events:    make(chan Event, cfg.EventQueue),
		mode:      cfg.Mode,
		offsetCtl: servo.NewOffsetController(cfg.MaxHighStep),
		skew:      servo.NewSkewController(cfg.InitialSkewPeriod, cfg.MinSkewPeriod, cfg.MaxSkewPeriod),
		sched:     sched.New(sched.NewXorShift16(cfg.Seed), cfg.Threshold),
		drift:     make(map[uint16]*peerDrift),
	}
	n.sched.Monitoring = cfg.Monitoring
	n.publish()
	return n
}

// Addr возвращает адрес узла.
func (n *Node) Addr() uint16 { return n.cfg.Addr }

// Start регистрирует три будильника: расписание рассылок (первый раз через seed тиков),
// переполнение младшего слова и коррекцию скорости.
func (n *Node) Start() {
	first := uint32(n.cfg.Seed)
	if first == 0 {
		first = n.cfg.SchedulingPeriod
	}
	sa := n.timer.StartRecurring(first, n.cfg.SchedulingPeriod, func() { n.post(Event{Kind: SchedulingTick}) })

	toWrap := uint32(overflowPeriod - uint32(n.timer.Now()))
	oa := n.timer.StartRecurring(toWrap, overflowPeriod, func() { n.post(Event{Kind: OverflowTick}) })

	n.skewAlarm = n.timer.StartRecurring(n.cfg.SkewFirstFire, uint32(n.skew.Period), func() { n.post(Event{Kind: SkewTick}) })
	n.alarms = []timer.Handle{sa, oa, n.skewAlarm}
	logger.Info("node %d: mode %v, seed %#04x, threshold %#04x", n.cfg.Addr, n.mode, n.cfg.Seed, n.sched.Threshold())
}

// Stop снимает будильники.
func (n *Node) Stop() {
	for _, h := range n.alarms {
		n.timer.Stop(h)
	}
	n.alarms = nil
}

// Run запускает будильники и обрабатывает события до отмены ctx.
func (n *Node) Run(ctx context.Context) error {
	n.Start()
	defer n.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-n.events:
			n.Handle(ev)
		}
	}
}

// Drain обрабатывает все события, уже стоящие в очереди. Для тестов и симуляции.
func (n *Node) Drain() int {
	handled := 0
	for {
		select {
		case ev := <-n.events:
			n.Handle(ev)
			handled++
		default:
			return handled
		}
	}
}

// Receive — приёмник радиокадров (radio.ReceiveFunc). Отметка времени берётся сразу.
func (n *Node) Receive(payload []byte, src uint16) {
	n.post(Event{Kind: FrameReceived, Payload: payload, Src: src, Capture: n.timer.Ticks()})
}

// ConsoleInput — приёмник байтов консоли (console.ByteFunc).
func (n *Node) ConsoleInput(b byte) {
	n.post(Event{Kind: ConsoleByte, Byte: b})
}

// SendDone сообщает итог отправки; подходит как done-функция radio.Sender.
func (n *Node) SendDone(err error) {
	if err != nil {
		n.post(Event{Kind: SendError, Err: err})
		return
	}
	n.post(Event{Kind: SendComplete})
}

func (n *Node) post(ev Event) {
	select {
	case n.events <- ev:
	default:
		n.metrics.EventsDropped.Inc()
		logger.Debug("node %d: queue full, %v dropped", n.cfg.Addr, ev.Kind)
	}
}

// Handle обрабатывает одно событие. Вызывается только из цикла событий.
func (n *Node) Handle(ev Event) {
	switch ev.Kind {
	case SchedulingTick:
		if n.sched.OnSchedulingTick() == sched.BroadcastMode {
			n.broadcast(n.mode.Opcode())
		}
	case OverflowTick:
		if n.sched.OnOverflowTick() == sched.BroadcastMonitor {
			n.broadcast(syncmsg.OpMonitor)
		}
	case SkewTick:
		n.onSkewTick()
	case FrameReceived:
		n.onReceive(ev)
	case ConsoleByte:
		n.onConsole(ev.Byte)
	case SendComplete:
		n.metrics.BroadcastsSent.Inc()
		n.inflight = 0
	case SendError:
		n.onSendFailed(ev.Err)
	}
	n.publish()
}

func (n *Node) onSendFailed(err error) {
	n.metrics.BroadcastFailures.Inc()
	logger.Debug("node %d: broadcast %v failed: %v", n.cfg.Addr, n.inflight, err)
	if n.inflight != syncmsg.OpMonitor {
		n.sched.RetryNext()
	}
	n.inflight = 0
}

func (n *Node) onSkewTick() {
	cur := n.rawNow().High
	p := servo.Phase{High: cur, Offset: n.offset}
	n.skew.OnTick(&p)
	n.apply(cur, p)
}

// rawAt — сырое логическое время для значения полного счётчика.
func (n *Node) rawAt(ticks uint64) wordclock.Time {
	return compose(ticks, n.highAdj)
}

func compose(ticks uint64, adj uint16) wordclock.Time {
	return wordclock.New(uint16(ticks>>16)+adj, uint16(ticks))
}

func (n *Node) rawNow() wordclock.Time {
	return n.rawAt(n.timer.Ticks())
}

// apply переносит результат регулятора (фаза, посчитанная от старшего слова cur) в узел.
func (n *Node) apply(cur uint16, p servo.Phase) {
	n.highAdj += p.High - cur
	n.offset = p.Offset
}

// publish обновляет снимок состояния и метрики.
func (n *Node) publish() {
	n.mu.Lock()
	n.snap = Status{
		Addr:       n.cfg.Addr,
		Seed:       n.cfg.Seed,
		Offset:     n.offset,
		SkewPeriod: n.skew.Period,
		Mode:       n.mode,
		Monitoring: n.sched.Monitoring,
		Threshold:  n.sched.Threshold(),
	}
	n.snapAdj = n.highAdj
	n.mu.Unlock()

	n.metrics.Offset.Set(float64(n.offset))
	n.metrics.SkewPeriod.Set(float64(n.skew.Period))
	n.metrics.SyncMode.Set(float64(n.mode.Opcode()))
	if n.timer != nil {
		n.metrics.HighWord.Set(float64(n.rawNow().High))
	}
}

// Status возвращает снимок состояния; безопасно из любой горутины.
// Сдвиг старшего слова и Offset берутся из одного снимка, счётчик — текущий.
func (n *Node) Status() Status {
	n.mu.Lock()
	s := n.snap
	adj := n.snapAdj
	n.mu.Unlock()
	s.Raw = compose(n.timer.Ticks(), adj)
	s.Corrected = s.Raw.Add(s.Offset)
	return s
}
