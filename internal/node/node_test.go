package node

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/saveriob/RandSync/internal/diag"
	"github.com/saveriob/RandSync/internal/metrics"
	"github.com/saveriob/RandSync/internal/radio"
	"github.com/saveriob/RandSync/internal/servo"
	"github.com/saveriob/RandSync/internal/syncmsg"
	"github.com/saveriob/RandSync/internal/timer"
	"github.com/saveriob/RandSync/internal/wordclock"
)

// fakeTx запоминает рассылки; err возвращается из Send.
type fakeTx struct {
	sent [][]byte
	err  error
}

func (f *fakeTx) Send(p []byte) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, p)
	return nil
}

type fixture struct {
	n    *Node
	tm   *timer.Manual
	tx   *fakeTx
	rec  *diag.Memory
	m    *metrics.Node
	echo *bytes.Buffer
}

func ticksOf(t wordclock.Time) uint64 {
	return uint64(t.High)<<16 | uint64(t.Low)
}

func newFixture(t *testing.T, cfg Config, now wordclock.Time) *fixture {
	t.Helper()
	f := &fixture{
		tm:   timer.NewManual(ticksOf(now)),
		tx:   &fakeTx{},
		rec:  &diag.Memory{},
		m:    metrics.New(nil),
		echo: &bytes.Buffer{},
	}
	if cfg.Addr == 0 {
		cfg.Addr = 7
	}
	if cfg.LinkLatency == 0 {
		cfg.LinkLatency = DefaultLinkLatency
	}
	f.n = New(cfg, Deps{Timer: f.tm, Tx: f.tx, Diag: f.rec, Metrics: f.m, Echo: f.echo})
	return f
}

// receive доставляет сообщение от peer с текущим временем таймера как отметкой приёма.
func (f *fixture) receive(op syncmsg.Opcode, peer uint16, remote wordclock.Time) {
	f.n.Receive(syncmsg.Encode(op, remote), peer)
	f.n.Drain()
}

func TestReceive_OffsetHalvesDifference(t *testing.T) {
	// Захват (5, 1035): с поправкой на задержку линии наше время (5, 1000).
	f := newFixture(t, Config{}, wordclock.New(5, 1035))
	f.receive(syncmsg.OpOffset, 3, wordclock.New(5, 11000))

	st := f.n.Status()
	if st.Offset != 5000 {
		t.Errorf("offset = %d, want 5000", st.Offset)
	}
	if st.Raw.High != 5 {
		t.Errorf("high = %d, want 5", st.Raw.High)
	}
	if st.Mode != syncmsg.ModeOffset {
		t.Errorf("mode = %v, want offset", st.Mode)
	}
	recs := f.rec.Records()
	if len(recs) != 1 || recs[0].Kind != diag.KindRun {
		t.Fatalf("records = %v, want one RUN", recs)
	}
	want := "RUN, 3, 7, 5, 11000, 5, 1000"
	if got := recs[0].String(); got != want {
		t.Errorf("record = %q, want %q", got, want)
	}
	if got := testutil.ToFloat64(f.m.OffsetCorrections); got != 1 {
		t.Errorf("offset corrections = %v, want 1", got)
	}
}

func TestReceive_OffsetAlignsHighWord(t *testing.T) {
	f := newFixture(t, Config{}, wordclock.New(5, 35))
	f.receive(syncmsg.OpOffset, 3, wordclock.New(9, 0))

	st := f.n.Status()
	if st.Raw.High != 9 || st.Offset != 0 {
		t.Errorf("raw = %v offset %d, want high 9 offset 0", st.Raw, st.Offset)
	}
	// Следующее переполнение продолжает от выровненного слова.
	f.tm.Advance(1 << 16)
	if got := f.n.Status().Raw.High; got != 10 {
		t.Errorf("high after wrap = %d, want 10", got)
	}
}

func TestReceive_OffsetAcrossLowWrap(t *testing.T) {
	// Захват (6, 29): наше время (5, 65530), сосед на 16 тиков впереди уже в слове 6.
	f := newFixture(t, Config{}, wordclock.New(6, 29))
	before := f.n.Status().Corrected
	f.receive(syncmsg.OpOffset, 3, wordclock.New(6, 10))

	st := f.n.Status()
	if st.Raw.High != 6 || st.Offset != 8 {
		t.Errorf("raw %v offset %d, want high 6 offset 8", st.Raw, st.Offset)
	}
	if jump := st.Corrected.Sub(before); jump != 8 {
		t.Errorf("скорректированное время сдвинулось на %d, want 8", jump)
	}
	if got, want := f.rec.Records()[0].String(), "RUN, 3, 7, 6, 10, 5, 65530"; got != want {
		t.Errorf("record = %q, want %q", got, want)
	}
}

func TestReceive_ZeroLinkLatency(t *testing.T) {
	tm := timer.NewManual(ticksOf(wordclock.New(5, 1000)))
	rec := &diag.Memory{}
	n := New(Config{Addr: 7}, Deps{Timer: tm, Tx: &fakeTx{}, Diag: rec})
	n.Receive(syncmsg.Encode(syncmsg.OpOffset, wordclock.New(5, 11000)), 3)
	n.Drain()

	if st := n.Status(); st.Offset != 5000 {
		t.Errorf("offset = %d, want 5000", st.Offset)
	}
	if got, want := rec.Records()[0].String(), "RUN, 3, 7, 5, 11000, 5, 1000"; got != want {
		t.Errorf("record = %q, want %q", got, want)
	}
}

func TestStatus_ConsistentSnapshot(t *testing.T) {
	f := newFixture(t, Config{}, wordclock.New(5, 1000))
	// Фаза изменена, но ещё не опубликована: старшее слово и Offset остаются из одного снимка.
	f.n.apply(5, servo.Phase{High: 9, Offset: 100})
	if st := f.n.Status(); st.Raw.High != 5 || st.Offset != 0 {
		t.Errorf("до publish: raw %v offset %d, want high 5 offset 0", st.Raw, st.Offset)
	}
	f.n.publish()
	st := f.n.Status()
	if st.Raw.High != 9 || st.Offset != 100 {
		t.Errorf("после publish: raw %v offset %d, want high 9 offset 100", st.Raw, st.Offset)
	}
	if st.Corrected != wordclock.New(9, 1100) {
		t.Errorf("corrected = %v, want 9:1100", st.Corrected)
	}
}

func TestReceive_SkewThenOffset(t *testing.T) {
	f := newFixture(t, Config{Mode: syncmsg.ModeNone}, wordclock.New(1, 1035))
	f.n.Start()
	defer f.n.Stop()

	f.receive(syncmsg.OpSkew, 3, wordclock.New(1, 1100))

	st := f.n.Status()
	if st.SkewPeriod != 21950 {
		t.Errorf("skew period = %d, want 21950", st.SkewPeriod)
	}
	if got := f.tm.Period(f.n.skewAlarm); got != 21950 {
		t.Errorf("skew alarm period = %d, want 21950", got)
	}
	if st.Offset != 50 {
		t.Errorf("offset = %d, want 50", st.Offset)
	}
	if st.Mode != syncmsg.ModeOffsetAndSkew {
		t.Errorf("mode = %v, want skew", st.Mode)
	}
	recs := f.rec.Records()
	if len(recs) != 2 || recs[0].Kind != diag.KindSkew || recs[1].Kind != diag.KindRun {
		t.Fatalf("records = %v, want SKE then RUN", recs)
	}
	if got, want := recs[0].String(), "SKE, 3, 7, 100, 20000, 21950"; got != want {
		t.Errorf("skew record = %q, want %q", got, want)
	}
}

func TestReceive_NoneOnlyAdoptsMode(t *testing.T) {
	f := newFixture(t, Config{Mode: syncmsg.ModeOffsetAndSkew}, wordclock.New(2, 500))
	before := f.n.Status()
	f.receive(syncmsg.OpNone, 3, wordclock.New(40, 9000))

	st := f.n.Status()
	if st.Offset != before.Offset || st.Raw != before.Raw || st.SkewPeriod != before.SkewPeriod {
		t.Errorf("clock changed: before %+v after %+v", before, st)
	}
	if st.Mode != syncmsg.ModeNone {
		t.Errorf("mode = %v, want none", st.Mode)
	}
	if recs := f.rec.Records(); len(recs) != 0 {
		t.Errorf("records = %v, want none", recs)
	}
}

func TestReceive_MonitorRecordsOnly(t *testing.T) {
	f := newFixture(t, Config{Mode: syncmsg.ModeOffset}, wordclock.New(2, 1035))
	f.receive(syncmsg.OpMonitor, 4, wordclock.New(2, 1200))

	st := f.n.Status()
	if st.Offset != 0 || st.Mode != syncmsg.ModeOffset {
		t.Errorf("state changed: %+v", st)
	}
	recs := f.rec.Records()
	if len(recs) != 1 || recs[0].Kind != diag.KindMonitor {
		t.Fatalf("records = %v, want one MON", recs)
	}
	if recs[0].Delta != -200 {
		t.Errorf("delta = %d, want -200", recs[0].Delta)
	}
	if got, want := recs[0].String(), "MON, 4, 7, 2, 1200, 2, 1000, -200"; got != want {
		t.Errorf("record = %q, want %q", got, want)
	}
}

func TestReceive_UnsynchronizablePeer(t *testing.T) {
	f := newFixture(t, Config{MaxHighStep: 16}, wordclock.New(100, 5000))
	f.n.Start()
	defer f.n.Stop()

	f.receive(syncmsg.OpSkew, 3, wordclock.New(200, 0))

	st := f.n.Status()
	if st.Raw.High != 100 || st.Offset != 0 {
		t.Errorf("clock changed: raw %v offset %d", st.Raw, st.Offset)
	}
	if st.SkewPeriod != 20000 {
		t.Errorf("skew period = %d, want unchanged 20000", st.SkewPeriod)
	}
	if st.Mode != syncmsg.ModeOffsetAndSkew {
		t.Errorf("mode = %v, want adopted skew", st.Mode)
	}
	if got := testutil.ToFloat64(f.m.UnsynchronizablePeers); got != 1 {
		t.Errorf("unsynchronizable = %v, want 1", got)
	}
}

func TestReceive_RejectsMalformed(t *testing.T) {
	f := newFixture(t, Config{}, wordclock.New(1, 0))
	f.n.Receive([]byte{0, 'o', 1}, 3)
	f.n.Receive([]byte{0, 'x', 1, 0, 1, 0}, 3)
	f.n.Drain()
	if got := testutil.ToFloat64(f.m.FramesRejected); got != 2 {
		t.Errorf("rejected = %v, want 2", got)
	}
	if got := testutil.ToFloat64(f.m.FramesReceived); got != 0 {
		t.Errorf("received = %v, want 0", got)
	}
}

func TestConsole_SetMode(t *testing.T) {
	f := newFixture(t, Config{}, wordclock.New(3, 100))
	f.n.ConsoleInput('o')
	f.n.ConsoleInput('\n')
	f.n.Drain()

	if st := f.n.Status(); st.Mode != syncmsg.ModeOffset {
		t.Errorf("mode = %v, want offset", st.Mode)
	}
	if len(f.tx.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.tx.sent))
	}
	msg, err := syncmsg.Decode(f.tx.sent[0])
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Op != syncmsg.OpOffset || msg.Time != wordclock.New(3, 100) {
		t.Errorf("sent %+v, want 'o' at 3:100", msg)
	}
	if !strings.Contains(f.echo.String(), "offset correction (broadcasted to all nodes)") {
		t.Errorf("echo = %q", f.echo.String())
	}
}

func TestConsole_MonitoringOnOverflow(t *testing.T) {
	f := newFixture(t, Config{Threshold: 1}, wordclock.New(3, 65000))
	f.n.Start()
	defer f.n.Stop()

	f.n.ConsoleInput('l')
	f.n.Drain()
	f.tm.Advance(600)
	f.n.Drain()

	if len(f.tx.sent) != 1 {
		t.Fatalf("sent %d messages, want 1", len(f.tx.sent))
	}
	msg, _ := syncmsg.Decode(f.tx.sent[0])
	if msg.Op != syncmsg.OpMonitor || msg.Time.High != 4 {
		t.Errorf("sent %+v, want 'm' in high word 4", msg)
	}
}

func TestBroadcast_CorrectedTime(t *testing.T) {
	f := newFixture(t, Config{}, wordclock.New(2, 65530))
	f.n.offset = 10
	got, err := syncmsg.Decode(f.n.BuildOutgoing(syncmsg.OpSkew))
	if err != nil {
		t.Fatal(err)
	}
	if got.Time != wordclock.New(3, 4) {
		t.Errorf("time = %v, want 3:4", got.Time)
	}
}

func TestSendError_RetriesModeBroadcast(t *testing.T) {
	// Порог 1 не пропускает ни одного значения генератора: рассылка только по повтору.
	f := newFixture(t, Config{Threshold: 1, Mode: syncmsg.ModeOffset}, wordclock.New(1, 0))
	f.n.ConsoleInput('o')
	f.n.Drain()
	f.n.SendDone(errors.New("no ack"))
	f.n.Drain()

	f.n.Handle(Event{Kind: SchedulingTick})
	if len(f.tx.sent) != 2 {
		t.Fatalf("sent %d messages, want retry", len(f.tx.sent))
	}
	f.n.Handle(Event{Kind: SchedulingTick})
	if len(f.tx.sent) != 2 {
		t.Errorf("retry repeated: sent %d", len(f.tx.sent))
	}
	if got := testutil.ToFloat64(f.m.BroadcastFailures); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}

func TestBroadcast_BusyNotRetried(t *testing.T) {
	f := newFixture(t, Config{Threshold: 1}, wordclock.New(1, 0))
	f.tx.err = radio.ErrBusy
	f.n.ConsoleInput('m')
	f.n.Drain()
	f.tx.err = nil
	f.n.Handle(Event{Kind: SchedulingTick})
	if len(f.tx.sent) != 0 {
		t.Errorf("sent %d, want 0", len(f.tx.sent))
	}
	if got := testutil.ToFloat64(f.m.BroadcastFailures); got != 1 {
		t.Errorf("failures = %v, want 1", got)
	}
}

func TestSkewTick_Borrow(t *testing.T) {
	f := newFixture(t, Config{}, wordclock.New(8, 0))
	f.n.offset = -32768
	f.n.Handle(Event{Kind: SkewTick})
	st := f.n.Status()
	if st.Offset != 32767 || st.Raw.High != 7 {
		t.Errorf("offset %d high %d, want 32767 and 7", st.Offset, st.Raw.High)
	}
	// Скорректированное время сдвинулось ровно на один тик назад.
	if st.Corrected != wordclock.New(7, 32767) {
		t.Errorf("corrected = %v", st.Corrected)
	}
}

func TestSkewTick_Periodic(t *testing.T) {
	f := newFixture(t, Config{Threshold: 1}, wordclock.New(1, 0))
	f.n.Start()
	defer f.n.Stop()

	f.tm.Advance(DefaultSkewFirstFire)
	f.n.Drain()
	if got := f.n.Status().Offset; got != -1 {
		t.Fatalf("offset after first skew tick = %d, want -1", got)
	}
	f.tm.Advance(20000)
	f.n.Drain()
	if got := f.n.Status().Offset; got != -2 {
		t.Errorf("offset after one period = %d, want -2", got)
	}
}

func TestQueue_DropsWhenFull(t *testing.T) {
	f := newFixture(t, Config{EventQueue: 1}, wordclock.New(1, 0))
	f.n.ConsoleInput('x')
	f.n.ConsoleInput('x')
	f.n.ConsoleInput('x')
	if got := testutil.ToFloat64(f.m.EventsDropped); got != 2 {
		t.Errorf("dropped = %v, want 2", got)
	}
	if n := f.n.Drain(); n != 1 {
		t.Errorf("drained %d, want 1", n)
	}
}

func TestStart_SchedulingPhase(t *testing.T) {
	f := newFixture(t, Config{Seed: 300, Threshold: 0xFFFF}, wordclock.New(1, 0))
	f.n.Start()
	defer f.n.Stop()

	f.tm.Advance(299)
	f.n.Drain()
	if len(f.tx.sent) != 0 {
		t.Fatalf("broadcast before first scheduling tick")
	}
	f.tm.Advance(1)
	f.n.Drain()
	if len(f.tx.sent) != 1 {
		t.Fatalf("sent %d, want 1 at tick seed", len(f.tx.sent))
	}
	f.n.SendDone(nil)
	f.tm.Advance(DefaultSchedulingPeriod)
	f.n.Drain()
	if len(f.tx.sent) != 2 {
		t.Errorf("sent %d, want 2 after one period", len(f.tx.sent))
	}
	if got := testutil.ToFloat64(f.m.BroadcastsSent); got != 1 {
		t.Errorf("sent counter = %v, want 1", got)
	}
}

func TestMonitor_PeerDrift(t *testing.T) {
	f := newFixture(t, Config{}, wordclock.New(1, 0))
	for i := 0; i < 12; i++ {
		f.tm.Advance(timer.TickHz)
		local := wordclock.FromTicks(uint32(f.tm.Ticks())).Add(-DefaultLinkLatency)
		// Сосед отстаёт на 33 тика за секунду: наши часы спешат ≈ на 1000 ppm.
		f.receive(syncmsg.OpMonitor, 4, local.Add(int16(-33*i)))
	}
	got := testutil.ToFloat64(f.m.PeerDrift.WithLabelValues("4"))
	if got < 990 || got > 1025 {
		t.Errorf("drift = %v ppm, want ≈1007", got)
	}
	if st := f.n.Status(); st.Offset != 0 {
		t.Errorf("monitoring changed offset: %d", st.Offset)
	}
}

func TestMonitor_DriftPeersBounded(t *testing.T) {
	f := newFixture(t, Config{}, wordclock.New(1, 0))
	for i := 0; i < 10; i++ {
		f.tm.Advance(timer.TickHz)
		f.receive(syncmsg.OpMonitor, 1, wordclock.New(1, uint16(100*i)))
	}
	if got := testutil.CollectAndCount(f.m.PeerDrift); got != 1 {
		t.Fatalf("drift series = %d, want 1", got)
	}
	for peer := uint16(2); peer <= maxDriftPeers+1; peer++ {
		f.tm.Advance(timer.TickHz)
		f.receive(syncmsg.OpMonitor, peer, wordclock.New(1, 0))
	}
	if len(f.n.drift) != maxDriftPeers {
		t.Errorf("tracked peers = %d, want %d", len(f.n.drift), maxDriftPeers)
	}
	if _, ok := f.n.drift[1]; ok {
		t.Error("peer 1 should be evicted as least recently seen")
	}
	if _, ok := f.n.drift[maxDriftPeers+1]; !ok {
		t.Error("newest peer should be tracked")
	}
	if got := testutil.CollectAndCount(f.m.PeerDrift); got != 0 {
		t.Errorf("drift series = %d, want 0 after eviction", got)
	}
}
