package node

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/saveriob/RandSync/internal/console"
	"github.com/saveriob/RandSync/internal/diag"
	"github.com/saveriob/RandSync/internal/logger"
	"github.com/saveriob/RandSync/internal/servo"
	"github.com/saveriob/RandSync/internal/syncmsg"
	"github.com/saveriob/RandSync/internal/timer"
	"github.com/saveriob/RandSync/internal/wordclock"
)

// maxDriftPeers — сколько соседей одновременно отслеживает оценка ухода частоты.
const maxDriftPeers = 32

// peerDrift — оценка ухода частоты относительно одного соседа.
type peerDrift struct {
	est  servo.DriftEstimator
	seen uint64 // счётчик последней выборки
}

// exchange — принятая метка соседа и наше скорректированное время её приёма.
type exchange struct {
	peer   uint16
	remote wordclock.Time
	local  wordclock.Time
	at     uint64 // полный счётчик в момент приёма
}

// BuildOutgoing собирает сообщение с текущим скорректированным временем.
func (n *Node) BuildOutgoing(op syncmsg.Opcode) []byte {
	return syncmsg.Encode(op, n.rawNow().Add(n.offset))
}

func (n *Node) broadcast(op syncmsg.Opcode) {
	payload := n.BuildOutgoing(op)
	if err := n.tx.Send(payload); err != nil {
		// Занятый передатчик: рассылка теряется, повтора нет.
		n.metrics.BroadcastFailures.Inc()
		logger.Debug("node %d: broadcast %v not sent: %v", n.cfg.Addr, op, err)
		return
	}
	n.inflight = op
}

func (n *Node) onReceive(ev Event) {
	msg, err := syncmsg.Decode(ev.Payload)
	if err != nil {
		n.metrics.FramesRejected.Inc()
		logger.Debug("node %d: frame from %d rejected: %v", n.cfg.Addr, ev.Src, err)
		return
	}
	n.metrics.FramesReceived.Inc()

	raw := n.rawAt(ev.Capture)
	x := exchange{
		peer:   ev.Src,
		remote: msg.Time,
		local:  raw.Add(n.offset).Add(-n.cfg.LinkLatency),
		at:     ev.Capture,
	}
	switch msg.Op {
	case syncmsg.OpSkew:
		n.onSkew(x)
	case syncmsg.OpOffset:
		n.onOffset(x, syncmsg.ModeOffset)
	case syncmsg.OpNone:
		n.adopt(syncmsg.ModeNone, x.peer)
	case syncmsg.OpMonitor:
		n.onMonitor(x)
	}
}

// onSkew подстраивает период коррекции скорости, затем выполняет шаг смещения.
func (n *Node) onSkew(x exchange) {
	if n.offsetCtl.Reachable(x.local, x.remote) {
		u := n.skew.OnPeerTimestamp(x.local.Low, x.remote.Low)
		if u.New != u.Old {
			n.timer.UpdatePeriod(n.skewAlarm, uint32(u.New))
		}
		n.metrics.SkewCorrections.Inc()
		n.diag.Emit(diag.Record{
			Kind:    diag.KindSkew,
			Peer:    x.peer,
			Self:    n.cfg.Addr,
			SkewD:   u.D,
			SkewOld: u.Old,
			SkewNew: u.New,
		})
	}
	n.onOffset(x, syncmsg.ModeOffsetAndSkew)
}

// onOffset — шаг регулятора смещения, запись RUN, принятие режима соседа.
func (n *Node) onOffset(x exchange, mode syncmsg.Mode) {
	cur := n.rawNow().High
	p := servo.Phase{High: cur, Offset: n.offset}
	if _, err := n.offsetCtl.OnPeerTimestamp(&p, x.local, x.remote); err != nil {
		if errors.Is(err, servo.ErrUnsynchronizable) {
			n.metrics.UnsynchronizablePeers.Inc()
		}
		logger.Warn("node %d: peer %d (%v vs local %v): %v", n.cfg.Addr, x.peer, x.remote, x.local, err)
	} else {
		n.apply(cur, p)
		n.metrics.OffsetCorrections.Inc()
	}
	n.diag.Emit(diag.Record{
		Kind:   diag.KindRun,
		Peer:   x.peer,
		Self:   n.cfg.Addr,
		Remote: x.remote,
		Local:  x.local,
	})
	n.adopt(mode, x.peer)
}

// onMonitor пишет запись MON и обновляет оценку ухода частоты относительно соседа.
func (n *Node) onMonitor(x exchange) {
	delta := int16(x.local.Low - x.remote.Low)
	n.diag.Emit(diag.Record{
		Kind:   diag.KindMonitor,
		Peer:   x.peer,
		Self:   n.cfg.Addr,
		Remote: x.remote,
		Local:  x.local,
		Delta:  delta,
	})
	pd := n.driftFor(x.peer)
	pd.seen = x.at
	if ppm, ok := pd.est.Add(float64(x.at)/timer.TickHz, delta); ok {
		n.metrics.PeerDrift.WithLabelValues(strconv.Itoa(int(x.peer))).Set(ppm)
		logger.Debug("node %d: drift vs %d %.1f ppm", n.cfg.Addr, x.peer, ppm)
	}
}

// driftFor возвращает оценку для peer. Когда соседей больше maxDriftPeers,
// оценка того, кого дольше всех не слышали, сбрасывается и отдаётся новому.
func (n *Node) driftFor(peer uint16) *peerDrift {
	if pd, ok := n.drift[peer]; ok {
		return pd
	}
	if len(n.drift) < maxDriftPeers {
		pd := &peerDrift{}
		n.drift[peer] = pd
		return pd
	}
	var (
		oldest uint16
		pd     *peerDrift
	)
	for p, d := range n.drift {
		if pd == nil || d.seen < pd.seen {
			oldest, pd = p, d
		}
	}
	delete(n.drift, oldest)
	n.metrics.PeerDrift.DeleteLabelValues(strconv.Itoa(int(oldest)))
	logger.Debug("node %d: drift of %d evicted for %d", n.cfg.Addr, oldest, peer)
	pd.est.Reset()
	n.drift[peer] = pd
	return pd
}

func (n *Node) adopt(mode syncmsg.Mode, peer uint16) {
	if n.mode == mode {
		return
	}
	logger.Info("node %d: sync mode %v (from %d)", n.cfg.Addr, mode, peer)
	n.mode = mode
}

func (n *Node) onConsole(b byte) {
	c, ok := console.Parse(b)
	if !ok {
		return
	}
	if n.echo != nil {
		fmt.Fprintf(n.echo, " %s\n", c.Echo)
	} else {
		logger.Info("node %d: %s", n.cfg.Addr, c.Echo)
	}
	switch c.Action {
	case console.SendMonitor:
		n.broadcast(syncmsg.OpMonitor)
	case console.EnableMonitoring:
		n.sched.Monitoring = true
	case console.SetMode:
		n.mode = c.Mode
		n.broadcast(c.Mode.Opcode())
	}
}
