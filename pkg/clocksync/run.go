// Package clocksync собирает узел синхронизации из конфига и запускает его.
package clocksync

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/saveriob/RandSync/internal/config"
	"github.com/saveriob/RandSync/internal/console"
	"github.com/saveriob/RandSync/internal/diag"
	"github.com/saveriob/RandSync/internal/logger"
	"github.com/saveriob/RandSync/internal/metrics"
	"github.com/saveriob/RandSync/internal/node"
	"github.com/saveriob/RandSync/internal/radio"
	"github.com/saveriob/RandSync/internal/syncmsg"
	"github.com/saveriob/RandSync/internal/timer"
	"github.com/saveriob/RandSync/internal/uid"
)

const (
	statusInterval  = 10 * time.Second
	shutdownTimeout = 2 * time.Second
)

// Options — окружение демона; нулевые поля заменяются процессными значениями.
type Options struct {
	Medium   *radio.Medium        // эфир для radio.transport: loopback
	Registry *prometheus.Registry // куда регистрировать метрики
	Stdout   io.Writer            // диагностические записи при diagnostics.stdout
	Stdin    io.Reader            // консоль при console.stdin
}

// Daemon — узел со всеми его службами.
type Daemon struct {
	cfg     *config.Config
	node    *node.Node
	timer   *timer.Host
	radio   radio.Transport
	sender  *radio.Sender
	console console.Input
	hub     *diag.Hub
	reg     *prometheus.Registry
	metrics *metrics.Node
}

// RunDaemon открывает узел по cfg и работает до отмены ctx.
func RunDaemon(ctx context.Context, cfg *config.Config) error {
	d, err := Open(cfg, Options{})
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Run(ctx)
}

// Open читает уникальный номер, открывает транспорт и консоль и собирает узел.
func Open(cfg *config.Config, opt Options) (*Daemon, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	logger.Quiet = cfg.Log.Quiet
	if err := logger.SetLevel(cfg.Log.Level); err != nil {
		return nil, err
	}
	mode, err := syncmsg.ParseMode(cfg.Sync.Mode)
	if err != nil {
		return nil, err
	}

	src, err := uid.New(cfg.Node.UniqueID, cfg.Node.OneWireBus, cfg.Node.Serial)
	if err != nil {
		return nil, err
	}
	serial, err := src.ReadSerial()
	if err != nil {
		return nil, fmt.Errorf("unique id: %w", err)
	}
	addr := serial.Address()
	if cfg.Node.Address != 0 {
		addr = cfg.Node.Address
	}

	d := &Daemon{cfg: cfg, reg: opt.Registry}
	if d.reg == nil {
		d.reg = prometheus.NewRegistry()
		d.reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	d.metrics = metrics.New(d.reg)

	switch cfg.Radio.Transport {
	case "loopback":
		m := opt.Medium
		if m == nil {
			m = radio.NewMedium()
		}
		p, err := m.Attach(addr)
		if err != nil {
			return nil, err
		}
		d.radio = p
	default:
		u, err := radio.ListenUDP(radio.UDPConfig{
			Addr:      addr,
			Listen:    cfg.Radio.Listen,
			Broadcast: cfg.Radio.Broadcast,
			Reject:    func(error) { d.metrics.FramesRejected.Inc() },
		})
		if err != nil {
			return nil, err
		}
		logger.Info("clocksync: udp on %v, broadcast to %s", u.LocalAddr(), cfg.Radio.Broadcast)
		d.radio = u
	}

	var echo io.Writer
	sinks := []diag.Sink{}
	if cfg.Diagnostics.Stdout {
		w := opt.Stdout
		if w == nil {
			w = os.Stdout
		}
		sinks = append(sinks, diag.NewWriter(w))
	}
	switch {
	case cfg.Console.Device != "":
		s, err := console.OpenSerial(cfg.Console.Device, cfg.Console.Baud)
		if err != nil {
			d.Close()
			return nil, err
		}
		d.console = s
		echo = s
		sinks = append(sinks, diag.NewWriter(s))
	case cfg.Console.Stdin:
		r := opt.Stdin
		if r == nil {
			r = os.Stdin
		}
		d.console = console.NewReader(r)
	}
	if cfg.Diagnostics.WebSocket != "" {
		d.hub = diag.NewHub()
		sinks = append(sinks, d.hub)
	}

	d.timer = timer.NewHost()
	var n *node.Node
	d.sender = radio.NewSender(d.radio, func(err error) { n.SendDone(err) })
	n = node.New(node.Config{
		Addr:              addr,
		Seed:              serial.Seed(),
		Mode:              mode,
		Monitoring:        cfg.Sync.Monitoring,
		SchedulingPeriod:  cfg.Sync.SchedulingPeriod,
		SkewFirstFire:     cfg.Sync.SkewFirstFire,
		LinkLatency:       cfg.Sync.LinkLatency,
		Threshold:         cfg.Sync.BroadcastThreshold,
		InitialSkewPeriod: cfg.Sync.InitialSkewPeriod,
		MinSkewPeriod:     cfg.Sync.MinSkewPeriod,
		MaxSkewPeriod:     cfg.Sync.MaxSkewPeriod,
		MaxHighStep:       cfg.Sync.MaxHighStep,
		EventQueue:        cfg.Sync.EventQueue,
	}, node.Deps{
		Timer:   d.timer,
		Tx:      d.sender,
		Diag:    diag.Tee(sinks...),
		Metrics: d.metrics,
		Echo:    echo,
	})
	d.node = n
	logger.Info("clocksync: serial %v, address %d, transport %s", serial, addr, cfg.Radio.Transport)
	return d, nil
}

// Status возвращает снимок состояния узла.
func (d *Daemon) Status() node.Status {
	return d.node.Status()
}

// Run запускает узел, приём, передачу, консоль и HTTP-серверы; ждёт отмены ctx
// или первой ошибки любой из служб.
func (d *Daemon) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return d.node.Run(ctx) })
	g.Go(func() error { return d.sender.Run(ctx) })
	g.Go(func() error { return d.radio.Serve(ctx, d.node.Receive) })
	if d.console != nil {
		g.Go(func() error { return d.console.Serve(ctx, d.node.ConsoleInput) })
	}
	if addr := d.cfg.Metrics.Listen; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(d.reg, promhttp.HandlerOpts{}))
		serve(ctx, g, addr, mux)
	}
	if addr := d.cfg.Diagnostics.WebSocket; addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/diag", d.hub)
		serve(ctx, g, addr, mux)
	}
	g.Go(func() error {
		t := time.NewTicker(statusInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-t.C:
				s := d.node.Status()
				logger.Debug("status: corrected %v offset %d skew %d mode %v",
					s.Corrected, s.Offset, s.SkewPeriod, s.Mode)
			}
		}
	})
	return g.Wait()
}

func serve(ctx context.Context, g *errgroup.Group, addr string, h http.Handler) {
	srv := &http.Server{Addr: addr, Handler: h, ReadHeaderTimeout: 5 * time.Second}
	g.Go(func() error {
		logger.Info("clocksync: http on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
}

// Close освобождает транспорт, консоль, таймер и websocket-клиентов.
func (d *Daemon) Close() error {
	var errs []error
	if d.radio != nil {
		errs = append(errs, d.radio.Close())
	}
	if d.console != nil {
		errs = append(errs, d.console.Close())
	}
	if d.timer != nil {
		errs = append(errs, d.timer.Close())
	}
	if d.hub != nil {
		errs = append(errs, d.hub.Close())
	}
	return errors.Join(errs...)
}
