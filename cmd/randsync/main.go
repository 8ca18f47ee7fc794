// randsync — узел децентрализованной синхронизации часов в широковещательной сети.
//
// Каждый узел в случайные моменты рассылает свою логическую метку времени;
// получатели подтягивают фазу (и, в режиме s, скорость) к соседу.
//
// Использование:
//
//	randsync -config randsync.yml              — запуск узла
//	randsync -stdin -mode o                    — команды оператора из stdin
//	randsync -console /dev/ttyUSB0 -monitor    — консоль на UART, мониторинг каждые 2 с
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/saveriob/RandSync/internal/config"
	"github.com/saveriob/RandSync/internal/logger"
	"github.com/saveriob/RandSync/pkg/clocksync"
)

func main() {
	configPath := flag.String("config", "", "путь к YAML конфигу (по умолчанию randsync.yml)")
	consoleDev := flag.String("console", "", "последовательный порт консоли (переопределяет config)")
	baud := flag.Int("baud", 0, "скорость порта консоли (переопределяет config)")
	stdin := flag.Bool("stdin", false, "читать команды оператора из stdin")
	mode := flag.String("mode", "", "начальный режим: n, o или s")
	monitor := flag.Bool("monitor", false, "рассылать мониторинговые метки на каждом переполнении")
	listen := flag.String("listen", "", "локальный UDP адрес (переопределяет config)")
	broadcast := flag.String("broadcast", "", "UDP адрес рассылки (переопределяет config)")
	metricsAddr := flag.String("metrics", "", "адрес HTTP для /metrics")
	diagWS := flag.String("diag-ws", "", "адрес HTTP для потока записей /diag")
	quiet := flag.Bool("quiet", false, "меньше вывода")
	debug := flag.Bool("debug", false, "отладочный журнал")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if *consoleDev != "" {
		cfg.Console.Device = *consoleDev
	}
	if *baud != 0 {
		cfg.Console.Baud = *baud
	}
	if *stdin {
		cfg.Console.Stdin = true
	}
	if *mode != "" {
		cfg.Sync.Mode = *mode
	}
	if *monitor {
		cfg.Sync.Monitoring = true
	}
	if *listen != "" {
		cfg.Radio.Listen = *listen
	}
	if *broadcast != "" {
		cfg.Radio.Broadcast = *broadcast
	}
	if *metricsAddr != "" {
		cfg.Metrics.Listen = *metricsAddr
	}
	if *diagWS != "" {
		cfg.Diagnostics.WebSocket = *diagWS
	}
	if *quiet {
		cfg.Log.Quiet = true
	}
	if *debug {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	runWithShutdown(cfg)
}

// loadConfig читает файл; без -config отсутствие randsync.yml не ошибка.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = "randsync.yml"
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return config.Default(), nil
		}
	}
	return config.Load(path)
}

// runWithShutdown запускает узел; по SIGINT/SIGTERM контекст отменяется и все службы останавливаются.
func runWithShutdown(cfg *config.Config) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("получен сигнал %v, завершение...", sig)
		cancel()
	}()

	err := clocksync.RunDaemon(ctx, cfg)
	logger.Sync()
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("%v", err)
		os.Exit(1)
	}
}
