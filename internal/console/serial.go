package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

const serialReadTimeout = 500 * time.Millisecond

// Serial — консоль на последовательном порту: команды читаются, подтверждения и
// диагностические записи пишутся в тот же порт.
type Serial struct {
	port   *serial.Port
	device string
	wmu    sync.Mutex
}

// OpenSerial открывает последовательный порт.
func OpenSerial(device string, baud int) (*Serial, error) {
	if baud == 0 {
		baud = 115200
	}
	c := &serial.Config{
		Name:        device,
		Baud:        baud,
		ReadTimeout: serialReadTimeout,
	}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return &Serial{port: p, device: device}, nil
}

// Serve читает байты до отмены ctx.
func (s *Serial) Serve(ctx context.Context, fn ByteFunc) error {
	var buf [64]byte
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.port.Read(buf[:])
		for _, b := range buf[:n] {
			fn(b)
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("serial read %s: %w", s.device, err)
		}
	}
}

// Write пишет в порт; безопасен для вызова из разных горутин.
func (s *Serial) Write(p []byte) (int, error) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.port.Write(p)
}

// Close закрывает порт.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}
