package radio

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/libp2p/go-reuseport"

	"github.com/saveriob/RandSync/internal/logger"
)

const udpReadTimeout = 500 * time.Millisecond

// UDPConfig — параметры UDP-транспорта.
type UDPConfig struct {
	Addr      uint16 // адрес узла
	Listen    string // локальный адрес, например ":20001"
	Broadcast string // адрес рассылки, например "255.255.255.255:20001"
	// Reject, если задан, получает ошибки разбора входящих кадров.
	Reject func(err error)
}

// UDP — эфир поверх широковещательного UDP. Сокет открывается с SO_REUSEPORT,
// поэтому несколько узлов на одном хосте слушают один порт и все получают рассылку.
type UDP struct {
	cfg   UDPConfig
	conn  net.PacketConn
	bcast *net.UDPAddr
}

// ListenUDP открывает сокет и включает SO_BROADCAST.
func ListenUDP(cfg UDPConfig) (*UDP, error) {
	bcast, err := net.ResolveUDPAddr("udp4", cfg.Broadcast)
	if err != nil {
		return nil, fmt.Errorf("resolve broadcast %s: %w", cfg.Broadcast, err)
	}
	conn, err := reuseport.ListenPacket("udp4", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	if err := enableBroadcast(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable broadcast: %w", err)
	}
	return &UDP{cfg: cfg, conn: conn, bcast: bcast}, nil
}

// Addr возвращает адрес узла.
func (u *UDP) Addr() uint16 {
	return u.cfg.Addr
}

// LocalAddr возвращает адрес сокета.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Broadcast отправляет кадр на адрес рассылки.
func (u *UDP) Broadcast(payload []byte) error {
	frame, err := EncodeFrame(BroadcastAddr, u.cfg.Addr, payload)
	if err != nil {
		return err
	}
	_, err = u.conn.WriteTo(frame, u.bcast)
	return err
}

// Serve читает кадры до отмены ctx. Свои кадры и кадры чужим адресатам отбрасываются.
func (u *UDP) Serve(ctx context.Context, fn ReceiveFunc) error {
	buf := make([]byte, 2048)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := u.conn.SetReadDeadline(time.Now().Add(udpReadTimeout)); err != nil {
			return err
		}
		n, from, err := u.conn.ReadFrom(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			logger.Error("radio: read: %v", err)
			continue
		}
		f, err := DecodeFrame(buf[:n])
		if err != nil {
			logger.Debug("radio: frame from %v: %v", from, err)
			if u.cfg.Reject != nil {
				u.cfg.Reject(err)
			}
			continue
		}
		if !accept(f, u.cfg.Addr) {
			continue
		}
		payload := make([]byte, len(f.Payload))
		copy(payload, f.Payload)
		fn(payload, f.Src)
	}
}

// Close закрывает сокет.
func (u *UDP) Close() error {
	return u.conn.Close()
}
