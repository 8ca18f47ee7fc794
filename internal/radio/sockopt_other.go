//go:build !linux

package radio

import "net"

// enableBroadcast — заглушка на не-Linux: рассылка на 255.255.255.255 может быть недоступна.
func enableBroadcast(conn net.PacketConn) error {
	_ = conn
	return nil
}
