//go:build linux

package radio

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// enableBroadcast выставляет SO_BROADCAST: без него ядро отвергает отправку на 255.255.255.255.
func enableBroadcast(conn net.PacketConn) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return fmt.Errorf("unexpected conn type %T", conn)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return err
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
