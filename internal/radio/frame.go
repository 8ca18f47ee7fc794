package radio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Формат кадра (по мотивам CSMA MAC узла):
//
//	byte 0      — length: число байт после него (type + dst + src + payload + 2 байта контрольной суммы)
//	byte 1      — type: 0xAA данные
//	byte 2-3    — адрес получателя (big-endian), 0xFFFF — широковещательный
//	byte 4-5    — адрес отправителя (big-endian)
//	byte 6..    — полезная нагрузка
//	2 последних — контрольная сумма Флетчера (ckA, ckB) по байтам 1..конец нагрузки
const (
	BroadcastAddr    = 0xFFFF
	MaxPayload       = 100
	emptyFrameLength = 7
	headerLen        = 6
	TypeData         = 0xAA
)

var (
	ErrPayloadTooLong = errors.New("radio: payload too long")
	ErrMalformedFrame = errors.New("radio: malformed frame")
	ErrBusy           = errors.New("radio: transmitter busy")
)

// Frame — кадр канального уровня.
type Frame struct {
	Type    byte
	Dst     uint16
	Src     uint16
	Payload []byte
}

// Checksum — 8-битная контрольная сумма Флетчера.
func Checksum(data []byte) (ckA, ckB uint8) {
	for _, b := range data {
		ckA += b
		ckB += ckA
	}
	return ckA, ckB
}

// EncodeFrame собирает кадр данных.
func EncodeFrame(dst, src uint16, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, fmt.Errorf("%w: %d > %d", ErrPayloadTooLong, len(payload), MaxPayload)
	}
	buf := make([]byte, 0, headerLen+len(payload)+2)
	buf = append(buf, byte(len(payload)+emptyFrameLength), TypeData)
	buf = binary.BigEndian.AppendUint16(buf, dst)
	buf = binary.BigEndian.AppendUint16(buf, src)
	buf = append(buf, payload...)
	ckA, ckB := Checksum(buf[1:])
	buf = append(buf, ckA, ckB)
	return buf, nil
}

// DecodeFrame разбирает кадр. Payload ссылается на buf.
func DecodeFrame(buf []byte) (Frame, error) {
	if len(buf) < headerLen+2 {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrMalformedFrame, len(buf))
	}
	n := int(buf[0])
	if n < emptyFrameLength || n+1 > len(buf) {
		return Frame{}, fmt.Errorf("%w: length %d, have %d", ErrMalformedFrame, n, len(buf))
	}
	buf = buf[:n+1]
	ckA, ckB := Checksum(buf[1 : len(buf)-2])
	if buf[len(buf)-2] != ckA || buf[len(buf)-1] != ckB {
		return Frame{}, fmt.Errorf("%w: checksum mismatch", ErrMalformedFrame)
	}
	return Frame{
		Type:    buf[1],
		Dst:     binary.BigEndian.Uint16(buf[2:4]),
		Src:     binary.BigEndian.Uint16(buf[4:6]),
		Payload: buf[headerLen : len(buf)-2],
	}, nil
}

// accept — кадр данных, адресованный нам или всем, и не наш собственный.
func accept(f Frame, self uint16) bool {
	if f.Type != TypeData || f.Src == self {
		return false
	}
	return f.Dst == self || f.Dst == BroadcastAddr
}
