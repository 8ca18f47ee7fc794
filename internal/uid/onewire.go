package uid

import (
	"fmt"

	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/onewire"
	"periph.io/x/conn/v3/onewire/onewirereg"
)

// familyDS2411 — код семейства кремниевого серийного номера DS2401/DS2411.
const familyDS2411 = 0x01

// OneWire читает серийный номер DS2411 с шины 1-Wire.
// Драйвер шины должен быть зарегистрирован (например, periph.io/x/host); иначе — ErrNoDevice.
type OneWire struct {
	Bus string // имя шины; пусто — первая зарегистрированная
}

// ReadSerial ищет на шине устройство семейства 0x01 и берёт первые два байта его номера.
func (o OneWire) ReadSerial() (Serial, error) {
	if _, err := driverreg.Init(); err != nil {
		return Serial{}, fmt.Errorf("periph init: %w", err)
	}
	bus, err := onewirereg.Open(o.Bus)
	if err != nil {
		return Serial{}, fmt.Errorf("%w: 1-wire bus %q: %v", ErrNoDevice, o.Bus, err)
	}
	defer bus.Close()
	addrs, err := bus.Search(false)
	if err != nil {
		return Serial{}, fmt.Errorf("1-wire search: %w", err)
	}
	for _, a := range addrs {
		if s, ok := serialFromAddress(a); ok {
			return s, nil
		}
	}
	return Serial{}, fmt.Errorf("%w: no DS2411 on 1-wire bus", ErrNoDevice)
}

// serialFromAddress разбирает ROM-адрес: байт 0 — семейство, байты 1-6 — номер, байт 7 — CRC.
func serialFromAddress(a onewire.Address) (Serial, bool) {
	if byte(a) != familyDS2411 {
		return Serial{}, false
	}
	return Serial{byte(a >> 8), byte(a >> 16)}, true
}
