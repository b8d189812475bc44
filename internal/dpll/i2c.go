package dpll

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/driver/driverreg"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"

	"github.com/shiwa/timecard-mini/synce/internal/logger"
)

// DefaultI2CAddr: адрес DPLL на шине по умолчанию.
const DefaultI2CAddr = 0x5b

// I2CBus: регистры DPLL через periph I2C. Адрес регистра идёт первыми двумя байтами записи.
type I2CBus struct {
	dev    *i2c.Dev
	closer i2c.BusCloser
}

// OpenI2C открывает шину по имени (например "/dev/i2c-1" или "1").
func OpenI2C(name string, addr uint16) (*I2CBus, error) {
	if _, err := driverreg.Init(); err != nil {
		logger.Warn("periph driverreg.Init: %v", err)
	}
	bus, err := i2creg.Open(name)
	if err != nil {
		return nil, fmt.Errorf("i2c open %s: %w", name, err)
	}
	b := NewI2C(bus, addr)
	b.closer = bus
	return b, nil
}

// NewI2C оборачивает уже открытую шину.
func NewI2C(bus i2c.Bus, addr uint16) *I2CBus {
	if addr == 0 {
		addr = DefaultI2CAddr
	}
	return &I2CBus{dev: &i2c.Dev{Addr: addr, Bus: bus}}
}

func (b *I2CBus) ReadReg(addr uint16, buf []byte) error {
	var w [2]byte
	binary.BigEndian.PutUint16(w[:], addr)
	return b.dev.Tx(w[:], buf)
}

func (b *I2CBus) WriteReg(addr uint16, data []byte) error {
	w := make([]byte, 2, 2+len(data))
	binary.BigEndian.PutUint16(w, addr)
	w = append(w, data...)
	return b.dev.Tx(w, nil)
}

func (b *I2CBus) Close() error {
	if b.closer == nil {
		return nil
	}
	return b.closer.Close()
}

func (b *I2CBus) String() string {
	return b.dev.String()
}
