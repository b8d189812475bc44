package dpll

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/tarm/serial"
)

// Кадр UART-моста: sync1 sync2 cmd len[2] payload ck_a ck_b.
// Контрольная сумма Флетчера-8 по cmd..payload.
const (
	uartSync1 = 0xA5
	uartSync2 = 0x5A

	cmdRead  = 0x01 // payload: addr[2] n
	cmdWrite = 0x02 // payload: addr[2] data...
	cmdAck   = 0x80 // ответ: cmd|cmdAck, payload: прочитанные данные
	cmdNak   = 0x7F

	uartMaxPayload = 256
)

var errNak = errors.New("dpll bridge: request rejected")

func fletcher(data []byte) (a, b uint8) {
	for _, x := range data {
		a += x
		b += a
	}
	return a, b
}

func encodeFrame(cmd byte, payload []byte) []byte {
	buf := make([]byte, 0, 7+len(payload))
	buf = append(buf, uartSync1, uartSync2, cmd)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	a, b := fletcher(buf[2:])
	return append(buf, a, b)
}

// readFrame ждёт sync и читает один кадр.
func readFrame(r io.Reader) (cmd byte, payload []byte, err error) {
	var prev, cur [1]byte
	for {
		if _, err = io.ReadFull(r, cur[:]); err != nil {
			return 0, nil, err
		}
		if prev[0] == uartSync1 && cur[0] == uartSync2 {
			break
		}
		prev = cur
	}
	var hdr [3]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := int(binary.BigEndian.Uint16(hdr[1:]))
	if n > uartMaxPayload {
		return 0, nil, fmt.Errorf("dpll bridge: frame length %d", n)
	}
	rest := make([]byte, n+2)
	if _, err = io.ReadFull(r, rest); err != nil {
		return 0, nil, err
	}
	a, b := fletcher(append(hdr[:], rest[:n]...))
	if rest[n] != a || rest[n+1] != b {
		return 0, nil, fmt.Errorf("dpll bridge: checksum mismatch")
	}
	return hdr[0], rest[:n], nil
}

// UARTBus: регистры DPLL через микроконтроллер-мост на последовательном порту.
type UARTBus struct {
	mu   sync.Mutex
	port io.ReadWriteCloser
}

// OpenUART открывает порт моста.
func OpenUART(device string, baud int, timeout time.Duration) (*UARTBus, error) {
	p, err := serial.OpenPort(&serial.Config{Name: device, Baud: baud, ReadTimeout: timeout})
	if err != nil {
		return nil, fmt.Errorf("serial open %s: %w", device, err)
	}
	return NewUART(p), nil
}

// NewUART работает поверх любого потока, например пары pipe в тестах.
func NewUART(rw io.ReadWriteCloser) *UARTBus {
	return &UARTBus{port: rw}
}

func (u *UARTBus) roundTrip(cmd byte, payload []byte) ([]byte, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, err := u.port.Write(encodeFrame(cmd, payload)); err != nil {
		return nil, err
	}
	rc, data, err := readFrame(u.port)
	if err != nil {
		return nil, err
	}
	switch rc {
	case cmd | cmdAck:
		return data, nil
	case cmdNak:
		return nil, errNak
	}
	return nil, fmt.Errorf("dpll bridge: unexpected reply 0x%02x", rc)
}

func (u *UARTBus) ReadReg(addr uint16, buf []byte) error {
	if len(buf) > 0xFF {
		return fmt.Errorf("dpll bridge: read of %d bytes", len(buf))
	}
	req := binary.BigEndian.AppendUint16(nil, addr)
	req = append(req, byte(len(buf)))
	data, err := u.roundTrip(cmdRead, req)
	if err != nil {
		return err
	}
	if len(data) != len(buf) {
		return fmt.Errorf("dpll bridge: short read %d/%d", len(data), len(buf))
	}
	copy(buf, data)
	return nil
}

func (u *UARTBus) WriteReg(addr uint16, data []byte) error {
	if len(data)+2 > uartMaxPayload {
		return fmt.Errorf("dpll bridge: write of %d bytes", len(data))
	}
	req := binary.BigEndian.AppendUint16(nil, addr)
	req = append(req, data...)
	_, err := u.roundTrip(cmdWrite, req)
	return err
}

func (u *UARTBus) Close() error {
	return u.port.Close()
}
