package esmc

import (
	"net"
	"sync"

	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

// Link: то, во что можно отправить готовый кадр.
type Link interface {
	Send(frm []byte) error
	HardwareAddr() net.HardwareAddr
}

// Mux раздаёт исходящие SSM по портам движка; индекс: номер порта.
// Порт без линка молча пропускается (ESMC на нём не включён).
type Mux struct {
	mu    sync.Mutex
	links []Link
	sent  []uint64
}

func NewMux(ports int) *Mux {
	return &Mux{links: make([]Link, ports), sent: make([]uint64, ports)}
}

// Set привязывает линк к порту.
func (m *Mux) Set(port int, l Link) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if port >= 0 && port < len(m.links) {
		m.links[port] = l
	}
}

// Transmit кодирует и отправляет кадр в порт.
func (m *Mux) Transmit(port int, code ssm.Code, event bool) error {
	m.mu.Lock()
	var l Link
	if port >= 0 && port < len(m.links) {
		l = m.links[port]
	}
	m.mu.Unlock()
	if l == nil {
		return nil
	}
	if err := l.Send(Encode(l.HardwareAddr(), code, event)); err != nil {
		return err
	}
	m.mu.Lock()
	m.sent[port]++
	m.mu.Unlock()
	return nil
}

// Sent: число успешно отправленных кадров порта.
func (m *Mux) Sent(port int) uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	if port < 0 || port >= len(m.sent) {
		return 0
	}
	return m.sent[port]
}
