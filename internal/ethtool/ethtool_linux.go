//go:build linux

package ethtool

import (
	"encoding/binary"
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/synce"
)

// ifreq с указателем на данные ethtool в объединении.
type ifreq struct {
	name [unix.IFNAMSIZ]byte
	data uintptr
	_    [24 - unsafe.Sizeof(uintptr(0))]byte
}

// Handle: доступ к портам по именам интерфейсов; номер порта: индекс в names.
type Handle struct {
	mu      sync.Mutex
	fd      int
	names   []string
	initial map[int]uint8
}

// Open открывает управляющий сокет. Для SetManualNeg нужен CAP_NET_ADMIN.
func Open(names []string) (*Handle, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_DGRAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("ethtool: socket: %w", err)
	}
	return &Handle{fd: fd, names: names, initial: make(map[int]uint8)}, nil
}

func (h *Handle) Close() error {
	return unix.Close(h.fd)
}

func (h *Handle) name(port int) (string, error) {
	if port < 0 || port >= len(h.names) {
		return "", fmt.Errorf("ethtool: port %d out of range", port)
	}
	return h.names[port], nil
}

func (h *Handle) ioctl(name string, buf []byte) error {
	var ifr ifreq
	copy(ifr.name[:unix.IFNAMSIZ-1], name)
	ifr.data = uintptr(unsafe.Pointer(&buf[0]))
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(h.fd), unix.SIOCETHTOOL, uintptr(unsafe.Pointer(&ifr)))
	runtime.KeepAlive(buf)
	if errno != 0 {
		return errno
	}
	return nil
}

// linkSettings выполняет двухшаговый запрос GLINKSETTINGS: сначала узнаём число слов масок.
func (h *Handle) linkSettings(name string) ([]byte, error) {
	buf := make([]byte, linkSettingsLen+3*4*maxNwords)
	binary.NativeEndian.PutUint32(buf[offCmd:], cmdGLinkSettings)
	if err := h.ioctl(name, buf); err != nil {
		return nil, fmt.Errorf("ethtool %s: get link settings: %w", name, err)
	}
	n := int8(buf[offNwords])
	if n >= 0 {
		return nil, fmt.Errorf("ethtool %s: link settings handshake failed", name)
	}
	for i := range buf {
		buf[i] = 0
	}
	binary.NativeEndian.PutUint32(buf[offCmd:], cmdGLinkSettings)
	buf[offNwords] = byte(-n)
	if err := h.ioctl(name, buf); err != nil {
		return nil, fmt.Errorf("ethtool %s: get link settings: %w", name, err)
	}
	return buf, nil
}

func (h *Handle) Link(port int) (synce.LinkStatus, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	name, err := h.name(port)
	if err != nil {
		return synce.LinkStatus{}, err
	}
	var v [8]byte
	binary.NativeEndian.PutUint32(v[:], cmdGLink)
	if err := h.ioctl(name, v[:]); err != nil {
		return synce.LinkStatus{}, fmt.Errorf("ethtool %s: get link: %w", name, err)
	}
	up := binary.NativeEndian.Uint32(v[4:]) != 0
	buf, err := h.linkSettings(name)
	if err != nil {
		// Драйвер без GLINKSETTINGS: линк известен, скорость нет.
		logger.Debug("%v", err)
		return linkStatus(up, nil), nil
	}
	if _, ok := h.initial[port]; !ok {
		h.initial[port] = parseSettings(buf).msCfg
	}
	return linkStatus(up, buf), nil
}

func (h *Handle) settings(port int) (string, []byte, settings, error) {
	name, err := h.name(port)
	if err != nil {
		return "", nil, settings{}, err
	}
	buf, err := h.linkSettings(name)
	if err != nil {
		return name, nil, settings{}, err
	}
	s := parseSettings(buf)
	if _, ok := h.initial[port]; !ok {
		h.initial[port] = s.msCfg
	}
	return name, buf, s, nil
}

func (h *Handle) AnegMaster(port int) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, _, s, err := h.settings(port)
	if err != nil {
		return false, err
	}
	return s.msState == msStateMaster, nil
}

func (h *Handle) ManualNeg(port int) (synce.ManualNeg, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, _, s, err := h.settings(port)
	if err != nil {
		return synce.NegDisabled, err
	}
	return negFromCfg(s.msCfg), nil
}

func (h *Handle) SetManualNeg(port int, neg synce.ManualNeg) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	name, buf, s, err := h.settings(port)
	if err != nil {
		return err
	}
	if s.msCfg == msCfgUnsupported || s.msCfg == msCfgUnknown {
		return fmt.Errorf("ethtool %s: master/slave configuration not supported", name)
	}
	cfg := cfgFromNeg(neg, h.initial[port])
	if cfg == s.msCfg {
		return nil
	}
	buf[offMSCfg] = cfg
	binary.NativeEndian.PutUint32(buf[offCmd:], cmdSLinkSettings)
	if err := h.ioctl(name, buf); err != nil {
		return fmt.Errorf("ethtool %s: set master/slave: %w", name, err)
	}
	return nil
}
