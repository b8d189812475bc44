//go:build linux

package esmc

import (
	"context"
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Conn: сырой сокет AF_PACKET, привязанный к одному интерфейсу и ethertype 0x8809,
// с подпиской на адрес slow protocols.
type Conn struct {
	name    string
	fd      int
	ifindex int
	hw      net.HardwareAddr
}

func htons(v uint16) uint16 { return v<<8 | v>>8 }

// Open открывает сокет на интерфейсе ifname. Нужны CAP_NET_RAW.
func Open(ifname string) (*Conn, error) {
	ifi, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("esmc: interface %s: %w", ifname, err)
	}
	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW|unix.SOCK_CLOEXEC, int(htons(EtherType)))
	if err != nil {
		return nil, fmt.Errorf("esmc: socket %s: %w", ifname, err)
	}
	sll := &unix.SockaddrLinklayer{Protocol: htons(EtherType), Ifindex: ifi.Index}
	if err := unix.Bind(fd, sll); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("esmc: bind %s: %w", ifname, err)
	}
	mreq := &unix.PacketMreq{Ifindex: int32(ifi.Index), Type: unix.PACKET_MR_MULTICAST, Alen: 6}
	copy(mreq.Address[:], MulticastAddr)
	if err := unix.SetsockoptPacketMreq(fd, unix.SOL_PACKET, unix.PACKET_ADD_MEMBERSHIP, mreq); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("esmc: multicast %s: %w", ifname, err)
	}
	// таймаут приёма, чтобы Serve замечал отмену ctx
	tv := unix.Timeval{Sec: 1}
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("esmc: rcvtimeo %s: %w", ifname, err)
	}
	return &Conn{name: ifname, fd: fd, ifindex: ifi.Index, hw: ifi.HardwareAddr}, nil
}

// Name: имя интерфейса.
func (c *Conn) Name() string { return c.name }

// Send передаёт готовый кадр на адрес slow protocols.
func (c *Conn) Send(frm []byte) error {
	to := &unix.SockaddrLinklayer{Protocol: htons(EtherType), Ifindex: c.ifindex, Halen: 6}
	copy(to.Addr[:], MulticastAddr)
	if err := unix.Sendto(c.fd, frm, 0, to); err != nil {
		return fmt.Errorf("esmc: send %s: %w", c.name, err)
	}
	return nil
}

// HardwareAddr: MAC интерфейса, используется как адрес источника.
func (c *Conn) HardwareAddr() net.HardwareAddr { return c.hw }

// Serve читает кадры до отмены ctx и отдаёт каждый корректный кадр в fn.
// Собственные кадры (петля через коммутатор) отбрасываются.
func (c *Conn) Serve(ctx context.Context, fn func(Frame)) error {
	buf := make([]byte, 1518)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, _, err := unix.Recvfrom(c.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			return fmt.Errorf("esmc: recv %s: %w", c.name, err)
		}
		f, err := Decode(buf[:n])
		if err != nil {
			continue
		}
		if c.hw != nil && f.Source.String() == c.hw.String() {
			continue
		}
		fn(f)
	}
}

// Close закрывает сокет.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}
