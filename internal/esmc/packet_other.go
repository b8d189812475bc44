//go:build !linux

package esmc

import (
	"context"
	"errors"
	"net"
)

var errUnsupported = errors.New("esmc: AF_PACKET is only available on linux")

// Conn на не-Linux платформах не открывается.
type Conn struct{}

func Open(ifname string) (*Conn, error) { return nil, errUnsupported }

func (c *Conn) Name() string                                    { return "" }
func (c *Conn) Send(frm []byte) error                           { return errUnsupported }
func (c *Conn) HardwareAddr() net.HardwareAddr                  { return nil }
func (c *Conn) Serve(ctx context.Context, fn func(Frame)) error { return errUnsupported }
func (c *Conn) Close() error                                    { return nil }
