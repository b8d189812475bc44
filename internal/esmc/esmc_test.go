package esmc

import (
	"bytes"
	"errors"
	"net"
	"testing"

	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

var testMAC = net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}

func TestEncodeLayout(t *testing.T) {
	frm := Encode(testMAC, ssm.CodePRC, true)
	if len(frm) != FrameLen {
		t.Fatalf("len = %d, want %d", len(frm), FrameLen)
	}
	want := []byte{
		0x01, 0x80, 0xc2, 0x00, 0x00, 0x02,
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55,
		0x88, 0x09,
		0x0a, 0x00, 0x19, 0xa7, 0x00, 0x01,
		0x18, 0x00, 0x00, 0x00,
		0x01, 0x00, 0x04, 0x02,
	}
	if !bytes.Equal(frm[:len(want)], want) {
		t.Errorf("header = % x\nwant     % x", frm[:len(want)], want)
	}
	for i := len(want); i < FrameLen; i++ {
		if frm[i] != 0xff {
			t.Fatalf("padding byte %d = %#x, want 0xff", i, frm[i])
		}
	}
	if got := Encode(testMAC, ssm.CodeDNU, false)[versionOffset]; got != 0x10 {
		t.Errorf("non-event version = %#x, want 0x10", got)
	}
}

func TestDecode(t *testing.T) {
	f, err := Decode(Encode(testMAC, ssm.CodeSEC, false))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if f.Code != ssm.CodeSEC || f.Event || f.Source.String() != testMAC.String() {
		t.Errorf("Decode = %+v", f)
	}

	if _, err := Decode(make([]byte, 27)); !errors.Is(err, ErrShortFrame) {
		t.Errorf("short frame: err = %v", err)
	}
	bad := Encode(testMAC, ssm.CodePRC, false)
	bad[17] = 0x00
	if _, err := Decode(bad); !errors.Is(err, ErrNotESMC) {
		t.Errorf("wrong OUI: err = %v", err)
	}
}

type captureLink struct {
	frames [][]byte
}

func (c *captureLink) Send(frm []byte) error           { c.frames = append(c.frames, frm); return nil }
func (c *captureLink) HardwareAddr() net.HardwareAddr { return testMAC }

func TestMuxTransmit(t *testing.T) {
	m := NewMux(2)
	l := &captureLink{}
	m.Set(1, l)
	if err := m.Transmit(0, ssm.CodePRC, false); err != nil {
		t.Errorf("unbound port: %v", err)
	}
	if err := m.Transmit(1, ssm.CodeSSUA, true); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	if len(l.frames) != 1 {
		t.Fatalf("frames = %d, want 1", len(l.frames))
	}
	f, _ := Decode(l.frames[0])
	if f.Code != ssm.CodeSSUA || !f.Event {
		t.Errorf("sent frame = %+v", f)
	}
	if m.Sent(1) != 1 || m.Sent(0) != 0 {
		t.Errorf("Sent = %d/%d", m.Sent(0), m.Sent(1))
	}
}
