// Package esmc кодирует кадры ESMC (ITU-T G.8264, slow protocol) и передаёт их через AF_PACKET.
package esmc

import (
	"bytes"
	"errors"
	"net"

	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

const (
	// FrameLen: длина кадра ESMC без FCS.
	FrameLen = 64
	// EtherType slow protocols.
	EtherType = 0x8809

	ouiOffset     = 14
	versionOffset = 20
	tlvOffset     = 24
	ssmOffset     = 27
	minFrameLen   = ssmOffset + 1

	version   = 0x10
	eventFlag = 0x08
)

var (
	// MulticastAddr: адрес назначения slow protocols.
	MulticastAddr = net.HardwareAddr{0x01, 0x80, 0xc2, 0x00, 0x00, 0x02}

	// subtype 0x0a, OUI 00-19-A7, ITU subtype 00 01
	esmcOUI = []byte{0x0a, 0x00, 0x19, 0xa7, 0x00, 0x01}
	ssmTLV  = []byte{0x01, 0x00, 0x04}
)

var (
	ErrShortFrame = errors.New("esmc: frame too short")
	ErrNotESMC    = errors.New("esmc: not an ESMC PDU")
)

// Frame: разобранный кадр ESMC.
type Frame struct {
	Source net.HardwareAddr
	Code   ssm.Code
	Event  bool
}

// Encode собирает 64-байтный кадр: заполнитель 0xff, заголовок Ethernet, OUI, версия,
// TLV качества с кодом в младшей тетраде.
func Encode(src net.HardwareAddr, code ssm.Code, event bool) []byte {
	frm := bytes.Repeat([]byte{0xff}, FrameLen)
	copy(frm[0:6], MulticastAddr)
	copy(frm[6:12], src)
	frm[12] = EtherType >> 8
	frm[13] = EtherType & 0xff
	copy(frm[ouiOffset:], esmcOUI)
	frm[versionOffset] = version
	if event {
		frm[versionOffset] |= eventFlag
	}
	frm[21], frm[22], frm[23] = 0, 0, 0
	copy(frm[tlvOffset:], ssmTLV)
	frm[ssmOffset] = byte(code) & 0x0f
	return frm
}

// Decode проверяет длину и OUI, возвращает код SSM.
func Decode(frm []byte) (Frame, error) {
	if len(frm) < minFrameLen {
		return Frame{}, ErrShortFrame
	}
	if !bytes.Equal(frm[ouiOffset:ouiOffset+len(esmcOUI)], esmcOUI) {
		return Frame{}, ErrNotESMC
	}
	return Frame{
		Source: net.HardwareAddr(append([]byte(nil), frm[6:12]...)),
		Code:   ssm.Code(frm[ssmOffset] & 0x0f),
		Event:  frm[versionOffset]&eventFlag != 0,
	}, nil
}
