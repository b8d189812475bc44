// Package ethtool читает состояние линка портов и steering master/slave 1000BASE-T через
// ioctl SIOCETHTOOL и опрашивает линк с уведомлением движка об изменениях.
package ethtool

import (
	"context"
	"encoding/binary"
	"errors"
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/synce"
)

// Команды и смещения struct ethtool_link_settings (linux/ethtool.h).
const (
	cmdGLink         = 0x0000000a
	cmdGLinkSettings = 0x0000004c
	cmdSLinkSettings = 0x0000004d

	offCmd     = 0
	offSpeed   = 4
	offPort    = 9
	offNwords  = 15
	offMSCfg   = 17
	offMSState = 18

	linkSettingsLen = 48
	maxNwords       = 127

	portFibre   = 0x03
	speedUnknow = 0xFFFFFFFF
)

// master_slave_cfg / master_slave_state.
const (
	msCfgUnsupported     = 0
	msCfgUnknown         = 1
	msCfgMasterPreferred = 2
	msCfgSlavePreferred  = 3
	msCfgMasterForce     = 4
	msCfgSlaveForce      = 5

	msStateMaster = 2
)

var errUnsupported = errors.New("ethtool: not supported on this platform")

// settings: нужные поля struct ethtool_link_settings.
type settings struct {
	speed   uint32
	fiber   bool
	msCfg   uint8
	msState uint8
}

func parseSettings(buf []byte) settings {
	s := settings{
		speed:   binary.NativeEndian.Uint32(buf[offSpeed:]),
		fiber:   buf[offPort] == portFibre,
		msCfg:   buf[offMSCfg],
		msState: buf[offMSState],
	}
	if s.speed == speedUnknow {
		s.speed = 0
	}
	return s
}

// linkStatus собирает состояние линка; buf == nil: настройки не прочитаны,
// скорость неизвестна.
func linkStatus(up bool, buf []byte) synce.LinkStatus {
	if buf == nil {
		return synce.LinkStatus{Up: up}
	}
	s := parseSettings(buf)
	return synce.LinkStatus{Up: up, Speed: s.speed, Fiber: s.fiber}
}

// negFromCfg переводит master_slave_cfg в ручную роль движка.
func negFromCfg(cfg uint8) synce.ManualNeg {
	switch cfg {
	case msCfgMasterForce:
		return synce.NegRef
	case msCfgSlaveForce:
		return synce.NegClient
	}
	return synce.NegDisabled
}

// cfgFromNeg: обратное; для NegDisabled возвращается исходная настройка порта,
// если она была не принудительной.
func cfgFromNeg(neg synce.ManualNeg, initial uint8) uint8 {
	switch neg {
	case synce.NegRef:
		return msCfgMasterForce
	case synce.NegClient:
		return msCfgSlaveForce
	}
	if initial == msCfgMasterPreferred || initial == msCfgSlavePreferred {
		return initial
	}
	return msCfgMasterPreferred
}

// LinkReader: источник состояния линка по номеру порта.
type LinkReader interface {
	Link(port int) (synce.LinkStatus, error)
}

// Static: линк всегда поднят, 1G медь. Для стендов без управляемых портов.
type Static struct{}

func (Static) Link(int) (synce.LinkStatus, error) {
	return synce.LinkStatus{Up: true, Speed: 1000}, nil
}

func (Static) AnegMaster(int) (bool, error) { return false, nil }
func (Static) ManualNeg(int) (synce.ManualNeg, error) { return synce.NegDisabled, nil }
func (Static) SetManualNeg(int, synce.ManualNeg) error { return nil }

var (
	_ synce.PHY = Static{}
	_ synce.PHY = (*Handle)(nil)
)

// Watch опрашивает линк ports портов каждые interval и вызывает fn при изменении.
// Первый опрос сообщает состояние всех портов. Ошибка чтения трактуется как линк down.
func Watch(ctx context.Context, r LinkReader, ports int, interval time.Duration, fn func(port int, ls synce.LinkStatus)) {
	last := make([]*synce.LinkStatus, ports)
	poll := func() {
		for p := 0; p < ports; p++ {
			ls, err := r.Link(p)
			if err != nil {
				ls = synce.LinkStatus{}
			}
			if last[p] != nil && *last[p] == ls {
				continue
			}
			cur := ls
			last[p] = &cur
			fn(p, ls)
		}
	}
	poll()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			poll()
		}
	}
}
