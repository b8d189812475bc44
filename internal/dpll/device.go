package dpll

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/shiwa/timecard-mini/synce/internal/synce"
)

// Bus: доступ к регистрам микросхемы.
type Bus interface {
	ReadReg(addr uint16, buf []byte) error
	WriteReg(addr uint16, data []byte) error
}

// Device: DPLL на шине регистров. Реализует synce.Clock.
type Device struct {
	mu    sync.Mutex
	bus   Bus
	slots int
}

var _ synce.Clock = (*Device)(nil)

// Open проверяет идентификатор микросхемы и возвращает драйвер на slots входов.
func Open(bus Bus, slots int) (*Device, error) {
	if slots < 1 || slots > MaxSlots {
		return nil, fmt.Errorf("dpll: %d slots, supported 1..%d", slots, MaxSlots)
	}
	d := &Device{bus: bus, slots: slots}
	var id [2]byte
	if err := bus.ReadReg(RegChipID, id[:]); err != nil {
		return nil, fmt.Errorf("dpll: read chip id: %w", err)
	}
	if got := binary.BigEndian.Uint16(id[:]); got != chipIDExpected {
		return nil, fmt.Errorf("dpll: unexpected chip id 0x%04x", got)
	}
	return d, nil
}

func (d *Device) checkSlot(slot int) error {
	if slot < 0 || slot >= d.slots {
		return fmt.Errorf("dpll: slot %d out of range", slot)
	}
	return nil
}

func (d *Device) write(addr uint16, data ...byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.bus.WriteReg(addr, data); err != nil {
		return fmt.Errorf("dpll: write 0x%04x: %w", addr, err)
	}
	return nil
}

func (d *Device) read(addr uint16, n int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := make([]byte, n)
	if err := d.bus.ReadReg(addr, buf); err != nil {
		return nil, fmt.Errorf("dpll: read 0x%04x: %w", addr, err)
	}
	return buf, nil
}

func (d *Device) write32(addr uint16, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return d.write(addr, b[:]...)
}

// SelectorMapSet связывает слот с опорным входом; synce.RefPTP: вход от PTP.
func (d *Device) SelectorMapSet(ref, slot int) error {
	if err := d.checkSlot(slot); err != nil {
		return err
	}
	r := byte(refNone)
	if ref != synce.RefPTP {
		if ref < 0 || ref >= MaxSlots {
			return fmt.Errorf("dpll: ref %d out of range", ref)
		}
		r = byte(ref)
	}
	return d.write(RegRefMap+uint16(slot), r)
}

func (d *Device) RefClockInFreqSet(slot int, khz uint32) error {
	if err := d.checkSlot(slot); err != nil {
		return err
	}
	return d.write32(RegRefFreq+4*uint16(slot), khz)
}

func (d *Device) StationClockOutFreqSet(khz uint32) error {
	return d.write32(RegStationOut, khz)
}

// SelectionModeSet пишет режим и, для ручного, номер слота.
func (d *Device) SelectionModeSet(mode synce.SelectionMode, slot int) error {
	var m byte
	switch mode {
	case synce.ModeManual:
		if err := d.checkSlot(slot); err != nil {
			return err
		}
		m = modeManual
	case synce.ModeForcedHoldover:
		m, slot = modeHoldover, refNone
	case synce.ModeForcedFreeRun:
		m, slot = modeFreeRun, refNone
	default:
		return fmt.Errorf("dpll: mode %v not supported by hardware", mode)
	}
	return d.write(RegMode, m, byte(slot))
}

func (d *Device) LinkStateSet(slot int, up bool) error {
	if err := d.checkSlot(slot); err != nil {
		return err
	}
	return d.write(RegLinkState+uint16(slot), boolByte(up))
}

func (d *Device) RecoveredClockSet(slot, source int, enable bool) error {
	if err := d.checkSlot(slot); err != nil {
		return err
	}
	if source < 0 || source > 0xFE {
		return fmt.Errorf("dpll: source %d out of range", source)
	}
	return d.write(RegRecovered+2*uint16(slot), byte(source), boolByte(enable))
}

func (d *Device) status() (byte, error) {
	b, err := d.read(RegStatus, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Device) LOL() (bool, error) {
	s, err := d.status()
	return s&StatusLOL != 0, err
}

func (d *Device) LOSX() (bool, error) {
	s, err := d.status()
	return s&StatusLOSX != 0, err
}

func (d *Device) HoldoverReady() (bool, error) {
	s, err := d.status()
	return s&StatusHoldoverReady != 0, err
}

func (d *Device) LOCS(slot int) (bool, error) {
	if err := d.checkSlot(slot); err != nil {
		return true, err
	}
	b, err := d.read(RegLOCS, 1)
	if err != nil {
		return true, err
	}
	return b[0]&(1<<uint(slot)) != 0, nil
}

// SelectorState читает состояние селектора и текущий вход (-1, если входа нет).
func (d *Device) SelectorState() (synce.SelectorState, int, error) {
	b, err := d.read(RegState, 2)
	if err != nil {
		return synce.StateFreeRun, -1, err
	}
	var st synce.SelectorState
	switch b[0] {
	case stateLocked:
		st = synce.StateLocked
	case stateHoldover:
		st = synce.StateHoldover
	case stateAcquire:
		st = synce.StateAcquiring
	case stateFreeRun:
		st = synce.StateFreeRun
	default:
		return synce.StateFreeRun, -1, fmt.Errorf("dpll: unknown selector state 0x%02x", b[0])
	}
	in := -1
	if b[1] != refNone {
		in = int(b[1])
	}
	return st, in, nil
}

// EventPoll сбрасывает защёлку событий; тревоги читаются отдельно.
func (d *Device) EventPoll() error {
	if _, err := d.read(RegEvents, 1); err != nil {
		return err
	}
	return d.write(RegEvents, 0xFF)
}

func (d *Device) Reset() error {
	return d.write(RegReset, 0x01)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
