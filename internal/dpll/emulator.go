package dpll

import (
	"fmt"
	"sync"
)

// Emulator: регистровая модель DPLL в памяти. Используется вместо железа в
// режиме без устройства и в тестах.
//
// Модель: в ручном режиме селектор захватывает выбранный слот, если на нём нет
// LOCS и линк поднят; иначе уходит в holdover (если готов) или free-run.
type Emulator struct {
	mu     sync.Mutex
	regs   map[uint16]byte
	locs   uint8
	status byte
	events byte
}

var _ Bus = (*Emulator)(nil)

func NewEmulator() *Emulator {
	e := &Emulator{}
	e.reset()
	return e
}

func (e *Emulator) reset() {
	e.regs = make(map[uint16]byte)
	e.regs[RegChipID] = chipIDExpected >> 8
	e.regs[RegChipID+1] = chipIDExpected & 0xFF
	e.regs[RegMode] = modeFreeRun
	e.regs[RegManualRef] = refNone
	for s := 0; s < MaxSlots; s++ {
		e.regs[RegRefMap+uint16(s)] = refNone
	}
	e.status = StatusHoldoverReady
}

// SetLOCS выставляет потерю сигнала на слоте.
func (e *Emulator) SetLOCS(slot int, lost bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lost {
		e.locs |= 1 << uint(slot)
	} else {
		e.locs &^= 1 << uint(slot)
	}
	e.events |= 1
}

// SetHoldoverReady управляет готовностью holdover.
func (e *Emulator) SetHoldoverReady(ready bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ready {
		e.status |= StatusHoldoverReady
	} else {
		e.status &^= StatusHoldoverReady
	}
}

// SetLOSX выставляет потерю внешнего осциллятора.
func (e *Emulator) SetLOSX(lost bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if lost {
		e.status |= StatusLOSX
	} else {
		e.status &^= StatusLOSX
	}
}

// Reg возвращает сырое значение регистра.
func (e *Emulator) Reg(addr uint16) byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.regs[addr]
}

// Uint32: четырёхбайтовое значение, начиная с addr.
func (e *Emulator) Uint32(addr uint16) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return uint32(e.regs[addr])<<24 | uint32(e.regs[addr+1])<<16 | uint32(e.regs[addr+2])<<8 | uint32(e.regs[addr+3])
}

func (e *Emulator) selector() (state byte, input byte) {
	switch e.regs[RegMode] {
	case modeManual:
		s := e.regs[RegManualRef]
		if s < MaxSlots && e.locs&(1<<s) == 0 && e.regs[RegLinkState+uint16(s)] != 0 {
			return stateLocked, s
		}
		if e.status&StatusHoldoverReady != 0 {
			return stateHoldover, refNone
		}
	case modeHoldover:
		if e.status&StatusHoldoverReady != 0 {
			return stateHoldover, refNone
		}
	}
	return stateFreeRun, refNone
}

func (e *Emulator) read(addr uint16) byte {
	switch addr {
	case RegStatus:
		st := e.status
		if e.regs[RegMode] == modeManual {
			if s, _ := e.selector(); s != stateLocked {
				st |= StatusLOL
			}
		}
		return st
	case RegLOCS:
		return e.locs
	case RegState:
		s, _ := e.selector()
		return s
	case RegClockInput:
		_, in := e.selector()
		return in
	case RegEvents:
		return e.events
	}
	return e.regs[addr]
}

func (e *Emulator) ReadReg(addr uint16, buf []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := range buf {
		buf[i] = e.read(addr + uint16(i))
	}
	return nil
}

func (e *Emulator) WriteReg(addr uint16, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case addr == RegReset:
		e.reset()
		e.locs, e.events = 0, 0
		return nil
	case addr == RegEvents:
		if len(data) == 1 && data[0] == 0xFF {
			e.events = 0
		}
		return nil
	case addr >= RegStatus && addr < RegEvents:
		return fmt.Errorf("emulator: register 0x%04x is read-only", addr)
	}
	for i, b := range data {
		e.regs[addr+uint16(i)] = b
	}
	return nil
}
