package synce

import "github.com/shiwa/timecard-mini/synce/internal/ssm"

// RefPTP: номер опорного входа DPLL для PTP-источника; драйвер подставляет свой PTP ref.
const RefPTP = -1

// Clock: драйвер DPLL. Все вызовы синхронные; ошибка логируется, цикл продолжается.
// Слоты 0-based.
type Clock interface {
	SelectorMapSet(ref, slot int) error
	RefClockInFreqSet(slot int, khz uint32) error
	StationClockOutFreqSet(khz uint32) error
	SelectionModeSet(mode SelectionMode, slot int) error
	LinkStateSet(slot int, up bool) error
	RecoveredClockSet(slot, source int, enable bool) error

	LOL() (bool, error)
	LOSX() (bool, error)
	HoldoverReady() (bool, error)
	LOCS(slot int) (bool, error)
	SelectorState() (state SelectorState, clockInput int, err error)
	EventPoll() error
	Reset() error
}

// PHY: доступ к автосогласованию 1000BASE-T. Может гоняться с колбэками линка из
// другого потока, поэтому вызовы идут под Engine.phyMu.
type PHY interface {
	AnegMaster(port int) (bool, error)
	ManualNeg(port int) (ManualNeg, error)
	SetManualNeg(port int, neg ManualNeg) error
}

// PTPSourceKind: чем синхронизируется PTP: ничем, электрическим входом DPLL или пакетами.
type PTPSourceKind uint8

const (
	PTPSourceNone PTPSourceKind = iota
	PTPSourceElectrical
	PTPSourcePacket
)

// PTPSelected: выбранный источник для модуля PTP. Index: ref DPLL для Electrical,
// номер инстанса для Packet.
type PTPSelected struct {
	Kind  PTPSourceKind
	Index int
}

// HybridTransient: подсказка PTP о переходном процессе в гибридном режиме.
type HybridTransient uint8

const (
	TransientNotActive HybridTransient = iota
	TransientQuick
)

// PTP: внешний модуль PTP.
type PTP interface {
	SetSelectedSource(src PTPSelected) error
	SetHybridTransient(t HybridTransient) error
	HoldoverReady(instance int) (bool, error)
}

// Transmitter: отправка кадров ESMC.
type Transmitter interface {
	Transmit(port int, code ssm.Code, event bool) error
}

type noPHY struct{}

func (noPHY) AnegMaster(int) (bool, error)     { return false, nil }
func (noPHY) ManualNeg(int) (ManualNeg, error) { return NegDisabled, nil }
func (noPHY) SetManualNeg(int, ManualNeg) error { return nil }

type noPTP struct{}

func (noPTP) SetSelectedSource(PTPSelected) error       { return nil }
func (noPTP) SetHybridTransient(HybridTransient) error { return nil }
func (noPTP) HoldoverReady(int) (bool, error)          { return false, nil }

type noTx struct{}

func (noTx) Transmit(int, ssm.Code, bool) error { return nil }
