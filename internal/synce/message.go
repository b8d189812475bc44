package synce

import "github.com/shiwa/timecard-mini/synce/internal/reactive"

// Message: событие, доставляемое компоненту через handle. Набор типов закрыт.
type Message interface{ isMessage() }

// PortLinkChanged: изменилось состояние линка порта.
type PortLinkChanged struct{ Port int }

// SSMReceived: на порт пришёл кадр ESMC (доставляется на каждый кадр).
type SSMReceived struct{ Port int }

// ConfigChanged: изменилась конфигурация.
type ConfigChanged struct {
	Item  ConfigItem
	Index int
}

// StateChanged: изменилось производное состояние другого компонента.
type StateChanged struct {
	Item  StateItem
	Index int
}

// TimerFired: сработал таймер компонента.
type TimerFired struct{ Timer TimerID }

// PTPChanged: новые clockClass или PTSF от PTP-инстанса.
type PTPChanged struct{ Instance int }

func (PortLinkChanged) isMessage() {}
func (SSMReceived) isMessage()     {}
func (ConfigChanged) isMessage()   {}
func (StateChanged) isMessage()    {}
func (TimerFired) isMessage()      {}
func (PTPChanged) isMessage()      {}

type ConfigItem uint8

const (
	CfgSelection ConfigItem = iota
	CfgNomination
	CfgPortSSM
	CfgStation
	CfgClearWTR
	CfgHybrid
)

type StateItem uint8

const (
	StSourceQL StateItem = iota
	StSourceSSF
	StDLOS
	StSlotQL
	StSlotSF
	StSelectedSource
	StSelectedPort
	StSelectedQL
	StSelectorState
	StSavedState
	StClockInput
	StLOCS
	StLOL
	StLOSX
	StDHOLD
	StStationSource
	StPTSF
	StTxSSM
	StAnegMaster
	StSSMBad
	StWTRActive
	StStatus
)

type TimerID uint8

const (
	TimerSSM TimerID = iota
	TimerAneg
	TimerHoldoff
	TimerWTR
	TimerWTRHelper
	TimerPoll
	TimerTx
	TimerMonitor
)

// handler: компонент движка с единственной точкой входа.
type handler interface {
	handle(m Message)
}

// on подписывает h на ячейку: каждое изменение приходит как m.
func on[T comparable](c *reactive.Cell[T], h handler, m Message) *reactive.Subscription {
	return c.Attach(func() { h.handle(m) })
}

// newTimer создаёт таймер компонента h с идентификатором id.
func (e *Engine) newTimer(h handler, id TimerID) *reactive.Timer {
	return e.sched.NewTimer(func() { h.handle(TimerFired{Timer: id}) })
}
