package synce

import (
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/reactive"
)

const stateDebounce = 10 * time.Second

// stateMonitor сглаживает состояние селектора: в гибридном режиме выход из LOCKED
// публикуется только если длится дольше stateDebounce.
type stateMonitor struct {
	e     *Engine
	timer *reactive.Timer
}

func newStateMonitor(e *Engine) *stateMonitor {
	m := &stateMonitor{e: e}
	m.timer = e.newTimer(m, TimerMonitor)
	on(e.selectorState, m, StateChanged{Item: StSelectorState})
	on(e.hybrid, m, ConfigChanged{Item: CfgHybrid})
	m.evaluate()
	return m
}

func (m *stateMonitor) handle(msg Message) {
	if _, ok := msg.(TimerFired); ok {
		m.e.savedState.Set(m.e.selectorState.Get())
		return
	}
	m.evaluate()
}

func (m *stateMonitor) evaluate() {
	e := m.e
	cur := e.selectorState.Get()
	if m.timer.Running() {
		if cur == StateLocked {
			m.timer.Stop()
			e.savedState.Set(cur)
		}
		return
	}
	if e.hybrid.Get() && e.savedState.Get() == StateLocked && cur != StateLocked {
		m.timer.Start(stateDebounce)
		return
	}
	e.savedState.Set(cur)
}

// combiner собирает SelectionStatus из выбора, сглаженного состояния и тревог.
type combiner struct {
	e *Engine
}

func newCombiner(e *Engine) *combiner {
	c := &combiner{e: e}
	on(e.savedState, c, StateChanged{Item: StSavedState})
	on(e.selectedSource, c, StateChanged{Item: StSelectedSource})
	on(e.selectedPort, c, StateChanged{Item: StSelectedPort})
	on(e.lol, c, StateChanged{Item: StLOL})
	on(e.losx, c, StateChanged{Item: StLOSX})
	on(e.dhold, c, StateChanged{Item: StDHOLD})
	for i := range e.ptpPTSF {
		on(e.ptpPTSF[i], c, StateChanged{Item: StPTSF, Index: i})
	}
	c.handle(StateChanged{Item: StSavedState})
	return c
}

func (c *combiner) handle(Message) {
	e := c.e
	sel, port := e.selectedSource.Get(), e.selectedPort.Get()
	st := SelectionStatus{
		Source:     sel,
		Port:       port,
		ClockInput: sel - 1,
		LOSX:       e.losx.Get(),
		DHOLD:      e.dhold.Get(),
	}
	saved := e.savedState.Get()

	if inst, ok := e.caps.IsPTP(port); ok {
		ptsf := e.ptpPTSF[inst].Get()
		switch {
		case saved != StateFreeRun && saved != StateHoldover && saved != StatePTP:
			st.State, st.LOL = StatePTP, lolFrom(ptsf != PTSFNone)
		case ptsf == PTSFNone:
			st.State, st.LOL = StatePTP, LOLFalse
		case ptsf == PTSFLossOfAnnounce:
			st.State, st.LOL = StateFreeRun, LOLTrue
			ready, err := e.ptp.HoldoverReady(inst)
			e.hw("ptp holdover ready", err)
			if err == nil && ready {
				st.State = StateHoldover
			}
		default:
			st.State, st.LOL = StateAcquiring, LOLTrue
		}
	} else {
		st.State, st.LOL = saved, lolFrom(e.lol.Get())
		if st.State == StatePTP {
			st.State, st.LOL = StateHoldover, LOLNA
		}
	}

	if old := e.status.Get(); e.status.Set(st) && old.State != st.State {
		logger.Info("selector state %v -> %v", old.State, st.State)
	}
}
