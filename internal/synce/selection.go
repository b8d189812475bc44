package synce

import (
	"github.com/shiwa/timecard-mini/synce/internal/clockselect"
	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

// arbiter: единственный экземпляр выбора источника по режиму, QL, SF и приоритету.
type arbiter struct {
	e        *Engine
	election *clockselect.Election

	mode   SelectionMode
	source int
	option ssm.Option

	// последнее, что записано в DPLL и PTP; повторно не пишем
	hwMode SelectionMode
	hwSlot int
	hwSet  bool
	ptpSel PTPSelected
	ptpSet bool
}

func newArbiter(e *Engine) *arbiter {
	a := &arbiter{e: e, election: clockselect.NewElection()}
	on(e.selection, a, ConfigChanged{Item: CfgSelection})
	for n := range e.nomination {
		on(e.nomination[n], a, ConfigChanged{Item: CfgNomination, Index: n})
	}
	for i := range e.ql {
		on(e.ql[i], a, StateChanged{Item: StSlotQL, Index: i})
		on(e.sf[i], a, StateChanged{Item: StSlotSF, Index: i})
	}
	a.reselect()
	return a
}

func (a *arbiter) handle(m Message) {
	if c, ok := m.(ConfigChanged); ok && c.Item == CfgSelection {
		cfg := a.e.selection.Get()
		if cfg.Mode == a.mode && cfg.Source == a.source && cfg.Option == a.option {
			return
		}
	}
	a.reselect()
}

func (a *arbiter) candidates(opt ssm.Option) []clockselect.Candidate {
	e := a.e
	c := make([]clockselect.Candidate, len(e.ql))
	for i := range c {
		raw := e.ql[i].Get()
		c[i] = clockselect.Candidate{QL: ssm.Coerce(raw, opt), Raw: raw, SF: e.sf[i].Get()}
		if i > 0 {
			c[i].Priority = e.nomination[i-1].Get().Priority
		}
	}
	return c
}

func (a *arbiter) reselect() {
	e := a.e
	cfg := e.selection.Get()
	a.mode, a.source, a.option = cfg.Mode, cfg.Source, cfg.Option
	cands := a.candidates(cfg.Option)

	sel := 0
	switch cfg.Mode {
	case ModeForcedHoldover, ModeForcedFreeRun:
		a.setMode(cfg.Mode, 0)
	case ModeManual:
		sel = cfg.Source
		a.setMode(ModeManual, cfg.Source-1)
	case ModeManualToSelected:
		if cur := e.selectedSource.Get(); cur != 0 {
			sel = cur
			a.setMode(ModeManual, cur-1)
		}
	case ModeAutoNonRevertive:
		s, exists, kept := a.election.NonRevertive(cands, e.selectedSource.Get())
		if !kept {
			// выбранный источник потерян или его нет: дальше как в ревертивном режиме
			logger.Debug("non-revertive: source %d lost, reselecting", e.selectedSource.Get())
			a.program(s, exists)
		}
		sel = s
	case ModeAutoRevertive:
		s, exists := a.election.Revertive(cands)
		a.program(s, exists)
		sel = s
	}
	if sel < 0 || sel >= len(cands) {
		sel = 0
	}
	a.publish(sel, cands[sel].QL)
}

// program записывает в DPLL результат автоматического выбора.
func (a *arbiter) program(sel int, exists bool) {
	switch {
	case sel > 0:
		a.setMode(ModeManual, sel-1)
	case exists:
		a.setMode(ModeForcedHoldover, 0)
	default:
		a.setMode(ModeForcedFreeRun, 0)
	}
}

func (a *arbiter) setMode(m SelectionMode, slot int) {
	if a.hwSet && a.hwMode == m && a.hwSlot == slot {
		return
	}
	if err := a.e.clock.SelectionModeSet(m, slot); err != nil {
		a.e.hw("selection mode", err)
		a.hwSet = false
		return
	}
	a.hwMode, a.hwSlot, a.hwSet = m, slot, true
}

func (a *arbiter) setPTP(s PTPSelected) {
	if a.ptpSet && a.ptpSel == s {
		return
	}
	if err := a.e.ptp.SetSelectedSource(s); err != nil {
		a.e.hw("ptp selected source", err)
		a.ptpSet = false
		return
	}
	a.ptpSel, a.ptpSet = s, true
}

func (a *arbiter) publish(sel int, ql ssm.QL) {
	e := a.e
	if e.selectedSource.Set(sel) {
		logger.Info("selected source: slot %d (%s)", sel, a.describe(sel))
	}
	e.selectedQL.Set(ql)

	if sel > 0 {
		src := e.sourceOf(sel - 1)
		e.selectedPort.Set(src)
		if inst, ok := e.caps.IsPTP(src); ok {
			e.bestMaster.Set(inst)
			a.setPTP(PTPSelected{Kind: PTPSourcePacket, Index: inst})
		} else {
			e.bestMaster.Set(-1)
			a.setPTP(PTPSelected{Kind: PTPSourceElectrical, Index: sel - 1})
		}
		return
	}
	if e.status.Get().State == StateAcquiring && e.savedState.Get() != StatePTP {
		e.bestMaster.Set(-1)
	}
	a.setPTP(PTPSelected{Kind: PTPSourceNone})
	e.selectedPort.Set(-1)
}

func (a *arbiter) describe(sel int) string {
	if sel == 0 {
		return "internal"
	}
	src := a.e.sourceOf(sel - 1)
	if src < 0 {
		return "not nominated"
	}
	return a.e.caps.SourceName(src)
}
