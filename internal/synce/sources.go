package synce

import (
	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/reactive"
	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

// internalSource: слот 0 арбитра: собственный генератор. Качество берётся из
// ssm_freerun или ssm_holdover по состоянию селектора DPLL.
type internalSource struct {
	e *Engine
}

func newInternalSource(e *Engine) *internalSource {
	s := &internalSource{e: e}
	e.sf[0].Set(false)
	e.ql[0].Set(ssm.QLDNU)
	on(e.selection, s, ConfigChanged{Item: CfgSelection})
	on(e.selectorState, s, StateChanged{Item: StSelectorState})
	s.evaluate()
	return s
}

func (s *internalSource) handle(Message) { s.evaluate() }

func (s *internalSource) evaluate() {
	cfg := s.e.selection.Get()
	q := cfg.Holdover
	if s.e.selectorState.Get() == StateFreeRun {
		q = cfg.FreeRun
	}
	if q == ssm.QLNone {
		q = ssm.QLDNU
	}
	s.e.ql[0].Set(q)
}

// stationHandler: станционный вход и выход.
type stationHandler struct {
	e       *Engine
	out     Frequency
	in      Frequency
	source  int // слот 1..N, куда номинирован вход; 0: нигде
	locsSub *reactive.Subscription
}

func newStationHandler(e *Engine) *stationHandler {
	h := &stationHandler{e: e}
	on(e.station, h, ConfigChanged{Item: CfgStation})
	on(e.stationSource, h, StateChanged{Item: StStationSource})
	e.hw("station clock out", e.clock.StationClockOutFreqSet(h.out.KHz()))
	return h
}

func (h *stationHandler) handle(Message) {
	e := h.e
	cfg := e.station.Get()
	if cfg.Out != h.out {
		h.out = cfg.Out
		logger.Debug("station clock out %v", cfg.Out)
		e.hw("station clock out", e.clock.StationClockOutFreqSet(cfg.Out.KHz()))
	}

	moved := false
	if src := e.stationSource.Get(); src != h.source {
		if h.locsSub != nil {
			e.locs[h.source-1].Detach(h.locsSub)
			h.locsSub = nil
		}
		if src > 0 {
			h.locsSub = on(e.locs[src-1], h, StateChanged{Item: StLOCS, Index: src - 1})
		}
		h.source, moved = src, true
	}
	if h.source == 0 {
		h.in = cfg.In
		return
	}

	slot, st := h.source-1, e.Capabilities().Station()
	if moved || cfg.In != h.in {
		h.in = cfg.In
		e.hw("station clock in", e.clock.RefClockInFreqSet(slot, cfg.In.KHz()))
	}
	if cfg.In == FreqDisabled {
		e.qlP[st].Set(ssm.QLNone)
		e.ssfP[st].Set(true)
		return
	}
	e.qlP[st].Set(ssm.QLDNU)
	e.ssfP[st].Set(e.locs[slot].Get())
}

// ptpHandler переводит clockClass и PTSF инстанса в QL и SSF источника.
type ptpHandler struct {
	e    *Engine
	inst int
}

func newPTPHandler(e *Engine, inst int) *ptpHandler {
	h := &ptpHandler{e: e, inst: inst}
	on(e.ptpClass[inst], h, PTPChanged{Instance: inst})
	on(e.ptpPTSF[inst], h, PTPChanged{Instance: inst})
	on(e.selection, h, ConfigChanged{Item: CfgSelection})
	h.handle(PTPChanged{Instance: inst})
	return h
}

func (h *ptpHandler) handle(Message) {
	e, src := h.e, h.e.caps.PTPSource(h.inst)
	class := e.ptpClass[h.inst].Get()
	ql := ssm.Received(ssm.FromClockClass(class), e.selection.Get().Option)
	if e.qlP[src].Set(ql) {
		logger.Debug("ptp%d: clockClass %d, QL %v", h.inst, class, ql)
	}
	e.ssfP[src].Set(e.ptpPTSF[h.inst].Get() > PTSFUnusable)
}

// transientHandler подсказывает PTP о переходном процессе SyncE в гибридном режиме.
type transientHandler struct {
	e *Engine
}

func newTransientHandler(e *Engine) *transientHandler {
	h := &transientHandler{e: e}
	on(e.lol, h, StateChanged{Item: StLOL})
	on(e.dhold, h, StateChanged{Item: StDHOLD})
	on(e.selectedQL, h, StateChanged{Item: StSelectedQL})
	on(e.selectedSource, h, StateChanged{Item: StSelectedSource})
	on(e.selection, h, ConfigChanged{Item: CfgSelection})
	h.handle(ConfigChanged{Item: CfgSelection})
	return h
}

func (h *transientHandler) handle(Message) {
	e := h.e
	q := e.selectedQL.Get()
	t := e.lol.Get() || e.dhold.Get() || e.selectedSource.Get() == 0 ||
		(q != ssm.Primary(e.selection.Get().Option) && q != ssm.QLINV)
	if !e.transient.Set(t) {
		return
	}
	if !t {
		e.hw("ptp hybrid transient", e.ptp.SetHybridTransient(TransientNotActive))
	} else if e.hybrid.Get() {
		e.hw("ptp hybrid transient", e.ptp.SetHybridTransient(TransientQuick))
	}
}
