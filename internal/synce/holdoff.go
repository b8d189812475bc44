package synce

import (
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/reactive"
	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

const (
	holdoffUnit = 100 * time.Millisecond
	wtrUnit     = time.Minute
	wtrGrace    = time.Second
)

// holdoffFilter: фильтр hold-off/WTR между номинацией слота и арбитром.
//
// Пропадание сигнала доходит до арбитра только после hold-off; восстановление
// после периода отказа: только после WTR. Восстановление в первую секунду после
// номинации проходит сразу.
type holdoffFilter struct {
	e    *Engine
	slot int

	holdoff, wtr, grace *reactive.Timer
	graceDone           bool
	prevNominated       bool
}

func newHoldoffFilter(e *Engine, slot int) *holdoffFilter {
	f := &holdoffFilter{e: e, slot: slot}
	f.holdoff = e.newTimer(f, TimerHoldoff)
	f.wtr = e.newTimer(f, TimerWTR)
	f.grace = e.newTimer(f, TimerWTRHelper)
	f.prevNominated = e.nomination[slot].Get().Nominated

	e.sf[slot+1].Set(true)
	on(e.nomination[slot], f, ConfigChanged{Item: CfgNomination, Index: slot})
	on(e.selection, f, ConfigChanged{Item: CfgSelection})
	on(e.clearWTR[slot], f, ConfigChanged{Item: CfgClearWTR, Index: slot})
	on(e.qlN[slot], f, StateChanged{Item: StSlotQL, Index: slot})
	on(e.ssfN[slot], f, StateChanged{Item: StSlotSF, Index: slot})
	return f
}

func (f *holdoffFilter) handle(m Message) {
	if t, ok := m.(TimerFired); ok {
		f.expired(t.Timer)
		return
	}
	f.evaluate()
}

func (f *holdoffFilter) evaluate() {
	e, s := f.e, f.slot
	cfg := e.nomination[s].Get()
	qlN, ssfN := e.qlN[s].Get(), e.ssfN[s].Get()

	switch {
	case f.prevNominated && !cfg.Nominated:
		f.holdoff.Stop()
		f.wtr.Stop()
		f.grace.Stop()
		f.commit()

	case cfg.Nominated:
		if !f.prevNominated {
			f.graceDone = false
			f.grace.Start(wtrGrace)
		}
		curQL, curSF := e.ql[s+1].Get(), e.sf[s+1].Get()
		failed := ssfN || qlN == ssm.QLFail

		if cfg.Holdoff != 0 {
			if failed && !curSF && curQL != ssm.QLFail && !f.holdoff.Running() {
				logger.Debug("slot %d: hold-off %v", s+1, time.Duration(cfg.Holdoff)*holdoffUnit)
				f.holdoff.Start(time.Duration(cfg.Holdoff) * holdoffUnit)
			}
			if f.holdoff.Running() && !failed {
				logger.Debug("slot %d: signal back within hold-off", s+1)
				f.holdoff.Stop()
			}
		} else {
			f.holdoff.Stop()
		}

		if wtr := e.selection.Get().WTR; wtr != 0 {
			recovered := !ssfN && (curSF || (curQL == ssm.QLFail && qlN != ssm.QLFail))
			if recovered && !f.wtr.Running() && (qlN == ssm.QLFail || f.graceDone) {
				logger.Debug("slot %d: wait-to-restore %d min", s+1, wtr)
				f.wtr.Start(time.Duration(wtr) * wtrUnit)
			}
			clear := e.clearWTR[s].Get()
			if f.wtr.Running() && (ssfN || clear) {
				f.wtr.Stop()
			}
			if clear {
				e.clearWTR[s].Set(false)
			}
		} else {
			f.wtr.Stop()
		}

		if !f.holdoff.Running() && !f.wtr.Running() {
			f.commit()
		}

	default:
		f.commit()
	}

	f.prevNominated = cfg.Nominated
	e.wtrActive[s].Set(f.wtr.Running())
}

func (f *holdoffFilter) expired(id TimerID) {
	switch id {
	case TimerHoldoff:
		f.commit()
	case TimerWTR:
		logger.Debug("slot %d: wait-to-restore done", f.slot+1)
		f.commit()
		f.e.wtrActive[f.slot].Set(false)
	case TimerWTRHelper:
		f.graceDone = true
	}
}

func (f *holdoffFilter) commit() {
	e, s := f.e, f.slot
	e.ql[s+1].Set(e.qlN[s].Get())
	e.sf[s+1].Set(e.ssfN[s].Get())
}
