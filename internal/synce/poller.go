package synce

import (
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/reactive"
)

const pollInterval = time.Second

// poller раз в секунду читает из DPLL тревоги и состояние селектора.
type poller struct {
	e     *Engine
	timer *reactive.Timer
}

func newPoller(e *Engine) *poller {
	p := &poller{e: e}
	p.timer = e.newTimer(p, TimerPoll)
	p.timer.Start(pollInterval)
	return p
}

func (p *poller) handle(Message) {
	p.poll()
	p.timer.Start(pollInterval)
}

func (p *poller) poll() {
	e := p.e
	e.hw("event poll", e.clock.EventPoll())

	for s := range e.locs {
		locs := true
		if src := e.sourceOf(s); src >= 0 {
			if inst, ok := e.caps.IsPTP(src); ok {
				locs = e.ptpPTSF[inst].Get() > PTSFUnusable
			} else if v, err := e.clock.LOCS(s); err != nil {
				e.hw("locs", err)
			} else {
				locs = v
			}
		}
		e.locs[s].Set(locs)
	}

	lol, err := e.clock.LOL()
	if err != nil {
		e.hw("lol", err)
		lol = true
	}
	e.lol.Set(lol)

	losx, err := e.clock.LOSX()
	if err != nil {
		e.hw("losx", err)
		losx = true
	}
	e.losx.Set(losx)

	var ready bool
	if bm := e.bestMaster.Get(); bm >= 0 {
		ready, err = e.ptp.HoldoverReady(bm)
	} else {
		ready, err = e.clock.HoldoverReady()
	}
	if err != nil {
		e.hw("holdover ready", err)
		ready = true
	}
	e.dhold.Set(!ready)

	if st, in, err := e.clock.SelectorState(); err != nil {
		e.hw("selector state", err)
	} else {
		e.selectorState.Set(st)
		e.clockInput.Set(in)
	}
}
