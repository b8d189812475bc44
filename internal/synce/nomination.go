package synce

import (
	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/reactive"
	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

// nominator связывает слот с номинированным источником: подписывается на его QL и SSF
// (и линк, если это порт), применяет ssm_overwrite и переключает восстановление частоты.
type nominator struct {
	e    *Engine
	slot int // 0-based
	cfg  Nomination
	src  int // источник, на который подписан слот, или -1
	link LinkStatus

	qlSub, ssfSub, linkSub *reactive.Subscription
}

func newNominator(e *Engine, slot int) *nominator {
	n := &nominator{e: e, slot: slot, src: -1, cfg: DefaultNomination()}
	on(e.nomination[slot], n, ConfigChanged{Item: CfgNomination, Index: slot})
	n.publish()
	return n
}

func (n *nominator) handle(m Message) {
	rcvrd := false
	switch m := m.(type) {
	case ConfigChanged:
		rcvrd = n.reconfigure()
	case StateChanged:
		if m.Item == StSourceSSF && n.src >= 0 {
			rcvrd = !n.e.ssfP[n.src].Get()
		}
	case PortLinkChanged:
		rcvrd = n.linkChanged()
	}
	n.publish()
	if rcvrd {
		n.recoveredClock()
	}
}

func (n *nominator) reconfigure() bool {
	e := n.e
	cfg, old := e.nomination[n.slot].Get(), n.cfg
	n.cfg = cfg

	switch {
	case old.Nominated && !cfg.Nominated:
		n.detach()
		e.hw("link state", e.clock.LinkStateSet(n.slot, true))
	case !old.Nominated && cfg.Nominated:
		n.attach(cfg.Source)
	case cfg.Nominated && cfg.Source != old.Source:
		n.detach()
		e.hw("link state", e.clock.LinkStateSet(n.slot, true))
		n.attach(cfg.Source)
	}

	if cfg.Nominated && cfg.Source == e.caps.Station() {
		e.stationSource.Set(n.slot + 1)
	} else if e.stationSource.Get() == n.slot+1 {
		e.stationSource.Set(0)
	}
	return cfg.Nominated != old.Nominated || cfg.Source != old.Source || cfg.AnegMode != old.AnegMode
}

func (n *nominator) attach(src int) {
	e := n.e
	n.src = src
	n.qlSub = on(e.qlP[src], n, StateChanged{Item: StSourceQL, Index: src})
	n.ssfSub = on(e.ssfP[src], n, StateChanged{Item: StSourceSSF, Index: src})
	if e.caps.IsPort(src) {
		n.linkSub = on(e.link[src], n, PortLinkChanged{Port: src})
		n.link = e.link[src].Get()
	}
	logger.Debug("slot %d: nominated %s", n.slot+1, e.caps.SourceName(src))
}

func (n *nominator) detach() {
	if n.src < 0 {
		return
	}
	e := n.e
	e.qlP[n.src].Detach(n.qlSub)
	e.ssfP[n.src].Detach(n.ssfSub)
	if n.linkSub != nil {
		e.link[n.src].Detach(n.linkSub)
	}
	n.qlSub, n.ssfSub, n.linkSub = nil, nil, nil
	logger.Debug("slot %d: released %s", n.slot+1, e.caps.SourceName(n.src))
	n.src = -1
}

func (n *nominator) linkChanged() bool {
	e := n.e
	if !e.caps.IsPort(n.src) {
		return false
	}
	ls, old := e.link[n.src].Get(), n.link
	n.link = ls
	if ls.Up != old.Up {
		e.hw("link state", e.clock.LinkStateSet(n.slot, ls.Up))
	}
	return !e.ssfP[n.src].Get() && ls.Up && ls != old
}

func (n *nominator) publish() {
	e, s := n.e, n.slot
	if !n.cfg.Nominated || n.src < 0 {
		e.qlN[s].Set(ssm.QLNone)
		e.ssfN[s].Set(true)
		e.ssmBad[s].Set(false)
		return
	}
	q := e.qlP[n.src].Get()
	e.ssmBad[s].Set(q == ssm.QLFail || q == ssm.QLINV)
	if n.cfg.Overwrite != ssm.QLNone {
		q = n.cfg.Overwrite
	}
	e.qlN[s].Set(q)
	e.ssfN[s].Set(e.ssfP[n.src].Get())
}

// recoveredClock перенастраивает путь восстановленной частоты слота и вход селектора DPLL.
func (n *nominator) recoveredClock() {
	e, s, cfg := n.e, n.slot, n.cfg
	enable := cfg.Nominated && !e.ssfN[s].Get()
	logger.Debug("slot %d: recovered clock %s enable=%v", s+1, e.caps.SourceName(cfg.Source), enable)
	e.hw("recovered clock", e.clock.RecoveredClockSet(s, cfg.Source, enable))

	ref := s
	if _, ok := e.caps.IsPTP(cfg.Source); ok {
		ref = RefPTP
	}
	e.hw("selector map", e.clock.SelectorMapSet(ref, s))
	if cfg.Nominated && e.caps.IsPort(cfg.Source) {
		e.hw("ref clock in", e.clock.RefClockInFreqSet(s, recoveredKHz(e.link[cfg.Source].Get().Speed)))
	}
}

// recoveredKHz: частота восстановленного клока по скорости линка.
func recoveredKHz(speed uint32) uint32 {
	switch speed {
	case 100:
		return 25000
	case 10000:
		return 161130
	}
	return 125000
}
