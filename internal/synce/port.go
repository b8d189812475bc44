package synce

import (
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/reactive"
	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

const (
	ssmFirstTimeout = 5 * time.Second
	ssmTimeout      = 7 * time.Second
	anegGuard       = 6 * time.Second
)

// rxProcessor: приём SSM одного порта: QL порта и признак потери ESMC.
type rxProcessor struct {
	e       *Engine
	port    int
	timeout bool
	timer   *reactive.Timer
}

func newRxProcessor(e *Engine, port int) *rxProcessor {
	r := &rxProcessor{e: e, port: port, timeout: true}
	r.timer = e.newTimer(r, TimerSSM)
	on(e.rxSSM[port], r, SSMReceived{Port: port})
	on(e.portSSM[port], r, ConfigChanged{Item: CfgPortSSM, Index: port})
	on(e.selection, r, ConfigChanged{Item: CfgSelection})
	on(e.link[port], r, PortLinkChanged{Port: port})
	r.timer.Start(ssmFirstTimeout)
	r.evaluate()
	return r
}

func (r *rxProcessor) handle(m Message) {
	switch m.(type) {
	case SSMReceived:
		r.timeout = false
		r.timer.Start(ssmTimeout)
	case TimerFired:
		r.timeout = true
	}
	r.evaluate()
}

func (r *rxProcessor) evaluate() {
	e, p := r.e, r.port
	if !e.portSSM[p].Get() {
		e.qlP[p].Set(ssm.QLDNU)
		e.dlos[p].Set(false)
		return
	}
	switch {
	case !e.link[p].Get().Up:
		e.qlP[p].Set(ssm.QLLink)
		r.timeout = true
	case r.timeout:
		if e.qlP[p].Set(ssm.QLFail) {
			logger.Debug("port %s: ESMC timeout, QL FAIL", e.caps.Ports[p].Name)
		}
	default:
		ql := ssm.Received(e.rxSSM[p].Get(), e.selection.Get().Option)
		if e.qlP[p].Set(ql) {
			logger.Debug("port %s: rx QL %v", e.caps.Ports[p].Name, ql)
		}
	}
	e.dlos[p].Set(r.timeout)
}

// anegSteering: SSF порта и роль master/slave 1000BASE-T: выбранный порт должен быть
// slave, чтобы восстанавливать частоту с линии.
type anegSteering struct {
	e       *Engine
	port    int
	ongoing bool
	timer   *reactive.Timer
}

func newAnegSteering(e *Engine, port int) *anegSteering {
	a := &anegSteering{e: e, port: port}
	a.timer = e.newTimer(a, TimerAneg)
	on(e.link[port], a, PortLinkChanged{Port: port})
	on(e.dlos[port], a, StateChanged{Item: StDLOS, Index: port})
	on(e.selectedPort, a, StateChanged{Item: StSelectedPort})
	a.evaluate()
	return a
}

func (a *anegSteering) copper() bool {
	return a.e.caps.Ports[a.port].Kind == PortCopper1G && !a.e.link[a.port].Get().Fiber
}

func (a *anegSteering) handle(m Message) {
	switch m.(type) {
	case TimerFired:
		a.ongoing = false
	case PortLinkChanged:
		a.updateMaster()
	}
	a.evaluate()
}

// updateMaster перечитывает роль PHY после смены линка.
func (a *anegSteering) updateMaster() {
	e, p := a.e, a.port
	if !e.link[p].Get().Up || !a.copper() {
		e.anegMaster[p].Set(true)
		return
	}
	e.phyMu.Lock()
	master, err := e.phy.AnegMaster(p)
	e.phyMu.Unlock()
	if err != nil {
		e.hw("phy aneg status "+e.caps.Ports[p].Name, err)
		return
	}
	e.anegMaster[p].Set(master)
}

func (a *anegSteering) evaluate() {
	e, p := a.e, a.port
	ls := e.link[p].Get()
	dlos := e.dlos[p].Get()
	if !a.copper() {
		e.ssfP[p].Set(dlos || !ls.Up)
		return
	}
	e.ssfP[p].Set(dlos || (!ls.Up && !a.ongoing))
	if a.ongoing || !ls.Up {
		return
	}

	e.phyMu.Lock()
	defer e.phyMu.Unlock()
	name := e.caps.Ports[p].Name
	master, err := e.phy.AnegMaster(p)
	if err != nil {
		e.hw("phy aneg status "+name, err)
		return
	}
	neg, err := e.phy.ManualNeg(p)
	if err != nil {
		e.hw("phy manual neg "+name, err)
		return
	}
	restart := false
	if p == e.selectedPort.Get() {
		if master {
			neg, restart = NegClient, true
		}
	} else if neg != NegDisabled {
		neg, restart = NegDisabled, true
	}
	if !restart {
		return
	}
	logger.Debug("port %s: restart aneg as %v", name, neg)
	e.hw("phy set manual neg "+name, e.phy.SetManualNeg(p, neg))
	a.ongoing = true
	a.timer.Start(anegGuard)
}
