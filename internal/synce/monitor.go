package synce

import "github.com/shiwa/timecard-mini/synce/internal/logger"

// monitor пишет в отладочный лог изменения состояния портов, источников и выбора.
type monitor struct {
	e *Engine
}

func newMonitor(e *Engine) *monitor {
	m := &monitor{e: e}
	for p := range e.link {
		on(e.link[p], m, PortLinkChanged{Port: p})
		on(e.dlos[p], m, StateChanged{Item: StDLOS, Index: p})
		on(e.txSSM[p], m, StateChanged{Item: StTxSSM, Index: p})
		on(e.anegMaster[p], m, StateChanged{Item: StAnegMaster, Index: p})
	}
	for src := range e.qlP {
		on(e.qlP[src], m, StateChanged{Item: StSourceQL, Index: src})
		on(e.ssfP[src], m, StateChanged{Item: StSourceSSF, Index: src})
	}
	for s := range e.locs {
		on(e.locs[s], m, StateChanged{Item: StLOCS, Index: s})
		on(e.ssmBad[s], m, StateChanged{Item: StSSMBad, Index: s})
		on(e.wtrActive[s], m, StateChanged{Item: StWTRActive, Index: s})
	}
	on(e.status, m, StateChanged{Item: StStatus})
	on(e.clockInput, m, StateChanged{Item: StClockInput})
	return m
}

func (m *monitor) handle(msg Message) {
	if !logger.Verbose {
		return
	}
	e := m.e
	switch msg := msg.(type) {
	case PortLinkChanged:
		ls := e.link[msg.Port].Get()
		logger.Debug("port %s: link up=%v speed=%d fiber=%v", e.caps.Ports[msg.Port].Name, ls.Up, ls.Speed, ls.Fiber)
	case StateChanged:
		i := msg.Index
		switch msg.Item {
		case StDLOS:
			logger.Debug("port %s: loss of ESMC %v", e.caps.Ports[i].Name, e.dlos[i].Get())
		case StTxSSM:
			logger.Debug("port %s: tx %v", e.caps.Ports[i].Name, e.txSSM[i].Get())
		case StAnegMaster:
			logger.Debug("port %s: aneg master %v", e.caps.Ports[i].Name, e.anegMaster[i].Get())
		case StSourceQL:
			logger.Debug("source %s: QL %v", e.caps.SourceName(i), e.qlP[i].Get())
		case StSourceSSF:
			logger.Debug("source %s: SSF %v", e.caps.SourceName(i), e.ssfP[i].Get())
		case StLOCS:
			logger.Debug("slot %d: LOCS %v", i+1, e.locs[i].Get())
		case StSSMBad:
			logger.Debug("slot %d: SSM bad %v", i+1, e.ssmBad[i].Get())
		case StWTRActive:
			logger.Debug("slot %d: WTR active %v", i+1, e.wtrActive[i].Get())
		case StStatus:
			st := e.status.Get()
			logger.Debug("status: source %d port %d state %v lol %v losx %v dhold %v",
				st.Source, st.Port, st.State, st.LOL, st.LOSX, st.DHOLD)
		case StClockInput:
			logger.Debug("dpll clock input %d", e.clockInput.Get())
		}
	}
}
