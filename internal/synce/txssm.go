package synce

import (
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/reactive"
	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

const txInterval = time.Second

// txProcessor: передача SSM одного порта: раз в секунду и сразу при смене выбранного QL.
type txProcessor struct {
	e       *Engine
	port    int
	enabled bool
	timer   *reactive.Timer
}

func newTxProcessor(e *Engine, port int) *txProcessor {
	t := &txProcessor{e: e, port: port}
	t.timer = e.newTimer(t, TimerTx)
	on(e.portSSM[port], t, ConfigChanged{Item: CfgPortSSM, Index: port})
	on(e.selectedQL, t, StateChanged{Item: StSelectedQL})
	t.enable(e.portSSM[port].Get())
	return t
}

func (t *txProcessor) handle(m Message) {
	switch m := m.(type) {
	case TimerFired:
		if t.enabled {
			t.send(false)
			t.timer.Start(txInterval)
		}
	case ConfigChanged:
		t.enable(t.e.portSSM[t.port].Get())
	case StateChanged:
		if m.Item == StSelectedQL && t.enabled {
			t.send(true)
		}
	}
}

func (t *txProcessor) enable(want bool) {
	if want == t.enabled {
		return
	}
	t.enabled = want
	e := t.e
	if !want {
		t.timer.Stop()
		e.txSSM[t.port].Set(ssm.CodeFail)
		return
	}
	t.timer.Start(txInterval)
	if e.link[t.port].Get().Up {
		e.txSSM[t.port].Set(ssm.CodeDNU)
	} else {
		e.txSSM[t.port].Set(ssm.CodeLink)
	}
}

func (t *txProcessor) send(event bool) {
	e := t.e
	code := t.code()
	e.txSSM[t.port].Set(code)
	if code == ssm.CodeLink {
		return
	}
	e.hw("esmc tx "+e.caps.Ports[t.port].Name, e.tx.Transmit(t.port, code, event))
}

// code: что передавать в порт сейчас.
func (t *txProcessor) code() ssm.Code {
	e := t.e
	if !e.link[t.port].Get().Up {
		return ssm.CodeLink
	}
	if e.caps.Ports[t.port].Kind == PortDNUOnly || e.selectedPort.Get() == t.port {
		return ssm.CodeDNU
	}
	cfg := e.selection.Get()
	q := ssm.DoNotUse(cfg.Option)
	switch st := e.selectorState.Get(); {
	case st == StateLocked:
		q = e.selectedQL.Get()
	case (st == StateHoldover || st == StateAcquiring) && cfg.Holdover != ssm.QLNone:
		q = cfg.Holdover
	case st == StateFreeRun && cfg.FreeRun != ssm.QLNone:
		q = cfg.FreeRun
	}
	return ssm.Transmit(q, cfg.Option)
}
