package synce

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/reactive"
	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

type modeCall struct {
	mode SelectionMode
	slot int
}

type fakeClock struct {
	state     SelectorState
	input     int
	lol       bool
	locs      map[int]bool
	modes     []modeCall
	recovered map[int]bool
	resets    int
}

func newFakeClock() *fakeClock {
	return &fakeClock{state: StateFreeRun, input: -1, locs: map[int]bool{}, recovered: map[int]bool{}}
}

func (f *fakeClock) SelectorMapSet(ref, slot int) error           { return nil }
func (f *fakeClock) RefClockInFreqSet(slot int, khz uint32) error { return nil }
func (f *fakeClock) StationClockOutFreqSet(khz uint32) error      { return nil }
func (f *fakeClock) SelectionModeSet(m SelectionMode, slot int) error {
	f.modes = append(f.modes, modeCall{m, slot})
	return nil
}
func (f *fakeClock) LinkStateSet(slot int, up bool) error { return nil }
func (f *fakeClock) RecoveredClockSet(slot, source int, enable bool) error {
	f.recovered[slot] = enable
	return nil
}
func (f *fakeClock) LOL() (bool, error)           { return f.lol, nil }
func (f *fakeClock) LOSX() (bool, error)          { return false, nil }
func (f *fakeClock) HoldoverReady() (bool, error) { return true, nil }
func (f *fakeClock) LOCS(slot int) (bool, error)  { return f.locs[slot], nil }
func (f *fakeClock) SelectorState() (SelectorState, int, error) {
	return f.state, f.input, nil
}
func (f *fakeClock) EventPoll() error { return nil }
func (f *fakeClock) Reset() error     { f.resets++; return nil }

func (f *fakeClock) lastMode() modeCall {
	if len(f.modes) == 0 {
		return modeCall{slot: -2}
	}
	return f.modes[len(f.modes)-1]
}

type fakeTx struct {
	last  map[int]ssm.Code
	event map[int]bool
}

func (f *fakeTx) Transmit(port int, code ssm.Code, event bool) error {
	f.last[port] = code
	f.event[port] = event
	return nil
}

type fakePHY struct {
	master   map[int]bool
	neg      map[int]ManualNeg
	restarts int
}

func (f *fakePHY) AnegMaster(port int) (bool, error)     { return f.master[port], nil }
func (f *fakePHY) ManualNeg(port int) (ManualNeg, error) { return f.neg[port], nil }
func (f *fakePHY) SetManualNeg(port int, n ManualNeg) error {
	f.neg[port] = n
	f.restarts++
	if n == NegClient {
		f.master[port] = false
	}
	return nil
}

type fakePTP struct {
	selected  PTPSelected
	transient []HybridTransient
}

func (f *fakePTP) SetSelectedSource(s PTPSelected) error { f.selected = s; return nil }
func (f *fakePTP) SetHybridTransient(t HybridTransient) error {
	f.transient = append(f.transient, t)
	return nil
}
func (f *fakePTP) HoldoverReady(int) (bool, error) { return true, nil }

func testCaps(kind PortKind) Capabilities {
	c := Capabilities{Slots: 5, PTPInstances: 1}
	for i := 0; i < 8; i++ {
		c.Ports = append(c.Ports, PortCaps{Name: fmt.Sprintf("eth%d", i), Kind: kind})
	}
	return c
}

type harness struct {
	t     *testing.T
	e     *Engine
	sched *reactive.Scheduler
	clock *fakeClock
	tx    *fakeTx
}

func newHarness(t *testing.T, caps Capabilities, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:     t,
		sched: reactive.NewScheduler(reactive.NewManualClock(time.Unix(1000, 0)), 0),
		clock: newFakeClock(),
		tx:    &fakeTx{last: map[int]ssm.Code{}, event: map[int]bool{}},
	}
	opts = append([]Option{WithScheduler(h.sched), WithTransmitter(h.tx)}, opts...)
	e, err := New(caps, h.clock, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h.e = e
	return h
}

func (h *harness) must(err error) {
	h.t.Helper()
	if err != nil {
		h.t.Fatal(err)
	}
}

// portUp включает SSM на порту, поднимает линк и принимает один кадр.
func (h *harness) portUp(port int, code ssm.Code) {
	h.t.Helper()
	ctx := context.Background()
	h.must(h.e.SetPortSSM(ctx, port, true))
	h.must(h.e.SetLinkStatus(ctx, port, LinkStatus{Up: true, Speed: 1000}))
	h.must(h.e.ReceiveSSM(ctx, port, code))
}

func (h *harness) status() SelectionStatus {
	h.t.Helper()
	st, err := h.e.Status(context.Background())
	h.must(err)
	return st
}

func (h *harness) nominate(slot, src int, prio, holdoff uint) {
	h.t.Helper()
	h.must(h.e.SetNomination(context.Background(), slot, Nomination{
		Nominated: true, Source: src, Priority: prio, Holdoff: holdoff,
	}))
}

func TestStartsOnInternalOscillator(t *testing.T) {
	h := newHarness(t, testCaps(PortFiber))
	st := h.status()
	if st.Source != 0 || st.Port != -1 || st.ClockInput != -1 {
		t.Errorf("status = %+v, want internal oscillator", st)
	}
	if st.State != StateFreeRun {
		t.Errorf("state = %v, want FREERUN", st.State)
	}
	if m := h.clock.lastMode(); m.mode != ModeForcedFreeRun {
		t.Errorf("dpll mode = %v, want forced free-run", m.mode)
	}
}

func TestFailoverAfterHoldoff(t *testing.T) {
	h := newHarness(t, testCaps(PortFiber))
	ctx := context.Background()
	h.portUp(3, ssm.CodePRC)
	h.portUp(7, ssm.CodeSEC)
	h.nominate(1, 3, 0, 5)
	h.nominate(2, 7, 1, 5)

	st := h.status()
	if st.Source != 1 || st.Port != 3 {
		t.Fatalf("selected slot %d port %d, want slot 1 port 3", st.Source, st.Port)
	}
	if m := h.clock.lastMode(); m != (modeCall{ModeManual, 0}) {
		t.Errorf("dpll mode = %+v, want manual on slot 0", m)
	}
	if q, _ := h.e.SelectedQL(ctx); q != ssm.QLPRC {
		t.Errorf("selected QL = %v, want PRC", q)
	}

	h.must(h.e.SetLinkStatus(ctx, 3, LinkStatus{}))
	h.sched.Advance(400 * time.Millisecond)
	if st := h.status(); st.Source != 1 {
		t.Fatalf("switched before hold-off expired: slot %d", st.Source)
	}
	h.sched.Advance(100 * time.Millisecond)
	st = h.status()
	if st.Source != 2 || st.Port != 7 {
		t.Errorf("selected slot %d port %d, want slot 2 port 7", st.Source, st.Port)
	}
	if q, _ := h.e.SelectedQL(ctx); q != ssm.QLEEC1 {
		t.Errorf("selected QL = %v, want EEC1", q)
	}
	if !h.clock.recovered[1] {
		t.Error("recovered clock of slot 2 not enabled")
	}
}

func TestHoldoffDebounce(t *testing.T) {
	h := newHarness(t, testCaps(PortFiber))
	ctx := context.Background()
	h.portUp(3, ssm.CodePRC)
	h.nominate(1, 3, 0, 5)

	h.must(h.e.SetLinkStatus(ctx, 3, LinkStatus{}))
	h.sched.Advance(200 * time.Millisecond)
	h.must(h.e.SetLinkStatus(ctx, 3, LinkStatus{Up: true, Speed: 1000}))
	h.must(h.e.ReceiveSSM(ctx, 3, ssm.CodePRC))
	h.sched.Advance(time.Second)

	ns, err := h.e.NominationStatus(ctx, 1)
	h.must(err)
	if ns.SF || ns.QL != ssm.QLPRC {
		t.Errorf("slot 1 = %v/%v, want PRC without SF", ns.QL, ns.SF)
	}
	if st := h.status(); st.Source != 1 {
		t.Errorf("selected slot %d, want 1", st.Source)
	}
}

func TestWTR(t *testing.T) {
	ctx := context.Background()

	t.Run("recovery right after nomination", func(t *testing.T) {
		h := newHarness(t, testCaps(PortFiber))
		h.nominate(1, 3, 0, 0)
		h.portUp(3, ssm.CodePRC)

		ns, err := h.e.NominationStatus(ctx, 1)
		h.must(err)
		if ns.WTRActive || ns.SF || ns.QL != ssm.QLPRC {
			t.Errorf("slot 1 = %+v, want committed PRC without WTR", ns)
		}
	})

	t.Run("recovery after fail waits", func(t *testing.T) {
		h := newHarness(t, testCaps(PortFiber))
		h.portUp(3, ssm.CodePRC)
		h.nominate(1, 3, 0, 0)
		h.sched.Advance(2 * time.Second)

		h.must(h.e.SetLinkStatus(ctx, 3, LinkStatus{}))
		if st := h.status(); st.Source != 0 {
			t.Fatalf("selected slot %d after link down, want 0", st.Source)
		}
		h.must(h.e.SetLinkStatus(ctx, 3, LinkStatus{Up: true, Speed: 1000}))
		h.must(h.e.ReceiveSSM(ctx, 3, ssm.CodePRC))

		ns, _ := h.e.NominationStatus(ctx, 1)
		if !ns.WTRActive || !ns.SF {
			t.Fatalf("slot 1 = %+v, want WTR running and SF held", ns)
		}
		h.must(h.e.ClearWTR(ctx, 1))
		ns, _ = h.e.NominationStatus(ctx, 1)
		if ns.WTRActive || ns.SF {
			t.Errorf("slot 1 = %+v after clear, want committed", ns)
		}
		if st := h.status(); st.Source != 1 {
			t.Errorf("selected slot %d after clear, want 1", st.Source)
		}
	})

	t.Run("wtr expiry commits", func(t *testing.T) {
		h := newHarness(t, testCaps(PortFiber))
		h.must(h.e.SetPortSSM(ctx, 3, false))
		h.must(h.e.SetLinkStatus(ctx, 3, LinkStatus{Up: true, Speed: 1000}))
		h.must(h.e.SetNomination(ctx, 1, Nomination{Nominated: true, Source: 3, Overwrite: ssm.QLPRC}))
		h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoRevertive, Source: 1, WTR: 1}))
		h.sched.Advance(2 * time.Second)

		h.must(h.e.SetLinkStatus(ctx, 3, LinkStatus{}))
		h.must(h.e.SetLinkStatus(ctx, 3, LinkStatus{Up: true, Speed: 1000}))
		h.sched.Advance(59 * time.Second)
		if st := h.status(); st.Source != 0 {
			t.Fatalf("selected slot %d during WTR, want 0", st.Source)
		}
		h.sched.Advance(time.Second)
		if st := h.status(); st.Source != 1 {
			t.Errorf("selected slot %d after WTR, want 1", st.Source)
		}
	})
}

func TestTxNeverEchoesSelectedQuality(t *testing.T) {
	h := newHarness(t, testCaps(PortFiber))
	h.clock.state, h.clock.input = StateLocked, 0
	h.portUp(3, ssm.CodePRC)
	h.portUp(7, ssm.CodeSEC)
	h.nominate(1, 3, 0, 0)
	h.sched.Advance(time.Second)

	if got := h.tx.last[3]; got != ssm.CodeDNU {
		t.Errorf("port 3 (selected) sends %v, want DNU", got)
	}
	if got := h.tx.last[7]; got != ssm.CodePRC {
		t.Errorf("port 7 sends %v, want PRC", got)
	}
	ps, err := h.e.PortStatus(context.Background(), 3)
	h.must(err)
	if ps.TxCode != ssm.CodeDNU || ps.RxQL != ssm.QLPRC || ps.LossOfESMC {
		t.Errorf("port 3 status = %+v", ps)
	}
}

func TestTxFollowsSelectorState(t *testing.T) {
	h := newHarness(t, testCaps(PortFiber))
	ctx := context.Background()
	h.portUp(2, ssm.CodeDNU)
	h.must(h.e.SetSelection(ctx, SelectionConfig{
		Mode: ModeAutoRevertive, Source: 1, WTR: 5, Holdover: ssm.QLSSUB, FreeRun: ssm.QLEEC1,
	}))

	tests := []struct {
		state SelectorState
		want  ssm.Code
	}{
		{StateFreeRun, ssm.CodeSEC},
		{StateHoldover, ssm.CodeSSUB},
		{StateAcquiring, ssm.CodeSSUB},
	}
	for _, tt := range tests {
		h.clock.state = tt.state
		h.sched.Advance(time.Second)
		if got := h.tx.last[2]; got != tt.want {
			t.Errorf("%v: sends %v, want %v", tt.state, got, tt.want)
		}
	}

	h.must(h.e.SetLinkStatus(ctx, 2, LinkStatus{}))
	h.sched.Advance(time.Second)
	if ps, _ := h.e.PortStatus(ctx, 2); ps.TxCode != ssm.CodeLink {
		t.Errorf("link down: tx %v, want LINK", ps.TxCode)
	}
	h.must(h.e.SetPortSSM(ctx, 2, false))
	if ps, _ := h.e.PortStatus(ctx, 2); ps.TxCode != ssm.CodeFail || ps.RxQL != ssm.QLDNU {
		t.Errorf("ssm disabled: %+v, want tx FAIL rx DNU", ps)
	}
}

func TestESMCTimeout(t *testing.T) {
	h := newHarness(t, testCaps(PortFiber))
	ctx := context.Background()
	h.portUp(1, ssm.CodePRC)
	h.sched.Advance(6 * time.Second)
	if ps, _ := h.e.PortStatus(ctx, 1); ps.RxQL != ssm.QLPRC {
		t.Fatalf("rx QL %v before timeout, want PRC", ps.RxQL)
	}
	h.sched.Advance(time.Second)
	ps, _ := h.e.PortStatus(ctx, 1)
	if ps.RxQL != ssm.QLFail || !ps.LossOfESMC {
		t.Errorf("after 7 s silence: %+v, want FAIL with loss of ESMC", ps)
	}
}

func TestUnalignedSSMIsInvalid(t *testing.T) {
	h := newHarness(t, testCaps(PortFiber))
	h.portUp(1, ssm.CodePRS)
	if ps, _ := h.e.PortStatus(context.Background(), 1); ps.RxQL != ssm.QLINV {
		t.Errorf("PRS in option I: rx %v, want INV", ps.RxQL)
	}
}

func TestOverwriteAndSSMBad(t *testing.T) {
	h := newHarness(t, testCaps(PortFiber))
	ctx := context.Background()
	h.portUp(4, ssm.CodePRS)
	h.must(h.e.SetNomination(ctx, 1, Nomination{Nominated: true, Source: 4, Overwrite: ssm.QLSSUA}))

	ns, _ := h.e.NominationStatus(ctx, 1)
	if !ns.SSMBad || ns.QL != ssm.QLSSUA {
		t.Errorf("slot 1 = %+v, want SSM bad with overwritten SSUA", ns)
	}
	if st := h.status(); st.Source != 1 {
		t.Errorf("selected slot %d, want 1", st.Source)
	}
}

func TestSelectionModes(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCaps(PortFiber))
	h.portUp(3, ssm.CodePRC)
	h.portUp(5, ssm.CodeSSUB)
	h.nominate(1, 3, 0, 0)
	h.nominate(2, 5, 1, 0)

	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeManual, Source: 2, WTR: 5}))
	if st := h.status(); st.Source != 2 || st.Port != 5 {
		t.Errorf("manual: slot %d port %d, want 2/5", st.Source, st.Port)
	}
	if m := h.clock.lastMode(); m != (modeCall{ModeManual, 1}) {
		t.Errorf("manual: dpll %+v", m)
	}

	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoNonRevertive, Source: 1, WTR: 5}))
	if st := h.status(); st.Source != 2 {
		t.Errorf("non-revertive kept slot %d, want 2", st.Source)
	}

	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeForcedFreeRun, Source: 1, WTR: 5}))
	if st := h.status(); st.Source != 0 {
		t.Errorf("forced free-run: slot %d", st.Source)
	}
	if m := h.clock.lastMode(); m.mode != ModeForcedFreeRun {
		t.Errorf("forced free-run: dpll %+v", m)
	}

	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoRevertive, Source: 1, WTR: 5}))
	if st := h.status(); st.Source != 1 {
		t.Errorf("revertive: slot %d, want 1", st.Source)
	}
}

func TestNonRevertiveFallsThroughOnFail(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCaps(PortFiber))
	h.portUp(3, ssm.CodePRC)
	h.portUp(5, ssm.CodeSSUB)
	h.nominate(1, 3, 0, 0)
	h.nominate(2, 5, 1, 0)
	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeManual, Source: 2, WTR: 5}))
	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoNonRevertive, Source: 2, WTR: 5}))

	h.must(h.e.SetLinkStatus(ctx, 5, LinkStatus{}))
	if st := h.status(); st.Source != 1 {
		t.Errorf("after fail of slot 2: slot %d, want 1", st.Source)
	}
}

func TestModeTransitionLegality(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCaps(PortFiber))

	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeForcedHoldover, Source: 1, WTR: 5}))
	cfg, _ := h.e.Selection(ctx)
	if cfg.Mode != ModeForcedFreeRun {
		t.Errorf("forced holdover from FREERUN stored as %v", cfg.Mode)
	}
	err := h.e.SetSelection(ctx, SelectionConfig{Mode: ModeForcedHoldover, Source: 1, WTR: 5})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("forced free-run -> forced holdover: err = %v", err)
	}

	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoRevertive, Source: 1, WTR: 5}))
	err = h.e.SetSelection(ctx, SelectionConfig{Mode: ModeManualToSelected, Source: 1})
	if !errors.Is(err, ErrSelectionNotAllowed) {
		t.Errorf("manual-to-selected while FREERUN: err = %v", err)
	}

	h.portUp(2, ssm.CodePRC)
	h.nominate(3, 2, 0, 0)
	h.clock.state, h.clock.input = StateLocked, 2
	h.sched.Advance(time.Second)
	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeManualToSelected, Source: 1}))
	cfg, _ = h.e.Selection(ctx)
	if cfg.Mode != ModeManual || cfg.Source != 3 {
		t.Errorf("manual-to-selected stored as %v source %d, want manual 3", cfg.Mode, cfg.Source)
	}

	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeForcedFreeRun, Source: 1}))
	err = h.e.SetSelection(ctx, SelectionConfig{Mode: ModeManualToSelected, Source: 1})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("manual-to-selected from forced free-run: err = %v", err)
	}
	if cfg, _ := h.e.Selection(ctx); cfg.Mode != ModeForcedFreeRun {
		t.Errorf("mode changed on error: %v", cfg.Mode)
	}
}

// Выбранный слот и состояние берутся из итогового статуса: вход DPLL,
// который сообщает LOCKED, не означает, что выбран именно он.
func TestManualToSelectedFollowsStatus(t *testing.T) {
	ctx := context.Background()
	caps := testCaps(PortFiber)
	h := newHarness(t, caps, WithPTP(&fakePTP{}))

	h.must(h.e.SetPTPClockClass(ctx, 0, 6))
	h.must(h.e.SetPTPPTSF(ctx, 0, PTSFNone))
	h.nominate(1, caps.PTPSource(0), 0, 0)
	h.clock.state, h.clock.input = StateLocked, 2
	h.sched.Advance(time.Second)
	if st := h.status(); st.State != StatePTP || st.Source != 1 {
		t.Fatalf("status = %+v, want PTP on slot 1", st)
	}

	err := h.e.SetSelection(ctx, SelectionConfig{Mode: ModeManualToSelected, Source: 1})
	if !errors.Is(err, ErrSelectionNotAllowed) {
		t.Errorf("manual-to-selected with PTP selected: err = %v", err)
	}
	if cfg, _ := h.e.Selection(ctx); cfg.Mode != ModeAutoRevertive {
		t.Errorf("selection changed on error: %+v", cfg)
	}
}

func TestForcedHoldoverDuringDebounce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCaps(PortFiber))
	h.must(h.e.SetHybrid(ctx, true))
	h.clock.state, h.clock.input = StateLocked, 0
	h.sched.Advance(time.Second)

	h.clock.state, h.clock.input = StateFreeRun, -1
	h.sched.Advance(2 * time.Second)
	if st := h.status(); st.State != StateLocked {
		t.Fatalf("state %v, want LOCKED held", st.State)
	}
	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeForcedHoldover, Source: 1}))
	if cfg, _ := h.e.Selection(ctx); cfg.Mode != ModeForcedHoldover {
		t.Errorf("forced holdover while LOCKED held stored as %v", cfg.Mode)
	}
}

func TestOptionDowngradeValidatesLevels(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCaps(PortFiber))

	err := h.e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoRevertive, Source: 1, Option: ssm.OptionII, Holdover: ssm.QLPRS})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("option II holdover on option I hardware: err = %v", err)
	}

	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoRevertive, Source: 1, Option: ssm.OptionII, Holdover: ssm.QLNone}))
	if cfg, _ := h.e.Selection(ctx); cfg.Option != ssm.OptionI {
		t.Errorf("option %v stored, want I", cfg.Option)
	}

	caps := testCaps(PortFiber)
	caps.OptionII = true
	h = newHarness(t, caps)
	h.must(h.e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoRevertive, Source: 1, Option: ssm.OptionII, Holdover: ssm.QLPRS}))
	if cfg, _ := h.e.Selection(ctx); cfg.Option != ssm.OptionII || cfg.Holdover != ssm.QLPRS {
		t.Errorf("selection = %+v, want option II holdover PRS", cfg)
	}
}

func TestSetterValidation(t *testing.T) {
	ctx := context.Background()
	caps := testCaps(PortFiber)
	caps.Ports[6].Slots = []int{2}

	tests := []struct {
		name string
		call func(e *Engine) error
		want error
	}{
		{"slot zero", func(e *Engine) error {
			return e.SetNomination(ctx, 0, Nomination{Nominated: true, Source: 1})
		}, ErrInvalidParameter},
		{"hold-off too short", func(e *Engine) error {
			return e.SetNomination(ctx, 2, Nomination{Nominated: true, Source: 2, Holdoff: 2})
		}, ErrInvalidParameter},
		{"priority out of range", func(e *Engine) error {
			return e.SetNomination(ctx, 2, Nomination{Nominated: true, Source: 2, Priority: 5})
		}, ErrInvalidParameter},
		{"duplicate source", func(e *Engine) error {
			return e.SetNomination(ctx, 2, Nomination{Nominated: true, Source: 1})
		}, ErrPortAlreadyNominated},
		{"duplicate source is invalid port", func(e *Engine) error {
			return e.SetNomination(ctx, 2, Nomination{Nominated: true, Source: 1})
		}, ErrInvalidPort},
		{"port not wired to slot", func(e *Engine) error {
			return e.SetNomination(ctx, 3, Nomination{Nominated: true, Source: 6})
		}, ErrInvalidPort},
		{"station without input", func(e *Engine) error {
			return e.SetNomination(ctx, 2, Nomination{Nominated: true, Source: caps.Station()})
		}, ErrNotSupported},
		{"INV overwrite in option I", func(e *Engine) error {
			return e.SetNomination(ctx, 2, Nomination{Nominated: true, Source: 2, Overwrite: ssm.QLINV})
		}, ErrInvalidParameter},
		{"wtr too long", func(e *Engine) error {
			return e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoRevertive, Source: 1, WTR: 13})
		}, ErrInvalidParameter},
		{"option II holdover in option I", func(e *Engine) error {
			return e.SetSelection(ctx, SelectionConfig{Mode: ModeAutoRevertive, Source: 1, Holdover: ssm.QLPRS})
		}, ErrInvalidParameter},
		{"manual source out of range", func(e *Engine) error {
			return e.SetSelection(ctx, SelectionConfig{Mode: ModeManual, Source: 6})
		}, ErrInvalidParameter},
		{"station input not present", func(e *Engine) error {
			return e.SetStationClock(ctx, StationClockConfig{In: Freq10MHz})
		}, ErrNotSupported},
		{"bad port", func(e *Engine) error {
			return e.SetPortSSM(ctx, 8, true)
		}, ErrInvalidPort},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, caps)
			h.nominate(1, 1, 0, 0)
			before, _ := h.e.Nomination(ctx, 2)
			err := tt.call(h.e)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			if after, _ := h.e.Nomination(ctx, 2); after != before {
				t.Errorf("slot 2 changed on error: %+v", after)
			}
		})
	}
}

func TestStationClock(t *testing.T) {
	ctx := context.Background()
	caps := testCaps(PortFiber)
	caps.StationClock = true
	h := newHarness(t, caps)

	h.must(h.e.SetStationClock(ctx, StationClockConfig{In: Freq10MHz}))
	h.must(h.e.SetNomination(ctx, 1, Nomination{Nominated: true, Source: caps.Station(), Overwrite: ssm.QLPRC}))
	if st := h.status(); st.Source != 0 {
		t.Fatalf("selected slot %d with LOCS, want 0", st.Source)
	}
	h.clock.locs[0] = false
	h.sched.Advance(time.Second)
	st := h.status()
	if st.Source != 1 || st.Port != caps.Station() {
		t.Errorf("selected slot %d port %d, want station on slot 1", st.Source, st.Port)
	}
}

func TestPTPSource(t *testing.T) {
	ctx := context.Background()
	caps := testCaps(PortFiber)
	ptp := &fakePTP{}
	h := newHarness(t, caps, WithPTP(ptp))
	src := caps.PTPSource(0)

	h.must(h.e.SetPTPClockClass(ctx, 0, 6))
	h.must(h.e.SetPTPPTSF(ctx, 0, PTSFNone))
	h.nominate(1, src, 0, 0)

	st := h.status()
	if st.Source != 1 || st.Port != src || st.State != StatePTP || st.LOL != LOLFalse {
		t.Errorf("status = %+v, want PTP on slot 1", st)
	}
	if bm, _ := h.e.BestMaster(ctx); bm != 0 {
		t.Errorf("best master %d, want 0", bm)
	}
	if ptp.selected != (PTPSelected{Kind: PTPSourcePacket, Index: 0}) {
		t.Errorf("ptp selected %+v", ptp.selected)
	}
	ps, _ := h.e.PTPStatus(ctx, 0)
	if ps.RxQL != ssm.QLPRC {
		t.Errorf("ptp rx QL %v, want PRC", ps.RxQL)
	}

	h.must(h.e.SetPTPPTSF(ctx, 0, PTSFLossOfSync))
	if st := h.status(); st.Source != 0 {
		t.Errorf("after loss of sync: slot %d, want 0", st.Source)
	}
	if ptp.selected.Kind != PTPSourceNone {
		t.Errorf("ptp selected %+v, want none", ptp.selected)
	}
}

func TestHybridTransient(t *testing.T) {
	ctx := context.Background()
	ptp := &fakePTP{}
	h := newHarness(t, testCaps(PortFiber), WithPTP(ptp))
	h.must(h.e.SetHybrid(ctx, true))
	h.portUp(3, ssm.CodePRC)
	h.nominate(1, 3, 0, 0)

	if n := len(ptp.transient); n == 0 || ptp.transient[n-1] != TransientNotActive {
		t.Fatalf("transient hints %v, want NOT_ACTIVE last", ptp.transient)
	}
	h.must(h.e.SetLinkStatus(ctx, 3, LinkStatus{}))
	if n := len(ptp.transient); ptp.transient[n-1] != TransientQuick {
		t.Errorf("transient hints %v, want QUICK last", ptp.transient)
	}
}

func TestLockedDebounceInHybrid(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCaps(PortFiber))
	h.must(h.e.SetHybrid(ctx, true))
	h.clock.state, h.clock.input = StateLocked, 0
	h.sched.Advance(time.Second)
	if st := h.status(); st.State != StateLocked {
		t.Fatalf("state %v, want LOCKED", st.State)
	}

	h.clock.state = StateHoldover
	h.sched.Advance(5 * time.Second)
	if st := h.status(); st.State != StateLocked {
		t.Errorf("state %v after 5 s, want LOCKED held", st.State)
	}
	h.sched.Advance(6 * time.Second)
	if st := h.status(); st.State != StateHoldover {
		t.Errorf("state %v after 11 s, want HOLDOVER", st.State)
	}
}

func TestAnegSteering(t *testing.T) {
	ctx := context.Background()
	phy := &fakePHY{master: map[int]bool{0: true, 1: false}, neg: map[int]ManualNeg{1: NegRef}}
	h := newHarness(t, testCaps(PortCopper1G), WithPHY(phy))

	h.must(h.e.SetLinkStatus(ctx, 1, LinkStatus{Up: true, Speed: 1000}))
	if phy.neg[1] != NegDisabled {
		t.Errorf("non-selected port 1 neg %v, want Auto", phy.neg[1])
	}

	h.must(h.e.SetLinkStatus(ctx, 0, LinkStatus{Up: true, Speed: 1000}))
	h.must(h.e.SetNomination(ctx, 1, Nomination{Nominated: true, Source: 0, Overwrite: ssm.QLPRC}))
	if st := h.status(); st.Port != 0 {
		t.Fatalf("selected port %d, want 0", st.Port)
	}
	if phy.neg[0] != NegClient {
		t.Errorf("selected master port 0 neg %v, want Client", phy.neg[0])
	}
	restarts := phy.restarts
	h.sched.Advance(13 * time.Second)
	if phy.restarts != restarts {
		t.Errorf("aneg restarted %d more times", phy.restarts-restarts)
	}
	if st := h.status(); st.Port != 0 {
		t.Errorf("selected port %d after aneg, want 0", st.Port)
	}
}

func TestResetToDefaults(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, testCaps(PortFiber))
	h.portUp(3, ssm.CodePRC)
	h.nominate(1, 3, 0, 0)
	h.must(h.e.ResetToDefaults(ctx))

	if n, _ := h.e.Nomination(ctx, 1); n.Nominated {
		t.Error("slot 1 still nominated")
	}
	if on, _ := h.e.PortSSM(ctx, 3); on {
		t.Error("port 3 SSM still enabled")
	}
	if st := h.status(); st.Source != 0 {
		t.Errorf("selected slot %d, want 0", st.Source)
	}
	if h.clock.resets != 1 {
		t.Errorf("dpll resets %d, want 1", h.clock.resets)
	}
}

func TestRunServesAPI(t *testing.T) {
	caps := testCaps(PortFiber)
	e, err := New(caps, newFakeClock())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	if err := e.SetPortSSM(ctx, 1, true); err != nil {
		t.Fatal(err)
	}
	if on, err := e.PortSSM(ctx, 1); err != nil || !on {
		t.Errorf("PortSSM = %v, %v", on, err)
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Run returned %v", err)
	}
}
