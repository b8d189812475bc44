package synce

import (
	"context"

	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

// Все методы ниже безопасны для вызова из любых горутин: работа передаётся в цикл
// планировщика. Из обработчиков самого движка их вызывать нельзя.

func (e *Engine) call(ctx context.Context, fn func() error) error {
	var err error
	if serr := e.sched.Do(ctx, func() { err = fn() }); serr != nil {
		return serr
	}
	return err
}

func read[T any](ctx context.Context, e *Engine, fn func() T) (T, error) {
	var v T
	err := e.sched.Do(ctx, func() { v = fn() })
	return v, err
}

func (e *Engine) checkSlot(op string, slot int) error {
	if slot < 1 || slot > e.caps.Slots {
		return newError(CodeInvalidParameter, op, "slot %d out of range 1..%d", slot, e.caps.Slots)
	}
	return nil
}

func (e *Engine) checkPort(op string, port int) error {
	if !e.caps.IsPort(port) {
		return newError(CodeInvalidPort, op, "port %d out of range", port)
	}
	return nil
}

func (e *Engine) checkPTP(op string, inst int) error {
	if inst < 0 || inst >= e.caps.PTPInstances {
		return newError(CodeInvalidParameter, op, "ptp instance %d out of range", inst)
	}
	return nil
}

// SetNomination задаёт номинацию слота 1..N.
func (e *Engine) SetNomination(ctx context.Context, slot int, n Nomination) error {
	const op = "set nomination"
	if err := e.checkSlot(op, slot); err != nil {
		return err
	}
	return e.call(ctx, func() error {
		if err := e.checkNomination(op, slot, n); err != nil {
			return err
		}
		e.nomination[slot-1].Set(n)
		return nil
	})
}

func (e *Engine) checkNomination(op string, slot int, n Nomination) error {
	c := e.caps
	if n.Nominated {
		switch src := n.Source; {
		case src == c.Station() && !c.StationClock:
			return newError(CodeNotSupported, op, "no station clock input")
		case src > c.Station() && c.PTPInstances == 0:
			return newError(CodeNotSupported, op, "no PTP instances")
		case src < 0 || src >= c.Sources():
			return newError(CodeInvalidParameter, op, "source %d out of range", src)
		case !c.slotAllowed(src, slot):
			return newError(CodeInvalidPort, op, "port %s cannot feed slot %d", c.SourceName(src), slot)
		}
		for i := range e.nomination {
			if o := e.nomination[i].Get(); i != slot-1 && o.Nominated && o.Source == n.Source {
				return newError(CodePortAlreadyNominated, op, "%s already nominated in slot %d", c.SourceName(n.Source), i+1)
			}
		}
	}
	if !ssm.OverwriteAllowed(e.selection.Get().Option, n.Overwrite) {
		return newError(CodeInvalidParameter, op, "ssm overwrite %v not allowed in option %v", n.Overwrite, e.selection.Get().Option)
	}
	if n.Holdoff != 0 && (n.Holdoff < MinHoldoff || n.Holdoff > MaxHoldoff) {
		return newError(CodeInvalidParameter, op, "hold-off %d not 0 or %d..%d", n.Holdoff, MinHoldoff, MaxHoldoff)
	}
	if n.Priority >= uint(c.Slots) {
		return newError(CodeInvalidParameter, op, "priority %d out of range 0..%d", n.Priority, c.Slots-1)
	}
	if n.AnegMode > AnegForcedSlave {
		return newError(CodeInvalidParameter, op, "aneg mode %d", n.AnegMode)
	}
	return nil
}

// SetPriority меняет только приоритет слота.
func (e *Engine) SetPriority(ctx context.Context, slot int, prio uint) error {
	const op = "set priority"
	if err := e.checkSlot(op, slot); err != nil {
		return err
	}
	return e.call(ctx, func() error {
		n := e.nomination[slot-1].Get()
		n.Priority = prio
		if err := e.checkNomination(op, slot, n); err != nil {
			return err
		}
		e.nomination[slot-1].Set(n)
		return nil
	})
}

// SetSelection задаёт режим и глобальные параметры выбора.
//
// manual-to-selected сохраняется как manual на слоте, выбранном сейчас, и
// только при состоянии LOCKED; forced-holdover из FREERUN сохраняется как
// forced-free-run. Состояние берётся из итогового статуса, а не из сырых
// регистров DPLL. Опция II без поддержки в железе заменяется на I до проверки
// уровней holdover и free-run.
func (e *Engine) SetSelection(ctx context.Context, cfg SelectionConfig) error {
	const op = "set selection"
	return e.call(ctx, func() error {
		cur := e.selection.Get()
		st := e.status.Get()
		if cfg.Option == ssm.OptionII && !e.caps.OptionII {
			cfg.Option = ssm.OptionI
		}
		switch {
		case cfg.Mode > ModeForcedFreeRun:
			return newError(CodeInvalidParameter, op, "mode %d", cfg.Mode)
		case cfg.Source < 1 || cfg.Source > e.caps.Slots:
			return newError(CodeInvalidParameter, op, "source %d out of range 1..%d", cfg.Source, e.caps.Slots)
		case cur.Mode == ModeForcedFreeRun && cfg.Mode == ModeForcedHoldover:
			return newError(CodeInvalidParameter, op, "forced holdover from forced free-run")
		case cfg.WTR > MaxWTRMinutes:
			return newError(CodeInvalidParameter, op, "wtr %d min, max %d", cfg.WTR, MaxWTRMinutes)
		case cfg.Option > ssm.OptionII:
			return newError(CodeInvalidParameter, op, "eec option %d", cfg.Option)
		case !ssm.Legal(cfg.Option, cfg.Holdover):
			return newError(CodeInvalidParameter, op, "holdover ssm %v in option %v", cfg.Holdover, cfg.Option)
		case !ssm.Legal(cfg.Option, cfg.FreeRun):
			return newError(CodeInvalidParameter, op, "free-run ssm %v in option %v", cfg.FreeRun, cfg.Option)
		}

		if cfg.Mode == ModeManualToSelected {
			switch cur.Mode {
			case ModeManual, ModeAutoNonRevertive, ModeAutoRevertive:
			default:
				return newError(CodeInvalidParameter, op, "manual-to-selected from %v", cur.Mode)
			}
			if st.State != StateLocked || st.Source < 1 || st.Source > e.caps.Slots {
				return newError(CodeSelectionNotAllowed, op, "selector %v, slot %d", st.State, st.Source)
			}
			cfg.Mode, cfg.Source = ModeManual, st.Source
		}
		if cfg.Mode == ModeForcedHoldover && st.State == StateFreeRun {
			cfg.Mode = ModeForcedFreeRun
		}
		e.selection.Set(cfg)
		return nil
	})
}

// SetPortSSM включает или выключает обработку SSM порта.
func (e *Engine) SetPortSSM(ctx context.Context, port int, enabled bool) error {
	const op = "set port ssm"
	if err := e.checkPort(op, port); err != nil {
		return err
	}
	return e.call(ctx, func() error {
		e.portSSM[port].Set(enabled)
		return nil
	})
}

// SetStationClock задаёт частоты станционного входа и выхода.
func (e *Engine) SetStationClock(ctx context.Context, cfg StationClockConfig) error {
	const op = "set station clock"
	t := e.caps.StationClockType
	switch {
	case cfg.In > Freq10MHz || cfg.Out > Freq10MHz:
		return newError(CodeInvalidParameter, op, "frequency out of range")
	case cfg.In != FreqDisabled && !e.caps.StationClock:
		return newError(CodeNotSupported, op, "no station clock input")
	case !stationInAllowed[t][cfg.In]:
		return newError(CodeNotSupported, op, "input %v on clock type %d", cfg.In, t)
	case !stationOutAllowed[t][cfg.Out]:
		return newError(CodeNotSupported, op, "output %v on clock type %d", cfg.Out, t)
	}
	return e.call(ctx, func() error {
		e.station.Set(cfg)
		return nil
	})
}

// ClearWTR прерывает ожидание WTR слота: восстановленное значение применяется сразу.
func (e *Engine) ClearWTR(ctx context.Context, slot int) error {
	const op = "clear wtr"
	if err := e.checkSlot(op, slot); err != nil {
		return err
	}
	return e.call(ctx, func() error {
		e.clearWTR[slot-1].Set(true)
		return nil
	})
}

// SetHybrid включает гибридный режим SyncE+PTP.
func (e *Engine) SetHybrid(ctx context.Context, enabled bool) error {
	return e.call(ctx, func() error {
		e.hybrid.Set(enabled)
		return nil
	})
}

// ResetToDefaults возвращает всю конфигурацию к значениям по умолчанию и сбрасывает DPLL.
func (e *Engine) ResetToDefaults(ctx context.Context) error {
	return e.call(ctx, func() error {
		e.hw("dpll reset", e.clock.Reset())
		for _, n := range e.nomination {
			n.Set(DefaultNomination())
		}
		for _, p := range e.portSSM {
			p.Set(false)
		}
		e.station.Set(StationClockConfig{})
		e.selection.Set(DefaultSelection())
		e.hybrid.Set(false)
		return nil
	})
}

// SetLinkStatus: уведомление модуля портов о смене линка.
func (e *Engine) SetLinkStatus(ctx context.Context, port int, ls LinkStatus) error {
	if err := e.checkPort("link status", port); err != nil {
		return err
	}
	return e.call(ctx, func() error {
		e.link[port].Set(ls)
		return nil
	})
}

// ReceiveSSM передаёт код SSM принятого кадра ESMC. Не ждёт обработки.
func (e *Engine) ReceiveSSM(ctx context.Context, port int, code ssm.Code) error {
	if err := e.checkPort("receive ssm", port); err != nil {
		return err
	}
	return e.sched.Post(ctx, func() { e.rxSSM[port].Force(code) })
}

// SetPTPClockClass: clockClass лучшего мастера PTP-инстанса.
func (e *Engine) SetPTPClockClass(ctx context.Context, inst int, class uint8) error {
	if err := e.checkPTP("ptp clock class", inst); err != nil {
		return err
	}
	return e.call(ctx, func() error {
		e.ptpClass[inst].Set(class)
		return nil
	})
}

// SetPTPPTSF: состояние PTSF PTP-инстанса.
func (e *Engine) SetPTPPTSF(ctx context.Context, inst int, p PTSF) error {
	if err := e.checkPTP("ptp ptsf", inst); err != nil {
		return err
	}
	return e.call(ctx, func() error {
		e.ptpPTSF[inst].Set(p)
		return nil
	})
}

// Nomination возвращает конфигурацию слота 1..N.
func (e *Engine) Nomination(ctx context.Context, slot int) (Nomination, error) {
	if err := e.checkSlot("nomination", slot); err != nil {
		return Nomination{}, err
	}
	return read(ctx, e, e.nomination[slot-1].Get)
}

// Selection возвращает параметры выбора.
func (e *Engine) Selection(ctx context.Context) (SelectionConfig, error) {
	return read(ctx, e, e.selection.Get)
}

// StationClock возвращает частоты станционного входа и выхода.
func (e *Engine) StationClock(ctx context.Context) (StationClockConfig, error) {
	return read(ctx, e, e.station.Get)
}

// PortSSM: включена ли обработка SSM порта.
func (e *Engine) PortSSM(ctx context.Context, port int) (bool, error) {
	if err := e.checkPort("port ssm", port); err != nil {
		return false, err
	}
	return read(ctx, e, e.portSSM[port].Get)
}

// Hybrid: включён ли гибридный режим.
func (e *Engine) Hybrid(ctx context.Context) (bool, error) {
	return read(ctx, e, e.hybrid.Get)
}

// Status возвращает итоговое состояние выбора.
func (e *Engine) Status(ctx context.Context) (SelectionStatus, error) {
	return read(ctx, e, e.status.Get)
}

// NominationStatus возвращает состояние слота 1..N.
func (e *Engine) NominationStatus(ctx context.Context, slot int) (NominationStatus, error) {
	if err := e.checkSlot("nomination status", slot); err != nil {
		return NominationStatus{}, err
	}
	s := slot - 1
	return read(ctx, e, func() NominationStatus {
		return NominationStatus{
			LOCS:      e.locs[s].Get(),
			SSMBad:    e.ssmBad[s].Get(),
			WTRActive: e.wtrActive[s].Get(),
			QL:        e.ql[slot].Get(),
			SF:        e.sf[slot].Get(),
		}
	})
}

// PortStatus возвращает состояние порта по ESMC.
func (e *Engine) PortStatus(ctx context.Context, port int) (PortStatus, error) {
	if err := e.checkPort("port status", port); err != nil {
		return PortStatus{}, err
	}
	return read(ctx, e, func() PortStatus {
		return PortStatus{
			RxQL:       e.qlP[port].Get(),
			TxCode:     e.txSSM[port].Get(),
			LossOfESMC: e.dlos[port].Get(),
			AnegMaster: e.anegMaster[port].Get(),
		}
	})
}

// PTPStatus возвращает состояние PTP-инстанса как источника.
func (e *Engine) PTPStatus(ctx context.Context, inst int) (PTPStatus, error) {
	if err := e.checkPTP("ptp status", inst); err != nil {
		return PTPStatus{}, err
	}
	return read(ctx, e, func() PTPStatus {
		return PTPStatus{
			ClockClass: e.ptpClass[inst].Get(),
			RxQL:       e.qlP[e.caps.PTPSource(inst)].Get(),
			PTSF:       e.ptpPTSF[inst].Get(),
		}
	})
}

// BestMaster: PTP-инстанс, выбранный источником, или -1.
func (e *Engine) BestMaster(ctx context.Context) (int, error) {
	return read(ctx, e, e.bestMaster.Get)
}

// SelectedQL: QL выбранного источника (то, что уходит в SSM при LOCKED).
func (e *Engine) SelectedQL(ctx context.Context) (ssm.QL, error) {
	return read(ctx, e, e.selectedQL.Get)
}
