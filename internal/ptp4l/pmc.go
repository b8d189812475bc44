package ptp4l

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/synce"
)

// Порог |master_offset|, при котором servo считается захваченным и годным для holdover.
const holdoverOffsetNs = 1000

var pmcQueries = []string{"GET PARENT_DATA_SET", "GET PORT_DATA_SET", "GET TIME_STATUS_NP"}

// Instance: адрес ptp4l для pmc.
type Instance struct {
	Domain int
	UDS    string // пусто: сокет ptp4l по умолчанию
}

// Status: состояние инстанса, как его видит движок.
type Status struct {
	ClockClass    uint8
	PTSF          synce.PTSF
	HoldoverReady bool
}

// Sink: получатель уведомлений; *synce.Engine.
type Sink interface {
	SetPTPClockClass(ctx context.Context, inst int, class uint8) error
	SetPTPPTSF(ctx context.Context, inst int, p synce.PTSF) error
}

// Monitor опрашивает инстансы ptp4l и реализует synce.PTP.
type Monitor struct {
	PMC string // путь к pmc, по умолчанию "pmc"

	inst []Instance
	run  func(ctx context.Context, name string, args ...string) ([]byte, error)

	mu        sync.Mutex
	status    []Status
	selected  synce.PTPSelected
	transient synce.HybridTransient
}

var _ synce.PTP = (*Monitor)(nil)

func NewMonitor(inst []Instance) *Monitor {
	m := &Monitor{inst: inst, run: runCommand, status: make([]Status, len(inst))}
	for i := range m.status {
		m.status[i] = Status{ClockClass: 255, PTSF: synce.PTSFLossOfAnnounce}
	}
	return m
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Run опрашивает все инстансы каждые interval до отмены ctx.
func (m *Monitor) Run(ctx context.Context, interval time.Duration, sink Sink) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		for i := range m.inst {
			m.poll(ctx, i, sink)
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

func (m *Monitor) poll(ctx context.Context, i int, sink Sink) {
	st, err := m.query(ctx, i)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Debug("pmc ptp%d: %v", i, err)
		st = Status{ClockClass: 255, PTSF: synce.PTSFLossOfAnnounce}
	}
	m.mu.Lock()
	old := m.status[i]
	m.status[i] = st
	m.mu.Unlock()

	if st.ClockClass != old.ClockClass {
		if err := sink.SetPTPClockClass(ctx, i, st.ClockClass); err != nil {
			logger.Warn("ptp%d: clock class: %v", i, err)
		}
	}
	if st.PTSF != old.PTSF {
		if err := sink.SetPTPPTSF(ctx, i, st.PTSF); err != nil {
			logger.Warn("ptp%d: ptsf: %v", i, err)
		}
	}
}

func (m *Monitor) query(ctx context.Context, i int) (Status, error) {
	in := m.inst[i]
	path := m.PMC
	if path == "" {
		path = "pmc"
	}
	args := []string{"-u", "-b", "0", "-d", strconv.Itoa(in.Domain)}
	if in.UDS != "" {
		args = append(args, "-s", in.UDS)
	}
	args = append(args, pmcQueries...)
	out, err := m.run(ctx, path, args...)
	if err != nil {
		return Status{}, fmt.Errorf("pmc: %w", err)
	}
	return parseStatus(parseFields(out))
}

// parseFields собирает пары "ключ значение" из ответа pmc; первое вхождение побеждает.
func parseFields(out []byte) map[string]string {
	f := make(map[string]string)
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "sending:") || strings.Contains(line, " RESPONSE MANAGEMENT ") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		if _, ok := f[parts[0]]; !ok {
			f[parts[0]] = parts[1]
		}
	}
	return f
}

func parseStatus(f map[string]string) (Status, error) {
	state, ok := f["portState"]
	if !ok {
		return Status{}, fmt.Errorf("pmc: no PORT_DATA_SET in response")
	}
	st := Status{ClockClass: 255, PTSF: synce.PTSFLossOfAnnounce}
	if v, ok := f["gm.ClockClass"]; ok {
		c, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return Status{}, fmt.Errorf("pmc: gm.ClockClass %q: %w", v, err)
		}
		st.ClockClass = uint8(c)
	}
	gm := f["gmPresent"] == "true"
	switch {
	case !gm:
		st.PTSF = synce.PTSFLossOfAnnounce
	case state == "SLAVE":
		st.PTSF = synce.PTSFNone
	case state == "UNCALIBRATED":
		st.PTSF = synce.PTSFLossOfSync
	case state == "MASTER" || state == "GRAND_MASTER" || state == "PASSIVE":
		// инстанс сам мастер: пакетного источника нет
		st.PTSF = synce.PTSFUnusable
	}
	if st.PTSF == synce.PTSFNone {
		if v, ok := f["master_offset"]; ok {
			off, err := strconv.ParseInt(v, 10, 64)
			if err == nil && off <= holdoverOffsetNs && off >= -holdoverOffsetNs {
				st.HoldoverReady = true
			}
		}
	}
	return st, nil
}

// Status: последнее прочитанное состояние инстанса.
func (m *Monitor) Status(inst int) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status[inst]
}

func (m *Monitor) SetSelectedSource(src synce.PTPSelected) error {
	m.mu.Lock()
	changed := src != m.selected
	m.selected = src
	m.mu.Unlock()
	if changed {
		switch src.Kind {
		case synce.PTPSourceElectrical:
			logger.Info("ptp: frequency from dpll ref %d", src.Index)
		case synce.PTPSourcePacket:
			logger.Info("ptp: frequency from ptp%d packets", src.Index)
		default:
			logger.Info("ptp: no frequency source")
		}
	}
	return nil
}

func (m *Monitor) SetHybridTransient(t synce.HybridTransient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t != m.transient {
		logger.Debug("ptp: hybrid transient %d", t)
	}
	m.transient = t
	return nil
}

func (m *Monitor) HoldoverReady(inst int) (bool, error) {
	if inst < 0 || inst >= len(m.inst) {
		return false, fmt.Errorf("ptp: instance %d out of range", inst)
	}
	return m.Status(inst).HoldoverReady, nil
}

// Selected: последний выбранный для PTP источник частоты.
func (m *Monitor) Selected() synce.PTPSelected {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.selected
}
