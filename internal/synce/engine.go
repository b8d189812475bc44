// Package synce содержит движок выбора источника синхронизации SyncE: приём SSM по портам,
// номинации с hold-off/WTR, арбитраж по QL и приоритету, управление DPLL и передача SSM.
//
// Всё состояние живёт в ячейках reactive.Cell, которыми владеет Engine; компоненты
// общаются только через них и выполняются в одном цикле планировщика. Внешний код
// обращается к движку через методы API, которые передают работу в цикл.
package synce

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shiwa/timecard-mini/synce/internal/logger"
	"github.com/shiwa/timecard-mini/synce/internal/reactive"
	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

// Engine: контекст движка: конфигурация, состояние и компоненты.
type Engine struct {
	caps  Capabilities
	sched *reactive.Scheduler
	clock Clock
	phy   PHY
	phyMu sync.Mutex
	ptp   PTP
	tx    Transmitter

	// конфигурация
	selection  *reactive.Cell[SelectionConfig]
	nomination []*reactive.Cell[Nomination]
	portSSM    []*reactive.Cell[bool]
	station    *reactive.Cell[StationClockConfig]
	clearWTR   []*reactive.Cell[bool]
	hybrid     *reactive.Cell[bool]

	// входы от модулей портов и PTP
	link     []*reactive.Cell[LinkStatus]
	rxSSM    []*reactive.Cell[ssm.Code]
	ptpClass []*reactive.Cell[uint8]
	ptpPTSF  []*reactive.Cell[PTSF]

	// по источникам: порты, станция, PTP
	qlP  []*reactive.Cell[ssm.QL]
	ssfP []*reactive.Cell[bool]

	// по портам
	dlos       []*reactive.Cell[bool]
	anegMaster []*reactive.Cell[bool]
	txSSM      []*reactive.Cell[ssm.Code]

	// по слотам (0-based)
	qlN       []*reactive.Cell[ssm.QL]
	ssfN      []*reactive.Cell[bool]
	ssmBad    []*reactive.Cell[bool]
	wtrActive []*reactive.Cell[bool]
	locs      []*reactive.Cell[bool]

	// вход арбитра: 0: внутренний генератор, 1..N: слоты
	ql []*reactive.Cell[ssm.QL]
	sf []*reactive.Cell[bool]

	selectedSource *reactive.Cell[int]
	selectedPort   *reactive.Cell[int]
	selectedQL     *reactive.Cell[ssm.QL]
	stationSource  *reactive.Cell[int]
	bestMaster     *reactive.Cell[int]

	selectorState *reactive.Cell[SelectorState] // как прочитано из DPLL
	clockInput    *reactive.Cell[int]
	lol           *reactive.Cell[bool]
	losx          *reactive.Cell[bool]
	dhold         *reactive.Cell[bool]
	savedState    *reactive.Cell[SelectorState]
	status        *reactive.Cell[SelectionStatus]
	transient     *reactive.Cell[bool]

	rx      []*rxProcessor
	aneg    []*anegSteering
	txp     []*txProcessor
	nom     []*nominator
	filters []*holdoffFilter
	arb     *arbiter
	poll    *poller
}

// Option настраивает Engine при создании.
type Option func(*Engine)

// WithPHY задаёт доступ к PHY для steering master/slave.
func WithPHY(p PHY) Option { return func(e *Engine) { e.phy = p } }

// WithPTP задаёт модуль PTP.
func WithPTP(p PTP) Option { return func(e *Engine) { e.ptp = p } }

// WithTransmitter задаёт отправку ESMC.
func WithTransmitter(t Transmitter) Option { return func(e *Engine) { e.tx = t } }

// WithScheduler задаёт планировщик (в тестах: с ManualClock).
func WithScheduler(s *reactive.Scheduler) Option { return func(e *Engine) { e.sched = s } }

// New создаёт движок с настройками по умолчанию и запускает компоненты.
// Цикл обработки запускается отдельно через Run.
func New(caps Capabilities, clock Clock, opts ...Option) (*Engine, error) {
	if clock == nil {
		return nil, errors.New("synce: nil clock driver")
	}
	if caps.Slots < 1 {
		return nil, fmt.Errorf("synce: slot count %d, need at least 1", caps.Slots)
	}
	if caps.PTPInstances < 0 {
		return nil, fmt.Errorf("synce: negative PTP instance count")
	}
	for i, p := range caps.Ports {
		for _, s := range p.Slots {
			if s < 1 || s > caps.Slots {
				return nil, fmt.Errorf("synce: port %s: slot %d out of range 1..%d", p.Name, s, caps.Slots)
			}
		}
		if p.Name == "" {
			return nil, fmt.Errorf("synce: port %d has no name", i)
		}
	}
	if caps.StationClockType < 0 || caps.StationClockType >= len(stationOutAllowed) {
		return nil, fmt.Errorf("synce: station clock type %d out of range", caps.StationClockType)
	}

	e := &Engine{caps: caps, clock: clock, phy: noPHY{}, ptp: noPTP{}, tx: noTx{}}
	for _, o := range opts {
		o(e)
	}
	if e.sched == nil {
		e.sched = reactive.NewScheduler(reactive.RealClock(), 0)
	}
	if err := e.sched.Do(context.Background(), e.start); err != nil {
		return nil, err
	}
	return e, nil
}

// Run: цикл обработки событий до отмены ctx.
func (e *Engine) Run(ctx context.Context) error {
	return e.sched.Run(ctx)
}

// Capabilities: возможности, с которыми создан движок.
func (e *Engine) Capabilities() Capabilities { return e.caps }

func (e *Engine) start() {
	s := e.sched
	nPorts, nSlots, nSrc, nPTP := len(e.caps.Ports), e.caps.Slots, e.caps.Sources(), e.caps.PTPInstances

	e.selection = reactive.NewCell(s, DefaultSelection())
	e.station = reactive.NewCell(s, StationClockConfig{})
	e.hybrid = reactive.NewCell(s, false)
	e.nomination = cells(s, nSlots, Nomination{})
	e.clearWTR = cells(s, nSlots, false)
	e.portSSM = cells(s, nPorts, false)

	e.link = cells(s, nPorts, LinkStatus{})
	e.rxSSM = cells(s, nPorts, ssm.CodeDNU)
	e.ptpClass = cells(s, nPTP, uint8(255))
	e.ptpPTSF = cells(s, nPTP, PTSFLossOfAnnounce)

	e.qlP = cells(s, nSrc, ssm.QLNone)
	e.ssfP = cells(s, nSrc, true)

	e.dlos = cells(s, nPorts, false)
	e.anegMaster = cells(s, nPorts, true)
	e.txSSM = cells(s, nPorts, ssm.CodeFail)

	e.qlN = cells(s, nSlots, ssm.QLNone)
	e.ssfN = cells(s, nSlots, true)
	e.ssmBad = cells(s, nSlots, false)
	e.wtrActive = cells(s, nSlots, false)
	e.locs = cells(s, nSlots, true)

	e.ql = cells(s, nSlots+1, ssm.QLNone)
	e.sf = cells(s, nSlots+1, true)

	e.selectedSource = reactive.NewCell(s, 0)
	e.selectedPort = reactive.NewCell(s, -1)
	e.selectedQL = reactive.NewCell(s, ssm.QLNone)
	e.stationSource = reactive.NewCell(s, 0)
	e.bestMaster = reactive.NewCell(s, -1)

	e.selectorState = reactive.NewCell(s, StateFreeRun)
	e.clockInput = reactive.NewCell(s, -1)
	e.lol = reactive.NewCell(s, false)
	e.losx = reactive.NewCell(s, false)
	e.dhold = reactive.NewCell(s, false)
	e.savedState = reactive.NewCell(s, StateFreeRun)
	e.status = reactive.NewCell(s, SelectionStatus{Port: -1, ClockInput: -1, State: StateFreeRun})
	e.transient = reactive.NewCell(s, true)

	newInternalSource(e)
	for p := 0; p < nPorts; p++ {
		e.rx = append(e.rx, newRxProcessor(e, p))
		e.aneg = append(e.aneg, newAnegSteering(e, p))
	}
	newStationHandler(e)
	for i := 0; i < nPTP; i++ {
		newPTPHandler(e, i)
	}
	for n := 0; n < nSlots; n++ {
		e.nom = append(e.nom, newNominator(e, n))
		e.filters = append(e.filters, newHoldoffFilter(e, n))
	}
	e.arb = newArbiter(e)
	e.poll = newPoller(e)
	newStateMonitor(e)
	newCombiner(e)
	newTransientHandler(e)
	for p := 0; p < nPorts; p++ {
		e.txp = append(e.txp, newTxProcessor(e, p))
	}
	newMonitor(e)
	logger.Debug("engine started: %d ports, %d slots, %d ptp instances", nPorts, nSlots, nPTP)
}

func cells[T comparable](s *reactive.Scheduler, n int, v T) []*reactive.Cell[T] {
	out := make([]*reactive.Cell[T], n)
	for i := range out {
		out[i] = reactive.NewCell(s, v)
	}
	return out
}

// hw логирует сбой вызова драйвера; цикл продолжает со старым состоянием.
func (e *Engine) hw(op string, err error) {
	if err != nil {
		logger.Warn("%s: %v", op, err)
	}
}

// sourceOf: источник, номинированный в слот (0-based), или -1.
func (e *Engine) sourceOf(slot int) int {
	n := e.nomination[slot].Get()
	if !n.Nominated {
		return -1
	}
	return n.Source
}
