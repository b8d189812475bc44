package synce

import (
	"fmt"
	"strings"

	"github.com/shiwa/timecard-mini/synce/internal/ssm"
)

// SelectionMode: режим выбора источника. Manual, ForcedHoldover и ForcedFreeRun
// также передаются в DPLL как аппаратный режим.
type SelectionMode uint8

const (
	ModeManual SelectionMode = iota
	ModeManualToSelected
	ModeAutoNonRevertive
	ModeAutoRevertive
	ModeForcedHoldover
	ModeForcedFreeRun
)

var modeNames = [...]string{
	ModeManual:           "manual",
	ModeManualToSelected: "manual-to-selected",
	ModeAutoNonRevertive: "auto-nonrevertive",
	ModeAutoRevertive:    "auto-revertive",
	ModeForcedHoldover:   "forced-holdover",
	ModeForcedFreeRun:    "forced-free-run",
}

func (m SelectionMode) String() string {
	if int(m) < len(modeNames) {
		return modeNames[m]
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseSelectionMode разбирает имя режима ("auto-revertive", "forced-free-run", ...).
func ParseSelectionMode(s string) (SelectionMode, error) {
	n := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(s), "_", "-"))
	for i, name := range modeNames {
		if name == n {
			return SelectionMode(i), nil
		}
	}
	return 0, fmt.Errorf("unknown selection mode %q", s)
}

// SelectorState: состояние селектора DPLL (и итоговое состояние для внешнего мира).
type SelectorState uint8

const (
	StateLocked SelectorState = iota
	StateHoldover
	StateFreeRun
	StatePTP
	StateAcquiring
)

func (s SelectorState) String() string {
	switch s {
	case StateLocked:
		return "LOCKED"
	case StateHoldover:
		return "HOLDOVER"
	case StateFreeRun:
		return "FREERUN"
	case StatePTP:
		return "PTP"
	case StateAcquiring:
		return "ACQUIRING"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// LOLAlarm: loss of lock; NA, когда состояние не определено (PTP без SyncE).
type LOLAlarm uint8

const (
	LOLFalse LOLAlarm = iota
	LOLTrue
	LOLNA
)

func (a LOLAlarm) String() string {
	switch a {
	case LOLFalse:
		return "false"
	case LOLTrue:
		return "true"
	}
	return "NA"
}

func lolFrom(b bool) LOLAlarm {
	if b {
		return LOLTrue
	}
	return LOLFalse
}

// PTSF: PTP Synchronization Traceability Failure, по возрастанию тяжести.
type PTSF uint8

const (
	PTSFNone PTSF = iota
	PTSFUnusable
	PTSFLossOfSync
	PTSFLossOfAnnounce
)

func (p PTSF) String() string {
	switch p {
	case PTSFNone:
		return "none"
	case PTSFUnusable:
		return "unusable"
	case PTSFLossOfSync:
		return "lossSync"
	case PTSFLossOfAnnounce:
		return "lossAnnounce"
	}
	return fmt.Sprintf("ptsf(%d)", uint8(p))
}

// AnegMode: предпочтение роли 1000BASE-T для номинации.
type AnegMode uint8

const (
	AnegNone AnegMode = iota
	AnegPreferredSlave
	AnegPreferredMaster
	AnegForcedSlave
)

func (a AnegMode) String() string {
	switch a {
	case AnegPreferredSlave:
		return "prefer-slave"
	case AnegPreferredMaster:
		return "prefer-master"
	case AnegForcedSlave:
		return "forced-slave"
	}
	return "none"
}

// ParseAnegMode: обратное к String.
func ParseAnegMode(s string) (AnegMode, error) {
	for a := AnegNone; a <= AnegForcedSlave; a++ {
		if strings.EqualFold(strings.TrimSpace(s), a.String()) {
			return a, nil
		}
	}
	if strings.TrimSpace(s) == "" {
		return AnegNone, nil
	}
	return AnegNone, fmt.Errorf("unknown aneg mode %q", s)
}

// ManualNeg: ручная роль PHY при автосогласовании master/slave.
type ManualNeg uint8

const (
	NegDisabled ManualNeg = iota // обычное автосогласование
	NegRef                       // принудительно master (reference)
	NegClient                    // принудительно slave (client)
)

func (n ManualNeg) String() string {
	switch n {
	case NegRef:
		return "Reference"
	case NegClient:
		return "Client"
	}
	return "Auto"
}

// Frequency: частота станционного входа/выхода.
type Frequency uint8

const (
	FreqDisabled Frequency = iota
	Freq1544kHz
	Freq2048kHz
	Freq10MHz
)

// KHz: частота в кГц; 0 для Disabled.
func (f Frequency) KHz() uint32 {
	switch f {
	case Freq1544kHz:
		return 1544
	case Freq2048kHz:
		return 2048
	case Freq10MHz:
		return 10000
	}
	return 0
}

func (f Frequency) String() string {
	switch f {
	case Freq1544kHz:
		return "1544khz"
	case Freq2048kHz:
		return "2048khz"
	case Freq10MHz:
		return "10mhz"
	}
	return "disabled"
}

// ParseFrequency: обратное к String.
func ParseFrequency(s string) (Frequency, error) {
	for f := FreqDisabled; f <= Freq10MHz; f++ {
		if strings.EqualFold(strings.TrimSpace(s), f.String()) {
			return f, nil
		}
	}
	if strings.TrimSpace(s) == "" {
		return FreqDisabled, nil
	}
	return FreqDisabled, fmt.Errorf("unknown frequency %q", s)
}

// PortKind: аппаратный тип порта.
type PortKind uint8

const (
	PortCopper1G PortKind = iota // 1G PHY, steering master/slave
	PortFiber
	PortDNUOnly // не умеет SSM с тегом, всегда передаёт DNU
)

func (k PortKind) String() string {
	switch k {
	case PortFiber:
		return "fiber"
	case PortDNUOnly:
		return "dnu-only"
	}
	return "copper1g"
}

// ParsePortKind: обратное к String.
func ParsePortKind(s string) (PortKind, error) {
	for k := PortCopper1G; k <= PortDNUOnly; k++ {
		if strings.EqualFold(strings.TrimSpace(s), k.String()) {
			return k, nil
		}
	}
	return PortCopper1G, fmt.Errorf("unknown port kind %q", s)
}

// LinkStatus: состояние линка порта от внешнего модуля портов.
type LinkStatus struct {
	Up    bool
	Speed uint32 // Мбит/с
	Fiber bool
}

// Nomination: конфигурация одного слота-кандидата.
type Nomination struct {
	Nominated bool
	Source    int // порядковый номер источника, см. Capabilities.SourceName
	Priority  uint
	AnegMode  AnegMode
	Holdoff   uint   // ×100 мс; 0 или 3..18
	Overwrite ssm.QL // NONE: без подмены
}

// SelectionConfig: глобальные параметры выбора.
type SelectionConfig struct {
	Mode     SelectionMode
	Source   int  // номер слота 1..N для ручного режима
	WTR      uint // минуты, 0..12
	Holdover ssm.QL
	FreeRun  ssm.QL
	Option   ssm.Option
}

// StationClockConfig: станционный вход/выход.
type StationClockConfig struct {
	In  Frequency
	Out Frequency
}

// SelectionStatus: итоговое состояние выбора для внешнего мира.
type SelectionStatus struct {
	Source     int // 0: внутренний генератор
	Port       int // порядковый номер источника или -1
	ClockInput int // слот DPLL (0-based) или -1
	State      SelectorState
	LOL        LOLAlarm
	LOSX       bool
	DHOLD      bool
}

// NominationStatus: состояние слота.
type NominationStatus struct {
	LOCS      bool
	SSMBad    bool
	WTRActive bool
	QL        ssm.QL // после hold-off/WTR
	SF        bool
}

// PortStatus: состояние порта по ESMC.
type PortStatus struct {
	RxQL       ssm.QL
	TxCode     ssm.Code
	LossOfESMC bool
	AnegMaster bool
}

// PTPStatus: состояние PTP-инстанса как источника.
type PTPStatus struct {
	ClockClass uint8
	RxQL       ssm.QL
	PTSF       PTSF
}

// PortCaps: возможности одного порта.
type PortCaps struct {
	Name  string
	Kind  PortKind
	Slots []int // слоты 1..N, которые порт может питать; пусто: все
}

// Capabilities: возможности платформы.
type Capabilities struct {
	Slots            int
	Ports            []PortCaps
	PTPInstances     int
	StationClock     bool // есть станционный вход
	StationClockType int  // 0..3, индекс в матрицах допустимых частот
	OptionII         bool // DPLL поддерживает EEC option II
}

// Station: порядковый номер станционного входа.
func (c Capabilities) Station() int { return len(c.Ports) }

// PTPSource: порядковый номер PTP-инстанса i.
func (c Capabilities) PTPSource(i int) int { return len(c.Ports) + 1 + i }

// Sources: общее число порядковых номеров источников.
func (c Capabilities) Sources() int { return len(c.Ports) + 1 + c.PTPInstances }

// IsPort: src задаёт Ethernet-порт.
func (c Capabilities) IsPort(src int) bool { return src >= 0 && src < len(c.Ports) }

// IsPTP: src задаёт PTP-инстанс; возвращает его индекс.
func (c Capabilities) IsPTP(src int) (int, bool) {
	i := src - len(c.Ports) - 1
	return i, i >= 0 && i < c.PTPInstances
}

// SourceName: имя источника для логов и конфигурации: имя порта, "station" или "ptpN".
func (c Capabilities) SourceName(src int) string {
	switch {
	case c.IsPort(src):
		return c.Ports[src].Name
	case src == c.Station():
		return "station"
	}
	if i, ok := c.IsPTP(src); ok {
		return fmt.Sprintf("ptp%d", i)
	}
	return fmt.Sprintf("source(%d)", src)
}

// ParseSource: обратное к SourceName.
func (c Capabilities) ParseSource(name string) (int, error) {
	n := strings.TrimSpace(name)
	for i, p := range c.Ports {
		if p.Name == n {
			return i, nil
		}
	}
	if strings.EqualFold(n, "station") {
		return c.Station(), nil
	}
	var i int
	if _, err := fmt.Sscanf(strings.ToLower(n), "ptp%d", &i); err == nil && i >= 0 && i < c.PTPInstances {
		return c.PTPSource(i), nil
	}
	return -1, fmt.Errorf("unknown clock source %q", name)
}

func (c Capabilities) slotAllowed(port, slot int) bool {
	if !c.IsPort(port) {
		return true
	}
	allowed := c.Ports[port].Slots
	if len(allowed) == 0 {
		return true
	}
	for _, s := range allowed {
		if s == slot {
			return true
		}
	}
	return false
}
