package synce

import "github.com/shiwa/timecard-mini/synce/internal/ssm"

// Пределы параметров.
const (
	MaxWTRMinutes = 12
	MinHoldoff    = 3  // ×100 мс
	MaxHoldoff    = 18 // ×100 мс
)

// DefaultSelection: параметры выбора после старта и ResetToDefaults.
func DefaultSelection() SelectionConfig {
	return SelectionConfig{
		Mode:     ModeAutoRevertive,
		Source:   1,
		WTR:      5,
		Holdover: ssm.QLNone,
		FreeRun:  ssm.QLNone,
		Option:   ssm.OptionI,
	}
}

// DefaultNomination: слот без номинации.
func DefaultNomination() Nomination {
	return Nomination{Overwrite: ssm.QLNone}
}

// Допустимые частоты станционного выхода и входа по типу DPLL: [тип][Frequency].
var (
	stationOutAllowed = [4][4]bool{
		{true, true, true, true},
		{true, false, true, true},
		{true, false, false, false},
		{true, false, false, true},
	}
	stationInAllowed = [4][4]bool{
		{true, true, true, true},
		{true, false, false, true},
		{true, false, false, false},
		{true, true, true, true},
	}
)
