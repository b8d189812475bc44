// Package dpll содержит драйвер DPLL SyncE на уровне регистров. Реализует synce.Clock поверх
// шины регистров: I2C (periph), UART-мост (tarm/serial) или эмулятор в памяти.
//
// Адресация 16-битная, big-endian; многобайтовые значения тоже big-endian.
package dpll

// Карта регистров.
const (
	RegChipID     uint16 = 0x0000 // 2 байта
	RegRefMap     uint16 = 0x0010 // +slot: номер ref для слота, 0xFF: PTP
	RegRefFreq    uint16 = 0x0020 // +4*slot: частота входа, кГц
	RegStationOut uint16 = 0x0040 // частота станционного выхода, кГц
	RegMode       uint16 = 0x0050 // режим селектора
	RegManualRef  uint16 = 0x0051 // слот для ручного режима
	RegLinkState  uint16 = 0x0060 // +slot: 1: линк поднят
	RegRecovered  uint16 = 0x0070 // +2*slot: источник, разрешение
	RegStatus     uint16 = 0x0100 // биты StatusLOL, StatusLOSX, StatusHoldoverReady
	RegLOCS       uint16 = 0x0101 // битовая карта LOCS по слотам
	RegState      uint16 = 0x0102 // состояние селектора
	RegClockInput uint16 = 0x0103 // текущий вход, 0xFF: нет
	RegEvents     uint16 = 0x0110 // защёлка событий, запись 0xFF сбрасывает
	RegReset      uint16 = 0x01F0
)

// Биты RegStatus.
const (
	StatusLOL           = 1 << 0
	StatusLOSX          = 1 << 1
	StatusHoldoverReady = 1 << 2
)

// Коды RegMode.
const (
	modeManual     = 0x01
	modeHoldover   = 0x02
	modeFreeRun    = 0x03
	refNone        = 0xFF
	chipIDExpected = 0x5E01
)

// Коды RegState.
const (
	stateFreeRun  = 0x00
	stateLocked   = 0x01
	stateHoldover = 0x02
	stateAcquire  = 0x03
)

// MaxSlots: число опорных входов селектора.
const MaxSlots = 8
