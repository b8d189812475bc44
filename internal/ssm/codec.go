package ssm

import "fmt"

// Code: 4-битный код SSM из кадра ESMC. LINK и FAIL: псевдокоды вне диапазона 0..15,
// в эфир не передаются.
type Code uint8

const (
	CodeSTU  Code = 0x0
	CodePRS  Code = 0x1
	CodePRC  Code = 0x2
	CodeSSUA Code = 0x4 // SSU-A / TNC
	CodeST2  Code = 0x7
	CodeSSUB Code = 0x8
	CodeST3  Code = 0xA // ST3 / EEC2
	CodeSEC  Code = 0xB // SEC / EEC1
	CodeSMC  Code = 0xC
	CodeST3E Code = 0xD
	CodePROV Code = 0xE
	CodeDNU  Code = 0xF // DNU / DUS

	CodeLink Code = 0x10
	CodeFail Code = 0x20
)

func (c Code) String() string {
	switch c {
	case CodeSTU:
		return "STU"
	case CodePRS:
		return "PRS"
	case CodePRC:
		return "PRC"
	case CodeSSUA:
		return "SSUA/TNC"
	case CodeST2:
		return "ST2"
	case CodeSSUB:
		return "SSUB"
	case CodeST3:
		return "ST3/EEC2"
	case CodeSEC:
		return "SEC/EEC1"
	case CodeSMC:
		return "SMC"
	case CodeST3E:
		return "ST3E"
	case CodePROV:
		return "PROV"
	case CodeDNU:
		return "DNU/DUS"
	case CodeLink:
		return "LINK"
	case CodeFail:
		return "FAIL"
	}
	return fmt.Sprintf("0x%x", uint8(c))
}

// ToQL переводит принятый код в уровень качества. Коды, не имеющие смысла в опции I,
// дают INV; неизвестные коды дают FAIL.
func ToQL(c Code, o Option) QL {
	opt2 := o == OptionII
	pick := func(ii, i QL) QL {
		if opt2 {
			return ii
		}
		return i
	}
	switch c {
	case CodePRS:
		return pick(QLPRS, QLINV)
	case CodePRC:
		return QLPRC
	case CodeSSUA:
		return pick(QLTNC, QLSSUA)
	case CodeSSUB:
		return QLSSUB
	case CodeSEC:
		return QLEEC1
	case CodePROV:
		return QLPROV
	case CodeDNU:
		return pick(QLDUS, QLDNU)
	case CodeFail:
		return QLFail
	case CodeSTU:
		return pick(QLSTU, QLINV)
	case CodeST2:
		return pick(QLST2, QLINV)
	case CodeST3:
		return pick(QLEEC2, QLINV)
	case CodeSMC:
		return pick(QLSMC, QLINV)
	case CodeST3E:
		return pick(QLST3E, QLINV)
	case CodeLink:
		return QLLink
	}
	return QLFail
}

// ToCode: обратное отображение (ssm_overwrite и передача). NONE уходит как PROV,
// нераспознанное как DNU.
func ToCode(q QL) Code {
	switch q {
	case QLNone:
		return CodePROV
	case QLPRC:
		return CodePRC
	case QLSSUA, QLTNC:
		return CodeSSUA
	case QLSSUB:
		return CodeSSUB
	case QLEEC2:
		return CodeST3
	case QLEEC1:
		return CodeSEC
	case QLDNU, QLDUS:
		return CodeDNU
	case QLINV, QLPRS:
		return CodePRS
	case QLSTU:
		return CodeSTU
	case QLST2:
		return CodeST2
	case QLST3E:
		return CodeST3E
	case QLSMC:
		return CodeSMC
	case QLPROV:
		return CodePROV
	case QLLink:
		return CodeLink
	case QLFail:
		return CodeFail
	}
	return CodeDNU
}

// Aligned: код имеет смысл в опции o. Невыровненные коды на приёме дают INV,
// на передаче заменяются DNU.
func Aligned(o Option, c Code) bool {
	if o == OptionII {
		switch c {
		case CodeSTU, CodePRS, CodeST2, CodeSSUA, CodeST3E, CodeST3, CodeSMC, CodePROV, CodeDNU:
			return true
		}
		return false
	}
	switch c {
	case CodePRC, CodeSSUA, CodeSSUB, CodeSEC, CodeDNU:
		return true
	}
	return false
}

// FromClockClass: таблица clockClass (IEEE 1588) в код SSM. Прочие классы дают FAIL.
func FromClockClass(class uint8) Code {
	switch class {
	case 6, 84:
		return CodePRC
	case 80:
		return CodePRS
	case 82:
		return CodeSTU
	case 86:
		return CodeST2
	case 90:
		return CodeSSUA
	case 96:
		return CodeSSUB
	case 100:
		return CodeST3E
	case 102:
		return CodeST3
	case 104:
		return CodeSEC
	case 106:
		return CodeSMC
	case 108:
		return CodePROV
	case 110:
		return CodeDNU
	}
	return CodeFail
}

// Received: итоговый QL принятого кода: невыровненный код даёт INV.
func Received(c Code, o Option) QL {
	if !Aligned(o, c) {
		return QLINV
	}
	return ToQL(c, o)
}

// Transmit: код для передачи: невыровненный заменяется DNU.
func Transmit(q QL, o Option) Code {
	c := ToCode(q)
	if !Aligned(o, c) {
		return CodeDNU
	}
	return c
}
