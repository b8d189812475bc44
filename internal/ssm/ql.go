// Package ssm описывает уровни качества (QL) и коды SSM по G.781, опции сети I и II.
package ssm

import (
	"fmt"
	"strings"
)

// QL: внутренний уровень качества. Меньшее значение лучше; сравнение имеет смысл
// только после Coerce к легальному набору текущей опции.
type QL uint8

const (
	QLNone QL = iota
	QLPRC
	QLSSUA
	QLSSUB
	QLEEC1
	QLDNU
	QLINV
	QLFail
	QLLink
	QLPRS
	QLSTU
	QLST2
	QLTNC
	QLST3E
	QLEEC2
	QLSMC
	QLPROV
	QLDUS
)

var qlNames = [...]string{
	QLNone: "NONE",
	QLPRC:  "PRC",
	QLSSUA: "SSUA",
	QLSSUB: "SSUB",
	QLEEC1: "EEC1",
	QLDNU:  "DNU",
	QLINV:  "INV",
	QLFail: "FAIL",
	QLLink: "LINK",
	QLPRS:  "PRS",
	QLSTU:  "STU",
	QLST2:  "ST2",
	QLTNC:  "TNC",
	QLST3E: "ST3E",
	QLEEC2: "EEC2",
	QLSMC:  "SMC",
	QLPROV: "PROV",
	QLDUS:  "DUS",
}

func (q QL) String() string {
	if int(q) < len(qlNames) {
		return qlNames[q]
	}
	return fmt.Sprintf("QL(%d)", uint8(q))
}

// ParseQL разбирает имя уровня без учёта регистра ("prc", "SSU-A" и "ssua" равнозначны).
func ParseQL(s string) (QL, error) {
	n := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), "-", ""))
	for i, name := range qlNames {
		if name == n {
			return QL(i), nil
		}
	}
	return QLNone, fmt.Errorf("unknown quality level %q", s)
}

// Option: опция сети EEC по G.781.
type Option uint8

const (
	OptionI Option = iota
	OptionII
)

func (o Option) String() string {
	if o == OptionII {
		return "II"
	}
	return "I"
}

// ParseOption принимает "I"/"II" или "1"/"2".
func ParseOption(s string) (Option, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "I", "1":
		return OptionI, nil
	case "II", "2":
		return OptionII, nil
	}
	return OptionI, fmt.Errorf("unknown EEC option %q", s)
}

var (
	legalI  = qlSet(QLNone, QLPRC, QLSSUA, QLSSUB, QLEEC1, QLDNU, QLINV)
	legalII = qlSet(QLNone, QLPRS, QLSTU, QLST2, QLTNC, QLST3E, QLEEC2, QLSMC, QLPROV, QLDUS)
)

func qlSet(qls ...QL) map[QL]bool {
	m := make(map[QL]bool, len(qls))
	for _, q := range qls {
		m[q] = true
	}
	return m
}

// Legal: q входит в набор уровней опции (он же допустим для ssm_holdover/ssm_freerun).
func Legal(o Option, q QL) bool {
	if o == OptionII {
		return legalII[q]
	}
	return legalI[q]
}

// OverwriteAllowed: q допустим как ssm_overwrite номинации. В опции I INV не разрешён.
func OverwriteAllowed(o Option, q QL) bool {
	if o == OptionI && q == QLINV {
		return false
	}
	return Legal(o, q)
}

// Levels возвращает легальный набор опции в порядке возрастания значения.
func Levels(o Option) []QL {
	var out []QL
	for q := QLNone; q <= QLDUS; q++ {
		if Legal(o, q) {
			out = append(out, q)
		}
	}
	return out
}

// DoNotUse: DNU для опции I, DUS для опции II.
func DoNotUse(o Option) QL {
	if o == OptionII {
		return QLDUS
	}
	return QLDNU
}

// Primary: первичный эталон опции: PRC или PRS.
func Primary(o Option) QL {
	if o == OptionII {
		return QLPRS
	}
	return QLPRC
}

// Coerce приводит q к легальному набору опции; всё прочее становится DNU/DUS.
func Coerce(q QL, o Option) QL {
	if Legal(o, q) {
		return q
	}
	return DoNotUse(o)
}
