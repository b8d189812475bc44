package ssm

import "testing"

func TestOverwriteNeverImprovesQuality(t *testing.T) {
	for _, opt := range []Option{OptionI, OptionII} {
		for _, q := range Levels(opt) {
			back := ToQL(ToCode(q), opt)
			if back != q && back < q {
				t.Errorf("option %v: %v -> %v -> %v improves quality", opt, q, ToCode(q), back)
			}
		}
	}
}

func TestToQLByOption(t *testing.T) {
	tests := []struct {
		code Code
		opt  Option
		want QL
	}{
		{CodePRC, OptionI, QLPRC},
		{CodePRS, OptionI, QLINV},
		{CodePRS, OptionII, QLPRS},
		{CodeSSUA, OptionI, QLSSUA},
		{CodeSSUA, OptionII, QLTNC},
		{CodeSEC, OptionI, QLEEC1},
		{CodeST3, OptionI, QLINV},
		{CodeST3, OptionII, QLEEC2},
		{CodeDNU, OptionI, QLDNU},
		{CodeDNU, OptionII, QLDUS},
		{CodeLink, OptionI, QLLink},
		{CodeFail, OptionII, QLFail},
		{Code(0x3), OptionI, QLFail},
	}
	for _, tt := range tests {
		if got := ToQL(tt.code, tt.opt); got != tt.want {
			t.Errorf("ToQL(%v, %v) = %v, want %v", tt.code, tt.opt, got, tt.want)
		}
	}
}

func TestReceivedGatesUnalignedCodes(t *testing.T) {
	tests := []struct {
		name string
		code Code
		opt  Option
		want QL
	}{
		{"prc opt1", CodePRC, OptionI, QLPRC},
		{"prs opt1 unaligned", CodePRS, OptionI, QLINV},
		{"prc opt2 unaligned", CodePRC, OptionII, QLINV},
		{"sec opt2 unaligned", CodeSEC, OptionII, QLINV},
		{"st3e opt2", CodeST3E, OptionII, QLST3E},
		{"reserved code", Code(0x5), OptionI, QLINV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Received(tt.code, tt.opt); got != tt.want {
				t.Errorf("Received(%v, %v) = %v, want %v", tt.code, tt.opt, got, tt.want)
			}
		})
	}
}

func TestTransmitReplacesUnalignedWithDNU(t *testing.T) {
	if got := Transmit(QLPRC, OptionI); got != CodePRC {
		t.Errorf("Transmit(PRC, I) = %v", got)
	}
	if got := Transmit(QLPRC, OptionII); got != CodeDNU {
		t.Errorf("Transmit(PRC, II) = %v, want DNU", got)
	}
	if got := Transmit(QLPRS, OptionII); got != CodePRS {
		t.Errorf("Transmit(PRS, II) = %v", got)
	}
}

func TestFromClockClass(t *testing.T) {
	tests := map[uint8]Code{
		6: CodePRC, 84: CodePRC, 80: CodePRS, 82: CodeSTU, 86: CodeST2,
		90: CodeSSUA, 96: CodeSSUB, 100: CodeST3E, 102: CodeST3, 104: CodeSEC,
		106: CodeSMC, 108: CodePROV, 110: CodeDNU, 7: CodeFail, 248: CodeFail, 255: CodeFail,
	}
	for class, want := range tests {
		if got := FromClockClass(class); got != want {
			t.Errorf("FromClockClass(%d) = %v, want %v", class, got, want)
		}
	}
}

func TestCoerce(t *testing.T) {
	tests := []struct {
		q    QL
		opt  Option
		want QL
	}{
		{QLPRC, OptionI, QLPRC},
		{QLFail, OptionI, QLDNU},
		{QLLink, OptionI, QLDNU},
		{QLINV, OptionI, QLINV},
		{QLPRC, OptionII, QLDUS},
		{QLINV, OptionII, QLDUS},
		{QLPRS, OptionII, QLPRS},
		{QLNone, OptionII, QLNone},
	}
	for _, tt := range tests {
		if got := Coerce(tt.q, tt.opt); got != tt.want {
			t.Errorf("Coerce(%v, %v) = %v, want %v", tt.q, tt.opt, got, tt.want)
		}
	}
}

func TestOverwriteAllowed(t *testing.T) {
	if OverwriteAllowed(OptionI, QLINV) {
		t.Errorf("INV must not be an option I overwrite")
	}
	if !Legal(OptionI, QLINV) {
		t.Errorf("INV must be legal for option I holdover/freerun")
	}
	if !OverwriteAllowed(OptionII, QLST3E) {
		t.Errorf("ST3E must be an option II overwrite")
	}
	if OverwriteAllowed(OptionII, QLPRC) {
		t.Errorf("PRC must not be an option II overwrite")
	}
}

func TestParseQL(t *testing.T) {
	for in, want := range map[string]QL{"prc": QLPRC, "SSU-A": QLSSUA, " dus ": QLDUS, "none": QLNone} {
		got, err := ParseQL(in)
		if err != nil || got != want {
			t.Errorf("ParseQL(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseQL("bogus"); err == nil {
		t.Errorf("ParseQL(bogus) expected error")
	}
}
