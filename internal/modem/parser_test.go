package modem

import "testing"

func TestExtractCommandTrimsPreamble(t *testing.T) {
	cases := []struct {
		in   string
		want string
		ok   bool
	}{
		{"ATDT5551212", "ATDT5551212", true},
		{"  atz  ", "ATZ", true},
		{"garbage AT&F1", "AT&F1", true},
		{"no command here", "", false},
		{"", "", false},
	}
	for _, c := range cases {
		got, ok := ExtractCommand([]byte(c.in))
		if ok != c.ok || got != c.want {
			t.Errorf("ExtractCommand(%q) = (%q, %v), want (%q, %v)", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestClassifyFamilies(t *testing.T) {
	cases := []struct {
		raw    string
		family Family
	}{
		{"AT", FamilyNoOp},
		{"ATZ", FamilyReset},
		{"ATI", FamilyIdentity},
		{"ATI4", FamilyIdentity},
		{"ATE0", FamilyEcho},
		{"ATE1", FamilyEcho},
		{"ATV0", FamilyVerbose},
		{"ATM1", FamilySpeaker},
		{"ATL2", FamilySpeaker},
		{"ATS0=2", FamilySRegister},
		{"ATA", FamilyAnswer},
		{"AT&F1", FamilyAmpersand},
		{"AT%C1", FamilyPercent},
		{"AT+MS", FamilyExtended},
		{"AT*N", FamilyStar},
		{"ATDT5551212", FamilyDial},
		{"ATD5551212", FamilyDial},
		{"ATO", FamilyOnline},
		{"ATH", FamilyHangup},
		{"ATH0", FamilyHangup},
		{"ATQQ", FamilyUnknown},
	}
	for _, c := range cases {
		got := Classify(c.raw)
		if got.Family != c.family {
			t.Errorf("Classify(%q).Family = %v, want %v", c.raw, got.Family, c.family)
		}
	}
}

func TestClassifyIdentity(t *testing.T) {
	cmd := Classify("ATI4")
	if cmd.Identity != 4 {
		t.Fatalf("Identity = %d, want 4", cmd.Identity)
	}
	cmd = Classify("ATI")
	if cmd.Identity != 0 {
		t.Fatalf("Identity = %d, want 0", cmd.Identity)
	}
}

func TestClassifyDialStripsPrefix(t *testing.T) {
	cmd := Classify("ATDT5551212")
	if cmd.Dial != "5551212" {
		t.Fatalf("Dial = %q, want %q", cmd.Dial, "5551212")
	}
	cmd = Classify("ATD5551212")
	if cmd.Dial != "5551212" {
		t.Fatalf("Dial = %q, want %q", cmd.Dial, "5551212")
	}
}

func TestClassifySRegisterStore(t *testing.T) {
	cmd := Classify("ATS7=0")
	if cmd.Family != FamilySRegister {
		t.Fatalf("Family = %v, want FamilySRegister", cmd.Family)
	}
	if cmd.Register != 7 || cmd.Value != 0 || !cmd.HasValue || cmd.Query {
		t.Fatalf("parsed = %+v, want Register=7 Value=0 HasValue=true Query=false", cmd)
	}
}

func TestClassifySRegisterNoOp(t *testing.T) {
	cmd := Classify("ATS7")
	if cmd.Family != FamilySRegister {
		t.Fatalf("Family = %v, want FamilySRegister", cmd.Family)
	}
	if cmd.Register != 7 || cmd.HasValue || cmd.Query {
		t.Fatalf("parsed = %+v, want Register=7 HasValue=false Query=false", cmd)
	}
}

func TestClassifySRegisterQuery(t *testing.T) {
	cmd := Classify("ATS6?")
	if cmd.Family != FamilySRegister {
		t.Fatalf("Family = %v, want FamilySRegister", cmd.Family)
	}
	if cmd.Register != 6 || !cmd.Query || cmd.HasValue {
		t.Fatalf("parsed = %+v, want Register=6 Query=true HasValue=false", cmd)
	}
}

func TestParserFeedSplitsOnCR(t *testing.T) {
	var p Parser
	cmds := p.Feed([]byte("ATZ\rATDT5551212\r"))
	if len(cmds) != 2 {
		t.Fatalf("got %d commands, want 2", len(cmds))
	}
	if cmds[0].Family != FamilyReset || cmds[1].Family != FamilyDial {
		t.Fatalf("families = %v, %v", cmds[0].Family, cmds[1].Family)
	}
}

func TestParserFeedBuffersPartialSegment(t *testing.T) {
	var p Parser
	cmds := p.Feed([]byte("ATD555"))
	if len(cmds) != 0 {
		t.Fatalf("got %d commands before CR, want 0", len(cmds))
	}
	if string(p.Pending()) != "ATD555" {
		t.Fatalf("Pending = %q, want %q", p.Pending(), "ATD555")
	}
	cmds = p.Feed([]byte("1212\r"))
	if len(cmds) != 1 || cmds[0].Dial != "5551212" {
		t.Fatalf("cmds = %+v, want one dial command for 5551212", cmds)
	}
}

func TestParserReset(t *testing.T) {
	var p Parser
	p.Feed([]byte("ATD555"))
	p.Reset()
	if len(p.Pending()) != 0 {
		t.Fatalf("Pending after Reset = %q, want empty", p.Pending())
	}
}

func TestParserFeedIgnoresEmptySegments(t *testing.T) {
	var p Parser
	cmds := p.Feed([]byte("\r\rATZ\r"))
	if len(cmds) != 1 || cmds[0].Family != FamilyReset {
		t.Fatalf("cmds = %+v, want a single reset command", cmds)
	}
}
