package domain

import "testing"

func TestParseRuleKind(t *testing.T) {
	cases := []struct {
		in      string
		want    RuleKind
		wantErr bool
	}{
		{"mix", RuleMix, false},
		{" PHRASE ", RulePhrase, false},
		{"whitelist_channel", RuleWhitelistChannel, false},
		{"none", RuleNone, false},
		{"", 0, true},
		{"regex", 0, true},
	}

	for _, tc := range cases {
		got, err := ParseRuleKind(tc.in)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseRuleKind(%q) expected error, got nil", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseRuleKind(%q) unexpected error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Fatalf("ParseRuleKind(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestRuleKind_StringRoundTrip(t *testing.T) {
	for k := RuleNone; k <= RuleKeyword; k++ {
		got, err := ParseRuleKind(k.String())
		if err != nil || got != k {
			t.Errorf("round trip of %v failed: got %v, err %v", k, got, err)
		}
	}
	if s := RuleKind(200).String(); s != "RuleKind(200)" {
		t.Errorf("unknown kind String() = %q", s)
	}
}

func TestDecisionConstructors(t *testing.T) {
	b := Block(RuleKeyword, "matched keyword: x")
	if !b.IsBlocked() || b.Rule != RuleKeyword || b.Reason != "matched keyword: x" {
		t.Errorf("Block() = %+v", b)
	}
	a := Allow(RuleUndo, "manually unblocked")
	if a.IsBlocked() || a.Rule != RuleUndo {
		t.Errorf("Allow() = %+v", a)
	}
	e := EmptyDecision()
	if e.IsBlocked() || e.Reason != "" || e.Rule != RuleNone {
		t.Errorf("EmptyDecision() = %+v", e)
	}
}
