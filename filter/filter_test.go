package filter

import "testing"

func TestParseValid(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"name eq abcd", "(name EQ abcd)"},
		{"name eq abcd and age gt 25", "((name EQ abcd) AND (age GT 25))"},
		{"name eq abcd or age gt 25", "((name EQ abcd) OR (age GT 25))"},
		{"name[given eq A].last co abcd", "(name[(given EQ A)].last CO abcd)"},
		{"not(name eq abcd)", "NOT(name EQ abcd)"},
		{"(age gt 25) and not(name eq abcd)", "((age GT 25) AND NOT(name EQ abcd))"},
		{`name eq "abcd"`, "(name EQ abcd)"},
	}
	for _, c := range cases {
		f, err := Parse(c.in)
		if err != nil {
			t.Errorf("Parse(%q) returned error: %v", c.in, err)
			continue
		}
		got := f.String()
		if got != c.want {
			t.Errorf("Parse(%q).String() = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{
		"",
		"name eq",
		"eq abcd",
		"name abcd",
		"name eq abcd and",
		"(name eq abcd",
		"name eq abcd)",
		"name[given eq A co abcd",
		"name xx abcd",
		"name eq abcd and or age gt 25",
	}
	for _, in := range cases {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) expected an error, got none", in)
		}
	}
}

func TestScanTokensOperatorsAndLiterals(t *testing.T) {
	toks, err := ScanTokens(`age ge 18 and name sw "Jo"`)
	if err != nil {
		t.Fatalf("ScanTokens: %v", err)
	}
	wantKinds := []TokenKind{
		FTIdentifier, FTComparisonOperator, FTLiteral,
		FTLogicOperator,
		FTIdentifier, FTComparisonOperator, FTLiteral,
		FTEOF,
	}
	if len(toks) != len(wantKinds) {
		t.Fatalf("got %d tokens, want %d: %+v", len(toks), len(wantKinds), toks)
	}
	for i, k := range wantKinds {
		if toks[i].Kind != k {
			t.Errorf("token %d: kind = %v, want %v (%+v)", i, toks[i].Kind, k, toks[i])
		}
	}
}

func TestParseQueryParamCommaSplitAndEscape(t *testing.T) {
	p := ParseQueryParam("name:exact", `Peter,\,Pan`)
	if p.Name != "name" || p.Modifier != ModExact {
		t.Fatalf("unexpected name/modifier: %+v", p)
	}
	if len(p.OrValues) != 2 || p.OrValues[0] != "Peter" || p.OrValues[1] != ",Pan" {
		t.Fatalf("unexpected OrValues: %#v", p.OrValues)
	}
	f, err := p.ToFilter()
	if err != nil {
		t.Fatalf("ToFilter: %v", err)
	}
	if _, ok := f.(Or); !ok {
		t.Fatalf("expected an Or filter for multiple comma-split values, got %T", f)
	}
}

func TestParseQueryParamNotModifier(t *testing.T) {
	p := ParseQueryParam("status:not", "cancelled")
	f, err := p.ToFilter()
	if err != nil {
		t.Fatalf("ToFilter: %v", err)
	}
	if _, ok := f.(Not); !ok {
		t.Fatalf("expected a Not filter, got %T", f)
	}
}
