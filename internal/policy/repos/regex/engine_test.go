package regex

import "testing"

func TestBuild_MatchesScenario5(t *testing.T) {
	e, errs := Build([]string{`^ads[0-9]+\.example\.com$`}, Config{})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if !e.Matches("ads7.example.com") {
		t.Fatalf("expected match for ads7.example.com")
	}
	if e.Matches("ads.example.com") {
		t.Fatalf("expected no match for ads.example.com (missing digits)")
	}
}

func TestBuild_InvalidPatternSkipped(t *testing.T) {
	e, errs := Build([]string{`(unclosed`, `^good\.com$`}, Config{})
	if len(errs) != 1 {
		t.Fatalf("expected 1 error for the invalid pattern, got %d: %v", len(errs), errs)
	}
	if !e.Matches("good.com") {
		t.Fatalf("expected the valid pattern to still load and match")
	}
}

func TestBuild_HardCapRefuses(t *testing.T) {
	patterns := make([]string, 5)
	for i := range patterns {
		patterns[i] = "^x$"
	}
	e, errs := Build(patterns, Config{HardCap: 3})
	if len(errs) != 1 {
		t.Fatalf("expected a refusal error, got %v", errs)
	}
	if e.Matches("x") {
		t.Fatalf("refused engine must always return false")
	}
	if !e.Stats().Refused {
		t.Fatalf("expected Stats().Refused to be true")
	}
}

func TestBuild_WarnAtThreshold(t *testing.T) {
	patterns := []string{"^a$", "^b$", "^c$"}
	e, errs := Build(patterns, Config{WarnAt: 2})
	if len(errs) != 1 {
		t.Fatalf("expected a warn-threshold error, got %v", errs)
	}
	if !e.Stats().Truncated {
		t.Fatalf("expected Stats().Truncated to be true")
	}
}

func TestExtractLiteral(t *testing.T) {
	cases := []struct {
		pattern string
		want    string
		kind    literalKind
	}{
		{`^foo`, "foo", literalPrefix},
		{`foo\.com$`, "foo.com", literalSuffix},
		{`^foo\.com$`, "foo.com", literalExact},
		{`foo[0-9]bar`, "", literalNone},
		{`^ads[0-9]+\.example\.com$`, "ads", literalPrefix},
	}
	for _, c := range cases {
		lit, kind := extractLiteral(c.pattern)
		if lit != c.want || kind != c.kind {
			t.Errorf("extractLiteral(%q) = (%q, %v), want (%q, %v)", c.pattern, lit, kind, c.want, c.kind)
		}
	}
}

func TestBuild_BucketCounts(t *testing.T) {
	e, _ := Build([]string{
		`^foo`,             // prefix
		`bar\.com$`,         // suffix
		`^exact\.test$`,     // exact
		`[0-9]+\.whatever$`, // suffix ".whatever": no leading anchor; the trailing literal run includes the escaped dot
	}, Config{})
	stats := e.Stats()
	if stats.Prefix < 1 || stats.Suffix < 1 || stats.Exact < 1 {
		t.Fatalf("expected each bucket to have at least one pattern, got %+v", stats)
	}
}
