package normalize

import "testing"

func TestFixedReplacements(t *testing.T) {
	got := Normalize("シーピーユーとジーピーユーとエーピーアイ", nil)
	if got != "CPUとGPUとAPI" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestEmptyUserTableMatchesBuiltinOnly(t *testing.T) {
	input := "ジェイソンをエッチティーティーピーでギットハブに送る"
	if Normalize(input, nil) != Normalize(input, []Rule{}) {
		t.Fatal("nil and empty user tables must behave the same")
	}
	if got := Normalize(input, nil); got != "JSONをHTTPでGitHubに送る" {
		t.Fatalf("unexpected output %q", got)
	}
}

func TestUserRulesRunAfterBuiltins(t *testing.T) {
	user := []Rule{{From: "CPU", To: "CentralProcessingUnit"}}
	if got := Normalize("シーピーユー", user); got != "CentralProcessingUnit" {
		t.Fatalf("expected user override of builtin output, got %q", got)
	}
}

func TestRulesChainInOrder(t *testing.T) {
	user := []Rule{{From: "X", To: "Y"}, {From: "Y", To: "Z"}}
	if got := Normalize("X", user); got != "Z" {
		t.Fatalf("expected chained result Z, got %q", got)
	}
	reversed := []Rule{{From: "Y", To: "Z"}, {From: "X", To: "Y"}}
	if got := Normalize("X", reversed); got != "Y" {
		t.Fatalf("expected order-sensitive result Y, got %q", got)
	}
}

func TestBroadRuleMasksNarrowRule(t *testing.T) {
	// the HTTP rule runs first and leaves "HTTPエス" for the HTTPS rule to miss
	if got := Normalize("エッチティーティーピーエス", nil); got != "HTTPエス" {
		t.Fatalf("expected table order to be preserved, got %q", got)
	}
}

func TestReplacementIsGlobal(t *testing.T) {
	if got := Normalize("ギットとギットとジット", nil); got != "GitとGitとGit" {
		t.Fatalf("expected every occurrence replaced, got %q", got)
	}
}

func TestNormalizeIdempotentWhenNothingMatches(t *testing.T) {
	user := []Rule{{From: "foo", To: "bar"}}
	once := Normalize("シーピーユーとfoo", user)
	twice := Normalize(once, user)
	if once != twice {
		t.Fatalf("expected no-op on second pass: %q vs %q", once, twice)
	}
}

func TestEmptySourceRuleIgnored(t *testing.T) {
	if got := Normalize("abc", []Rule{{From: "", To: "x"}}); got != "abc" {
		t.Fatalf("expected empty source rule to be ignored, got %q", got)
	}
}

type staticRules []Rule

func (s staticRules) Rules() []Rule { return s }

func TestRewriterUsesSource(t *testing.T) {
	r := NewRewriter(staticRules{{From: "GPU", To: "グラボ"}})
	if got := r.Rewrite("ジーピーユー"); got != "グラボ" {
		t.Fatalf("unexpected output %q", got)
	}
	var nilRewriter *Rewriter
	if got := nilRewriter.Rewrite("ジーピーユー"); got != "GPU" {
		t.Fatalf("nil rewriter should apply builtins only, got %q", got)
	}
}

func TestBuiltinReturnsCopy(t *testing.T) {
	table := Builtin()
	table[0].To = "tampered"
	if Normalize("シーピーユー", nil) != "CPU" {
		t.Fatal("Builtin must not expose the internal table")
	}
}
