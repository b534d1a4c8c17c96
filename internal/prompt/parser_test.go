package prompt

import "testing"

// Const name=Mario plus Var now->getTime render to "Hello Mario at
// 10:00:00." with one recorded call site.
func TestParseAndRenderConstAndVar(t *testing.T) {
	src := "__* Const *__\n" +
		"- name = Mario\n" +
		"__* Var *__\n" +
		"- now = getTime\n" +
		"__ Role __\n" +
		"Hello {{name}} at {{now}}.\n"

	registry := Registry{"getTime": func() string { return "10:00:00" }}

	parsed, err := Parse(src, registry)
	if err != nil {
		t.Fatal(err)
	}

	if parsed.Constants["name"] != "Mario" {
		t.Fatalf("constants[name] = %q, want Mario", parsed.Constants["name"])
	}
	if parsed.VariableDefs["now"] != "getTime" {
		t.Fatalf("variableDefs[now] = %q, want getTime", parsed.VariableDefs["now"])
	}

	sites := parsed.CallSites["Role"]
	if len(sites) != 1 || sites[0].Function != "getTime" {
		t.Fatalf("callSites[Role] = %+v, want one getTime entry", sites)
	}

	rendered := parsed.ApplyVariables(registry)
	if rendered["Role"] != "Hello Mario at 10:00:00." {
		t.Fatalf("rendered[Role] = %q, want %q", rendered["Role"], "Hello Mario at 10:00:00.")
	}
}

func TestStripLineAndBlockComments(t *testing.T) {
	src := "a // comment\nb /* block\nspans lines */c"
	out, err := stripComments(src)
	if err != nil {
		t.Fatal(err)
	}
	if out != "a \nb c" {
		t.Fatalf("stripComments = %q", out)
	}
}

func TestStripCommentsRejectsNesting(t *testing.T) {
	_, err := stripComments("/* outer /* inner */ */")
	if err == nil {
		t.Fatal("expected nested block comment error")
	}
}

func TestNormalizeWhitespaceCollapsesRunsAndBlankLines(t *testing.T) {
	src := "  indented   text  \n\n\n\nnext   line   "
	got := normalizeWhitespace(src)
	want := "  indented text\n\nnext line"
	if got != want {
		t.Fatalf("normalizeWhitespace = %q, want %q", got, want)
	}
}

func TestMalformedDelimiterIsParseError(t *testing.T) {
	_, err := splitSections("prefix __ Title __\nbody")
	if err == nil {
		t.Fatal("expected malformed delimiter error")
	}
}

func TestDuplicateTitlesConcatenateWithBlankLineSeparator(t *testing.T) {
	src := "__ A __\nfirst\n__ A __\nsecond\n"
	parsed, err := Parse(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.RawSections["A"] != "first\n\nsecond" {
		t.Fatalf("RawSections[A] = %q", parsed.RawSections["A"])
	}
}

func TestEmptyPromptSectionDropped(t *testing.T) {
	src := "__ Empty __\n\n__ Full __\nhello\n"
	parsed, err := Parse(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := parsed.RawSections["Empty"]; ok {
		t.Fatal("expected empty section to be dropped")
	}
	if parsed.RawSections["Full"] != "hello" {
		t.Fatalf("RawSections[Full] = %q", parsed.RawSections["Full"])
	}
}

func TestVarEntryDroppedWhenFunctionUnknown(t *testing.T) {
	src := "__* Var *__\n- x = notRegistered\n__ S __\nhi {{x}}\n"
	parsed, err := Parse(src, Registry{"other": func() string { return "" }})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := parsed.VariableDefs["x"]; ok {
		t.Fatal("expected unknown-function Var entry to be dropped")
	}
	// {{x}} is now neither constant nor variable -> left as text.
	if parsed.RawSections["S"] != "hi {{x}}" {
		t.Fatalf("RawSections[S] = %q", parsed.RawSections["S"])
	}
}

func TestCallSitesAscendingAndNonOverlapping(t *testing.T) {
	src := "__* Var *__\n- a = f\n- b = g\n__ S __\n{{a}} middle {{b}}\n"
	parsed, err := Parse(src, Registry{"f": func() string { return "" }, "g": func() string { return "" }})
	if err != nil {
		t.Fatal(err)
	}
	sites := parsed.CallSites["S"]
	if len(sites) != 2 {
		t.Fatalf("expected 2 call sites, got %d", len(sites))
	}
	for i := 1; i < len(sites); i++ {
		if sites[i].StartIdx <= sites[i-1].EndIdx {
			t.Fatalf("call sites not ascending/non-overlapping: %+v", sites)
		}
	}
}

func TestApplyVariablesMemoizesPerRender(t *testing.T) {
	src := "__* Var *__\n- a = f\n- b = f\n__ S __\n{{a}} and {{b}}\n"
	calls := 0
	registry := Registry{"f": func() string { calls++; return "X" }}

	parsed, err := Parse(src, registry)
	if err != nil {
		t.Fatal(err)
	}
	rendered := parsed.ApplyVariables(registry)
	if rendered["S"] != "X and X" {
		t.Fatalf("rendered[S] = %q", rendered["S"])
	}
	if calls != 1 {
		t.Fatalf("f called %d times, want 1 (memoized)", calls)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	src := "__* Const *__\n- name = Mario\n__ S __\nhi {{name}}\n"
	parsed, err := Parse(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := parsed.ToJSON()
	if err != nil {
		t.Fatal(err)
	}
	back, err := FromJSON(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.RawSections["S"] != parsed.RawSections["S"] {
		t.Fatalf("round trip mismatch: %q != %q", back.RawSections["S"], parsed.RawSections["S"])
	}
}

func TestBinaryRoundTrip(t *testing.T) {
	src := "__ S __\nhello world\n"
	parsed, err := Parse(src, nil)
	if err != nil {
		t.Fatal(err)
	}
	data, err := parsed.ToBinary()
	if err != nil {
		t.Fatal(err)
	}
	back, err := FromBinary(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.RawSections["S"] != "hello world" {
		t.Fatalf("RawSections[S] = %q", back.RawSections["S"])
	}
}

func TestBinaryChecksumDetectsCorruption(t *testing.T) {
	parsed, _ := Parse("__ S __\nhi\n", nil)
	data, _ := parsed.ToBinary()
	data[len(data)-1] ^= 0xFF
	if _, err := FromBinary(data); err == nil {
		t.Fatal("expected checksum mismatch error on corrupted data")
	}
}
