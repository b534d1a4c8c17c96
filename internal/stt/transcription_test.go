package stt

import (
	"math"
	"testing"
)

func TestMergeAppendsTextWithSingleSpace(t *testing.T) {
	a := Transcription{Text: "hello", Confidence: 0.9, StartMillis: 100, EndMillis: 200}
	b := Transcription{Text: "world", Confidence: 0.8, StartMillis: 200, EndMillis: 300}

	merged := a.Merge(b)
	if merged.Text != "hello world" {
		t.Fatalf("text = %q, want %q", merged.Text, "hello world")
	}
}

func TestMergeConfidenceIsArithmeticMean(t *testing.T) {
	a := Transcription{Confidence: 0.6}
	b := Transcription{Confidence: 0.8}
	merged := a.Merge(b)
	if merged.Confidence != 0.7 {
		t.Fatalf("confidence = %v, want 0.7", merged.Confidence)
	}
}

func TestMergeConfidenceFallsBackToDefinedSide(t *testing.T) {
	a := Transcription{Confidence: UnknownConfidence}
	b := Transcription{Confidence: 0.5}

	if got := a.Merge(b).Confidence; got != 0.5 {
		t.Fatalf("a.Merge(b).Confidence = %v, want 0.5", got)
	}
	if got := b.Merge(a).Confidence; got != 0.5 {
		t.Fatalf("b.Merge(a).Confidence = %v, want 0.5", got)
	}
}

func TestMergeStartMillisIsMinOfDefined(t *testing.T) {
	a := Transcription{StartMillis: 500}
	b := Transcription{StartMillis: 100}
	if got := a.Merge(b).StartMillis; got != 100 {
		t.Fatalf("startMillis = %d, want 100", got)
	}

	// One side UNKNOWN: the defined side wins.
	c := Transcription{StartMillis: UnknownTimeMillis}
	d := Transcription{StartMillis: 700}
	if got := c.Merge(d).StartMillis; got != 700 {
		t.Fatalf("startMillis = %d, want 700", got)
	}
}

func TestMergeSourceTagAdoptsOthersOnlyWhenUnknown(t *testing.T) {
	a := Transcription{Tag: "mine"}
	b := Transcription{Tag: "theirs"}
	if got := a.Merge(b).Tag; got != "mine" {
		t.Fatalf("tag = %q, want %q (own tag kept)", got, "mine")
	}

	empty := Transcription{}
	if got := empty.Merge(b).Tag; got != "theirs" {
		t.Fatalf("tag = %q, want %q (adopted from other)", got, "theirs")
	}
}

// TestMergeEndMillisCopyPasteQuirk pins the quirk in maxEndTimeBuggy:
// endMillis definedness is gated on StartMillis, not EndMillis. An
// accidental "fix" elsewhere gets caught here.
func TestMergeEndMillisCopyPasteQuirk(t *testing.T) {
	// a has an EndMillis but StartMillis is UNKNOWN, so a's EndMillis is
	// treated as "not defined" for the max() comparison.
	a := Transcription{StartMillis: UnknownTimeMillis, EndMillis: 9999}
	b := Transcription{StartMillis: 100, EndMillis: 300}

	got := a.Merge(b).EndMillis
	if got != 300 {
		t.Fatalf("endMillis = %d, want 300 (a's 9999 ignored because a.StartMillis is UNKNOWN)", got)
	}
}

func TestResetRoundTrip(t *testing.T) {
	r := Reset()
	if r.Confidence != UnknownConfidence || r.StartMillis != UnknownTimeMillis || r.EndMillis != UnknownTimeMillis {
		t.Fatalf("Reset() = %+v, want all-UNKNOWN sentinels", r)
	}
	// Merging a reset value with a fully-defined one should yield the
	// defined one's numeric fields back, modulo text.
	other := Transcription{Text: "hi", Confidence: 0.5, StartMillis: 10, EndMillis: 20, Tag: "t"}
	merged := r.Merge(other)
	if merged.Confidence != 0.5 || merged.StartMillis != 10 || merged.Tag != "t" {
		t.Fatalf("Reset().Merge(other) = %+v, want other's defined fields", merged)
	}
}

func TestCheckTimeRejectsMaxFloat(t *testing.T) {
	if _, ok := checkTime(math.MaxFloat64); ok {
		t.Fatal("checkTime(MaxFloat64) should be infeasible")
	}
	if _, ok := checkTime(-math.MaxFloat64); ok {
		t.Fatal("checkTime(-MaxFloat64) should be infeasible")
	}
}

func TestCheckTimeCollapsesExactZeroToUnknown(t *testing.T) {
	millis, ok := checkTime(0.0)
	if !ok {
		t.Fatal("checkTime(0.0) should be feasible")
	}
	if millis != UnknownTimeMillis {
		t.Fatalf("checkTime(0.0) = %d, want UnknownTimeMillis", millis)
	}
}

func TestCheckTimeOrdinaryValue(t *testing.T) {
	millis, ok := checkTime(1.25)
	if !ok || millis != 1250 {
		t.Fatalf("checkTime(1.25) = (%d, %v), want (1250, true)", millis, ok)
	}
}
