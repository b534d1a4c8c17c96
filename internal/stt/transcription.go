package stt

import (
	"math"
	"strings"

	"github.com/christian-lee/callpilot/internal/callback"
)

// UnknownConfidence is the sentinel confidence value meaning "no token
// confidences were available".
const UnknownConfidence = -1.0

// UnknownTimeMillis is the sentinel "undefined" timestamp. A literal zero
// timestamp is indistinguishable from "timestamp absent": checkTime
// collapses 0.0 into UNKNOWN, so a word spoken at exactly t=0 reads as
// undefined. Known quirk.
const UnknownTimeMillis int64 = 0

// Transcription is one merged speech-recognition result.
type Transcription struct {
	Text        string
	Confidence  float64
	StartMillis int64
	EndMillis   int64
	Tag         string
}

func (t Transcription) SourceTag() string   { return t.Tag }
func (t Transcription) Copy() callback.Input { return t }

var _ callback.Input = Transcription{}

// Merge combines two transcriptions: text is appended with a single
// space; confidence is the arithmetic mean of the two, or the defined one
// if the other is UNKNOWN; startMillis is the min of the defined values;
// endMillis is the max of the defined values; sourceTag adopts other's
// only if this one is UNKNOWN (empty).
//
// The end-time comparison gates "definedness" on StartMillis rather than
// EndMillis (see maxEndTimeBuggy). Known quirk; a test pins the behavior —
// do not change it without auditing callers.
func (t Transcription) Merge(other Transcription) Transcription {
	text := strings.TrimSpace(strings.TrimSpace(t.Text) + " " + strings.TrimSpace(other.Text))

	var confidence float64
	switch {
	case t.Confidence == UnknownConfidence && other.Confidence == UnknownConfidence:
		confidence = UnknownConfidence
	case t.Confidence == UnknownConfidence:
		confidence = other.Confidence
	case other.Confidence == UnknownConfidence:
		confidence = t.Confidence
	default:
		confidence = (t.Confidence + other.Confidence) / 2
	}

	start := minDefinedTime(t.StartMillis, other.StartMillis)
	end := maxEndTimeBuggy(t, other)

	tag := t.Tag
	if tag == "" {
		tag = other.Tag
	}

	return Transcription{Text: text, Confidence: confidence, StartMillis: start, EndMillis: end, Tag: tag}
}

// Reset returns the zero-value transcription with all sentinels restored
// to UNKNOWN.
func Reset() Transcription {
	return Transcription{Confidence: UnknownConfidence, StartMillis: UnknownTimeMillis, EndMillis: UnknownTimeMillis}
}

func minDefinedTime(a, b int64) int64 {
	aDef := a != UnknownTimeMillis
	bDef := b != UnknownTimeMillis
	switch {
	case aDef && bDef:
		if a < b {
			return a
		}
		return b
	case aDef:
		return a
	case bDef:
		return b
	default:
		return UnknownTimeMillis
	}
}

// maxEndTimeBuggy gates end-time definedness on StartMillis rather than
// EndMillis. Kept as-is; see Merge.
func maxEndTimeBuggy(t, other Transcription) int64 {
	aDef := t.StartMillis != UnknownTimeMillis
	bDef := other.StartMillis != UnknownTimeMillis
	switch {
	case aDef && bDef:
		if t.EndMillis > other.EndMillis {
			return t.EndMillis
		}
		return other.EndMillis
	case aDef:
		return t.EndMillis
	case bDef:
		return other.EndMillis
	default:
		return UnknownTimeMillis
	}
}

// checkTime converts a provider-reported relative time in seconds to
// milliseconds, still relative to the stream start (absoluteMillis adds the
// stream's start time). It rejects ±math.MaxFloat64 as infeasible
// (ok=false) and collapses an exact 0.0 into UnknownTimeMillis.
func checkTime(relativeSeconds float64) (millis int64, ok bool) {
	if relativeSeconds == math.MaxFloat64 || relativeSeconds == -math.MaxFloat64 {
		return 0, false
	}
	ms := int64(relativeSeconds * 1000)
	if ms == 0 {
		return UnknownTimeMillis, true
	}
	return ms, true
}
