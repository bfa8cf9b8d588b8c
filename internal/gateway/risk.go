package gateway

import (
	"fmt"
	"sort"
	"strings"

	"github.com/intake/intake/internal/record"
)

// Risk levels for the lookup rollup.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// RiskAssessment rolls a record up into a single triage signal: screening
// scores plus keyword analysis of the free-text fields. It is a heuristic
// pointer for clinicians, not a diagnosis.
type RiskAssessment struct {
	Level           string   `json:"level"`
	NegativityScore int      `json:"negativityScore"`
	PrimaryEmotion  string   `json:"primaryEmotion,omitempty"`
	NeedsAttention  bool     `json:"needsAttention"`
	Flags           []string `json:"flags,omitempty"`
}

// emotionOrder fixes scan order so the primary emotion is stable across runs.
var emotionOrder = []string{"loneliness", "sadness", "anxiety", "social_disconnection"}

var emotionKeywords = map[string][]string{
	"loneliness": {
		"lonely", "alone", "isolated", "forgotten", "nobody", "no one",
		"by myself", "on my own", "miss", "missing", "abandoned",
		"left behind", "empty", "solitary",
	},
	"sadness": {
		"sad", "depressed", "down", "blue", "unhappy", "miserable",
		"hopeless", "despair", "crying", "tears", "heartbroken",
		"grief", "sorrow",
	},
	"anxiety": {
		"worried", "anxious", "scared", "afraid", "fear", "nervous",
		"stress", "panic", "overwhelmed", "restless",
	},
	"social_disconnection": {
		"nobody calls", "nobody visits", "don't talk to anyone",
		"haven't heard from", "they forgot", "too busy for me",
		"don't care", "ignored", "excluded",
	},
}

// AssessRisk combines the instrument severities with keyword analysis of the
// record's free text. Each matched keyword contributes 15 points of
// negativity and 25 points of per-emotion confidence, both capped at 100;
// negativity of 60 maps to high risk, 30 to medium. A moderate screening
// severity lifts the level to at least medium, moderately severe or worse
// lifts it to high.
func AssessRisk(rec *record.PatientRecord, summaries []ScreeningSummary) *RiskAssessment {
	text := freeText(rec)
	confidence, total := matchEmotions(text)

	negativity := total * 15
	if negativity > 100 {
		negativity = 100
	}

	level := RiskLow
	if negativity >= 60 {
		level = RiskHigh
	} else if negativity >= 30 {
		level = RiskMedium
	}

	var flags []string
	for _, s := range summaries {
		switch s.Severity {
		case "severe", "moderately severe":
			level = RiskHigh
		case "moderate":
			if level == RiskLow {
				level = RiskMedium
			}
		default:
			continue
		}
		flags = append(flags, fmt.Sprintf("%s score %d (%s)", s.Instrument, s.Score, s.Severity))
	}

	primary := primaryEmotion(confidence)
	if negativity >= 30 && primary != "" {
		flags = append(flags, fmt.Sprintf("%s language in intake text", primary))
	}

	return &RiskAssessment{
		Level:           level,
		NegativityScore: negativity,
		PrimaryEmotion:  primary,
		NeedsAttention:  level != RiskLow,
		Flags:           flags,
	}
}

// freeText collects the fields a patient writes in their own words: history
// conditions and notes, and lifestyle factor values.
func freeText(rec *record.PatientRecord) string {
	var b strings.Builder
	for _, entry := range rec.MedicalHistory {
		b.WriteString(entry.Condition)
		b.WriteString(" ")
		b.WriteString(entry.Notes)
		b.WriteString(" ")
	}
	keys := make([]string, 0, len(rec.LifestyleFactors))
	for k := range rec.LifestyleFactors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		b.WriteString(rec.LifestyleFactors[k])
		b.WriteString(" ")
	}
	return strings.ToLower(b.String())
}

// matchEmotions counts, per emotion, how many of its keywords appear in the
// text. Each keyword counts once regardless of repetition.
func matchEmotions(text string) (map[string]int, int) {
	confidence := make(map[string]int, len(emotionOrder))
	total := 0
	for _, emotion := range emotionOrder {
		matches := 0
		for _, kw := range emotionKeywords[emotion] {
			if strings.Contains(text, kw) {
				matches++
			}
		}
		if matches == 0 {
			continue
		}
		total += matches
		score := matches * 25
		if score > 100 {
			score = 100
		}
		confidence[emotion] = score
	}
	return confidence, total
}

func primaryEmotion(confidence map[string]int) string {
	primary := ""
	best := 0
	for _, emotion := range emotionOrder {
		if confidence[emotion] > best {
			primary = emotion
			best = confidence[emotion]
		}
	}
	return primary
}
