package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/intake/intake/internal/llm"
	"github.com/intake/intake/internal/record"
)

// historyTextKey is the side-channel field a portal may send instead of
// structured medicalHistory entries.
const historyTextKey = "medicalHistoryText"

// Normalizer structures free-text intake fields into the candidate sections
// the validator accepts. The language model is an untrusted collaborator:
// its output is parsed strictly, checked against the same field rules as
// direct patient entry, and discarded in favor of the deterministic splitter
// on any failure. Normalization never fails a submission on its own.
type Normalizer struct {
	llm       llm.Client // nil disables the model path
	validator *Validator
	timeout   time.Duration
	log       zerolog.Logger
}

func NewNormalizer(client llm.Client, validator *Validator, timeout time.Duration, log zerolog.Logger) *Normalizer {
	if timeout <= 0 {
		timeout = 8 * time.Second
	}
	return &Normalizer{llm: client, validator: validator, timeout: timeout, log: log}
}

// Normalize fills candidate["medicalHistory"] from free text when the
// payload carries prose and no structured entries. The candidate is modified
// in place and returned for convenience; payloads without free text pass
// through untouched.
func (n *Normalizer) Normalize(ctx context.Context, candidate map[string]any) map[string]any {
	text := historyText(candidate)
	if text == "" || hasStructuredHistory(candidate) {
		return candidate
	}

	entries := n.structureWithModel(ctx, text)
	if entries == nil {
		entries = n.splitHistoryText(text)
	}
	candidate["medicalHistory"] = entries
	return candidate
}

// structureWithModel returns validated entries from the model, or nil when
// the model is disabled, errors, or replies with anything that fails the
// history field rules.
func (n *Normalizer) structureWithModel(ctx context.Context, text string) []any {
	if n.llm == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	reply, err := n.llm.Complete(ctx, historySystemPrompt, text)
	if err != nil {
		n.log.Warn().Err(err).Msg("history structuring model call failed, using fallback")
		return nil
	}

	entries, err := parseHistoryReply(reply)
	if err != nil {
		n.log.Warn().Err(err).Msg("history structuring reply unparseable, using fallback")
		return nil
	}

	// Same rules as direct patient entry; reject the whole reply if any
	// entry fails.
	verr := &ValidationError{}
	n.validator.validateMedicalHistory(map[string]any{"medicalHistory": entries}, &record.PatientRecord{}, verr)
	if len(verr.Fields) > 0 {
		n.log.Warn().Str("detail", verr.Error()).Msg("history structuring reply failed validation, using fallback")
		return nil
	}
	return entries
}

// parseHistoryReply extracts the JSON array from a model reply, tolerating
// code fences but nothing else.
func parseHistoryReply(reply string) ([]any, error) {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}

	var entries []any
	if err := json.Unmarshal([]byte(s), &entries); err != nil {
		return nil, fmt.Errorf("reply is not a JSON array: %w", err)
	}
	return entries, nil
}

var (
	segmentSplit = regexp.MustCompile(`[.;\n]+|,\s+(?:and\s+)?|\s+and\s+`)
	yearPattern  = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// splitHistoryText is the deterministic fallback: segment the prose on
// sentence and list boundaries and take each segment as one condition,
// lifting a 4-digit year when the segment names one in range.
func (n *Normalizer) splitHistoryText(text string) []any {
	entries := make([]any, 0)
	for _, seg := range segmentSplit.Split(text, -1) {
		seg = strings.TrimSpace(seg)
		if len(seg) < 3 {
			continue
		}

		entry := map[string]any{"condition": seg}
		if m := yearPattern.FindString(seg); m != "" {
			if y, err := strconv.Atoi(m); err == nil && y >= minHistoryYear && y <= n.validator.maxHistoryYear {
				entry["year"] = y
			}
		}
		entries = append(entries, entry)
	}
	return entries
}

func historyText(candidate map[string]any) string {
	s, ok := candidate[historyTextKey].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

func hasStructuredHistory(candidate map[string]any) bool {
	list, ok := candidate["medicalHistory"].([]any)
	return ok && len(list) > 0
}
