package intake

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/intake/intake/internal/record"
)

const (
	maxAge         = 150
	minHistoryYear = 1900
)

// Validator checks candidate intake payloads against the canonical record
// schema. Validation is deterministic: no I/O, no randomness; the only time
// dependence is the history-year ceiling, fixed at construction so the same
// candidate always gets the same verdict.
type Validator struct {
	maxHistoryYear int
}

func NewValidator() *Validator {
	return &Validator{maxHistoryYear: time.Now().Year()}
}

// Validate checks an untyped candidate payload assembled by the intake
// workflow. On success it returns a PatientRecord in draft status, with no
// ID and no timestamp — those are assigned at finalization. On failure it
// returns a ValidationError naming every failed field and why; the caller
// re-prompts the patient from that list.
//
// Unknown top-level keys are ignored, so side-channel inputs consumed
// upstream (free-text fields handled by the normalizer) do not fail a
// submission.
func (v *Validator) Validate(candidate map[string]any) (*record.PatientRecord, *ValidationError) {
	verr := &ValidationError{}
	rec := &record.PatientRecord{Status: record.StatusDraft}

	v.validateDemographics(candidate, rec, verr)
	v.validateEmergencyContact(candidate, rec, verr)
	v.validateMedicalHistory(candidate, rec, verr)
	v.validateLifestyleFactors(candidate, rec, verr)
	v.validateScreeningResponses(candidate, rec, verr)

	if len(verr.Fields) > 0 {
		return nil, verr
	}
	return rec, nil
}

func (v *Validator) validateDemographics(candidate map[string]any, rec *record.PatientRecord, verr *ValidationError) {
	sec, ok := requiredSection(candidate, "demographics", verr)
	if !ok {
		return
	}

	if s, ok := requiredString(sec, "demographics", "name", verr); ok {
		rec.Demographics.Name = s
	}

	raw, present := sec["age"]
	switch {
	case !present || raw == nil:
		verr.add("demographics.age", MissingField, "age is required")
	default:
		n, ok := intValue(raw)
		if !ok {
			verr.add("demographics.age", TypeMismatch, "must be an integer")
		} else if n < 0 || n > maxAge {
			verr.add("demographics.age", OutOfRange, fmt.Sprintf("must be between 0 and %d", maxAge))
		} else {
			rec.Demographics.Age = n
		}
	}

	if raw, present := sec["contact"]; present && raw != nil {
		m, ok := raw.(map[string]any)
		if !ok {
			verr.add("demographics.contact", TypeMismatch, "must be an object")
			return
		}
		contact := &record.ContactInfo{}
		if s, ok := optionalString(m, "demographics.contact", "phone", verr); ok {
			contact.Phone = s
		}
		if s, ok := optionalString(m, "demographics.contact", "email", verr); ok {
			contact.Email = s
		}
		rec.Demographics.Contact = contact
	}
}

func (v *Validator) validateEmergencyContact(candidate map[string]any, rec *record.PatientRecord, verr *ValidationError) {
	sec, ok := requiredSection(candidate, "emergencyContact", verr)
	if !ok {
		return
	}

	if s, ok := requiredString(sec, "emergencyContact", "name", verr); ok {
		rec.EmergencyContact.Name = s
	}
	if s, ok := requiredString(sec, "emergencyContact", "phone", verr); ok {
		rec.EmergencyContact.Phone = s
	}
	if s, ok := optionalString(sec, "emergencyContact", "relationship", verr); ok {
		rec.EmergencyContact.Relationship = s
	}
}

func (v *Validator) validateMedicalHistory(candidate map[string]any, rec *record.PatientRecord, verr *ValidationError) {
	raw, present := candidate["medicalHistory"]
	if !present || raw == nil {
		verr.add("medicalHistory", MissingField, "required section is missing")
		return
	}
	list, ok := raw.([]any)
	if !ok {
		verr.add("medicalHistory", TypeMismatch, "must be an array")
		return
	}

	entries := make([]record.HistoryEntry, 0, len(list))
	for i, item := range list {
		path := fmt.Sprintf("medicalHistory[%d]", i)
		m, ok := item.(map[string]any)
		if !ok {
			verr.add(path, TypeMismatch, "must be an object")
			continue
		}

		var entry record.HistoryEntry
		if s, ok := requiredString(m, path, "condition", verr); ok {
			entry.Condition = s
		}
		if s, ok := optionalString(m, path, "notes", verr); ok {
			entry.Notes = s
		}
		if raw, present := m["year"]; present && raw != nil {
			n, ok := intValue(raw)
			if !ok {
				verr.add(path+".year", TypeMismatch, "must be an integer")
			} else if n < minHistoryYear || n > v.maxHistoryYear {
				verr.add(path+".year", OutOfRange, fmt.Sprintf("must be between %d and %d", minHistoryYear, v.maxHistoryYear))
			} else {
				entry.Year = n
			}
		}
		entries = append(entries, entry)
	}
	rec.MedicalHistory = entries
}

// lifestyleFactors is the one optional section: absent means an empty map,
// never an error.
func (v *Validator) validateLifestyleFactors(candidate map[string]any, rec *record.PatientRecord, verr *ValidationError) {
	factors := make(map[string]string)
	rec.LifestyleFactors = factors

	raw, present := candidate["lifestyleFactors"]
	if !present || raw == nil {
		return
	}
	m, ok := raw.(map[string]any)
	if !ok {
		verr.add("lifestyleFactors", TypeMismatch, "must be an object")
		return
	}
	for _, k := range sortedKeys(m) {
		s, ok := m[k].(string)
		if !ok {
			verr.add("lifestyleFactors."+k, TypeMismatch, "must be a string")
			continue
		}
		factors[k] = s
	}
}

func (v *Validator) validateScreeningResponses(candidate map[string]any, rec *record.PatientRecord, verr *ValidationError) {
	raw, present := candidate["screeningResponses"]
	if !present || raw == nil {
		verr.add("screeningResponses", MissingField, "required section is missing")
		return
	}
	m, ok := raw.(map[string]any)
	if !ok {
		verr.add("screeningResponses", TypeMismatch, "must be an object")
		return
	}

	responses := make(map[string][]int, len(m))
	rec.ScreeningResponses = responses

	for _, name := range sortedKeys(m) {
		path := "screeningResponses." + name
		ins, known := InstrumentByName(name)
		if !known {
			verr.add(path, OutOfRange, "unknown screening instrument")
			continue
		}

		list, ok := m[name].([]any)
		if !ok {
			verr.add(path, TypeMismatch, "must be an array of integers")
			continue
		}
		if len(list) != ins.Items {
			verr.add(path, OutOfRange, fmt.Sprintf("%s expects %d responses, got %d", name, ins.Items, len(list)))
			continue
		}

		vals := make([]int, 0, ins.Items)
		valid := true
		for i, item := range list {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			n, ok := intValue(item)
			if !ok {
				verr.add(itemPath, TypeMismatch, "must be an integer")
				valid = false
				continue
			}
			if n < ins.Min || n > ins.Max {
				verr.add(itemPath, OutOfRange, fmt.Sprintf("response must be between %d and %d", ins.Min, ins.Max))
				valid = false
				continue
			}
			vals = append(vals, n)
		}
		if valid {
			responses[name] = vals
		}
	}
}

// -- helpers --

func requiredSection(candidate map[string]any, key string, verr *ValidationError) (map[string]any, bool) {
	raw, present := candidate[key]
	if !present || raw == nil {
		verr.add(key, MissingField, "required section is missing")
		return nil, false
	}
	sec, ok := raw.(map[string]any)
	if !ok {
		verr.add(key, TypeMismatch, "must be an object")
		return nil, false
	}
	return sec, true
}

// requiredString records MissingField for absent or blank values and
// TypeMismatch for non-strings.
func requiredString(sec map[string]any, path, key string, verr *ValidationError) (string, bool) {
	field := path + "." + key
	raw, present := sec[key]
	if !present || raw == nil {
		verr.add(field, MissingField, key+" is required")
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		verr.add(field, TypeMismatch, "must be a string")
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		verr.add(field, MissingField, key+" is required")
		return "", false
	}
	return s, true
}

func optionalString(sec map[string]any, path, key string, verr *ValidationError) (string, bool) {
	raw, present := sec[key]
	if !present || raw == nil {
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		verr.add(path+"."+key, TypeMismatch, "must be a string")
		return "", false
	}
	return s, true
}

// intValue accepts JSON numbers that are integral. Decoded JSON delivers
// float64; tests and the normalizer may pass int directly.
func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int(n), true
	}
	return 0, false
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
