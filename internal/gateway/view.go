package gateway

import (
	"sort"
	"time"

	"github.com/intake/intake/internal/intake"
	"github.com/intake/intake/internal/record"
)

// ClinicalView is the read-only projection handed to clinicians. It carries
// every clinical field of the record plus derived summaries; lifecycle state
// is deliberately absent so the lookup surface cannot reveal whether other
// identifiers exist in any intermediate state.
type ClinicalView struct {
	ID                 record.PatientID        `json:"id"`
	Demographics       record.Demographics     `json:"demographics"`
	EmergencyContact   record.EmergencyContact `json:"emergencyContact"`
	MedicalHistory     []record.HistoryEntry   `json:"medicalHistory"`
	LifestyleFactors   map[string]string       `json:"lifestyleFactors,omitempty"`
	ScreeningResponses map[string][]int        `json:"screeningResponses"`
	ScreeningSummaries []ScreeningSummary      `json:"screeningSummaries,omitempty"`
	RiskAssessment     *RiskAssessment         `json:"riskAssessment"`
	CreatedAt          time.Time               `json:"createdAt"`
}

// ScreeningSummary is the scored form of one instrument's responses.
type ScreeningSummary struct {
	Instrument string `json:"instrument"`
	Score      int    `json:"score"`
	Severity   string `json:"severity"`
}

// NewClinicalView projects a finalized record into its clinician-facing
// shape, scoring each instrument and rolling the record up into a risk
// assessment.
func NewClinicalView(rec *record.PatientRecord) *ClinicalView {
	summaries := summarizeScreenings(rec.ScreeningResponses)
	return &ClinicalView{
		ID:                 rec.ID,
		Demographics:       rec.Demographics,
		EmergencyContact:   rec.EmergencyContact,
		MedicalHistory:     rec.MedicalHistory,
		LifestyleFactors:   rec.LifestyleFactors,
		ScreeningResponses: rec.ScreeningResponses,
		ScreeningSummaries: summaries,
		RiskAssessment:     AssessRisk(rec, summaries),
		CreatedAt:          rec.CreatedAt,
	}
}

func summarizeScreenings(responses map[string][]int) []ScreeningSummary {
	names := make([]string, 0, len(responses))
	for name := range responses {
		names = append(names, name)
	}
	sort.Strings(names)

	summaries := make([]ScreeningSummary, 0, len(names))
	for _, name := range names {
		ins, ok := intake.InstrumentByName(name)
		if !ok {
			continue
		}
		score := ins.Score(responses[name])
		summaries = append(summaries, ScreeningSummary{
			Instrument: name,
			Score:      score,
			Severity:   ins.Severity(score),
		})
	}
	return summaries
}
