package record

import (
	"fmt"
	"time"
)

// Status is the record lifecycle state. A record is created as a draft
// inside the submission request and becomes finalized exactly once; only
// finalized records are ever persisted or clinician-visible.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
)

// Demographics holds the identifying section of an intake submission.
// Contact is optional; name and age are required by the validator.
type Demographics struct {
	Name    string       `json:"name"`
	Age     int          `json:"age"`
	Contact *ContactInfo `json:"contact,omitempty"`
}

type ContactInfo struct {
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

type EmergencyContact struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Relationship string `json:"relationship,omitempty"`
}

// HistoryEntry is one item of the ordered medical history. Entries arrive
// either structured from the intake form or derived from free text by the
// normalizer; both paths pass the same validation.
type HistoryEntry struct {
	Condition string `json:"condition"`
	Notes     string `json:"notes,omitempty"`
	Year      int    `json:"year,omitempty"`
}

// PatientRecord is the unit of persistence. The ID is opaque and carries no
// relationship to the demographic fields, so a leaked ID does not leak
// identity. Once Status is finalized the clinical fields never change.
type PatientRecord struct {
	ID                 PatientID         `json:"id"`
	Demographics       Demographics      `json:"demographics"`
	EmergencyContact   EmergencyContact  `json:"emergencyContact"`
	MedicalHistory     []HistoryEntry    `json:"medicalHistory"`
	LifestyleFactors   map[string]string `json:"lifestyleFactors"`
	ScreeningResponses map[string][]int  `json:"screeningResponses"`
	CreatedAt          time.Time         `json:"createdAt"`
	Status             Status            `json:"status"`
}

// Finalize stamps the record with its identifier and creation time and moves
// it to StatusFinalized. It fails if the record is not a draft; the
// draft→finalized transition happens at most once.
func (r *PatientRecord) Finalize(id PatientID) error {
	if r.Status != StatusDraft {
		return fmt.Errorf("record is %s, only drafts can be finalized", r.Status)
	}
	r.ID = id
	r.CreatedAt = time.Now().UTC()
	r.Status = StatusFinalized
	return nil
}

// Clone returns a deep copy. Store backends hand out clones so no caller
// ever holds a reference into stored state.
func (r *PatientRecord) Clone() *PatientRecord {
	cp := *r
	if r.Demographics.Contact != nil {
		c := *r.Demographics.Contact
		cp.Demographics.Contact = &c
	}
	if r.MedicalHistory != nil {
		cp.MedicalHistory = make([]HistoryEntry, len(r.MedicalHistory))
		copy(cp.MedicalHistory, r.MedicalHistory)
	}
	if r.LifestyleFactors != nil {
		cp.LifestyleFactors = make(map[string]string, len(r.LifestyleFactors))
		for k, v := range r.LifestyleFactors {
			cp.LifestyleFactors[k] = v
		}
	}
	if r.ScreeningResponses != nil {
		cp.ScreeningResponses = make(map[string][]int, len(r.ScreeningResponses))
		for k, v := range r.ScreeningResponses {
			vs := make([]int, len(v))
			copy(vs, v)
			cp.ScreeningResponses[k] = vs
		}
	}
	return &cp
}
