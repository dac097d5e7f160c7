package model

import (
	"time"

	"github.com/google/uuid"

	"github.com/ggasparott/FastMission/internal/rules"
)

// ValidationStatus represents the classification outcome of an item.
type ValidationStatus string

const (
	ValidationStatusPending   ValidationStatus = "PENDING"
	ValidationStatusValid     ValidationStatus = "VALID"
	ValidationStatusDivergent ValidationStatus = "DIVERGENT"
)

// Item is one product record of a batch.
type Item struct {
	BaseModel
	BatchID               uuid.UUID        `gorm:"type:uuid;column:batch_id;not null;index" json:"batchId"`
	Description           string           `gorm:"type:varchar(500);column:description;not null" json:"description"`
	OriginalCode          string           `gorm:"type:varchar(20);column:original_code;not null" json:"originalCode"`
	OriginalSecondaryCode *string          `gorm:"type:varchar(20);column:original_secondary_code" json:"originalSecondaryCode,omitempty"`
	ValidationStatus      ValidationStatus `gorm:"type:varchar(20);column:validation_status;not null;index" json:"validationStatus"`

	SuggestedCode            *string  `gorm:"type:varchar(20);column:suggested_code" json:"suggestedCode,omitempty"`
	SuggestedSecondaryCode   *string  `gorm:"type:varchar(20);column:suggested_secondary_code" json:"suggestedSecondaryCode,omitempty"`
	SecondaryCodeRequirement *string  `gorm:"type:varchar(20);column:secondary_code_requirement" json:"secondaryCodeRequirement,omitempty"`
	DivergenceReason         *string  `gorm:"type:text;column:divergence_reason" json:"divergenceReason,omitempty"`
	Confidence               *float64 `gorm:"column:confidence" json:"confidence,omitempty"`

	Regime             *string  `gorm:"type:varchar(30);column:regime" json:"regime,omitempty"`
	PrimaryRate        *float64 `gorm:"column:primary_rate" json:"primaryRate,omitempty"`
	SecondaryRate      *float64 `gorm:"column:secondary_rate" json:"secondaryRate,omitempty"`
	BenefitEligibility *string  `gorm:"type:varchar(20);column:benefit_eligibility" json:"benefitEligibility,omitempty"`
	BenefitDescription *string  `gorm:"type:text;column:benefit_description" json:"benefitDescription,omitempty"`
	LegalCitation      *string  `gorm:"type:varchar(255);column:legal_citation" json:"legalCitation,omitempty"`

	ProcessedAt *time.Time `gorm:"column:processed_at" json:"processedAt,omitempty"`
}

func (i *Item) TableName() string {
	return "batch_items"
}

// IsProcessed reports whether the item already reached a terminal classification.
func (i *Item) IsProcessed() bool {
	return i.ValidationStatus != ValidationStatusPending
}

// ApplyResult copies every field of a classification result onto the item and stamps it as processed.
func (i *Item) ApplyResult(r rules.Result, at time.Time) {
	status := ValidationStatusValid
	if r.Status == rules.StatusDivergent {
		status = ValidationStatusDivergent
	}

	i.ValidationStatus = status
	i.SuggestedCode = ptr(r.SuggestedCode)
	i.SuggestedSecondaryCode = r.SuggestedSecondaryCode
	i.SecondaryCodeRequirement = ptr(string(r.SecondaryRequirement))
	i.DivergenceReason = ptr(r.Explanation)
	i.Confidence = ptr(r.Confidence)
	i.Regime = ptr(string(r.Regime))
	i.PrimaryRate = ptr(r.PrimaryRate)
	i.SecondaryRate = ptr(r.SecondaryRate)
	i.BenefitEligibility = ptr(string(r.Benefit))
	i.BenefitDescription = r.BenefitDescription
	i.LegalCitation = r.LegalCitation
	i.ProcessedAt = &at
}

// MarkFailed records a classification that could not complete. The original code is kept as the suggestion.
func (i *Item) MarkFailed(reason string, at time.Time) {
	i.ValidationStatus = ValidationStatusDivergent
	i.SuggestedCode = ptr(i.OriginalCode)
	i.DivergenceReason = ptr(reason)
	i.Confidence = ptr(0.0)
	i.ProcessedAt = &at
}

func ptr[T any](v T) *T {
	return &v
}
