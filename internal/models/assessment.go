package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PropertyTaxAssessment is the assessed-value and tax record of a land parcel.
// One assessment owns its TaxQuarter rows, either four quarterly rows or a
// single full-year aggregate.
type PropertyTaxAssessment struct {
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	TDN             string          `json:"tdn"`
	PropertyAddress string          `json:"propertyAddress"`
	OwnerName       string          `json:"ownerName"`
	AssessedValue   decimal.Decimal `json:"assessedValue"`
	AnnualTax       decimal.Decimal `json:"annualTax"`
	ID              int64           `json:"id"`
	ApplicationID   int64           `json:"applicationId"`
	AssessmentYear  int             `json:"assessmentYear"`
}

// TableName returns the table backing PropertyTaxAssessment.
func (PropertyTaxAssessment) TableName() string {
	return "property_tax_assessments"
}
