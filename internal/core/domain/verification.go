package domain

type VerificationStatus string

const (
	VerificationVerified  VerificationStatus = "verified"
	VerificationFailed    VerificationStatus = "failed"
	VerificationNoNumbers VerificationStatus = "no_numbers"
)

type CalculationType string

const (
	CalcDifference CalculationType = "difference"
	CalcRatio      CalculationType = "ratio"
	CalcPercentage CalculationType = "percentage"
	CalcLookup     CalculationType = "lookup"
)

type Verdict struct {
	Status          VerificationStatus `json:"status"`
	Message         string             `json:"message"`
	CalculationType CalculationType    `json:"calculation_type,omitempty"`
}
