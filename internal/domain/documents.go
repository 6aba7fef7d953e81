package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FileHeader is the envelope shared by submission and remittance documents.
// RecordCount declares how many claim records the sender put in the file;
// a mismatch against the parsed count fails verification.
type FileHeader struct {
	SenderID        string
	ReceiverID      string
	TransactionDate time.Time
	RecordCount     int
	Disposition     DispositionFlag
}

// SubmissionFile is a parsed claim submission document
type SubmissionFile struct {
	FileID string
	Header FileHeader
	Claims []SubmissionClaim
}

// SubmissionClaim is one claim record inside a submission document
type SubmissionClaim struct {
	ID           string // payer-facing natural claim id
	MemberID     string
	PayerID      string
	ProviderID   string
	EmiratesID   string
	Gross        decimal.Decimal
	PatientShare decimal.Decimal
	Net          decimal.Decimal
	Encounters   []Encounter
	Activities   []Activity
	Resubmission *Resubmission
	Contract     *Contract
}

// Encounter is a patient encounter belonging to a claim
type Encounter struct {
	FacilityID string
	Type       string
	PatientID  string
	Start      time.Time
	End        *time.Time
	StartType  string
	EndType    string
	TransferTo string
	Diagnoses  []Diagnosis
}

// Diagnosis is one diagnosis code attached to an encounter
type Diagnosis struct {
	Type string // Principal / Secondary
	Code string
}

// Activity is a billed line item. The activity id is stable across the
// claim's lifecycle: the same id recurs in later remittances.
type Activity struct {
	ID           string
	Start        time.Time
	Type         string
	Code         string
	Quantity     decimal.Decimal
	Net          decimal.Decimal
	Clinician    string
	PriorAuthID  string
	Observations []Observation
}

// Observation is supplementary clinical data attached to an activity
type Observation struct {
	Type      string
	Code      string
	Value     string
	ValueType string
}

// Resubmission marks a claim record as a resubmission cycle
type Resubmission struct {
	Type       string
	Comment    string
	Attachment string
}

// Contract carries the optional insurance contract package name
type Contract struct {
	PackageName string
}

// RemittanceFile is a parsed remittance advice document
type RemittanceFile struct {
	FileID string
	Header FileHeader
	Claims []RemittanceClaim
}

// RemittanceClaim is one claim-level adjudication record inside a remittance
type RemittanceClaim struct {
	ID               string // natural claim id, joins back to the submission
	IDPayer          string // payer-side claim reference
	PaymentReference string
	ProviderID       string
	DateSettlement   *time.Time
	Activities       []RemittanceActivity
}

// RemittanceActivity is one activity-level payment line
type RemittanceActivity struct {
	ID            string // matches the submitted activity id
	Start         time.Time
	Type          string
	Code          string
	Quantity      decimal.Decimal
	Net           decimal.Decimal
	Clinician     string
	Gross         decimal.Decimal
	PatientShare  decimal.Decimal
	PaymentAmount decimal.Decimal
	DenialCode    string // empty when the line was paid
}

// Denied reports whether the payment line is a denial
func (a RemittanceActivity) Denied() bool {
	return a.DenialCode != ""
}

// TotalPaid sums the payment amounts of all activity lines
func (c RemittanceClaim) TotalPaid() decimal.Decimal {
	total := decimal.Zero
	for _, a := range c.Activities {
		total = total.Add(a.PaymentAmount)
	}
	return total
}

// HasPositivePayment reports whether any activity line carries a positive
// payment amount
func (c RemittanceClaim) HasPositivePayment() bool {
	for _, a := range c.Activities {
		if a.PaymentAmount.IsPositive() {
			return true
		}
	}
	return false
}

// DeniedOnly reports whether the adjudication consists solely of denial
// lines with no positive payment
func (c RemittanceClaim) DeniedOnly() bool {
	if len(c.Activities) == 0 {
		return false
	}
	for _, a := range c.Activities {
		if a.PaymentAmount.IsPositive() || !a.Denied() {
			return false
		}
	}
	return true
}

// DocumentAck is the best-effort acknowledgment payload published after a
// document passes verification
type DocumentAck struct {
	// AckID uniquely identifies this acknowledgment. The publisher assigns
	// one when empty and uses it as the broker message id, so an ack
	// redelivered after an ambiguous publish failure deduplicates.
	AckID      string    `json:"ack_id"`
	FileID     string    `json:"file_id"`
	SenderID   string    `json:"sender_id"`
	FacilityID string    `json:"facility_id,omitempty"`
	Verified   bool      `json:"verified"`
	AckedAt    time.Time `json:"acked_at"`
}
