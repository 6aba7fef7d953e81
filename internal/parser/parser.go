// Package parser decodes the two claim document shapes. Validation is
// structural only: a document with a bad envelope is rejected whole, a
// malformed claim record inside an otherwise valid document is skipped and
// reported so its siblings still flow through.
package parser

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
)

// RootSubmission and RootRemittance are the two legal document roots
const (
	RootSubmission = "Claim.Submission"
	RootRemittance = "Remittance.Advice"
)

// Problem describes one claim record that was skipped during parsing
type Problem struct {
	ClaimID string
	Detail  string
}

// Result carries the decoded document. Exactly one of Submission and
// Remittance is set.
type Result struct {
	Root       string
	Submission *domain.SubmissionFile
	Remittance *domain.RemittanceFile
	Problems   []Problem
}

// Header returns the decoded file envelope
func (r *Result) Header() domain.FileHeader {
	if r.Submission != nil {
		return r.Submission.Header
	}
	return r.Remittance.Header
}

// ClaimCount returns the number of successfully decoded claim records
func (r *Result) ClaimCount() int {
	if r.Submission != nil {
		return len(r.Submission.Claims)
	}
	return len(r.Remittance.Claims)
}

// ActivityCount returns the total number of decoded activity lines
func (r *Result) ActivityCount() int {
	n := 0
	if r.Submission != nil {
		for i := range r.Submission.Claims {
			n += len(r.Submission.Claims[i].Activities)
		}
		return n
	}
	for i := range r.Remittance.Claims {
		n += len(r.Remittance.Claims[i].Activities)
	}
	return n
}

// Parse decodes a raw document. A structurally invalid envelope or an
// unknown root fails the whole document with ErrMalformedDocument; bad
// claim records inside are skipped and reported in Result.Problems.
func Parse(fileID string, payload []byte) (*Result, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("empty payload: %w", domain.ErrMalformedDocument)
	}

	root, err := sniffRoot(payload)
	if err != nil {
		return nil, err
	}

	switch root {
	case RootSubmission:
		return parseSubmission(fileID, payload)
	case RootRemittance:
		return parseRemittance(fileID, payload)
	default:
		return nil, fmt.Errorf("unexpected root element %q: %w", root, domain.ErrMalformedDocument)
	}
}

// sniffRoot finds the document's root element name without decoding the body
func sniffRoot(payload []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(payload))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", fmt.Errorf("no root element: %w", domain.ErrMalformedDocument)
		}
		if err != nil {
			return "", fmt.Errorf("invalid xml: %v: %w", err, domain.ErrMalformedDocument)
		}
		if start, ok := tok.(xml.StartElement); ok {
			return start.Name.Local, nil
		}
	}
}

// Accepted timestamp layouts, tried in order
var timeLayouts = []string{
	"02/01/2006 15:04",
	"2006-01-02 15:04:05",
	time.RFC3339,
}

// xmlTime decodes the sender-formatted timestamps used throughout both
// document shapes
type xmlTime struct {
	time.Time
}

func (t *xmlTime) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw string
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", raw)
}

// xmlDecimal decodes money and quantity fields, tolerating surrounding
// whitespace and treating empty elements as zero
type xmlDecimal struct {
	decimal.Decimal
}

func (v *xmlDecimal) UnmarshalXML(d *xml.Decoder, start xml.StartElement) error {
	var raw string
	if err := d.DecodeElement(&raw, &start); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		v.Decimal = decimal.Zero
		return nil
	}
	parsed, err := decimal.NewFromString(raw)
	if err != nil {
		return fmt.Errorf("unparseable amount %q", raw)
	}
	v.Decimal = parsed
	return nil
}

type xmlHeader struct {
	SenderID        string  `xml:"SenderID"`
	ReceiverID      string  `xml:"ReceiverID"`
	TransactionDate xmlTime `xml:"TransactionDate"`
	RecordCount     int     `xml:"RecordCount"`
	DispositionFlag string  `xml:"DispositionFlag"`
}

type xmlObservation struct {
	Type      string `xml:"Type"`
	Code      string `xml:"Code"`
	Value     string `xml:"Value"`
	ValueType string `xml:"ValueType"`
}

type xmlActivity struct {
	ID           string           `xml:"ID"`
	Start        xmlTime          `xml:"Start"`
	Type         string           `xml:"Type"`
	Code         string           `xml:"Code"`
	Quantity     xmlDecimal       `xml:"Quantity"`
	Net          xmlDecimal       `xml:"Net"`
	Clinician    string           `xml:"Clinician"`
	PriorAuthID  string           `xml:"PriorAuthorizationID"`
	Observations []xmlObservation `xml:"Observation"`
}

type xmlDiagnosis struct {
	Type string `xml:"Type"`
	Code string `xml:"Code"`
}

type xmlEncounter struct {
	FacilityID          string         `xml:"FacilityID"`
	Type                string         `xml:"Type"`
	PatientID           string         `xml:"PatientID"`
	Start               xmlTime        `xml:"Start"`
	End                 *xmlTime       `xml:"End"`
	StartType           string         `xml:"StartType"`
	EndType             string         `xml:"EndType"`
	TransferDestination string         `xml:"TransferDestination"`
	Diagnoses           []xmlDiagnosis `xml:"Diagnosis"`
}

type xmlResubmission struct {
	Type       string `xml:"Type"`
	Comment    string `xml:"Comment"`
	Attachment string `xml:"Attachment"`
}

type xmlContract struct {
	PackageName string `xml:"PackageName"`
}

type xmlSubmissionClaim struct {
	ID           string           `xml:"ID"`
	MemberID     string           `xml:"MemberID"`
	PayerID      string           `xml:"PayerID"`
	ProviderID   string           `xml:"ProviderID"`
	EmiratesID   string           `xml:"EmiratesIDNumber"`
	Gross        xmlDecimal       `xml:"Gross"`
	PatientShare xmlDecimal       `xml:"PatientShare"`
	Net          xmlDecimal       `xml:"Net"`
	Encounters   []xmlEncounter   `xml:"Encounter"`
	Diagnoses    []xmlDiagnosis   `xml:"Diagnosis"`
	Activities   []xmlActivity    `xml:"Activity"`
	Resubmission *xmlResubmission `xml:"Resubmission"`
	Contract     *xmlContract     `xml:"Contract"`
}

type xmlSubmission struct {
	XMLName xml.Name             `xml:"Claim.Submission"`
	Header  xmlHeader            `xml:"Header"`
	Claims  []xmlSubmissionClaim `xml:"Claim"`
}

type xmlRemittanceActivity struct {
	ID            string     `xml:"ID"`
	Start         xmlTime    `xml:"Start"`
	Type          string     `xml:"Type"`
	Code          string     `xml:"Code"`
	Quantity      xmlDecimal `xml:"Quantity"`
	Net           xmlDecimal `xml:"Net"`
	Clinician     string     `xml:"Clinician"`
	Gross         xmlDecimal `xml:"Gross"`
	PatientShare  xmlDecimal `xml:"PatientShare"`
	PaymentAmount xmlDecimal `xml:"PaymentAmount"`
	DenialCode    string     `xml:"DenialCode"`
}

type xmlRemittanceClaim struct {
	ID               string                  `xml:"ID"`
	IDPayer          string                  `xml:"IDPayer"`
	ProviderID       string                  `xml:"ProviderID"`
	PaymentReference string                  `xml:"PaymentReference"`
	DateSettlement   *xmlTime                `xml:"DateSettlement"`
	Activities       []xmlRemittanceActivity `xml:"Activity"`
}

type xmlRemittance struct {
	XMLName xml.Name             `xml:"Remittance.Advice"`
	Header  xmlHeader            `xml:"Header"`
	Claims  []xmlRemittanceClaim `xml:"Claim"`
}

func convertHeader(h xmlHeader) (domain.FileHeader, error) {
	if h.SenderID == "" || h.ReceiverID == "" {
		return domain.FileHeader{}, fmt.Errorf("header missing sender or receiver: %w", domain.ErrMalformedDocument)
	}
	if h.TransactionDate.IsZero() {
		return domain.FileHeader{}, fmt.Errorf("header missing transaction date: %w", domain.ErrMalformedDocument)
	}
	if h.RecordCount < 0 {
		return domain.FileHeader{}, fmt.Errorf("header record count negative: %w", domain.ErrMalformedDocument)
	}

	disposition := domain.DispositionFlag(strings.ToUpper(h.DispositionFlag))
	if disposition == "" {
		disposition = domain.DispositionProduction
	}

	return domain.FileHeader{
		SenderID:        h.SenderID,
		ReceiverID:      h.ReceiverID,
		TransactionDate: h.TransactionDate.Time,
		RecordCount:     h.RecordCount,
		Disposition:     disposition,
	}, nil
}

func parseSubmission(fileID string, payload []byte) (*Result, error) {
	var doc xmlSubmission
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("invalid submission document: %v: %w", err, domain.ErrMalformedDocument)
	}

	header, err := convertHeader(doc.Header)
	if err != nil {
		return nil, err
	}

	result := &Result{Root: RootSubmission}
	file := &domain.SubmissionFile{FileID: fileID, Header: header}

	for i := range doc.Claims {
		c := &doc.Claims[i]
		if detail, ok := validateSubmissionClaim(c); !ok {
			result.Problems = append(result.Problems, Problem{ClaimID: c.ID, Detail: detail})
			continue
		}
		file.Claims = append(file.Claims, convertSubmissionClaim(c))
	}

	result.Submission = file
	return result, nil
}

func validateSubmissionClaim(c *xmlSubmissionClaim) (string, bool) {
	if c.ID == "" {
		return "claim record missing ID", false
	}
	if len(c.Activities) == 0 {
		return "claim record has no activities", false
	}
	for i := range c.Activities {
		if c.Activities[i].ID == "" {
			return "activity record missing ID", false
		}
	}
	for i := range c.Encounters {
		if c.Encounters[i].FacilityID == "" {
			return "encounter record missing FacilityID", false
		}
	}
	return "", true
}

func convertSubmissionClaim(c *xmlSubmissionClaim) domain.SubmissionClaim {
	claim := domain.SubmissionClaim{
		ID:           c.ID,
		MemberID:     c.MemberID,
		PayerID:      c.PayerID,
		ProviderID:   c.ProviderID,
		EmiratesID:   c.EmiratesID,
		Gross:        c.Gross.Decimal,
		PatientShare: c.PatientShare.Decimal,
		Net:          c.Net.Decimal,
	}

	for i := range c.Encounters {
		e := &c.Encounters[i]
		encounter := domain.Encounter{
			FacilityID: e.FacilityID,
			Type:       e.Type,
			PatientID:  e.PatientID,
			Start:      e.Start.Time,
			StartType:  e.StartType,
			EndType:    e.EndType,
			TransferTo: e.TransferDestination,
		}
		if e.End != nil && !e.End.IsZero() {
			end := e.End.Time
			encounter.End = &end
		}
		// Claim-level diagnoses belong to the first encounter
		diagnoses := e.Diagnoses
		if i == 0 {
			diagnoses = append(diagnoses, c.Diagnoses...)
		}
		for _, d := range diagnoses {
			encounter.Diagnoses = append(encounter.Diagnoses, domain.Diagnosis{Type: d.Type, Code: d.Code})
		}
		claim.Encounters = append(claim.Encounters, encounter)
	}

	for i := range c.Activities {
		a := &c.Activities[i]
		activity := domain.Activity{
			ID:          a.ID,
			Start:       a.Start.Time,
			Type:        a.Type,
			Code:        a.Code,
			Quantity:    a.Quantity.Decimal,
			Net:         a.Net.Decimal,
			Clinician:   a.Clinician,
			PriorAuthID: a.PriorAuthID,
		}
		for _, o := range a.Observations {
			activity.Observations = append(activity.Observations, domain.Observation{
				Type:      o.Type,
				Code:      o.Code,
				Value:     o.Value,
				ValueType: o.ValueType,
			})
		}
		claim.Activities = append(claim.Activities, activity)
	}

	if c.Resubmission != nil {
		claim.Resubmission = &domain.Resubmission{
			Type:       c.Resubmission.Type,
			Comment:    c.Resubmission.Comment,
			Attachment: c.Resubmission.Attachment,
		}
	}
	if c.Contract != nil && c.Contract.PackageName != "" {
		claim.Contract = &domain.Contract{PackageName: c.Contract.PackageName}
	}

	return claim
}

func parseRemittance(fileID string, payload []byte) (*Result, error) {
	var doc xmlRemittance
	if err := xml.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("invalid remittance document: %v: %w", err, domain.ErrMalformedDocument)
	}

	header, err := convertHeader(doc.Header)
	if err != nil {
		return nil, err
	}

	result := &Result{Root: RootRemittance}
	file := &domain.RemittanceFile{FileID: fileID, Header: header}

	for i := range doc.Claims {
		c := &doc.Claims[i]
		if c.ID == "" {
			result.Problems = append(result.Problems, Problem{Detail: "claim record missing ID"})
			continue
		}
		if len(c.Activities) == 0 {
			result.Problems = append(result.Problems, Problem{ClaimID: c.ID, Detail: "claim record has no activities"})
			continue
		}

		claim := domain.RemittanceClaim{
			ID:               c.ID,
			IDPayer:          c.IDPayer,
			ProviderID:       c.ProviderID,
			PaymentReference: c.PaymentReference,
		}
		if c.DateSettlement != nil && !c.DateSettlement.IsZero() {
			settled := c.DateSettlement.Time
			claim.DateSettlement = &settled
		}
		for j := range c.Activities {
			a := &c.Activities[j]
			claim.Activities = append(claim.Activities, domain.RemittanceActivity{
				ID:            a.ID,
				Start:         a.Start.Time,
				Type:          a.Type,
				Code:          a.Code,
				Quantity:      a.Quantity.Decimal,
				Net:           a.Net.Decimal,
				Clinician:     a.Clinician,
				Gross:         a.Gross.Decimal,
				PatientShare:  a.PatientShare.Decimal,
				PaymentAmount: a.PaymentAmount.Decimal,
				DenialCode:    a.DenialCode,
			})
		}

		file.Claims = append(file.Claims, claim)
	}

	result.Remittance = file
	return result, nil
}
