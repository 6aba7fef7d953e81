package main

import (
	"encoding/xml"
	"fmt"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
)

// Generated documents use the sender timestamp layout the intake side
// accepts.
const txTimeLayout = "02/01/2006 15:04"

// Mirror of the wire shapes. Kept local so the generator stays decoupled
// from intake-side decoding.

type genHeader struct {
	SenderID        string `xml:"SenderID"`
	ReceiverID      string `xml:"ReceiverID"`
	TransactionDate string `xml:"TransactionDate"`
	RecordCount     int    `xml:"RecordCount"`
	DispositionFlag string `xml:"DispositionFlag"`
}

type genDiagnosis struct {
	Type string `xml:"Type"`
	Code string `xml:"Code"`
}

type genEncounter struct {
	FacilityID string         `xml:"FacilityID"`
	Type       string         `xml:"Type"`
	PatientID  string         `xml:"PatientID"`
	Start      string         `xml:"Start"`
	Diagnoses  []genDiagnosis `xml:"Diagnosis"`
}

type genActivity struct {
	ID        string `xml:"ID"`
	Start     string `xml:"Start"`
	Type      string `xml:"Type"`
	Code      string `xml:"Code"`
	Quantity  string `xml:"Quantity"`
	Net       string `xml:"Net"`
	Clinician string `xml:"Clinician"`
}

type genSubmissionClaim struct {
	ID           string         `xml:"ID"`
	MemberID     string         `xml:"MemberID"`
	PayerID      string         `xml:"PayerID"`
	ProviderID   string         `xml:"ProviderID"`
	EmiratesID   string         `xml:"EmiratesIDNumber"`
	Gross        string         `xml:"Gross"`
	PatientShare string         `xml:"PatientShare"`
	Net          string         `xml:"Net"`
	Encounters   []genEncounter `xml:"Encounter"`
	Activities   []genActivity  `xml:"Activity"`
}

type genSubmission struct {
	XMLName xml.Name             `xml:"Claim.Submission"`
	Header  genHeader            `xml:"Header"`
	Claims  []genSubmissionClaim `xml:"Claim"`
}

type genRemittanceActivity struct {
	ID            string `xml:"ID"`
	Start         string `xml:"Start"`
	Code          string `xml:"Code"`
	Quantity      string `xml:"Quantity"`
	Net           string `xml:"Net"`
	PaymentAmount string `xml:"PaymentAmount"`
	DenialCode    string `xml:"DenialCode,omitempty"`
}

type genRemittanceClaim struct {
	ID               string                  `xml:"ID"`
	IDPayer          string                  `xml:"IDPayer"`
	ProviderID       string                  `xml:"ProviderID"`
	PaymentReference string                  `xml:"PaymentReference"`
	Activities       []genRemittanceActivity `xml:"Activity"`
}

type genRemittance struct {
	XMLName xml.Name             `xml:"Remittance.Advice"`
	Header  genHeader            `xml:"Header"`
	Claims  []genRemittanceClaim `xml:"Claim"`
}

var activityCodes = []string{"83036", "82947", "85025", "80053", "99213", "99214", "71046"}

var denialCodes = []string{"MNEC-004", "PRCE-001", "AUTH-003", "CLAI-012"}

type generator struct {
	cfg *Config
	rng *rand.Rand
}

func newGenerator(cfg *Config) *generator {
	return &generator{cfg: cfg, rng: rand.New(rand.NewSource(cfg.Seed))}
}

func (g *generator) amount(min, max int) decimal.Decimal {
	cents := min*100 + g.rng.Intn((max-min)*100)
	return decimal.New(int64(cents), -2)
}

// submission builds one complete submission file. Claim ids embed the file
// index so repeated runs against a fresh database never collide within a
// run.
func (g *generator) submission(fileIdx int, txAt time.Time) genSubmission {
	cfg := g.cfg
	doc := genSubmission{
		Header: genHeader{
			SenderID:        cfg.Facility,
			ReceiverID:      cfg.Payer,
			TransactionDate: txAt.Format(txTimeLayout),
			RecordCount:     cfg.ClaimsPerFile,
			DispositionFlag: "PRODUCTION",
		},
	}

	for c := 0; c < cfg.ClaimsPerFile; c++ {
		claimID := fmt.Sprintf("%s-CLM-%04d-%04d", cfg.Facility, fileIdx, c)
		encounterAt := txAt.Add(-time.Duration(1+g.rng.Intn(72)) * time.Hour)

		claim := genSubmissionClaim{
			ID:           claimID,
			MemberID:     fmt.Sprintf("MBR-%06d", g.rng.Intn(1000000)),
			PayerID:      cfg.Payer,
			ProviderID:   fmt.Sprintf("PRV-%02d", 1+g.rng.Intn(20)),
			EmiratesID:   fmt.Sprintf("784-%04d-%07d-%d", 1950+g.rng.Intn(60), g.rng.Intn(10000000), g.rng.Intn(10)),
			Encounters: []genEncounter{{
				FacilityID: cfg.Facility,
				Type:       "1",
				PatientID:  fmt.Sprintf("PAT-%06d", g.rng.Intn(1000000)),
				Start:      encounterAt.Format(txTimeLayout),
				Diagnoses: []genDiagnosis{
					{Type: "Principal", Code: fmt.Sprintf("J%02d.%d", g.rng.Intn(99), g.rng.Intn(10))},
				},
			}},
		}

		net := decimal.Zero
		for a := 0; a < cfg.ActivityLines; a++ {
			lineNet := g.amount(20, 400)
			net = net.Add(lineNet)
			claim.Activities = append(claim.Activities, genActivity{
				ID:        fmt.Sprintf("%s-A%d", claimID, a+1),
				Start:     encounterAt.Format(txTimeLayout),
				Type:      "3",
				Code:      activityCodes[g.rng.Intn(len(activityCodes))],
				Quantity:  "1",
				Net:       lineNet.String(),
				Clinician: fmt.Sprintf("DR-%03d", 1+g.rng.Intn(50)),
			})
		}

		share := g.amount(0, 50)
		claim.Net = net.String()
		claim.PatientShare = share.String()
		claim.Gross = net.Add(share).String()
		doc.Claims = append(doc.Claims, claim)
	}

	return doc
}

// remittance adjudicates every claim of a previously generated submission.
// Each activity line is either paid in full or denied with a zero payment.
func (g *generator) remittance(fileIdx int, sub genSubmission, remitAt time.Time) genRemittance {
	cfg := g.cfg
	doc := genRemittance{
		Header: genHeader{
			SenderID:        cfg.Payer,
			ReceiverID:      cfg.Facility,
			TransactionDate: remitAt.Format(txTimeLayout),
			RecordCount:     len(sub.Claims),
			DispositionFlag: "PRODUCTION",
		},
	}

	for c, subClaim := range sub.Claims {
		claim := genRemittanceClaim{
			ID:               subClaim.ID,
			IDPayer:          fmt.Sprintf("%s-REF-%04d-%04d", cfg.Payer, fileIdx, c),
			ProviderID:       subClaim.ProviderID,
			PaymentReference: fmt.Sprintf("PMT-%06d", g.rng.Intn(1000000)),
		}
		for _, act := range subClaim.Activities {
			line := genRemittanceActivity{
				ID:       act.ID,
				Start:    act.Start,
				Code:     act.Code,
				Quantity: act.Quantity,
				Net:      act.Net,
			}
			if g.rng.Float64() < cfg.DenialRate {
				line.PaymentAmount = "0"
				line.DenialCode = denialCodes[g.rng.Intn(len(denialCodes))]
			} else {
				line.PaymentAmount = act.Net
			}
			claim.Activities = append(claim.Activities, line)
		}
		doc.Claims = append(doc.Claims, claim)
	}

	return doc
}

func marshalDocument(doc interface{}) ([]byte, error) {
	body, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), body...), nil
}
