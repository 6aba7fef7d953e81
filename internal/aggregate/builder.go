package aggregate

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/domain"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/projector"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store"
	"github.com/haramkhor2011-ship-it/claims-app-sub001/internal/store/schema"
)

// sourceData is everything the builders need, loaded in bulk up front so
// aggregation runs without further round trips
type sourceData struct {
	headers        []store.ClaimHeaderRow
	events         map[int64][]store.LedgerEvent
	lines          map[int64][]store.RemittanceLineRow
	activityCounts map[int64]int
}

// monthOf formats a timestamp into its YYYY-MM partition key
func monthOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// payerKeyFor resolves the claim's payer grouping key. The submission
// payer is the baseline; the most recent remittance that names a payer
// wins over it.
func payerKeyFor(header store.ClaimHeaderRow, events []store.LedgerEvent) string {
	key := headerPayerKey(header)
	for _, ev := range events {
		if ev.Kind == domain.EventKindRemittance && ev.RemitPayerCode != "" {
			key = ev.RemitPayerCode
		}
	}
	return key
}

func headerPayerKey(header store.ClaimHeaderRow) string {
	if header.PayerCode != nil && *header.PayerCode != "" {
		return *header.PayerCode
	}
	return header.PayerFallback
}

// buildClaimSummaries produces exactly one row per claim in the window.
// cycleCap bounds how many resubmission cycles are itemized into the fixed
// slots; a claim with more cycles keeps accurate counts and sums but no
// itemization past the cap.
func buildClaimSummaries(src *sourceData, refreshID string, cycleCap int) []schema.ClaimFinancialSummary {
	if cycleCap < 0 {
		cycleCap = 0
	}
	if cycleCap > schema.MaxItemizedCycles {
		cycleCap = schema.MaxItemizedCycles
	}

	rows := make([]schema.ClaimFinancialSummary, 0, len(src.headers))

	for _, header := range src.headers {
		events := src.events[header.ClaimKeyID]
		lines := src.lines[header.ClaimKeyID]

		row := schema.ClaimFinancialSummary{
			ClaimKeyID:   header.ClaimKeyID,
			ClaimID:      header.ClaimID,
			MonthYear:    monthOf(header.SubmittedAt),
			PayerKey:     payerKeyFor(header, events),
			ProviderCode: header.ProviderCode,
			FacilityCode: header.FacilityCode,
			Billed:       header.Net,
			TotalPaid:    decimal.Zero,
			TotalDenied:  decimal.Zero,
			RefreshID:    refreshID,

			ActivityCount: src.activityCounts[header.ClaimKeyID],
		}

		for _, line := range lines {
			row.TotalPaid = row.TotalPaid.Add(line.PaymentAmount)
			if line.DenialCode != nil {
				row.TotalDenied = row.TotalDenied.Add(line.Net)
			}
		}
		row.Outstanding = row.Billed.Sub(row.TotalPaid).Sub(row.TotalDenied)

		applyEventRollups(&row, events, cycleCap)

		timeline := projector.Project(events, header.Net)
		row.PaymentStatus = projector.CurrentStatus(timeline)

		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].ClaimKeyID < rows[j].ClaimKeyID })
	return rows
}

// applyEventRollups fills event-derived fields: counts, first/last event
// times, and the itemized resubmission cycle slots. A cycle's amount is
// the payment carried by the first remittance after that resubmission.
func applyEventRollups(row *schema.ClaimFinancialSummary, events []store.LedgerEvent, cycleCap int) {
	type cycle struct {
		at     time.Time
		amount *decimal.Decimal
	}
	var cycles []cycle

	for _, ev := range events {
		if row.FirstEventAt.IsZero() || ev.EventTime.Before(row.FirstEventAt) {
			row.FirstEventAt = ev.EventTime
		}
		if ev.EventTime.After(row.LastEventAt) {
			row.LastEventAt = ev.EventTime
		}

		switch ev.Kind {
		case domain.EventKindResubmission:
			row.ResubmissionCount++
			cycles = append(cycles, cycle{at: ev.EventTime})
		case domain.EventKindRemittance:
			row.RemittanceCount++
			at := ev.EventTime
			row.LastRemittanceAt = &at
			if len(cycles) > 0 && cycles[len(cycles)-1].amount == nil {
				amount := ev.PaidAmount
				cycles[len(cycles)-1].amount = &amount
			}
		}
	}

	slots := min(len(cycles), cycleCap)
	for i := 0; i < slots; i++ {
		at := cycles[i].at
		switch i {
		case 0:
			row.Resub1At, row.Resub1Amount = &at, cycles[i].amount
		case 1:
			row.Resub2At, row.Resub2Amount = &at, cycles[i].amount
		case 2:
			row.Resub3At, row.Resub3Amount = &at, cycles[i].amount
		case 3:
			row.Resub4At, row.Resub4Amount = &at, cycles[i].amount
		case 4:
			row.Resub5At, row.Resub5Amount = &at, cycles[i].amount
		}
	}
}

// buildPayerSummaries rolls the claim rows up by (payer, month)
func buildPayerSummaries(claimRows []schema.ClaimFinancialSummary, refreshID string) []schema.PayerMonthSummary {
	type groupKey struct {
		payer string
		month string
	}
	groups := make(map[groupKey]*schema.PayerMonthSummary)

	for i := range claimRows {
		c := &claimRows[i]
		key := groupKey{payer: c.PayerKey, month: c.MonthYear}
		g, ok := groups[key]
		if !ok {
			g = &schema.PayerMonthSummary{
				PayerKey:    c.PayerKey,
				MonthYear:   c.MonthYear,
				Billed:      decimal.Zero,
				TotalPaid:   decimal.Zero,
				TotalDenied: decimal.Zero,
				RefreshID:   refreshID,
			}
			groups[key] = g
		}

		g.ClaimCount++
		g.RemittanceCount += c.RemittanceCount
		g.ResubmissionCount += c.ResubmissionCount
		g.Billed = g.Billed.Add(c.Billed)
		g.TotalPaid = g.TotalPaid.Add(c.TotalPaid)
		g.TotalDenied = g.TotalDenied.Add(c.TotalDenied)

		switch c.PaymentStatus {
		case domain.ClaimStatusPaid:
			g.PaidCount++
		case domain.ClaimStatusPartiallyPaid:
			g.PartiallyPaidCount++
		case domain.ClaimStatusRejected:
			g.RejectedCount++
		default:
			g.PendingCount++
		}
	}

	rows := make([]schema.PayerMonthSummary, 0, len(groups))
	for _, g := range groups {
		rows = append(rows, *g)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].PayerKey != rows[j].PayerKey {
			return rows[i].PayerKey < rows[j].PayerKey
		}
		return rows[i].MonthYear < rows[j].MonthYear
	})
	return rows
}

// buildClinicianSummaries rolls payment lines up by (clinician, facility,
// month). TopDenialCode is the most frequent denial code in the group,
// ties broken lexicographically so repeated refreshes produce identical
// rows.
func buildClinicianSummaries(src *sourceData, refreshID string) []schema.ClinicianDenialSummary {
	type groupKey struct {
		clinician string
		facility  string
		month     string
	}
	type group struct {
		row     schema.ClinicianDenialSummary
		denials map[string]int
	}
	groups := make(map[groupKey]*group)

	facilityByClaim := make(map[int64]string, len(src.headers))
	monthByClaim := make(map[int64]string, len(src.headers))
	for _, h := range src.headers {
		facilityByClaim[h.ClaimKeyID] = h.FacilityCode
		monthByClaim[h.ClaimKeyID] = monthOf(h.SubmittedAt)
	}

	for claimKeyID, lines := range src.lines {
		month, ok := monthByClaim[claimKeyID]
		if !ok {
			continue
		}
		facility := facilityByClaim[claimKeyID]

		for _, line := range lines {
			key := groupKey{clinician: line.ClinicianCode, facility: facility, month: month}
			g, ok := groups[key]
			if !ok {
				g = &group{
					row: schema.ClinicianDenialSummary{
						ClinicianCode: line.ClinicianCode,
						FacilityCode:  facility,
						MonthYear:     month,
						DeniedAmount:  decimal.Zero,
						PaidAmount:    decimal.Zero,
						RefreshID:     refreshID,
					},
					denials: make(map[string]int),
				}
				groups[key] = g
			}

			g.row.ActivityCount++
			g.row.PaidAmount = g.row.PaidAmount.Add(line.PaymentAmount)
			if line.DenialCode != nil {
				g.row.DenialCount++
				g.row.DeniedAmount = g.row.DeniedAmount.Add(line.Net)
				g.denials[*line.DenialCode]++
			}
		}
	}

	rows := make([]schema.ClinicianDenialSummary, 0, len(groups))
	for _, g := range groups {
		if top, ok := topDenialCode(g.denials); ok {
			g.row.TopDenialCode = &top
		}
		rows = append(rows, g.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].ClinicianCode != rows[j].ClinicianCode {
			return rows[i].ClinicianCode < rows[j].ClinicianCode
		}
		if rows[i].FacilityCode != rows[j].FacilityCode {
			return rows[i].FacilityCode < rows[j].FacilityCode
		}
		return rows[i].MonthYear < rows[j].MonthYear
	})
	return rows
}

func topDenialCode(counts map[string]int) (string, bool) {
	top := ""
	best := 0
	for code, n := range counts {
		if n > best || (n == best && top != "" && code < top) {
			top = code
			best = n
		}
	}
	return top, best > 0
}
