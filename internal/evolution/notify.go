package evolution

import (
	"fmt"
	"sort"
	"strings"

	"caminhocerto/syncserver/internal/domain"
)

var paymentMethodLabels = map[string]string{
	"cash":        "Dinheiro",
	"debit_card":  "Cartao de Debito",
	"credit_card": "Cartao de Credito",
	"pix":         "PIX",
	"cheque":      "Cheque",
	"other":       "Outro",
}

// NormalizeNumber strips everything but digits and prefixes the default
// country code when missing. An empty result means no usable number.
func NormalizeNumber(raw string, countryCode string) string {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	number := digits.String()
	if number == "" {
		return ""
	}
	if countryCode != "" && !strings.HasPrefix(number, countryCode) {
		number = countryCode + number
	}
	return number
}

// FormatShiftReport builds the shift-closing summary sent to the employee
// (or the store group) when a shift is finalized.
func FormatShiftReport(req domain.ShiftReportRequest) string {
	var b strings.Builder

	b.WriteString("*Shift Closing Receipt*\n\n")
	fmt.Fprintf(&b, "Employee: %s\n", req.User)
	fmt.Fprintf(&b, "Shift: %s to %s\n", req.StartTime, req.EndTime)
	if req.ShiftDuration != "" {
		fmt.Fprintf(&b, "Duration: %s\n", req.ShiftDuration)
	}
	b.WriteString("\n*SALES SUMMARY*\n\n")

	if req.TotalSales == 0 {
		b.WriteString("Total sold: R$ 0.00\n")
		b.WriteString("No sales recorded during this shift.\n")
	} else {
		fmt.Fprintf(&b, "Total sold: R$ %.2f\n", req.TotalAmount)
		fmt.Fprintf(&b, "Sales count: %d\n", req.TotalSales)
		fmt.Fprintf(&b, "Average ticket: R$ %.2f\n\n", req.AverageTicket)
		b.WriteString("*Payment methods:*\n")

		methods := make([]string, 0, len(req.PaymentSummary))
		for method := range req.PaymentSummary {
			methods = append(methods, method)
		}
		sort.Strings(methods)
		for _, method := range methods {
			tally := req.PaymentSummary[method]
			label := paymentMethodLabels[method]
			if label == "" {
				label = method
			}
			fmt.Fprintf(&b, "- %s: %dx - R$ %.2f\n", label, tally.Count, tally.Amount)
		}
	}

	if req.ReceiptNumber != "" {
		fmt.Fprintf(&b, "\nReceipt: %s\n", req.ReceiptNumber)
	}
	b.WriteString("\n_Caminho Certo sync server_")

	return b.String()
}

// FormatClockNotification builds the time-clock receipt message. The type
// selects between clock-in, clock-out and the end-of-day summary.
func FormatClockNotification(req domain.ClockNotificationRequest) (string, error) {
	var b strings.Builder

	b.WriteString("*Time Clock Receipt*\n\n")
	fmt.Fprintf(&b, "Employee: %s\n", req.UserName)

	switch req.Type {
	case domain.ClockTypeIn:
		fmt.Fprintf(&b, "Date/time: %s\n", req.ClockTime)
		b.WriteString("Type: shift clock-in\n")
	case domain.ClockTypeOut:
		fmt.Fprintf(&b, "Date/time: %s\n", req.ClockTime)
		b.WriteString("Type: shift clock-out\n")
	case domain.ClockTypeSummary:
		fmt.Fprintf(&b, "Date: %s\n", req.ClockTime)
		fmt.Fprintf(&b, "Clock-in: %s\n", req.ClockIn)
		fmt.Fprintf(&b, "Clock-out: %s\n", req.ClockOut)
		fmt.Fprintf(&b, "Total hours: %s\n", req.TotalHours)
	default:
		return "", fmt.Errorf("unknown clock notification type %q", req.Type)
	}

	b.WriteString("\n_Caminho Certo sync server_")
	return b.String(), nil
}
