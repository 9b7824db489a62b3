package evolution

import (
	"strings"
	"testing"

	"caminhocerto/syncserver/internal/domain"
)

func TestNormalizeNumber(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"(11) 99999-0000", "5511999990000"},
		{"5511999990000", "5511999990000"},
		{"+55 11 99999-0000", "5511999990000"},
		{"abc", ""},
		{"", ""},
	}
	for _, tc := range cases {
		if got := NormalizeNumber(tc.raw, "55"); got != tc.want {
			t.Fatalf("NormalizeNumber(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestFormatShiftReport_WithSales(t *testing.T) {
	text := FormatShiftReport(domain.ShiftReportRequest{
		User:        "Maria",
		StartTime:   "08:00",
		EndTime:     "16:00",
		TotalSales:  3,
		TotalAmount: 150.50,
		PaymentSummary: map[string]domain.PaymentTally{
			"pix":  {Count: 2, Amount: 100.50},
			"cash": {Count: 1, Amount: 50.00},
		},
	})

	for _, want := range []string{"Maria", "R$ 150.50", "PIX", "Dinheiro"} {
		if !strings.Contains(text, want) {
			t.Fatalf("report missing %q:\n%s", want, text)
		}
	}
}

func TestFormatShiftReport_NoSales(t *testing.T) {
	text := FormatShiftReport(domain.ShiftReportRequest{User: "Maria"})
	if !strings.Contains(text, "No sales recorded") {
		t.Fatalf("expected empty-shift wording:\n%s", text)
	}
}

func TestFormatClockNotification(t *testing.T) {
	out, err := FormatClockNotification(domain.ClockNotificationRequest{
		UserName:  "Joao",
		ClockTime: "2025-06-01 08:00",
		Type:      domain.ClockTypeIn,
	})
	if err != nil {
		t.Fatalf("clock-in: %v", err)
	}
	if !strings.Contains(out, "clock-in") {
		t.Fatalf("expected clock-in wording:\n%s", out)
	}

	out, err = FormatClockNotification(domain.ClockNotificationRequest{
		UserName:   "Joao",
		ClockTime:  "2025-06-01",
		Type:       domain.ClockTypeSummary,
		ClockIn:    "08:00",
		ClockOut:   "16:00",
		TotalHours: "8h",
	})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if !strings.Contains(out, "Total hours: 8h") {
		t.Fatalf("expected total hours:\n%s", out)
	}

	if _, err := FormatClockNotification(domain.ClockNotificationRequest{Type: "bogus"}); err == nil {
		t.Fatal("expected error for unknown type")
	}
}
