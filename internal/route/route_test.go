package route

import (
	"strings"
	"testing"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
)

func validClaim(confidence float64) domain.ExtractedClaim {
	return domain.ExtractedClaim{
		MemberID:      "MBR-1001",
		TotalAmount:   152.40,
		ServiceDate:   "2026-03-14",
		ReceiptNumber: "RCP-8872",
		Confidence:    confidence,
	}
}

func TestRoute_ConfidenceTiers(t *testing.T) {
	tests := []struct {
		name       string
		confidence float64
		want       Disposition
	}{
		{"well above auto threshold", 0.99, AutoSubmit},
		{"exactly auto threshold", 0.90, AutoSubmit},
		{"just below auto threshold", 0.899, ReviewSubmit},
		{"exactly review threshold", 0.75, ReviewSubmit},
		{"just below review threshold", 0.749, Exception},
		{"zero confidence", 0, Exception},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Route(validClaim(tt.confidence))
			if got.Disposition != tt.want {
				t.Errorf("Route(confidence=%v) = %s, want %s",
					tt.confidence, got.Disposition, tt.want)
			}
		})
	}
}

func TestRoute_LowConfidenceReportsProblem(t *testing.T) {
	got := Route(validClaim(0.5))
	if got.Disposition != Exception {
		t.Fatalf("expected Exception, got %s", got.Disposition)
	}
	if len(got.Problems) != 1 || !strings.Contains(got.Problems[0], "confidence") {
		t.Errorf("expected a confidence problem, got %v", got.Problems)
	}
}

func TestRoute_ValidationDominatesConfidence(t *testing.T) {
	claim := validClaim(0.99)
	claim.MemberID = ""

	got := Route(claim)
	if got.Disposition != Exception {
		t.Errorf("invalid claim with high confidence routed %s, want Exception", got.Disposition)
	}
	if len(got.Problems) == 0 {
		t.Error("expected validation problems to be reported")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*domain.ExtractedClaim)
		problem string
	}{
		{"missing member id", func(c *domain.ExtractedClaim) { c.MemberID = " " }, "member_id"},
		{"zero amount", func(c *domain.ExtractedClaim) { c.TotalAmount = 0 }, "total_amount"},
		{"negative amount", func(c *domain.ExtractedClaim) { c.TotalAmount = -3.50 }, "total_amount"},
		{"missing receipt number", func(c *domain.ExtractedClaim) { c.ReceiptNumber = "" }, "receipt_number"},
		{"missing service date", func(c *domain.ExtractedClaim) { c.ServiceDate = "" }, "service_date"},
		{"malformed service date", func(c *domain.ExtractedClaim) { c.ServiceDate = "14/03/2026" }, "service_date"},
		{"impossible service date", func(c *domain.ExtractedClaim) { c.ServiceDate = "2026-02-30" }, "service_date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claim := validClaim(0.95)
			tt.mutate(&claim)

			problems := Validate(claim)
			if len(problems) == 0 {
				t.Fatal("expected a validation problem, got none")
			}
			found := false
			for _, p := range problems {
				if strings.Contains(p, tt.problem) {
					found = true
				}
			}
			if !found {
				t.Errorf("expected a problem mentioning %q, got %v", tt.problem, problems)
			}
		})
	}

	if problems := Validate(validClaim(0.95)); len(problems) != 0 {
		t.Errorf("valid claim reported problems: %v", problems)
	}
}

func TestValidate_AllProblemsReported(t *testing.T) {
	claim := domain.ExtractedClaim{Confidence: 0.95}
	problems := Validate(claim)
	if len(problems) != 4 {
		t.Errorf("empty claim reported %d problems, want 4: %v", len(problems), problems)
	}
}
