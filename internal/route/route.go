// Package route decides what happens to a claim after extraction. The
// decision is a pure function of the extracted data so it can be exercised
// exhaustively in tests and re-run safely on the same input.
package route

import (
	"fmt"
	"strings"
	"time"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
)

type Disposition string

const (
	// AutoSubmit: extraction is trusted; submit without human involvement.
	AutoSubmit Disposition = "AUTO_SUBMIT"
	// ReviewSubmit: submitted downstream immediately but flagged for audit.
	ReviewSubmit Disposition = "REVIEW_SUBMIT"
	// Exception: held for manual resolution, never auto-submitted.
	Exception Disposition = "EXCEPTION"
)

// Confidence tier boundaries. Each lower bound is inclusive, so a score of
// exactly 0.90 auto-submits and exactly 0.75 submits flagged.
const (
	AutoSubmitThreshold   = 0.90
	ReviewSubmitThreshold = 0.75
)

// Decision carries the disposition plus the validation problems that forced
// an exception, for the exception listing and audit trail.
type Decision struct {
	Disposition Disposition
	Problems    []string
}

// Route maps an extracted claim to its disposition. A failed validation
// forces Exception regardless of the confidence score: a high-confidence
// read of an invalid claim is still an invalid claim.
func Route(claim domain.ExtractedClaim) Decision {
	if problems := Validate(claim); len(problems) > 0 {
		return Decision{Disposition: Exception, Problems: problems}
	}
	switch {
	case claim.Confidence >= AutoSubmitThreshold:
		return Decision{Disposition: AutoSubmit}
	case claim.Confidence >= ReviewSubmitThreshold:
		return Decision{Disposition: ReviewSubmit}
	default:
		return Decision{
			Disposition: Exception,
			Problems:    []string{fmt.Sprintf("confidence %.3f below %.2f", claim.Confidence, ReviewSubmitThreshold)},
		}
	}
}

// Validate checks the required-field contract for downstream submission.
// Returns a human-readable problem list, empty when the claim is valid.
func Validate(claim domain.ExtractedClaim) []string {
	var problems []string
	if strings.TrimSpace(claim.MemberID) == "" {
		problems = append(problems, "member_id missing")
	}
	if claim.TotalAmount <= 0 {
		problems = append(problems, fmt.Sprintf("total_amount %.2f not positive", claim.TotalAmount))
	}
	if strings.TrimSpace(claim.ReceiptNumber) == "" {
		problems = append(problems, "receipt_number missing")
	}
	if strings.TrimSpace(claim.ServiceDate) == "" {
		problems = append(problems, "service_date missing")
	} else if _, err := time.Parse("2006-01-02", claim.ServiceDate); err != nil {
		problems = append(problems, fmt.Sprintf("service_date %q not a valid date", claim.ServiceDate))
	}
	return problems
}
