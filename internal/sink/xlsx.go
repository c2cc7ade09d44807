package sink

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/userdra99/ncb-OCR-sub001/internal/domain"
)

const auditSheet = "Claims"

var auditHeader = []any{
	"Logged At", "Job ID", "Disposition", "Member ID", "Receipt Number",
	"Service Date", "Provider", "Total Amount", "SST Amount", "Confidence",
}

// XLSX appends one audit row per routed claim to a workbook on disk. The
// workbook is opened lazily and rewritten on every append; audit volume is
// low enough that simplicity wins over a streaming writer.
type XLSX struct {
	mu   sync.Mutex
	path string
}

func NewXLSX(path string) *XLSX {
	return &XLSX{path: path}
}

func (x *XLSX) Log(_ context.Context, jobID uuid.UUID, claim domain.ExtractedClaim, disposition string) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	f, err := x.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(auditSheet)
	if err != nil {
		return fmt.Errorf("read audit sheet: %w", err)
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	row := []any{
		time.Now().UTC().Format(time.RFC3339),
		jobID.String(),
		disposition,
		claim.MemberID,
		claim.ReceiptNumber,
		claim.ServiceDate,
		claim.ProviderName,
		claim.TotalAmount,
		claim.SSTAmount,
		claim.Confidence,
	}
	if err := f.SetSheetRow(auditSheet, cell, &row); err != nil {
		return fmt.Errorf("append audit row: %w", err)
	}
	if err := f.SaveAs(x.path); err != nil {
		return fmt.Errorf("save audit workbook: %w", err)
	}
	return nil
}

func (x *XLSX) open() (*excelize.File, error) {
	if _, err := os.Stat(x.path); os.IsNotExist(err) {
		f := excelize.NewFile()
		idx, err := f.NewSheet(auditSheet)
		if err != nil {
			return nil, err
		}
		f.SetActiveSheet(idx)
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(auditSheet, "A1", &auditHeader); err != nil {
			return nil, err
		}
		return f, nil
	}
	f, err := excelize.OpenFile(x.path)
	if err != nil {
		return nil, fmt.Errorf("open audit workbook: %w", err)
	}
	return f, nil
}
