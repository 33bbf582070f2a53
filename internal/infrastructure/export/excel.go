package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/shipstream-platform/batch-shipping-service/internal/domain"
)

const cancelReason = "Duplicate Order (Same Phone Number)"

var columns = []string{
	"Order ID",
	"Channel Order ID",
	"Customer Name",
	"Phone",
	"Email",
	"City",
	"State",
	"Pincode",
	"Total",
	"Payment Method",
	"Order Date",
	"Cancel Reason",
}

// ExcelExporter writes cancelled duplicate orders to a spreadsheet so the
// operations team has an audit record of what was removed and why.
type ExcelExporter struct {
	outDir string
}

// NewExcelExporter builds an exporter writing under outDir
func NewExcelExporter(outDir string) *ExcelExporter {
	return &ExcelExporter{outDir: outDir}
}

// ExportCancelled writes one row per cancelled order and returns the file
// path. A nil or empty order list produces no file and an empty path.
func (e *ExcelExporter) ExportCancelled(orders []*domain.Order, now time.Time) (string, error) {
	if len(orders) == 0 {
		return "", nil
	}
	if err := os.MkdirAll(e.outDir, 0o755); err != nil {
		return "", fmt.Errorf("create export directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "Cancelled Orders"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return "", fmt.Errorf("rename sheet: %w", err)
	}

	for col, header := range columns {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, header); err != nil {
			return "", fmt.Errorf("write header %s: %w", header, err)
		}
	}

	for row, o := range orders {
		values := []any{
			o.ID,
			o.ChannelOrderID,
			o.CustomerName,
			o.Phone(),
			o.CustomerEmail,
			o.CustomerCity,
			o.CustomerState,
			o.CustomerPin,
			o.Total,
			o.PaymentMethod,
			o.CreatedAt,
			cancelReason,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return "", fmt.Errorf("write row %d: %w", row+2, err)
			}
		}
	}

	path := filepath.Join(e.outDir, fmt.Sprintf("cancelled_orders_%s.xlsx", now.Format("2006-01-02_150405")))
	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("save cancelled orders export: %w", err)
	}
	return path, nil
}
