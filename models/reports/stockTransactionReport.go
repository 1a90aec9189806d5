package reports

import (
	"context"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
)

var stockTransactionHeadings = []string{
	"Date", "Barcode", "BloodGroup", "ExpiryDate", "Type",
	"QuantityAdded", "QuantityDeducted", "Reference", "User", "Notes",
}

type StockTransactionRow struct {
	*models.StockTransactionEntry
}

func (r StockTransactionRow) GetCellValues() []interface{} {
	reference := ""
	if r.ReferenceType != models.StockReferenceTypeNone {
		reference = string(r.ReferenceType) + "-" + strconv.Itoa(r.ReferenceId)
	}
	return []interface{}{
		r.TransactionAt.Format(time.DateTime),
		r.Barcode,
		string(r.BloodGroup),
		r.ExpiryDate.Format(utils.DateLayout),
		string(r.TransactionType),
		utils.DereferencePtr(r.QuantityAdded, 0),
		utils.DereferencePtr(r.QuantityDeducted, 0),
		reference,
		r.UserName,
		r.Notes,
	}
}

func GetStockTransactionReport(ctx context.Context, centerId int, fromDate, toDate time.Time) ([]ExcelExporter, error) {
	if _, err := models.GetDonationCenter(ctx, centerId); err != nil {
		return nil, err
	}
	entries, err := models.ListStockTransactionsForCenter(ctx, centerId, fromDate, toDate)
	if err != nil {
		return nil, err
	}
	rows := make([]ExcelExporter, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, StockTransactionRow{e})
	}
	return rows, nil
}

// ExportStockTransactions writes a center's audit ledger as xlsx to filename.
func ExportStockTransactions(ctx context.Context, filename string, centerId int, fromDate, toDate time.Time) (int, error) {
	rows, err := GetStockTransactionReport(ctx, centerId, fromDate, toDate)
	if err != nil {
		return 0, err
	}
	if err := SaveExcel(filename, rows, stockTransactionHeadings...); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func StockTransactionHeadings() []string {
	return append([]string(nil), stockTransactionHeadings...)
}
