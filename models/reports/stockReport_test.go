package reports_test

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models/reports"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func setupTestDB(t *testing.T) context.Context {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	conn, err := config.OpenSqliteDatabase(dsn)
	if err != nil {
		t.Fatalf("OpenSqliteDatabase: %v", err)
	}
	prev := config.GetDB()
	config.UseDatabase(conn)
	models.MigrateTable()
	t.Cleanup(func() {
		config.UseDatabase(prev)
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	ctx := utils.SetUserIdInContext(context.Background(), 3)
	return utils.SetUserNameInContext(ctx, "Reporter")
}

func seedCenter(t *testing.T, ctx context.Context) *models.DonationCenter {
	t.Helper()
	center, err := models.CreateDonationCenter(ctx, &models.NewDonationCenter{Name: "Central", City: "Yangon"})
	if err != nil {
		t.Fatalf("CreateDonationCenter: %v", err)
	}
	for _, in := range []models.NewStockUnit{
		{CenterId: center.ID, BloodGroup: models.BloodGroupOPositive, Quantity: 1500, ExpiryDate: utils.Today().AddDate(0, 0, 3)},
		{CenterId: center.ID, BloodGroup: models.BloodGroupOPositive, Quantity: 250, ExpiryDate: utils.Today().AddDate(0, 0, 30)},
		{CenterId: center.ID, BloodGroup: models.BloodGroupABNegative, Quantity: 200, ExpiryDate: utils.Today().AddDate(0, 0, 30)},
	} {
		input := in
		if _, err := models.AddStock(ctx, &input); err != nil {
			t.Fatalf("AddStock: %v", err)
		}
	}
	return center
}

func TestGetStockSummaryReport(t *testing.T) {
	ctx := setupTestDB(t)
	center := seedCenter(t, ctx)

	summary, err := reports.GetStockSummaryReport(ctx, center.ID)
	if err != nil {
		t.Fatalf("GetStockSummaryReport: %v", err)
	}
	if len(summary) != len(models.AllBloodGroups) {
		t.Fatalf("expected one row per blood group, got %d", len(summary))
	}
	byGroup := map[models.BloodGroup]*reports.StockSummaryReportResponse{}
	for _, row := range summary {
		byGroup[row.BloodGroup] = row
	}

	oPos := byGroup[models.BloodGroupOPositive]
	if oPos.Units != 1750 || !oPos.Litres.Equal(decimal.RequireFromString("1.75")) {
		t.Fatalf("O+ units/litres = %d/%s", oPos.Units, oPos.Litres)
	}
	if oPos.LiveBatches != 2 || oPos.NearExpiryUnits != 1500 || oPos.IsLow {
		t.Fatalf("O+ row = %+v", oPos)
	}
	if oPos.EarliestExpiry == nil || !oPos.EarliestExpiry.Equal(utils.Today().AddDate(0, 0, 3)) {
		t.Fatalf("O+ earliest expiry = %v", oPos.EarliestExpiry)
	}
	abNeg := byGroup[models.BloodGroupABNegative]
	if abNeg.Units != 200 || !abNeg.IsLow || abNeg.NearExpiryUnits != 0 {
		t.Fatalf("AB- row = %+v", abNeg)
	}
	if empty := byGroup[models.BloodGroupBNegative]; empty.Units != 0 || !empty.Litres.IsZero() || !empty.IsLow || empty.EarliestExpiry != nil {
		t.Fatalf("B- row = %+v", empty)
	}
}

func TestGetStockSummaryReport_UnknownCenter(t *testing.T) {
	ctx := setupTestDB(t)
	if _, err := reports.GetStockSummaryReport(ctx, 404); err == nil {
		t.Fatalf("expected an error for an unknown center")
	}
}

// Without a Redis connection the cache is skipped even when enabled.
func TestGetStockSummaryReport_CacheEnabledWithoutRedis(t *testing.T) {
	t.Setenv("ENABLE_REPORT_CACHE", "true")
	ctx := setupTestDB(t)
	center := seedCenter(t, ctx)

	if _, err := reports.GetStockSummaryReport(ctx, center.ID); err != nil {
		t.Fatalf("GetStockSummaryReport: %v", err)
	}
	if _, err := models.DeductStock(ctx, &models.NewStockDeduction{
		CenterId:   center.ID,
		BloodGroup: models.BloodGroupABNegative,
		Quantity:   200,
	}); err != nil {
		t.Fatalf("DeductStock: %v", err)
	}
	reports.InvalidateStockSummary(ctx, center.ID)

	summary, err := reports.GetStockSummaryReport(ctx, center.ID)
	if err != nil {
		t.Fatalf("GetStockSummaryReport: %v", err)
	}
	for _, row := range summary {
		if row.BloodGroup == models.BloodGroupABNegative && row.Units != 0 {
			t.Fatalf("AB- units = %d, want 0", row.Units)
		}
	}
}

func TestStockTransactionExport(t *testing.T) {
	ctx := setupTestDB(t)
	center := seedCenter(t, ctx)
	if _, err := models.DeductStock(ctx, &models.NewStockDeduction{
		CenterId:   center.ID,
		BloodGroup: models.BloodGroupOPositive,
		Quantity:   100,
		Notes:      "ward 4",
	}); err != nil {
		t.Fatalf("DeductStock: %v", err)
	}

	rows, err := reports.GetStockTransactionReport(ctx, center.ID, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetStockTransactionReport: %v", err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 ledger rows, got %d", len(rows))
	}

	var buf bytes.Buffer
	if err := reports.WriteExcel(&buf, rows, reports.StockTransactionHeadings()...); err != nil {
		t.Fatalf("WriteExcel: %v", err)
	}
	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	sheetRows, err := f.GetRows("Sheet1")
	if err != nil {
		t.Fatalf("GetRows: %v", err)
	}
	if len(sheetRows) != 5 {
		t.Fatalf("expected heading plus 4 rows, got %d", len(sheetRows))
	}
	if sheetRows[0][0] != "Date" || sheetRows[0][4] != "Type" {
		t.Fatalf("unexpected headings: %v", sheetRows[0])
	}
	last := sheetRows[4]
	if last[4] != string(models.StockTransactionTypeDeduction) || last[6] != "100" || last[9] != "ward 4" {
		t.Fatalf("unexpected deduction row: %v", last)
	}
	if last[8] != "Reporter" {
		t.Fatalf("user column = %q", last[8])
	}

	// a window ending yesterday holds nothing
	yesterday := utils.Today().AddDate(0, 0, -1)
	empty, err := reports.GetStockTransactionReport(ctx, center.ID, yesterday.AddDate(0, 0, -7), yesterday)
	if err != nil {
		t.Fatalf("GetStockTransactionReport: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no rows before today, got %d", len(empty))
	}
}
