package workflow_test

import (
	"testing"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/workflow"
	"github.com/sirupsen/logrus"
)

func TestReconcileStocks(t *testing.T) {
	ctx := setupTestDB(t)
	logger, hook := newTestLogger()
	logger.SetLevel(logrus.WarnLevel)
	center := mustCreateCenter(t, ctx, "Central", "Yangon")
	mustAddStock(t, ctx, center.ID, models.BloodGroupBPositive, 250, days(5))

	report, err := workflow.ReconcileStocks(ctx, logger, center.ID, false)
	if err != nil {
		t.Fatalf("ReconcileStocks: %v", err)
	}
	if len(report.Drifts) != 0 {
		t.Fatalf("unexpected drift on a clean ledger: %+v", report.Drifts)
	}

	if err := config.GetDB().Model(&models.Stock{}).
		Where("center_id = ? AND blood_group = ?", center.ID, models.BloodGroupBPositive).
		UpdateColumn("unit", 10).Error; err != nil {
		t.Fatalf("corrupt aggregate: %v", err)
	}

	report, err = workflow.ReconcileStocks(ctx, logger, center.ID, false)
	if err != nil {
		t.Fatalf("ReconcileStocks: %v", err)
	}
	if len(report.Drifts) != 1 || report.Fixed != 0 || report.Drifts[0].Stored != 10 || report.Drifts[0].Actual != 250 {
		t.Fatalf("report = %+v", report)
	}
	if hook.LastEntry() == nil || hook.LastEntry().Level != logrus.WarnLevel {
		t.Fatalf("drift should be logged as a warning")
	}

	report, err = workflow.ReconcileStocks(ctx, logger, 0, true)
	if err != nil {
		t.Fatalf("ReconcileStocks fix: %v", err)
	}
	if report.Fixed != 1 {
		t.Fatalf("fixed %d, want 1", report.Fixed)
	}
	if got := mustStockUnits(t, ctx, center.ID, models.BloodGroupBPositive); got != 250 {
		t.Fatalf("aggregate after fix = %d, want 250", got)
	}
}
