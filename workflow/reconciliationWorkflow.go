package workflow

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/metrics"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"github.com/sirupsen/logrus"
)

type ReconciliationReport struct {
	CenterId int                  `json:"center_id"`
	Drifts   []*models.StockDrift `json:"drifts"`
	Fixed    int                  `json:"fixed"`
}

// ReconcileStocks compares every stored aggregate of centerId (0 = all centers)
// with a fresh scan of its batches. With fix set, drifted pairs are recomputed.
func ReconcileStocks(ctx context.Context, logger *logrus.Logger, centerId int, fix bool) (*ReconciliationReport, error) {
	drifts, err := models.ScanStockDrift(ctx, centerId)
	if err != nil {
		config.LogError(logger, "reconciliationWorkflow.go", "ReconcileStocks", "ScanStockDrift", centerId, err)
		return nil, err
	}
	report := &ReconciliationReport{CenterId: centerId, Drifts: drifts}
	if len(drifts) == 0 {
		return report, nil
	}
	metrics.AddStockDrift(len(drifts))

	for _, d := range drifts {
		if logger != nil {
			logger.WithFields(logrus.Fields{
				"module":      "reconciliationWorkflow.go",
				"funcName":    "ReconcileStocks",
				"center_id":   d.CenterId,
				"blood_group": d.BloodGroup,
				"stored":      d.Stored,
				"actual":      d.Actual,
			}).Warn("stock aggregate drift")
		}
		if !fix {
			continue
		}
		stock, err := models.RefreshStock(ctx, d.CenterId, d.BloodGroup)
		if err != nil {
			config.LogError(logger, "reconciliationWorkflow.go", "ReconcileStocks", "RefreshStock", d, err)
			return report, err
		}
		if stock.Unit != d.Actual {
			err := fmt.Errorf("stock %d/%s recomputed to %d, scan said %d", d.CenterId, d.BloodGroup, stock.Unit, d.Actual)
			config.LogError(logger, "reconciliationWorkflow.go", "ReconcileStocks", "RefreshStock", d, err)
		}
		report.Fixed++
	}
	return report, nil
}
