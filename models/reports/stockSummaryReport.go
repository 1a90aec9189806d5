package reports

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"github.com/shopspring/decimal"
)

const nearExpiryDays = 7

var mlPerLitre = decimal.NewFromInt(1000)

type StockSummaryReportResponse struct {
	BloodGroup      models.BloodGroup `json:"bloodGroup"`
	Units           int               `json:"units"`
	Litres          decimal.Decimal   `json:"litres"`
	LiveBatches     int               `json:"liveBatches"`
	NearExpiryUnits int               `json:"nearExpiryUnits"`
	EarliestExpiry  *time.Time        `json:"earliestExpiry"`
	IsLow           bool              `json:"isLow"`
}

// GetStockSummaryReport summarises a center's stock per blood group, with
// quantities in litres and the ml expiring within a week.
// With ENABLE_REPORT_CACHE set the result is served from Redis for up to
// REPORT_CACHE_TTL_SECONDS.
func GetStockSummaryReport(ctx context.Context, centerId int) ([]*StockSummaryReportResponse, error) {
	if _, err := models.GetDonationCenter(ctx, centerId); err != nil {
		return nil, err
	}
	key := stockSummaryCacheKey(centerId)
	var cached []*StockSummaryReportResponse
	if cacheGet(ctx, key, &cached) {
		return cached, nil
	}
	started := time.Now()
	defer logSlowReport(ctx, "stockSummary", started, centerId)

	results, err := buildStockSummary(ctx, centerId)
	if err != nil {
		return nil, err
	}
	cacheSet(ctx, key, results)
	return results, nil
}

func buildStockSummary(ctx context.Context, centerId int) ([]*StockSummaryReportResponse, error) {
	stocks, err := models.GetCenterStocks(ctx, centerId)
	if err != nil {
		return nil, err
	}
	stockUnits, err := models.ListStockUnits(ctx, centerId, nil)
	if err != nil {
		return nil, err
	}

	today := utils.Today()
	nearExpiryUntil := today.AddDate(0, 0, nearExpiryDays)
	liveBatches := make(map[models.BloodGroup]int)
	nearExpiry := make(map[models.BloodGroup]int)
	earliest := make(map[models.BloodGroup]time.Time)
	for _, su := range stockUnits {
		if !su.IsLive(today) {
			continue
		}
		liveBatches[su.BloodGroup]++
		expiry := utils.DateOnly(su.ExpiryDate)
		if e, ok := earliest[su.BloodGroup]; !ok || expiry.Before(e) {
			earliest[su.BloodGroup] = expiry
		}
		if !utils.DateOnly(su.ExpiryDate).After(nearExpiryUntil) {
			nearExpiry[su.BloodGroup] += su.Unit
		}
	}

	threshold := config.LowStockThreshold()
	results := make([]*StockSummaryReportResponse, 0, len(models.AllBloodGroups))
	for _, g := range models.AllBloodGroups {
		units := stocks[g]
		var earliestExpiry *time.Time
		if e, ok := earliest[g]; ok {
			earliestExpiry = &e
		}
		results = append(results, &StockSummaryReportResponse{
			BloodGroup:      g,
			Units:           units,
			Litres:          decimal.NewFromInt(int64(units)).Div(mlPerLitre).Round(3),
			LiveBatches:     liveBatches[g],
			NearExpiryUnits: nearExpiry[g],
			EarliestExpiry:  earliestExpiry,
			IsLow:           units < threshold,
		})
	}
	return results, nil
}
