package models

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Stock is the derived total per (center, blood group): the sum of Unit over
// the pair's batches with expiry on or after CalculatedOn.
// Only RecomputeStock writes Unit.
type Stock struct {
	ID           int        `gorm:"primary_key" json:"id"`
	CenterId     int        `gorm:"not null;index:uniq_stock_pair,unique" json:"center_id"`
	BloodGroup   BloodGroup `gorm:"size:3;not null;index:uniq_stock_pair,unique" json:"blood_group"`
	Unit         int        `gorm:"not null;default:0" json:"unit"`
	CalculatedOn *time.Time `gorm:"type:date" json:"calculated_on"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// StockDrift is a stored aggregate that disagrees with a fresh scan of its batches.
type StockDrift struct {
	CenterId     int        `json:"center_id"`
	BloodGroup   BloodGroup `json:"blood_group"`
	Stored       int        `json:"stored"`
	Actual       int        `json:"actual"`
	CalculatedOn *time.Time `json:"calculated_on"`
}

type SupplyingCenter struct {
	CenterId int    `json:"center_id"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Units    int    `json:"units"`
}

func (s *Stock) isCurrent(today time.Time) bool {
	return s.CalculatedOn != nil && utils.DateOnly(*s.CalculatedOn).Equal(today)
}

// lockStockPair creates the aggregate row if absent and locks it FOR UPDATE.
// Every writer of a pair's batches takes this lock first.
func lockStockPair(tx *gorm.DB, centerId int, group BloodGroup) (*Stock, error) {
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&Stock{CenterId: centerId, BloodGroup: group}).Error; err != nil {
		return nil, err
	}
	var stock Stock
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("center_id = ? AND blood_group = ?", centerId, group).
		First(&stock).Error; err != nil {
		return nil, err
	}
	return &stock, nil
}

type stockPair struct {
	centerId int
	group    BloodGroup
}

// lockStockPairs locks several pairs in (center id, blood group) order.
func lockStockPairs(tx *gorm.DB, pairs ...stockPair) error {
	sorted := append([]stockPair(nil), pairs...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].centerId != sorted[j].centerId {
			return sorted[i].centerId < sorted[j].centerId
		}
		return sorted[i].group < sorted[j].group
	})
	for _, p := range sorted {
		if _, err := lockStockPair(tx, p.centerId, p.group); err != nil {
			return classifyLockError(err)
		}
	}
	return nil
}

func pairLockKey(centerId int, group BloodGroup) string {
	return "center:" + strconv.Itoa(centerId) + ":group:" + string(group)
}

// sumLiveUnits reads the latest committed batch quantities, so it is a locking read.
func sumLiveUnits(tx *gorm.DB, centerId int, group BloodGroup, today time.Time) (int, error) {
	var total int64
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Model(&StockUnit{}).
		Select("COALESCE(SUM(unit), 0)").
		Where("center_id = ? AND blood_group = ? AND expiry_date >= ?", centerId, group, today).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

// RecomputeStock sets the pair aggregate to the sum of its live batches.
// Nothing is written when the stored value is already current.
func RecomputeStock(tx *gorm.DB, centerId int, group BloodGroup) (*Stock, error) {
	if !group.IsValid() {
		return nil, ErrInvalidBloodGroup
	}
	stock, err := lockStockPair(tx, centerId, group)
	if err != nil {
		return nil, classifyLockError(err)
	}
	today := utils.Today()
	total, err := sumLiveUnits(tx, centerId, group, today)
	if err != nil {
		return nil, classifyLockError(err)
	}
	if stock.isCurrent(today) && stock.Unit == total {
		return stock, nil
	}
	if err := tx.Model(&Stock{}).Where("id = ?", stock.ID).Updates(map[string]interface{}{
		"unit":          total,
		"calculated_on": today,
	}).Error; err != nil {
		return nil, err
	}
	stock.Unit = total
	stock.CalculatedOn = &today
	return stock, nil
}

// RefreshStock recomputes one pair in its own transaction.
func RefreshStock(ctx context.Context, centerId int, group BloodGroup) (*Stock, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	stock, err := RecomputeStock(tx, centerId, group)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, classifyLockError(err)
	}
	return stock, nil
}

// refreshStaleStocks recomputes aggregates last calculated before today.
func refreshStaleStocks(ctx context.Context, centerId int, group BloodGroup) error {
	today := utils.Today()
	var stale []*Stock
	dbCtx := config.GetDB().WithContext(ctx).
		Where("(calculated_on IS NULL OR calculated_on < ?)", today)
	if centerId > 0 {
		dbCtx = dbCtx.Where("center_id = ?", centerId)
	}
	if group != "" {
		dbCtx = dbCtx.Where("blood_group = ?", group)
	}
	if err := dbCtx.Find(&stale).Error; err != nil {
		return err
	}
	for _, s := range stale {
		if _, err := RefreshStock(ctx, s.CenterId, s.BloodGroup); err != nil {
			return err
		}
	}
	return nil
}

// GetStockUnits returns the available ml for a pair; 0 when no aggregate exists yet.
func GetStockUnits(ctx context.Context, centerId int, group BloodGroup) (int, error) {
	if !group.IsValid() {
		return 0, ErrInvalidBloodGroup
	}
	var stock Stock
	err := config.GetDB().WithContext(ctx).
		Where("center_id = ? AND blood_group = ?", centerId, group).
		First(&stock).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if stock.isCurrent(utils.Today()) {
		return stock.Unit, nil
	}
	refreshed, err := RefreshStock(ctx, centerId, group)
	if err != nil {
		return 0, err
	}
	return refreshed.Unit, nil
}

// GetCenterStocks returns the available ml for all eight groups of a center.
func GetCenterStocks(ctx context.Context, centerId int) (map[BloodGroup]int, error) {
	if err := refreshStaleStocks(ctx, centerId, ""); err != nil {
		return nil, err
	}
	var stocks []*Stock
	if err := config.GetDB().WithContext(ctx).
		Where("center_id = ?", centerId).
		Find(&stocks).Error; err != nil {
		return nil, err
	}
	results := make(map[BloodGroup]int, len(AllBloodGroups))
	for _, g := range AllBloodGroups {
		results[g] = 0
	}
	for _, s := range stocks {
		results[s.BloodGroup] = s.Unit
	}
	return results, nil
}

// RecomputeAllStocks recomputes every pair that has batches or an aggregate row.
// It returns the number of pairs visited.
func RecomputeAllStocks(ctx context.Context) (int, error) {
	pairs, err := listStockPairs(ctx, 0)
	if err != nil {
		return 0, err
	}
	for _, p := range pairs {
		if _, err := RefreshStock(ctx, p.centerId, p.group); err != nil {
			return 0, err
		}
	}
	return len(pairs), nil
}

func listStockPairs(ctx context.Context, centerId int) ([]stockPair, error) {
	type row struct {
		CenterId   int
		BloodGroup BloodGroup
	}
	db := config.GetDB().WithContext(ctx)

	var fromUnits, fromStocks []row
	q1 := db.Model(&StockUnit{}).Distinct("center_id", "blood_group")
	q2 := db.Model(&Stock{}).Distinct("center_id", "blood_group")
	if centerId > 0 {
		q1 = q1.Where("center_id = ?", centerId)
		q2 = q2.Where("center_id = ?", centerId)
	}
	if err := q1.Scan(&fromUnits).Error; err != nil {
		return nil, err
	}
	if err := q2.Scan(&fromStocks).Error; err != nil {
		return nil, err
	}

	seen := make(map[stockPair]bool)
	var pairs []stockPair
	for _, r := range append(fromUnits, fromStocks...) {
		p := stockPair{centerId: r.CenterId, group: r.BloodGroup}
		if seen[p] {
			continue
		}
		seen[p] = true
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].centerId != pairs[j].centerId {
			return pairs[i].centerId < pairs[j].centerId
		}
		return pairs[i].group < pairs[j].group
	})
	return pairs, nil
}

// ScanStockDrift compares stored aggregates with a fresh sum of live batches.
// centerId 0 scans every center. Nothing is written.
func ScanStockDrift(ctx context.Context, centerId int) ([]*StockDrift, error) {
	pairs, err := listStockPairs(ctx, centerId)
	if err != nil {
		return nil, err
	}
	db := config.GetDB().WithContext(ctx)
	today := utils.Today()

	var drifts []*StockDrift
	for _, p := range pairs {
		var stock Stock
		stored := 0
		var calculatedOn *time.Time
		err := db.Where("center_id = ? AND blood_group = ?", p.centerId, p.group).First(&stock).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			stored = stock.Unit
			calculatedOn = stock.CalculatedOn
		}

		var actual int64
		if err := db.Model(&StockUnit{}).
			Select("COALESCE(SUM(unit), 0)").
			Where("center_id = ? AND blood_group = ? AND expiry_date >= ?", p.centerId, p.group, today).
			Scan(&actual).Error; err != nil {
			return nil, err
		}
		if stored != int(actual) {
			drifts = append(drifts, &StockDrift{
				CenterId:     p.centerId,
				BloodGroup:   p.group,
				Stored:       stored,
				Actual:       int(actual),
				CalculatedOn: calculatedOn,
			})
		}
	}
	return drifts, nil
}

// ListLowStocks returns aggregates below threshold ml, refreshed for today.
func ListLowStocks(ctx context.Context, threshold int) ([]*Stock, error) {
	if threshold <= 0 {
		threshold = config.LowStockThreshold()
	}
	if err := refreshStaleStocks(ctx, 0, ""); err != nil {
		return nil, err
	}
	var results []*Stock
	if err := config.GetDB().WithContext(ctx).
		Where("unit < ?", threshold).
		Order("center_id, blood_group").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// FindSupplyingCenters lists other centers holding at least units ml of group,
// centers in the same city as excludeCenterId first, then by larger stock.
func FindSupplyingCenters(ctx context.Context, group BloodGroup, units int, excludeCenterId int) ([]*SupplyingCenter, error) {
	if !group.IsValid() {
		return nil, ErrInvalidBloodGroup
	}
	if units <= 0 {
		return nil, ErrInvalidQuantity
	}
	city := ""
	if excludeCenterId > 0 {
		center, err := GetDonationCenter(ctx, excludeCenterId)
		if err != nil {
			return nil, err
		}
		city = center.City
	}
	if err := refreshStaleStocks(ctx, 0, group); err != nil {
		return nil, err
	}

	var results []*SupplyingCenter
	if err := config.GetDB().WithContext(ctx).Table("stocks").
		Select("stocks.center_id, donation_centers.name, donation_centers.city, stocks.unit AS units").
		Joins("JOIN donation_centers ON donation_centers.id = stocks.center_id").
		Where("stocks.blood_group = ? AND stocks.unit >= ? AND stocks.center_id <> ?", group, units, excludeCenterId).
		Clauses(clause.OrderBy{Expression: clause.Expr{
			SQL:                "CASE WHEN donation_centers.city = ? THEN 0 ELSE 1 END, stocks.unit DESC, stocks.center_id",
			Vars:               []interface{}{city},
			WithoutParentheses: true,
		}}).
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
