package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	barcodePrefix      = "STK-"
	barcodeMaxAttempts = 10
)

// StockUnit is one physical batch of blood at a center.
// Unit is the remaining quantity in ml. Rows are never deleted.
type StockUnit struct {
	ID         int        `gorm:"primary_key" json:"id"`
	CenterId   int        `gorm:"not null;index:idx_stock_unit_pair" json:"center_id"`
	BloodGroup BloodGroup `gorm:"size:3;not null;index:idx_stock_unit_pair" json:"blood_group"`
	Unit       int        `gorm:"not null;default:0" json:"unit"`
	ExpiryDate time.Time  `gorm:"type:date;not null;index" json:"expiry_date"`
	Barcode    string     `gorm:"size:20;not null;uniqueIndex" json:"barcode"`
	AddedOn    time.Time  `gorm:"not null" json:"added_on"`
	CreatedAt  time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewStockUnit struct {
	CenterId      int                `json:"center_id" validate:"required"`
	BloodGroup    BloodGroup         `json:"blood_group" validate:"required"`
	Quantity      int                `json:"quantity"`
	ExpiryDate    time.Time          `json:"expiry_date"`
	ReferenceType StockReferenceType `json:"reference_type"`
	ReferenceId   int                `json:"reference_id"`
	Notes         string             `json:"notes"`
}

// StockUnitBalance is a batch with its remaining and consumed quantities.
type StockUnitBalance struct {
	StockUnitId   int        `json:"stock_unit_id"`
	Barcode       string     `json:"barcode"`
	BloodGroup    BloodGroup `json:"blood_group"`
	ExpiryDate    time.Time  `json:"expiry_date"`
	Remaining     int        `json:"remaining"`
	TotalAdded    int        `json:"total_added"`
	TotalDeducted int        `json:"total_deducted"`
	IsExpired     bool       `json:"is_expired"`
}

func (su *StockUnit) BeforeSave(tx *gorm.DB) error {
	_ = tx
	if su == nil {
		return nil
	}
	if su.Unit < 0 {
		return ErrInsufficientBatchQuantity
	}
	return nil
}

// IsLive reports whether the batch can still be allocated on day today.
func (su *StockUnit) IsLive(today time.Time) bool {
	return su.Unit > 0 && !utils.DateOnly(su.ExpiryDate).Before(utils.DateOnly(today))
}

var newBarcode = func() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return barcodePrefix + strings.ToUpper(raw[:10])
}

func generateBarcode(tx *gorm.DB) (string, error) {
	for i := 0; i < barcodeMaxAttempts; i++ {
		candidate := newBarcode()
		var count int64
		if err := tx.Model(&StockUnit{}).Where("barcode = ?", candidate).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return candidate, nil
		}
	}
	return "", ErrIdentifierExhausted
}

func (input *NewStockUnit) validate(tx *gorm.DB) error {
	if input.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !input.BloodGroup.IsValid() {
		return ErrInvalidBloodGroup
	}
	if input.ExpiryDate.IsZero() || utils.DateOnly(input.ExpiryDate).Before(utils.Today()) {
		return ErrInvalidExpiry
	}
	if _, err := getDonationCenter(tx, input.CenterId); err != nil {
		return err
	}
	return nil
}

// insertStockUnit writes a batch without validation. Callers recompute the aggregate.
func insertStockUnit(tx *gorm.DB, centerId int, group BloodGroup, unit int, expiry time.Time) (*StockUnit, error) {
	barcode, err := generateBarcode(tx)
	if err != nil {
		return nil, err
	}
	stockUnit := StockUnit{
		CenterId:   centerId,
		BloodGroup: group,
		Unit:       unit,
		ExpiryDate: utils.DateOnly(expiry),
		Barcode:    barcode,
		AddedOn:    utils.Now(),
	}
	if err := tx.Create(&stockUnit).Error; err != nil {
		return nil, err
	}
	return &stockUnit, nil
}

// CreateStockUnit validates and inserts a fresh batch, then recomputes the pair aggregate in tx.
func CreateStockUnit(tx *gorm.DB, input *NewStockUnit) (*StockUnit, error) {
	if err := input.validate(tx); err != nil {
		return nil, err
	}
	if _, err := lockStockPair(tx, input.CenterId, input.BloodGroup); err != nil {
		return nil, classifyLockError(err)
	}
	stockUnit, err := insertStockUnit(tx, input.CenterId, input.BloodGroup, input.Quantity, input.ExpiryDate)
	if err != nil {
		return nil, err
	}
	if _, err := RecomputeStock(tx, input.CenterId, input.BloodGroup); err != nil {
		return nil, err
	}
	return stockUnit, nil
}

// DecrementStockUnit takes amount ml from the batch only if it still holds at least that much.
func DecrementStockUnit(tx *gorm.DB, stockUnit *StockUnit, amount int) error {
	if amount <= 0 {
		return ErrInvalidQuantity
	}
	result := tx.Model(&StockUnit{}).
		Where("id = ? AND unit >= ?", stockUnit.ID, amount).
		UpdateColumn("unit", gorm.Expr("unit - ?", amount))
	if result.Error != nil {
		return classifyLockError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrInsufficientBatchQuantity
	}
	stockUnit.Unit -= amount
	if _, err := RecomputeStock(tx, stockUnit.CenterId, stockUnit.BloodGroup); err != nil {
		return err
	}
	return nil
}

// creditStockUnit is the transfer-credit path; intake always creates a fresh batch.
func creditStockUnit(tx *gorm.DB, stockUnit *StockUnit, amount int) error {
	if amount <= 0 {
		return ErrInvalidQuantity
	}
	if err := tx.Model(&StockUnit{}).
		Where("id = ?", stockUnit.ID).
		UpdateColumn("unit", gorm.Expr("unit + ?", amount)).Error; err != nil {
		return classifyLockError(err)
	}
	stockUnit.Unit += amount
	if _, err := RecomputeStock(tx, stockUnit.CenterId, stockUnit.BloodGroup); err != nil {
		return err
	}
	return nil
}

// RecordStockIntake creates a batch and its addition audit row inside tx.
func RecordStockIntake(ctx context.Context, tx *gorm.DB, input *NewStockUnit) (*StockUnit, error) {
	stockUnit, err := CreateStockUnit(tx, input)
	if err != nil {
		return nil, err
	}
	refType := input.ReferenceType
	if refType == StockReferenceTypeNone {
		refType = StockReferenceTypeIntake
	}
	userId, userName := utils.GetActorFromContext(ctx)
	if _, err := RecordStockTransaction(tx, &NewStockTransaction{
		StockUnitId:     stockUnit.ID,
		TransactionType: StockTransactionTypeAddition,
		Quantity:        input.Quantity,
		ReferenceType:   refType,
		ReferenceId:     input.ReferenceId,
		UserId:          userId,
		UserName:        userName,
		Notes:           input.Notes,
	}); err != nil {
		return nil, err
	}
	return stockUnit, nil
}

// AddStock adds a new batch at a center in its own transaction.
func AddStock(ctx context.Context, input *NewStockUnit) (*StockUnit, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	stockUnit, err := RecordStockIntake(ctx, tx, input)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, classifyLockError(err)
	}
	return stockUnit, nil
}

func GetStockUnitByBarcode(ctx context.Context, barcode string) (*StockUnit, error) {
	var stockUnit StockUnit
	db := config.GetDB()
	if err := db.WithContext(ctx).Where("barcode = ?", strings.TrimSpace(barcode)).First(&stockUnit).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &stockUnit, nil
}

// ListStockUnits returns a center's batches in allocation order. group is optional.
func ListStockUnits(ctx context.Context, centerId int, group *BloodGroup) ([]*StockUnit, error) {
	var results []*StockUnit
	dbCtx := config.GetDB().WithContext(ctx).Where("center_id = ?", centerId)
	if group != nil && *group != "" {
		if !group.IsValid() {
			return nil, ErrInvalidBloodGroup
		}
		dbCtx = dbCtx.Where("blood_group = ?", *group)
	}
	if err := dbCtx.Order("expiry_date, added_on, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListStockUnitBalances lists every batch of a center with its totals from the audit ledger.
func ListStockUnitBalances(ctx context.Context, centerId int) ([]*StockUnitBalance, error) {
	stockUnits, err := ListStockUnits(ctx, centerId, nil)
	if err != nil {
		return nil, err
	}
	if len(stockUnits) == 0 {
		return []*StockUnitBalance{}, nil
	}

	ids := make([]int, 0, len(stockUnits))
	for _, su := range stockUnits {
		ids = append(ids, su.ID)
	}
	type totals struct {
		StockUnitId   int
		TotalAdded    int
		TotalDeducted int
	}
	var rows []totals
	if err := config.GetDB().WithContext(ctx).Model(&StockTransaction{}).
		Select("stock_unit_id, COALESCE(SUM(quantity_added), 0) AS total_added, COALESCE(SUM(quantity_deducted), 0) AS total_deducted").
		Where("stock_unit_id IN ?", ids).
		Group("stock_unit_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	byUnit := make(map[int]totals, len(rows))
	for _, r := range rows {
		byUnit[r.StockUnitId] = r
	}

	today := utils.Today()
	results := make([]*StockUnitBalance, 0, len(stockUnits))
	for _, su := range stockUnits {
		t := byUnit[su.ID]
		results = append(results, &StockUnitBalance{
			StockUnitId:   su.ID,
			Barcode:       su.Barcode,
			BloodGroup:    su.BloodGroup,
			ExpiryDate:    su.ExpiryDate,
			Remaining:     su.Unit,
			TotalAdded:    t.TotalAdded,
			TotalDeducted: t.TotalDeducted,
			IsExpired:     utils.DateOnly(su.ExpiryDate).Before(today),
		})
	}
	return results, nil
}

// ListNearExpiryStockUnits returns live batches expiring within withinDays days from today.
func ListNearExpiryStockUnits(ctx context.Context, centerId int, withinDays int) ([]*StockUnit, error) {
	if withinDays < 0 {
		return nil, fmt.Errorf("%w: days must not be negative", ErrValidation)
	}
	today := utils.Today()
	until := today.AddDate(0, 0, withinDays)

	var results []*StockUnit
	dbCtx := config.GetDB().WithContext(ctx).
		Where("unit > 0 AND expiry_date >= ? AND expiry_date <= ?", today, until)
	if centerId > 0 {
		dbCtx = dbCtx.Where("center_id = ?", centerId)
	}
	if err := dbCtx.Order("expiry_date, added_on, id").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
