package models

import (
	"context"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"gorm.io/gorm"
)

// StockTransaction is one audit row per batch quantity change.
// Exactly one of QuantityAdded and QuantityDeducted is set. Rows are write-once.
type StockTransaction struct {
	ID               int                  `gorm:"primary_key" json:"id"`
	StockUnitId      int                  `gorm:"not null;index" json:"stock_unit_id"`
	TransactionType  StockTransactionType `gorm:"size:20;not null" json:"transaction_type"`
	QuantityAdded    *int                 `json:"quantity_added"`
	QuantityDeducted *int                 `json:"quantity_deducted"`
	ReferenceType    StockReferenceType   `gorm:"size:5;index:idx_stock_txn_reference" json:"reference_type"`
	ReferenceId      int                  `gorm:"index:idx_stock_txn_reference" json:"reference_id"`
	UserId           int                  `json:"user_id"`
	UserName         string               `gorm:"size:100" json:"user_name"`
	Notes            string               `gorm:"type:text" json:"notes"`
	TransactionAt    time.Time            `gorm:"not null;index" json:"transaction_at"`
	CreatedAt        time.Time            `gorm:"autoCreateTime" json:"created_at"`
}

type NewStockTransaction struct {
	StockUnitId     int
	TransactionType StockTransactionType
	Quantity        int
	ReferenceType   StockReferenceType
	ReferenceId     int
	UserId          int
	UserName        string
	Notes           string
}

// StockTransactionEntry is an audit row joined with its batch, for listings and export.
type StockTransactionEntry struct {
	StockTransaction
	Barcode    string     `json:"barcode"`
	CenterId   int        `json:"center_id"`
	BloodGroup BloodGroup `json:"blood_group"`
	ExpiryDate time.Time  `json:"expiry_date"`
}

func (st *StockTransaction) checkShape() error {
	switch st.TransactionType {
	case StockTransactionTypeAddition:
		if st.QuantityAdded == nil || *st.QuantityAdded <= 0 || st.QuantityDeducted != nil {
			return ErrInconsistentTransactionShape
		}
	case StockTransactionTypeDeduction:
		if st.QuantityDeducted == nil || *st.QuantityDeducted <= 0 || st.QuantityAdded != nil {
			return ErrInconsistentTransactionShape
		}
	default:
		return ErrInconsistentTransactionShape
	}
	return nil
}

func (st *StockTransaction) BeforeCreate(tx *gorm.DB) error {
	_ = tx
	return st.checkShape()
}

func (st *StockTransaction) BeforeUpdate(tx *gorm.DB) error {
	_ = tx
	return ErrStockTransactionImmutable
}

func (st *StockTransaction) BeforeDelete(tx *gorm.DB) error {
	_ = tx
	return ErrStockTransactionImmutable
}

// Quantity is the signed change applied to the batch.
func (st *StockTransaction) Quantity() int {
	if st.QuantityAdded != nil {
		return *st.QuantityAdded
	}
	if st.QuantityDeducted != nil {
		return -*st.QuantityDeducted
	}
	return 0
}

// RecordStockTransaction writes one audit row in tx.
func RecordStockTransaction(tx *gorm.DB, input *NewStockTransaction) (*StockTransaction, error) {
	if input.Quantity <= 0 {
		return nil, ErrInconsistentTransactionShape
	}
	st := StockTransaction{
		StockUnitId:     input.StockUnitId,
		TransactionType: input.TransactionType,
		ReferenceType:   input.ReferenceType,
		ReferenceId:     input.ReferenceId,
		UserId:          input.UserId,
		UserName:        input.UserName,
		Notes:           input.Notes,
		TransactionAt:   utils.Now(),
	}
	switch input.TransactionType {
	case StockTransactionTypeAddition:
		st.QuantityAdded = utils.NewInt(input.Quantity)
	case StockTransactionTypeDeduction:
		st.QuantityDeducted = utils.NewInt(input.Quantity)
	default:
		return nil, ErrInconsistentTransactionShape
	}
	if err := st.checkShape(); err != nil {
		return nil, err
	}
	if err := tx.Create(&st).Error; err != nil {
		return nil, err
	}
	return &st, nil
}

func stockTransactionEntries(db *gorm.DB) *gorm.DB {
	return db.Table("stock_transactions").
		Select("stock_transactions.*, stock_units.barcode, stock_units.center_id, stock_units.blood_group, stock_units.expiry_date").
		Joins("JOIN stock_units ON stock_units.id = stock_transactions.stock_unit_id")
}

// ListStockTransactionsForUnit returns a batch's audit rows, newest first.
func ListStockTransactionsForUnit(ctx context.Context, barcode string) ([]*StockTransaction, error) {
	stockUnit, err := GetStockUnitByBarcode(ctx, barcode)
	if err != nil {
		return nil, err
	}
	var results []*StockTransaction
	if err := config.GetDB().WithContext(ctx).
		Where("stock_unit_id = ?", stockUnit.ID).
		Order("transaction_at DESC, id DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// GetTotalDeductedForUnit sums every deduction recorded against a batch.
func GetTotalDeductedForUnit(ctx context.Context, barcode string) (int, error) {
	stockUnit, err := GetStockUnitByBarcode(ctx, barcode)
	if err != nil {
		return 0, err
	}
	var total int64
	if err := config.GetDB().WithContext(ctx).Model(&StockTransaction{}).
		Select("COALESCE(SUM(quantity_deducted), 0)").
		Where("stock_unit_id = ? AND transaction_type = ?", stockUnit.ID, StockTransactionTypeDeduction).
		Scan(&total).Error; err != nil {
		return 0, err
	}
	return int(total), nil
}

func ListStockTransactionsForRequest(ctx context.Context, referenceType StockReferenceType, referenceId int) ([]*StockTransactionEntry, error) {
	var results []*StockTransactionEntry
	if err := stockTransactionEntries(config.GetDB().WithContext(ctx)).
		Where("stock_transactions.reference_type = ? AND stock_transactions.reference_id = ?", referenceType, referenceId).
		Order("stock_transactions.id").
		Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// ListStockTransactionsForCenter returns a center's audit rows between from and to (inclusive dates).
// Zero from or to leaves that side open.
func ListStockTransactionsForCenter(ctx context.Context, centerId int, from, to time.Time) ([]*StockTransactionEntry, error) {
	dbCtx := stockTransactionEntries(config.GetDB().WithContext(ctx)).
		Where("stock_units.center_id = ?", centerId)
	if !from.IsZero() {
		dbCtx = dbCtx.Where("stock_transactions.transaction_at >= ?", utils.DateOnly(from))
	}
	if !to.IsZero() {
		dbCtx = dbCtx.Where("stock_transactions.transaction_at < ?", utils.DateOnly(to).AddDate(0, 0, 1))
	}
	var results []*StockTransactionEntry
	if err := dbCtx.Order("stock_transactions.transaction_at, stock_transactions.id").Scan(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (e StockTransactionEntry) GetCursor() int {
	return e.ID
}

type StockTransactionConnection struct {
	Edges    []Edge[StockTransactionEntry] `json:"edges"`
	PageInfo *PageInfo                     `json:"pageInfo"`
}

// PaginateStockTransactionsForCenter pages a center's audit rows newest first.
// after is the EndCursor of the previous page.
func PaginateStockTransactionsForCenter(ctx context.Context, centerId int, limit int, after string) (*StockTransactionConnection, error) {
	if _, err := GetDonationCenter(ctx, centerId); err != nil {
		return nil, err
	}
	dbCtx := stockTransactionEntries(config.GetDB().WithContext(ctx)).
		Where("stock_units.center_id = ?", centerId)
	edges, pageInfo, err := fetchPageDesc[StockTransactionEntry](dbCtx, limit, after, "stock_transactions.id")
	if err != nil {
		return nil, err
	}
	return &StockTransactionConnection{Edges: edges, PageInfo: pageInfo}, nil
}
