package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/metrics"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("bloodstock/models")

// StockDeduction is the amount taken from one batch by an allocation.
type StockDeduction struct {
	StockUnitId int       `json:"stock_unit_id"`
	Barcode     string    `json:"barcode"`
	Quantity    int       `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

type NewStockDeduction struct {
	CenterId      int                `json:"center_id" validate:"required"`
	BloodGroup    BloodGroup         `json:"blood_group" validate:"required"`
	Quantity      int                `json:"quantity"`
	ReferenceType StockReferenceType `json:"reference_type"`
	ReferenceId   int                `json:"reference_id"`
	Notes         string             `json:"notes"`
}

func allocationOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient"
	case errors.Is(err, ErrLockTimeout):
		return "lock_timeout"
	default:
		return "error"
	}
}

func startAllocationSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finishAllocation(span trace.Span, operation string, started time.Time, err error) {
	outcome := allocationOutcome(err)
	span.SetAttributes(attribute.String("stock.outcome", outcome))
	if err != nil {
		span.RecordError(err)
		if outcome != "insufficient" {
			span.SetStatus(codes.Error, err.Error())
		}
	}
	span.End()
	metrics.ObserveAllocation(operation, outcome, started)
}

// lockLiveStockUnits locks the pair's allocatable batches FOR UPDATE in FIFO order.
func lockLiveStockUnits(tx *gorm.DB, centerId int, group BloodGroup, today time.Time) ([]*StockUnit, error) {
	var stockUnits []*StockUnit
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("center_id = ? AND blood_group = ? AND unit > 0 AND expiry_date >= ?", centerId, group, today).
		Order("expiry_date, added_on, id").
		Find(&stockUnits).Error; err != nil {
		return nil, classifyLockError(err)
	}
	return stockUnits, nil
}

func totalUnits(stockUnits []*StockUnit) int {
	total := 0
	for _, su := range stockUnits {
		total += su.Unit
	}
	return total
}

// AllocateStockFifo takes required ml from the pair's oldest-expiring batches.
// On shortfall it returns *InsufficientStockError before touching any batch;
// the caller must roll tx back on any error.
func AllocateStockFifo(tx *gorm.DB, centerId int, group BloodGroup, required int) ([]StockDeduction, error) {
	if required <= 0 {
		return nil, ErrInvalidQuantity
	}
	if !group.IsValid() {
		return nil, ErrInvalidBloodGroup
	}
	if err := lockStockPairs(tx, stockPair{centerId: centerId, group: group}); err != nil {
		return nil, err
	}
	candidates, err := lockLiveStockUnits(tx, centerId, group, utils.Today())
	if err != nil {
		return nil, err
	}
	if available := totalUnits(candidates); available < required {
		return nil, &InsufficientStockError{Shortfall: required - available}
	}

	remaining := required
	var deductions []StockDeduction
	for _, su := range candidates {
		if remaining == 0 {
			break
		}
		take := min(su.Unit, remaining)
		if err := DecrementStockUnit(tx, su, take); err != nil {
			return nil, err
		}
		deductions = append(deductions, StockDeduction{
			StockUnitId: su.ID,
			Barcode:     su.Barcode,
			Quantity:    take,
			ExpiryDate:  su.ExpiryDate,
		})
		remaining -= take
	}
	return deductions, nil
}

// deductWithAudit allocates FIFO and writes one deduction row per batch touched.
func deductWithAudit(ctx context.Context, tx *gorm.DB, centerId int, group BloodGroup, quantity int, refType StockReferenceType, refId int, notes string) ([]StockDeduction, error) {
	deductions, err := AllocateStockFifo(tx, centerId, group, quantity)
	if err != nil {
		return nil, err
	}
	userId, userName := utils.GetActorFromContext(ctx)
	for _, d := range deductions {
		if _, err := RecordStockTransaction(tx, &NewStockTransaction{
			StockUnitId:     d.StockUnitId,
			TransactionType: StockTransactionTypeDeduction,
			Quantity:        d.Quantity,
			ReferenceType:   refType,
			ReferenceId:     refId,
			UserId:          userId,
			UserName:        userName,
			Notes:           notes,
		}); err != nil {
			return nil, err
		}
	}
	return deductions, nil
}

func (input *NewStockDeduction) validate(ctx context.Context) error {
	if input.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !input.BloodGroup.IsValid() {
		return ErrInvalidBloodGroup
	}
	if _, err := GetDonationCenter(ctx, input.CenterId); err != nil {
		return err
	}
	return nil
}

// DeductStock takes quantity ml from a center's pair in one transaction,
// oldest expiry first, with one audit row per batch.
func DeductStock(ctx context.Context, input *NewStockDeduction) (deductions []StockDeduction, err error) {
	started := time.Now()
	ctx, span := startAllocationSpan(ctx, "DeductStock",
		attribute.Int("stock.center_id", input.CenterId),
		attribute.String("stock.blood_group", string(input.BloodGroup)),
		attribute.Int("stock.quantity", input.Quantity),
	)
	defer func() { finishAllocation(span, "deduct", started, err) }()

	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	locks, err := utils.AcquireStockLocks(ctx, pairLockKey(input.CenterId, input.BloodGroup))
	if err != nil {
		return nil, lockAcquireError(err)
	}
	defer locks.Release(context.WithoutCancel(ctx))

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, classifyLockError(tx.Error)
	}
	deductions, err = deductWithAudit(ctx, tx, input.CenterId, input.BloodGroup, input.Quantity,
		input.ReferenceType, input.ReferenceId, input.Notes)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, classifyLockError(err)
	}
	metrics.AddUnitsDeducted(string(input.BloodGroup), input.Quantity)
	return deductions, nil
}

func lockAcquireError(err error) error {
	if errors.Is(err, utils.ErrStockLockNotObtained) {
		return errors.Join(ErrLockTimeout, err)
	}
	return classifyLockError(err)
}
