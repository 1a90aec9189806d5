package models

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/metrics"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NewStockTransfer struct {
	BloodRequestId    int        `json:"blood_request_id" validate:"required"`
	SupplyingCenterId int        `json:"supplying_center_id" validate:"required"`
	ReceivingCenterId int        `json:"receiving_center_id" validate:"required"`
	BloodGroup        BloodGroup `json:"blood_group" validate:"required"`
	Quantity          int        `json:"quantity"`
	Notes             string     `json:"notes"`
}

// StockCredit is the amount added to one receiving batch by a transfer.
type StockCredit struct {
	StockUnitId int       `json:"stock_unit_id"`
	Barcode     string    `json:"barcode"`
	Quantity    int       `json:"quantity"`
	ExpiryDate  time.Time `json:"expiry_date"`
}

type StockTransferResult struct {
	BloodRequestId    int                      `json:"blood_request_id"`
	SupplyingCenterId int                      `json:"supplying_center_id"`
	ReceivingCenterId int                      `json:"receiving_center_id"`
	BloodGroup        BloodGroup               `json:"blood_group"`
	Quantity          int                      `json:"quantity"`
	Deductions        []StockDeduction         `json:"deductions"`
	Credits           []StockCredit            `json:"credits"`
	Links             []*BloodRequestStockUnit `json:"links"`
}

func (input *NewStockTransfer) validate() error {
	if input.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !input.BloodGroup.IsValid() {
		return ErrInvalidBloodGroup
	}
	if input.SupplyingCenterId == input.ReceivingCenterId {
		return ErrSameCenter
	}
	if err := utils.ValidateStruct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return nil
}

// checkTransferRequest verifies the locked request is an approved, unfulfilled
// transfer matching the input.
func (input *NewStockTransfer) checkTransferRequest(request *BloodRequest) error {
	if request.RequestType != BloodRequestTypeTransfer {
		return ErrInvalidRequestType
	}
	if request.Status == BloodRequestStatusFulfilled || request.IsStockDeducted() {
		return ErrRequestAlreadyFulfilled
	}
	if request.Status != BloodRequestStatusApproved {
		return ErrRequestNotApproved
	}
	if request.CenterId != input.ReceivingCenterId {
		return fmt.Errorf("%w: receiving center does not match blood request", ErrValidation)
	}
	if request.BloodGroup != input.BloodGroup {
		return fmt.Errorf("%w: blood group does not match blood request", ErrValidation)
	}
	if request.Units != input.Quantity {
		return fmt.Errorf("%w: quantity does not match blood request", ErrValidation)
	}
	if request.SupplyingCenterId != nil && *request.SupplyingCenterId != input.SupplyingCenterId {
		return fmt.Errorf("%w: supplying center does not match blood request", ErrValidation)
	}
	return nil
}

// lockReceivingStockUnits locks the receiving pair's unexpired batches, including empty ones.
func lockReceivingStockUnits(tx *gorm.DB, centerId int, group BloodGroup, today time.Time) ([]*StockUnit, error) {
	var stockUnits []*StockUnit
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("center_id = ? AND blood_group = ? AND expiry_date >= ?", centerId, group, today).
		Order("expiry_date, added_on, id").
		Find(&stockUnits).Error; err != nil {
		return nil, classifyLockError(err)
	}
	return stockUnits, nil
}

// TransferStock moves quantity ml from the supplying center to the receiving
// center for an approved transfer request, in one transaction. Each source
// batch credits a receiving batch with the same expiry. On shortfall nothing
// changes. On success the request is fulfilled.
func TransferStock(ctx context.Context, input *NewStockTransfer) (result *StockTransferResult, err error) {
	started := time.Now()
	ctx, span := startAllocationSpan(ctx, "TransferStock",
		attribute.Int("stock.blood_request_id", input.BloodRequestId),
		attribute.Int("stock.supplying_center_id", input.SupplyingCenterId),
		attribute.Int("stock.receiving_center_id", input.ReceivingCenterId),
		attribute.String("stock.blood_group", string(input.BloodGroup)),
		attribute.Int("stock.quantity", input.Quantity),
	)
	defer func() { finishAllocation(span, "transfer", started, err) }()

	if err := input.validate(); err != nil {
		return nil, err
	}
	if _, err := GetDonationCenter(ctx, input.SupplyingCenterId); err != nil {
		return nil, err
	}
	if _, err := GetDonationCenter(ctx, input.ReceivingCenterId); err != nil {
		return nil, err
	}

	locks, err := utils.AcquireStockLocks(ctx,
		pairLockKey(input.SupplyingCenterId, input.BloodGroup),
		pairLockKey(input.ReceivingCenterId, input.BloodGroup),
	)
	if err != nil {
		return nil, lockAcquireError(err)
	}
	defer locks.Release(context.WithoutCancel(ctx))

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, classifyLockError(tx.Error)
	}
	result, err = transferStock(ctx, tx, input)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, classifyLockError(err)
	}
	metrics.AddUnitsDeducted(string(input.BloodGroup), input.Quantity)
	metrics.AddUnitsAdded(string(input.BloodGroup), input.Quantity)
	return result, nil
}

func transferStock(ctx context.Context, tx *gorm.DB, input *NewStockTransfer) (*StockTransferResult, error) {
	// every lock is taken before the first write
	request, err := lockBloodRequest(tx, input.BloodRequestId)
	if err != nil {
		return nil, err
	}
	if err := input.checkTransferRequest(request); err != nil {
		return nil, err
	}
	if err := lockStockPairs(tx,
		stockPair{centerId: input.SupplyingCenterId, group: input.BloodGroup},
		stockPair{centerId: input.ReceivingCenterId, group: input.BloodGroup},
	); err != nil {
		return nil, err
	}
	today := utils.Today()
	candidates, err := lockLiveStockUnits(tx, input.SupplyingCenterId, input.BloodGroup, today)
	if err != nil {
		return nil, err
	}
	if available := totalUnits(candidates); available < input.Quantity {
		return nil, &InsufficientStockError{Shortfall: input.Quantity - available}
	}
	receiving, err := lockReceivingStockUnits(tx, input.ReceivingCenterId, input.BloodGroup, today)
	if err != nil {
		return nil, err
	}
	receivingByExpiry := make(map[time.Time]*StockUnit, len(receiving))
	for _, su := range receiving {
		key := utils.DateOnly(su.ExpiryDate)
		if _, ok := receivingByExpiry[key]; !ok {
			receivingByExpiry[key] = su
		}
	}

	userId, userName := utils.GetActorFromContext(ctx)
	notes := input.Notes
	if notes == "" {
		notes = fmt.Sprintf("Transfer for blood request #%d", request.ID)
	}
	record := func(stockUnitId int, kind StockTransactionType, quantity int) error {
		_, err := RecordStockTransaction(tx, &NewStockTransaction{
			StockUnitId:     stockUnitId,
			TransactionType: kind,
			Quantity:        quantity,
			ReferenceType:   StockReferenceTypeBloodRequest,
			ReferenceId:     request.ID,
			UserId:          userId,
			UserName:        userName,
			Notes:           notes,
		})
		return err
	}

	result := &StockTransferResult{
		BloodRequestId:    request.ID,
		SupplyingCenterId: input.SupplyingCenterId,
		ReceivingCenterId: input.ReceivingCenterId,
		BloodGroup:        input.BloodGroup,
		Quantity:          input.Quantity,
	}
	remaining := input.Quantity
	for _, source := range candidates {
		if remaining == 0 {
			break
		}
		take := min(source.Unit, remaining)
		if err := DecrementStockUnit(tx, source, take); err != nil {
			return nil, err
		}
		if err := record(source.ID, StockTransactionTypeDeduction, take); err != nil {
			return nil, err
		}

		expiry := utils.DateOnly(source.ExpiryDate)
		target, ok := receivingByExpiry[expiry]
		if !ok {
			target, err = insertStockUnit(tx, input.ReceivingCenterId, input.BloodGroup, 0, expiry)
			if err != nil {
				return nil, err
			}
			receivingByExpiry[expiry] = target
		}
		if err := creditStockUnit(tx, target, take); err != nil {
			return nil, err
		}
		if err := record(target.ID, StockTransactionTypeAddition, take); err != nil {
			return nil, err
		}

		link := BloodRequestStockUnit{
			BloodRequestId: request.ID,
			StockUnitId:    source.ID,
			UnitsUsed:      take,
		}
		if err := tx.Create(&link).Error; err != nil {
			return nil, err
		}

		result.Deductions = append(result.Deductions, StockDeduction{
			StockUnitId: source.ID,
			Barcode:     source.Barcode,
			Quantity:    take,
			ExpiryDate:  source.ExpiryDate,
		})
		result.Credits = append(result.Credits, StockCredit{
			StockUnitId: target.ID,
			Barcode:     target.Barcode,
			Quantity:    take,
			ExpiryDate:  target.ExpiryDate,
		})
		result.Links = append(result.Links, &link)
		remaining -= take
	}

	if request.SupplyingCenterId == nil {
		if err := tx.Model(&BloodRequest{}).Where("id = ?", request.ID).
			Update("supplying_center_id", input.SupplyingCenterId).Error; err != nil {
			return nil, err
		}
		request.SupplyingCenterId = utils.NewInt(input.SupplyingCenterId)
	}
	if err := markBloodRequestStatus(ctx, tx, request, BloodRequestStatusFulfilled, nil); err != nil {
		return nil, err
	}
	return result, nil
}
