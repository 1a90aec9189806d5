package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/metrics"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BloodRequest asks for Units ml of BloodGroup at CenterId.
// Transfer requests are filled from SupplyingCenterId; patient and donor
// requests are filled from CenterId's own stock.
type BloodRequest struct {
	ID                  int                `gorm:"primary_key" json:"id"`
	RequestType         BloodRequestType   `gorm:"size:20;not null;index" json:"request_type"`
	BloodGroup          BloodGroup         `gorm:"size:3;not null" json:"blood_group"`
	Units               int                `gorm:"not null" json:"units"`
	CenterId            int                `gorm:"not null;index" json:"center_id"`
	SupplyingCenterId   *int               `gorm:"index" json:"supplying_center_id"`
	Urgency             UrgencyLevel       `gorm:"size:20;not null" json:"urgency"`
	Status              BloodRequestStatus `gorm:"size:20;not null;index" json:"status"`
	StockDeducted       *bool              `gorm:"not null;default:false" json:"stock_deducted"`
	PatientName         string             `gorm:"size:255" json:"patient_name"`
	Reason              string             `gorm:"type:text" json:"reason"`
	RequestedBy         int                `json:"requested_by"`
	RequestedByName     string             `gorm:"size:100" json:"requested_by_name"`
	StatusChangedBy     int                `json:"status_changed_by"`
	StatusChangedByName string             `gorm:"size:100" json:"status_changed_by_name"`
	StatusChangedAt     *time.Time         `json:"status_changed_at"`
	FulfilledAt         *time.Time         `json:"fulfilled_at"`
	CreatedAt           time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewBloodRequest struct {
	RequestType       BloodRequestType `json:"request_type" validate:"required"`
	BloodGroup        BloodGroup       `json:"blood_group" validate:"required"`
	Units             int              `json:"units"`
	CenterId          int              `json:"center_id" validate:"required"`
	SupplyingCenterId *int             `json:"supplying_center_id"`
	Urgency           UrgencyLevel     `json:"urgency"`
	PatientName       string           `json:"patient_name" validate:"max=255"`
	Reason            string           `json:"reason"`
}

// BloodRequestStockUnit links a transfer request to a source batch it drew from.
type BloodRequestStockUnit struct {
	ID             int       `gorm:"primary_key" json:"id"`
	BloodRequestId int       `gorm:"not null;index:uniq_request_stock_unit,unique" json:"blood_request_id"`
	StockUnitId    int       `gorm:"not null;index:uniq_request_stock_unit,unique" json:"stock_unit_id"`
	UnitsUsed      int       `gorm:"not null" json:"units_used"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (l *BloodRequestStockUnit) BeforeUpdate(tx *gorm.DB) error {
	_ = tx
	return ErrStockTransactionImmutable
}

func (br *BloodRequest) IsStockDeducted() bool {
	return br.StockDeducted != nil && *br.StockDeducted
}

func (input *NewBloodRequest) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	switch input.RequestType {
	case BloodRequestTypePatient, BloodRequestTypeDonor, BloodRequestTypeTransfer:
	default:
		return ErrInvalidRequestType
	}
	if !input.BloodGroup.IsValid() {
		return ErrInvalidBloodGroup
	}
	if input.Units <= 0 {
		return ErrInvalidQuantity
	}
	if _, err := GetDonationCenter(ctx, input.CenterId); err != nil {
		return err
	}
	if input.SupplyingCenterId != nil && *input.SupplyingCenterId > 0 {
		if input.RequestType != BloodRequestTypeTransfer {
			return fmt.Errorf("%w: supplying center is only allowed on transfer requests", ErrValidation)
		}
		if *input.SupplyingCenterId == input.CenterId {
			return ErrSameCenter
		}
		if _, err := GetDonationCenter(ctx, *input.SupplyingCenterId); err != nil {
			return err
		}
	}
	return nil
}

func CreateBloodRequest(ctx context.Context, input *NewBloodRequest) (*BloodRequest, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}
	urgency := input.Urgency
	if urgency == "" {
		urgency = UrgencyLevelMedium
	}
	userId, userName := utils.GetActorFromContext(ctx)
	request := BloodRequest{
		RequestType:     input.RequestType,
		BloodGroup:      input.BloodGroup,
		Units:           input.Units,
		CenterId:        input.CenterId,
		Urgency:         urgency,
		Status:          BloodRequestStatusPending,
		StockDeducted:   utils.NewFalse(),
		PatientName:     strings.TrimSpace(input.PatientName),
		Reason:          input.Reason,
		RequestedBy:     userId,
		RequestedByName: userName,
	}
	if input.SupplyingCenterId != nil && *input.SupplyingCenterId > 0 {
		request.SupplyingCenterId = utils.NewInt(*input.SupplyingCenterId)
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func GetBloodRequest(ctx context.Context, id int) (*BloodRequest, error) {
	var request BloodRequest
	if err := config.GetDB().WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &request, nil
}

func lockBloodRequest(tx *gorm.DB, id int) (*BloodRequest, error) {
	var request BloodRequest
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id).First(&request).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, classifyLockError(err)
	}
	return &request, nil
}

func markBloodRequestStatus(ctx context.Context, tx *gorm.DB, request *BloodRequest, status BloodRequestStatus, reason *string) error {
	userId, userName := utils.GetActorFromContext(ctx)
	now := utils.Now()
	updates := map[string]interface{}{
		"status":                 status,
		"status_changed_by":      userId,
		"status_changed_by_name": userName,
		"status_changed_at":      now,
	}
	if reason != nil {
		updates["reason"] = *reason
	}
	if status == BloodRequestStatusFulfilled {
		updates["stock_deducted"] = true
		updates["fulfilled_at"] = now
	}
	if err := tx.Model(&BloodRequest{}).Where("id = ?", request.ID).Updates(updates).Error; err != nil {
		return err
	}
	request.Status = status
	request.StatusChangedBy = userId
	request.StatusChangedByName = userName
	request.StatusChangedAt = &now
	if reason != nil {
		request.Reason = *reason
	}
	if status == BloodRequestStatusFulfilled {
		request.StockDeducted = utils.NewTrue()
		request.FulfilledAt = &now
	}
	return nil
}

// changeBloodRequestStatus moves a request to status if its current status is in from.
func changeBloodRequestStatus(ctx context.Context, id int, status BloodRequestStatus, reason *string, from ...BloodRequestStatus) (*BloodRequest, error) {
	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	request, err := lockBloodRequest(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if request.Status == BloodRequestStatusFulfilled || request.IsStockDeducted() {
		tx.Rollback()
		return nil, ErrRequestAlreadyFulfilled
	}
	allowed := false
	for _, s := range from {
		if request.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		tx.Rollback()
		return nil, fmt.Errorf("%w: %s to %s", ErrInvalidStatusTransition, request.Status, status)
	}
	if err := markBloodRequestStatus(ctx, tx, request, status, reason); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, classifyLockError(err)
	}
	return request, nil
}

func ApproveBloodRequest(ctx context.Context, id int) (*BloodRequest, error) {
	return changeBloodRequestStatus(ctx, id, BloodRequestStatusApproved, nil, BloodRequestStatusPending)
}

func RejectBloodRequest(ctx context.Context, id int, reason string) (*BloodRequest, error) {
	return changeBloodRequestStatus(ctx, id, BloodRequestStatusRejected, &reason, BloodRequestStatusPending)
}

// CancelBloodRequest cancels a pending or approved request. Fulfilled requests cannot be cancelled.
func CancelBloodRequest(ctx context.Context, id int, reason string) (*BloodRequest, error) {
	return changeBloodRequestStatus(ctx, id, BloodRequestStatusCancelled, &reason,
		BloodRequestStatusPending, BloodRequestStatusApproved)
}

func ListBloodRequests(ctx context.Context, centerId int, status *BloodRequestStatus) ([]*BloodRequest, error) {
	var results []*BloodRequest
	dbCtx := config.GetDB().WithContext(ctx)
	if centerId > 0 {
		dbCtx = dbCtx.Where("(center_id = ? OR supplying_center_id = ?)", centerId, centerId)
	}
	if status != nil && *status != "" {
		dbCtx = dbCtx.Where("status = ?", *status)
	}
	if err := dbCtx.Order("id DESC").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func ListTransferLinks(ctx context.Context, requestId int) ([]*BloodRequestStockUnit, error) {
	var results []*BloodRequestStockUnit
	if err := config.GetDB().WithContext(ctx).
		Where("blood_request_id = ?", requestId).
		Order("id").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// FulfillBloodRequest deducts a patient or donor request from its center's stock
// and marks it fulfilled. A request is deducted at most once.
func FulfillBloodRequest(ctx context.Context, id int) (deductions []StockDeduction, err error) {
	started := time.Now()
	ctx, span := startAllocationSpan(ctx, "FulfillBloodRequest", attribute.Int("stock.blood_request_id", id))
	defer func() { finishAllocation(span, "fulfill", started, err) }()

	request, err := GetBloodRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.RequestType == BloodRequestTypeTransfer {
		return nil, ErrInvalidRequestType
	}

	locks, err := utils.AcquireStockLocks(ctx, pairLockKey(request.CenterId, request.BloodGroup))
	if err != nil {
		return nil, lockAcquireError(err)
	}
	defer locks.Release(context.WithoutCancel(ctx))

	db := config.GetDB()
	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, classifyLockError(tx.Error)
	}
	request, err = lockBloodRequest(tx, id)
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if request.Status == BloodRequestStatusFulfilled || request.IsStockDeducted() {
		tx.Rollback()
		return nil, ErrRequestAlreadyFulfilled
	}
	if request.Status != BloodRequestStatusApproved {
		tx.Rollback()
		return nil, ErrRequestNotApproved
	}

	deductions, err = deductWithAudit(ctx, tx, request.CenterId, request.BloodGroup, request.Units,
		StockReferenceTypeBloodRequest, request.ID, fmt.Sprintf("Blood request #%d", request.ID))
	if err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := markBloodRequestStatus(ctx, tx, request, BloodRequestStatusFulfilled, nil); err != nil {
		tx.Rollback()
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		return nil, classifyLockError(err)
	}
	metrics.AddUnitsDeducted(string(request.BloodGroup), request.Units)
	return deductions, nil
}
