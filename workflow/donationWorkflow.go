package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const donationHandlerName = "CompleteDonation"

// DonationCompleted is raised when a donor's collection is finished and the
// blood can enter stock.
type DonationCompleted struct {
	DonationId int               `json:"donation_id"`
	CenterId   int               `json:"center_id"`
	BloodGroup models.BloodGroup `json:"blood_group"`
	Quantity   int               `json:"quantity"`
	DonatedOn  time.Time         `json:"donated_on"`
	ExpiryDate time.Time         `json:"expiry_date"`
	DonorName  string            `json:"donor_name"`
}

// expiry falls back to the donation date (today when unknown) plus the shelf life.
func (e DonationCompleted) expiry() time.Time {
	if !e.ExpiryDate.IsZero() {
		return e.ExpiryDate
	}
	donatedOn := utils.Today()
	if !e.DonatedOn.IsZero() {
		donatedOn = utils.DateOnly(e.DonatedOn)
	}
	return donatedOn.AddDate(0, 0, config.DonationShelfLifeDays())
}

// CompleteDonation adds the donated blood as a new batch. Replaying the same
// donation returns the batch created the first time.
func CompleteDonation(ctx context.Context, logger *logrus.Logger, event DonationCompleted) (*models.StockUnit, error) {
	if event.DonationId <= 0 {
		return nil, fmt.Errorf("%w: donation id is required", models.ErrValidation)
	}
	messageId := strconv.Itoa(event.DonationId)
	db := config.GetDB()

	tx := db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	skip, err := BeginIdempotency(tx, donationHandlerName, messageId)
	if err != nil {
		tx.Rollback()
		if !errors.Is(err, ErrIdempotencyInProgress) {
			config.LogError(logger, "donationWorkflow.go", "CompleteDonation", "BeginIdempotency", event, err)
		}
		return nil, err
	}
	if skip {
		tx.Rollback()
		return findDonationStockUnit(ctx, event.DonationId)
	}

	notes := "Donation #" + messageId
	if event.DonorName != "" {
		notes += " from " + event.DonorName
	}
	stockUnit, err := models.RecordStockIntake(ctx, tx, &models.NewStockUnit{
		CenterId:      event.CenterId,
		BloodGroup:    event.BloodGroup,
		Quantity:      event.Quantity,
		ExpiryDate:    event.expiry(),
		ReferenceType: models.StockReferenceTypeDonation,
		ReferenceId:   event.DonationId,
		Notes:         notes,
	})
	if err != nil {
		tx.Rollback()
		logFaultLikeError(logger, "donationWorkflow.go", "CompleteDonation", "RecordStockIntake", event, err)
		if markErr := MarkIdempotencyFailed(db.WithContext(ctx), donationHandlerName, messageId, err); markErr != nil {
			config.LogError(logger, "donationWorkflow.go", "CompleteDonation", "MarkIdempotencyFailed", messageId, markErr)
		}
		return nil, err
	}
	if err := MarkIdempotencySucceeded(tx, donationHandlerName, messageId); err != nil {
		tx.Rollback()
		config.LogError(logger, "donationWorkflow.go", "CompleteDonation", "MarkIdempotencySucceeded", messageId, err)
		return nil, err
	}
	if err := tx.Commit().Error; err != nil {
		config.LogError(logger, "donationWorkflow.go", "CompleteDonation", "Commit", messageId, err)
		return nil, err
	}
	return stockUnit, nil
}

func findDonationStockUnit(ctx context.Context, donationId int) (*models.StockUnit, error) {
	db := config.GetDB()
	var stockUnit models.StockUnit
	err := db.WithContext(ctx).
		Joins("JOIN stock_transactions ON stock_transactions.stock_unit_id = stock_units.id").
		Where("stock_transactions.reference_type = ? AND stock_transactions.reference_id = ? AND stock_transactions.transaction_type = ?",
			models.StockReferenceTypeDonation, donationId, models.StockTransactionTypeAddition).
		Order("stock_units.id").
		First(&stockUnit).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stockUnit, nil
}
