package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"gorm.io/gorm"
)

type DonationCenter struct {
	ID            int       `gorm:"primary_key" json:"id"`
	Name          string    `gorm:"size:255;not null;index:uniq_center_name_city,unique" json:"name"`
	Address       string    `gorm:"type:text" json:"address"`
	City          string    `gorm:"size:100;not null;index:uniq_center_name_city,unique" json:"city"`
	ContactNumber string    `gorm:"size:20" json:"contact_number"`
	OpenHours     string    `gorm:"size:100" json:"open_hours"`
	IsActive      *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewDonationCenter struct {
	Name          string `json:"name" binding:"required" validate:"required,max=255"`
	Address       string `json:"address"`
	City          string `json:"city" binding:"required" validate:"required,max=100"`
	ContactNumber string `json:"contact_number"`
	OpenHours     string `json:"open_hours" validate:"max=100"`
}

func (input *NewDonationCenter) validate(ctx context.Context) error {
	if err := utils.ValidateStruct(input); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if phone := strings.TrimSpace(input.ContactNumber); phone != "" {
		if err := utils.ValidatePhoneNumber(phone, config.PhoneRegion()); err != nil {
			return fmt.Errorf("%w: contact number: %v", ErrValidation, err)
		}
	}

	var count int64
	if err := config.GetDB().WithContext(ctx).Model(&DonationCenter{}).
		Where("name = ? AND city = ?", strings.TrimSpace(input.Name), strings.TrimSpace(input.City)).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return fmt.Errorf("%w: donation center already exists in this city", ErrValidation)
	}
	return nil
}

func CreateDonationCenter(ctx context.Context, input *NewDonationCenter) (*DonationCenter, error) {
	if err := input.validate(ctx); err != nil {
		return nil, err
	}

	center := DonationCenter{
		Name:      strings.TrimSpace(input.Name),
		Address:   input.Address,
		City:      strings.TrimSpace(input.City),
		OpenHours: input.OpenHours,
		IsActive:  utils.NewTrue(),
	}
	if phone := strings.TrimSpace(input.ContactNumber); phone != "" {
		center.ContactNumber = utils.FormatPhoneNumber(phone, config.PhoneRegion())
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&center).Error; err != nil {
		return nil, err
	}
	return &center, nil
}

func GetDonationCenter(ctx context.Context, id int) (*DonationCenter, error) {
	return getDonationCenter(config.GetDB().WithContext(ctx), id)
}

func getDonationCenter(tx *gorm.DB, id int) (*DonationCenter, error) {
	var center DonationCenter
	if err := tx.Where("id = ?", id).First(&center).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCenterNotFound
		}
		return nil, err
	}
	return &center, nil
}

func ListDonationCenters(ctx context.Context, city *string) ([]*DonationCenter, error) {
	var results []*DonationCenter
	dbCtx := config.GetDB().WithContext(ctx)
	if city != nil && len(*city) > 0 {
		dbCtx = dbCtx.Where("city = ?", *city)
	}
	if err := dbCtx.Order("name").Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
