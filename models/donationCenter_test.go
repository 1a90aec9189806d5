package models_test

import (
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
)

func TestCreateDonationCenter(t *testing.T) {
	ctx := setupTestDB(t)

	center, err := models.CreateDonationCenter(ctx, &models.NewDonationCenter{
		Name:          " Central Blood Bank ",
		City:          "Yangon",
		ContactNumber: "+16502530000",
		OpenHours:     "08:00-17:00",
	})
	if err != nil {
		t.Fatalf("CreateDonationCenter: %v", err)
	}
	if center.Name != "Central Blood Bank" || center.ContactNumber != "+16502530000" {
		t.Fatalf("unexpected center: %+v", center)
	}
	if center.IsActive == nil || !*center.IsActive {
		t.Fatalf("new center should be active")
	}

	_, err = models.CreateDonationCenter(ctx, &models.NewDonationCenter{Name: "Central Blood Bank", City: "Yangon"})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("duplicate: expected ErrValidation, got %v", err)
	}
	if _, err := models.CreateDonationCenter(ctx, &models.NewDonationCenter{Name: "Central Blood Bank", City: "Mandalay"}); err != nil {
		t.Fatalf("same name in another city: %v", err)
	}
	_, err = models.CreateDonationCenter(ctx, &models.NewDonationCenter{Name: "Bad Phone", City: "Yangon", ContactNumber: "12"})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("bad phone: expected ErrValidation, got %v", err)
	}
	_, err = models.CreateDonationCenter(ctx, &models.NewDonationCenter{City: "Yangon"})
	if !errors.Is(err, models.ErrValidation) {
		t.Fatalf("missing name: expected ErrValidation, got %v", err)
	}

	city := "Yangon"
	centers, err := models.ListDonationCenters(ctx, &city)
	if err != nil {
		t.Fatalf("ListDonationCenters: %v", err)
	}
	if len(centers) != 1 {
		t.Fatalf("expected 1 center in Yangon, got %d", len(centers))
	}
	if _, err := models.GetDonationCenter(ctx, center.ID+99); !errors.Is(err, models.ErrCenterNotFound) {
		t.Fatalf("expected ErrCenterNotFound, got %v", err)
	}
}
