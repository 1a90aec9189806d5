package utils_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
)

func TestParseDate(t *testing.T) {
	got, err := utils.ParseDate("2024-02-29")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if want := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("ParseDate = %v, want %v", got, want)
	}
	for _, bad := range []string{"", "2023-02-29", "29/02/2024", "2024-02-29T10:00:00Z"} {
		if _, err := utils.ParseDate(bad); err == nil {
			t.Fatalf("ParseDate(%q) expected error", bad)
		}
	}
}

func TestDateOnly(t *testing.T) {
	loc := time.FixedZone("MMT", 6*3600+1800)
	// 03:00 in Yangon is still the previous day in UTC
	in := time.Date(2024, 5, 10, 3, 0, 0, 0, loc)
	if got, want := utils.DateOnly(in), time.Date(2024, 5, 9, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Fatalf("DateOnly = %v, want %v", got, want)
	}
}

func TestSetNowFunc(t *testing.T) {
	fixed := time.Date(2030, 1, 2, 15, 4, 5, 0, time.UTC)
	restore := utils.SetNowFunc(func() time.Time { return fixed })
	if got := utils.Now(); !got.Equal(fixed) {
		t.Fatalf("Now = %v, want %v", got, fixed)
	}
	if got := utils.Today(); !got.Equal(time.Date(2030, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("Today = %v", got)
	}
	restore()
	if utils.Now().Year() == 2030 {
		t.Fatalf("clock not restored")
	}
}

func TestGetActorFromContext(t *testing.T) {
	id, name := utils.GetActorFromContext(context.Background())
	if id != 0 || name != "System" {
		t.Fatalf("anonymous actor = %d/%q", id, name)
	}
	ctx := utils.SetUserIdInContext(context.Background(), 12)
	ctx = utils.SetUserNameInContext(ctx, "Nurse Aye")
	id, name = utils.GetActorFromContext(ctx)
	if id != 12 || name != "Nurse Aye" {
		t.Fatalf("actor = %d/%q", id, name)
	}
}

func TestValidateStruct(t *testing.T) {
	type input struct {
		Name     string `validate:"required"`
		Quantity int    `validate:"gt=0"`
	}
	if err := utils.ValidateStruct(input{Name: "x", Quantity: 1}); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	err := utils.ValidateStruct(input{})
	if err == nil {
		t.Fatalf("expected validation error")
	}
	if msg := err.Error(); msg != "Name: required; Quantity: gt" {
		t.Fatalf("message = %q", msg)
	}
}

func TestValidatePhoneNumber(t *testing.T) {
	if err := utils.ValidatePhoneNumber("+16502530000", "MM"); err != nil {
		t.Fatalf("valid number rejected: %v", err)
	}
	if err := utils.ValidatePhoneNumber("12", "MM"); err == nil {
		t.Fatalf("expected error for a short number")
	}
	if got := utils.FormatPhoneNumber("+1 650-253-0000", "MM"); !strings.HasPrefix(got, "+1650") {
		t.Fatalf("FormatPhoneNumber = %q", got)
	}
}

func TestAcquireStockLocks_WithoutRedis(t *testing.T) {
	locks, err := utils.AcquireStockLocks(context.Background(), "1:A+", "2:A+")
	if err != nil {
		t.Fatalf("AcquireStockLocks: %v", err)
	}
	locks.Release(context.Background())
	var nilLocks *utils.StockLocks
	nilLocks.Release(context.Background())
}
