package models_test

import (
	"errors"
	"regexp"
	"testing"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
)

func TestAddStock_AssignsBarcodeAndRecordsAddition(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "Central", "Yangon")

	su, err := models.AddStock(ctx, &models.NewStockUnit{
		CenterId:   center.ID,
		BloodGroup: models.BloodGroupAPositive,
		Quantity:   450,
		ExpiryDate: days(35),
		Notes:      "walk-in intake",
	})
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	if !regexp.MustCompile(`^STK-[0-9A-F]{10}$`).MatchString(su.Barcode) {
		t.Fatalf("barcode %q does not match STK-XXXXXXXXXX", su.Barcode)
	}
	if su.Unit != 450 || !su.ExpiryDate.Equal(days(35)) {
		t.Fatalf("unexpected batch: %+v", su)
	}

	txns, err := models.ListStockTransactionsForUnit(ctx, su.Barcode)
	if err != nil {
		t.Fatalf("ListStockTransactionsForUnit: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 audit row, got %d", len(txns))
	}
	row := txns[0]
	if row.TransactionType != models.StockTransactionTypeAddition || utils.DereferencePtr(row.QuantityAdded, 0) != 450 || row.QuantityDeducted != nil {
		t.Fatalf("unexpected audit row: %+v", row)
	}
	if row.ReferenceType != models.StockReferenceTypeIntake || row.Notes != "walk-in intake" {
		t.Fatalf("reference = %q notes = %q", row.ReferenceType, row.Notes)
	}
	if got := mustGetStockUnits(t, ctx, center.ID, models.BloodGroupAPositive); got != 450 {
		t.Fatalf("aggregate = %d, want 450", got)
	}
}

func TestAddStock_Validation(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "Central", "Yangon")

	cases := []struct {
		name  string
		input models.NewStockUnit
		want  error
	}{
		{"zero quantity", models.NewStockUnit{CenterId: center.ID, BloodGroup: models.BloodGroupAPositive, ExpiryDate: days(3)}, models.ErrInvalidQuantity},
		{"negative quantity", models.NewStockUnit{CenterId: center.ID, BloodGroup: models.BloodGroupAPositive, Quantity: -5, ExpiryDate: days(3)}, models.ErrInvalidQuantity},
		{"past expiry", models.NewStockUnit{CenterId: center.ID, BloodGroup: models.BloodGroupAPositive, Quantity: 10, ExpiryDate: days(-1)}, models.ErrInvalidExpiry},
		{"missing expiry", models.NewStockUnit{CenterId: center.ID, BloodGroup: models.BloodGroupAPositive, Quantity: 10}, models.ErrInvalidExpiry},
		{"bad group", models.NewStockUnit{CenterId: center.ID, BloodGroup: "Z+", Quantity: 10, ExpiryDate: days(3)}, models.ErrInvalidBloodGroup},
		{"unknown center", models.NewStockUnit{CenterId: center.ID + 1, BloodGroup: models.BloodGroupAPositive, Quantity: 10, ExpiryDate: days(3)}, models.ErrCenterNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := tc.input
			if _, err := models.AddStock(ctx, &input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	var count int64
	if err := config.GetDB().Model(&models.StockUnit{}).Count(&count).Error; err != nil {
		t.Fatalf("count batches: %v", err)
	}
	if count != 0 {
		t.Fatalf("rejected input created %d batches", count)
	}
}

func TestAddStock_BarcodeRetriesExhausted(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "Central", "Yangon")

	restore := models.SetBarcodeGenerator(func() string { return "STK-00000000AA" })
	t.Cleanup(restore)

	first := mustAddStock(t, ctx, center.ID, models.BloodGroupAPositive, 100, days(5))
	if first.Barcode != "STK-00000000AA" {
		t.Fatalf("barcode = %s", first.Barcode)
	}
	_, err := models.AddStock(ctx, &models.NewStockUnit{
		CenterId:   center.ID,
		BloodGroup: models.BloodGroupAPositive,
		Quantity:   100,
		ExpiryDate: days(5),
	})
	if !errors.Is(err, models.ErrIdentifierExhausted) {
		t.Fatalf("expected ErrIdentifierExhausted, got %v", err)
	}
	if got := mustGetStockUnits(t, ctx, center.ID, models.BloodGroupAPositive); got != 100 {
		t.Fatalf("aggregate = %d, want 100", got)
	}
}

func TestAddStock_BarcodeRetryFindsFreeCandidate(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "Central", "Yangon")

	candidates := []string{"STK-00000000AA", "STK-00000000AA", "STK-00000000AA", "STK-00000000BB"}
	next := 0
	restore := models.SetBarcodeGenerator(func() string {
		c := candidates[next%len(candidates)]
		next++
		return c
	})
	t.Cleanup(restore)

	mustAddStock(t, ctx, center.ID, models.BloodGroupAPositive, 10, days(5))
	second := mustAddStock(t, ctx, center.ID, models.BloodGroupAPositive, 10, days(5))
	if second.Barcode != "STK-00000000BB" {
		t.Fatalf("barcode = %s, want STK-00000000BB", second.Barcode)
	}
}

func TestDecrementStockUnit_RefusesOverdraw(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "Central", "Yangon")
	su := mustAddStock(t, ctx, center.ID, models.BloodGroupAPositive, 40, days(5))

	tx := config.GetDB().WithContext(ctx).Begin()
	err := models.DecrementStockUnit(tx, su, 41)
	tx.Rollback()
	if !errors.Is(err, models.ErrInsufficientBatchQuantity) {
		t.Fatalf("expected ErrInsufficientBatchQuantity, got %v", err)
	}
	if got := reloadStockUnit(t, ctx, su.Barcode).Unit; got != 40 {
		t.Fatalf("unit = %d, want 40", got)
	}
}

func TestGetStockUnitByBarcode_NotFound(t *testing.T) {
	ctx := setupTestDB(t)
	if _, err := models.GetStockUnitByBarcode(ctx, "STK-FFFFFFFFFF"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound, got %v", err)
	}
}

func TestListStockUnitBalances(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "Central", "Yangon")
	a := mustAddStock(t, ctx, center.ID, models.BloodGroupAPositive, 100, days(2))
	b := mustAddStock(t, ctx, center.ID, models.BloodGroupAPositive, 100, days(6))

	if _, err := models.DeductStock(ctx, &models.NewStockDeduction{
		CenterId:   center.ID,
		BloodGroup: models.BloodGroupAPositive,
		Quantity:   130,
	}); err != nil {
		t.Fatalf("DeductStock: %v", err)
	}

	balances, err := models.ListStockUnitBalances(ctx, center.ID)
	if err != nil {
		t.Fatalf("ListStockUnitBalances: %v", err)
	}
	if len(balances) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(balances))
	}
	want := map[string][3]int{
		a.Barcode: {0, 100, 100},
		b.Barcode: {70, 100, 30},
	}
	for _, bal := range balances {
		w := want[bal.Barcode]
		if bal.Remaining != w[0] || bal.TotalAdded != w[1] || bal.TotalDeducted != w[2] {
			t.Fatalf("%s: remaining/added/deducted = %d/%d/%d, want %v",
				bal.Barcode, bal.Remaining, bal.TotalAdded, bal.TotalDeducted, w)
		}
		if bal.TotalAdded-bal.TotalDeducted != bal.Remaining {
			t.Fatalf("%s: ledger does not explain remaining quantity", bal.Barcode)
		}
	}
}

func TestListNearExpiryStockUnits(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "Central", "Yangon")
	soon := mustAddStock(t, ctx, center.ID, models.BloodGroupAPositive, 100, days(2))
	mustAddStock(t, ctx, center.ID, models.BloodGroupAPositive, 100, days(20))

	stockUnits, err := models.ListNearExpiryStockUnits(ctx, center.ID, 7)
	if err != nil {
		t.Fatalf("ListNearExpiryStockUnits: %v", err)
	}
	if len(stockUnits) != 1 || stockUnits[0].ID != soon.ID {
		t.Fatalf("expected only batch %d, got %+v", soon.ID, stockUnits)
	}
	if _, err := models.ListNearExpiryStockUnits(ctx, center.ID, -1); !errors.Is(err, models.ErrValidation) {
		t.Fatalf("expected ErrValidation for negative days, got %v", err)
	}
}
