package models_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
)

// setupTestDB installs a private in-memory SQLite database as the global DB.
func setupTestDB(t *testing.T) context.Context {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
	conn, err := config.OpenSqliteDatabase(dsn)
	if err != nil {
		t.Fatalf("OpenSqliteDatabase: %v", err)
	}
	prev := config.GetDB()
	config.UseDatabase(conn)
	models.MigrateTable()
	t.Cleanup(func() {
		config.UseDatabase(prev)
		if sqlDB, err := conn.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	ctx := utils.SetUserIdInContext(context.Background(), 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	return ctx
}

func days(n int) time.Time {
	return utils.Today().AddDate(0, 0, n)
}

func mustCreateCenter(t *testing.T, ctx context.Context, name, city string) *models.DonationCenter {
	t.Helper()
	center, err := models.CreateDonationCenter(ctx, &models.NewDonationCenter{Name: name, City: city})
	if err != nil {
		t.Fatalf("CreateDonationCenter(%s): %v", name, err)
	}
	return center
}

func mustAddStock(t *testing.T, ctx context.Context, centerId int, group models.BloodGroup, quantity int, expiry time.Time) *models.StockUnit {
	t.Helper()
	stockUnit, err := models.AddStock(ctx, &models.NewStockUnit{
		CenterId:   centerId,
		BloodGroup: group,
		Quantity:   quantity,
		ExpiryDate: expiry,
	})
	if err != nil {
		t.Fatalf("AddStock(%d ml %s): %v", quantity, group, err)
	}
	return stockUnit
}

func mustGetStockUnits(t *testing.T, ctx context.Context, centerId int, group models.BloodGroup) int {
	t.Helper()
	units, err := models.GetStockUnits(ctx, centerId, group)
	if err != nil {
		t.Fatalf("GetStockUnits: %v", err)
	}
	return units
}

func reloadStockUnit(t *testing.T, ctx context.Context, barcode string) *models.StockUnit {
	t.Helper()
	su, err := models.GetStockUnitByBarcode(ctx, barcode)
	if err != nil {
		t.Fatalf("GetStockUnitByBarcode(%s): %v", barcode, err)
	}
	return su
}

// liveSum sums the live batches of a pair straight from the batch table.
func liveSum(t *testing.T, ctx context.Context, centerId int, group models.BloodGroup) int {
	t.Helper()
	stockUnits, err := models.ListStockUnits(ctx, centerId, &group)
	if err != nil {
		t.Fatalf("ListStockUnits: %v", err)
	}
	today := utils.Today()
	total := 0
	for _, su := range stockUnits {
		if su.IsLive(today) {
			total += su.Unit
		}
	}
	return total
}
