package workflow_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func setupTestDB(t *testing.T) context.Context {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:wf_%s_%d?mode=memory&cache=shared", name, time.Now().UnixNano())
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

	ctx := utils.SetUserIdInContext(context.Background(), 7)
	ctx = utils.SetUserNameInContext(ctx, "Workflow")
	return ctx
}

func newTestLogger() (*logrus.Logger, *test.Hook) {
	return test.NewNullLogger()
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
	su, err := models.AddStock(ctx, &models.NewStockUnit{CenterId: centerId, BloodGroup: group, Quantity: quantity, ExpiryDate: expiry})
	if err != nil {
		t.Fatalf("AddStock: %v", err)
	}
	return su
}

func mustStockUnits(t *testing.T, ctx context.Context, centerId int, group models.BloodGroup) int {
	t.Helper()
	n, err := models.GetStockUnits(ctx, centerId, group)
	if err != nil {
		t.Fatalf("GetStockUnits: %v", err)
	}
	return n
}
