// seed-dev creates a few donation centers with stock for local runs.
// Centers are looked up by name and city, so rerunning only tops up stock.
//
// Usage (from backend directory):
//   DB_DRIVER=sqlite DB_PATH=bloodstock.db go run ./cmd/seed-dev
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... go run ./cmd/seed-dev -skip-stock
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
)

type seedCenter struct {
	Name, City string
}

var centers = []seedCenter{
	{"Yangon General Hospital", "Yangon"},
	{"North Okkalapa Blood Bank", "Yangon"},
	{"Mandalay General Hospital", "Mandalay"},
}

func main() {
	skipStock := flag.Bool("skip-stock", false, "create centers only")
	perGroup := flag.Int("ml", 900, "ml added per blood group and center")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx := utils.SetUserIdInContext(context.Background(), 0)
	ctx = utils.SetUserNameInContext(ctx, "Seed")

	for i, sc := range centers {
		center, err := findOrCreateCenter(ctx, sc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "center %s: %v\n", sc.Name, err)
			os.Exit(1)
		}
		fmt.Printf("center #%d %s (%s)\n", center.ID, center.Name, center.City)
		if *skipStock {
			continue
		}
		for j, group := range models.AllBloodGroups {
			// stagger expiries so FIFO has something to order
			expiry := utils.Today().AddDate(0, 0, 5+(i*7+j*3)%35)
			if _, err := models.AddStock(ctx, &models.NewStockUnit{
				CenterId:   center.ID,
				BloodGroup: group,
				Quantity:   *perGroup,
				ExpiryDate: expiry,
				Notes:      "seed",
			}); err != nil {
				fmt.Fprintf(os.Stderr, "add %s to %s: %v\n", group, center.Name, err)
				os.Exit(1)
			}
		}
	}
	fmt.Println("done")
}

func findOrCreateCenter(ctx context.Context, sc seedCenter) (*models.DonationCenter, error) {
	center, err := models.CreateDonationCenter(ctx, &models.NewDonationCenter{
		Name: sc.Name,
		City: sc.City,
	})
	if err == nil {
		return center, nil
	}
	if !errors.Is(err, models.ErrValidation) {
		return nil, err
	}
	city := sc.City
	existing, err := models.ListDonationCenters(ctx, &city)
	if err != nil {
		return nil, err
	}
	for _, c := range existing {
		if c.Name == sc.Name {
			return c, nil
		}
	}
	return nil, fmt.Errorf("center %s rejected: %w", sc.Name, models.ErrValidation)
}
