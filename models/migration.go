package models

import (
	"log"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&DonationCenter{},
		&StockUnit{}, &Stock{}, &StockTransaction{},
		&BloodRequest{}, &BloodRequestStockUnit{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
