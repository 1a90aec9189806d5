package config

import (
	"os"
	"strings"
	"time"
)

// DefaultLowStockThreshold is the ml level under which a pair is reported as low.
const DefaultLowStockThreshold = 500

// DefaultDonationShelfLifeDays is how long donated whole blood keeps.
const DefaultDonationShelfLifeDays = 46

// DonationShelfLifeDays sets the expiry of a donation that arrives without one.
//
// Set via env:
// - DONATION_SHELF_LIFE_DAYS=46
func DonationShelfLifeDays() int {
	n := intFromEnv("DONATION_SHELF_LIFE_DAYS", DefaultDonationShelfLifeDays)
	if n <= 0 {
		return DefaultDonationShelfLifeDays
	}
	return n
}

// StockLockTTL bounds how long a Redis pair lock is held and waited for.
//
// Set via env:
// - STOCK_LOCK_TTL_SECONDS=30
func StockLockTTL() time.Duration {
	n := intFromEnv("STOCK_LOCK_TTL_SECONDS", 30)
	if n <= 0 {
		n = 30
	}
	return time.Duration(n) * time.Second
}

// LowStockThreshold returns LOW_STOCK_THRESHOLD in ml.
func LowStockThreshold() int {
	n := intFromEnv("LOW_STOCK_THRESHOLD", DefaultLowStockThreshold)
	if n < 0 {
		return DefaultLowStockThreshold
	}
	return n
}

// PhoneRegion is the default region used to parse center contact numbers.
//
// Set via env:
// - PHONE_REGION=MM
func PhoneRegion() string {
	v := strings.ToUpper(strings.TrimSpace(os.Getenv("PHONE_REGION")))
	if v == "" {
		return "MM"
	}
	return v
}

// RedisStockLocksEnabled reports whether deduct/transfer also take Redis pair locks.
// Defaults to true; the lock is skipped anyway when Redis is not connected.
//
// Set via env:
// - REDIS_STOCK_LOCKS=false
func RedisStockLocksEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("REDIS_STOCK_LOCKS")))
	if v == "" {
		return true
	}
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
