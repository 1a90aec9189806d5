// stock-audit-export writes a center's stock transactions to an xlsx file.
//
// Usage:
//
//	go run ./cmd/stock-audit-export -center=3 -from=2026-01-01 -to=2026-01-31 -out=audit.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models/reports"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
)

func parseOptionalDate(name, value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	t, err := utils.ParseDate(value)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -%s %q, expected YYYY-MM-DD\n", name, value)
		os.Exit(1)
	}
	return t
}

func main() {
	centerID := flag.Int("center", 0, "Required: donation center id")
	from := flag.String("from", "", "Optional: first transaction date (YYYY-MM-DD)")
	to := flag.String("to", "", "Optional: last transaction date (YYYY-MM-DD)")
	out := flag.String("out", "", "Output file. Defaults to stock-transactions-<center>.xlsx")
	flag.Parse()

	if *centerID <= 0 {
		fmt.Fprintln(os.Stderr, "-center is required")
		os.Exit(1)
	}
	fromDate := parseOptionalDate("from", *from)
	toDate := parseOptionalDate("to", *to)
	filename := strings.TrimSpace(*out)
	if filename == "" {
		filename = fmt.Sprintf("stock-transactions-%d.xlsx", *centerID)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	n, err := reports.ExportStockTransactions(context.Background(), filename, *centerID, fromDate, toDate)
	if err != nil {
		fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %d transactions to %s\n", n, filename)
}
