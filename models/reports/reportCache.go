package reports

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"github.com/sirupsen/logrus"
)

func reportCacheEnabled() bool {
	v := strings.TrimSpace(os.Getenv("ENABLE_REPORT_CACHE"))
	return v == "1" || strings.EqualFold(v, "true") || strings.EqualFold(v, "yes") || strings.EqualFold(v, "on")
}

func reportCacheTTL() time.Duration {
	// Env: REPORT_CACHE_TTL_SECONDS (default 60s)
	ttl := 60
	if v := strings.TrimSpace(os.Getenv("REPORT_CACHE_TTL_SECONDS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			ttl = n
		}
	}
	return time.Duration(ttl) * time.Second
}

func reportSlowMs() int64 {
	// Env: REPORT_SLOW_MS (default 500ms)
	ms := int64(500)
	if v := strings.TrimSpace(os.Getenv("REPORT_SLOW_MS")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			ms = n
		}
	}
	return ms
}

func logSlowReport(ctx context.Context, name string, started time.Time, centerId int) {
	d := time.Since(started)
	if d.Milliseconds() < reportSlowMs() {
		return
	}
	cid, _ := utils.GetCorrelationIdFromContext(ctx)
	if logger := config.GetLogger(); logger != nil {
		logger.WithFields(logrus.Fields{
			"report":         name,
			"ms":             d.Milliseconds(),
			"center_id":      centerId,
			"correlation_id": cid,
		}).Warn("slow report")
	}
}

func stockSummaryCacheKey(centerId int) string {
	return "report:stockSummary:center:" + strconv.Itoa(centerId)
}

// cacheGet never fails the report: a broken cache reads as a miss.
func cacheGet[T any](ctx context.Context, key string, dest *T) bool {
	if !reportCacheEnabled() {
		return false
	}
	ok, err := config.GetRedisObject(ctx, key, dest)
	if err != nil {
		config.LogError(config.GetLogger(), "reportCache.go", "cacheGet", key, nil, err)
		return false
	}
	return ok
}

func cacheSet(ctx context.Context, key string, obj any) {
	if !reportCacheEnabled() {
		return
	}
	if err := config.SetRedisObject(ctx, key, obj, reportCacheTTL()); err != nil {
		config.LogError(config.GetLogger(), "reportCache.go", "cacheSet", key, nil, err)
	}
}

// InvalidateStockSummary drops the cached summary of a center.
func InvalidateStockSummary(ctx context.Context, centerIds ...int) {
	if !reportCacheEnabled() || len(centerIds) == 0 {
		return
	}
	keys := make([]string, 0, len(centerIds))
	for _, id := range centerIds {
		keys = append(keys, stockSummaryCacheKey(id))
	}
	if err := config.RemoveRedisKey(ctx, keys...); err != nil {
		config.LogError(config.GetLogger(), "reportCache.go", "InvalidateStockSummary", "", keys, err)
	}
}
