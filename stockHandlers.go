package main

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models/reports"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"bitbucket.org/mmdatafocus/bloodstock_backend/workflow"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type stockHandler struct {
	logger *logrus.Logger
}

type addStockRequest struct {
	CenterId   int               `json:"center_id" binding:"required"`
	BloodGroup models.BloodGroup `json:"blood_group" binding:"required"`
	Quantity   int               `json:"quantity"`
	ExpiryDate string            `json:"expiry_date" binding:"required"`
	Notes      string            `json:"notes"`
}

type deductStockRequest struct {
	CenterId   int               `json:"center_id"`
	BloodGroup models.BloodGroup `json:"blood_group" binding:"required"`
	Quantity   int               `json:"quantity"`
	Notes      string            `json:"notes"`
}

type transferStockRequest struct {
	BloodRequestId    int               `json:"blood_request_id" binding:"required"`
	SupplyingCenterId int               `json:"supplying_center_id" binding:"required"`
	ReceivingCenterId int               `json:"receiving_center_id" binding:"required"`
	BloodGroup        models.BloodGroup `json:"blood_group" binding:"required"`
	Quantity          int               `json:"quantity"`
	Notes             string            `json:"notes"`
}

type completeDonationRequest struct {
	DonationId int               `json:"donation_id" binding:"required"`
	CenterId   int               `json:"center_id" binding:"required"`
	BloodGroup models.BloodGroup `json:"blood_group" binding:"required"`
	Quantity   int               `json:"quantity"`
	DonatedOn  string            `json:"donated_on"`
	ExpiryDate string            `json:"expiry_date"`
	DonorName  string            `json:"donor_name"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// writeError maps domain errors to HTTP statuses. Unexpected errors are logged.
func (h *stockHandler) writeError(c *gin.Context, funcName string, err error) {
	switch {
	case errors.Is(err, models.ErrInsufficientStock):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "shortfall": models.Shortfall(err)})
	case errors.Is(err, models.ErrLockTimeout):
		config.LogError(h.logger, "stockHandlers.go", funcName, "lock", nil, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrCenterNotFound), errors.Is(err, utils.ErrorRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrRequestNotApproved),
		errors.Is(err, models.ErrRequestAlreadyFulfilled),
		errors.Is(err, models.ErrInvalidStatusTransition),
		errors.Is(err, models.ErrInsufficientBatchQuantity),
		errors.Is(err, workflow.ErrIdempotencyInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrValidation),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrInvalidExpiry),
		errors.Is(err, models.ErrInvalidBloodGroup),
		errors.Is(err, models.ErrSameCenter),
		errors.Is(err, models.ErrInvalidRequestType),
		errors.Is(err, models.ErrInconsistentTransactionShape):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		config.LogError(h.logger, "stockHandlers.go", funcName, "unexpected", nil, err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

func pathId(c *gin.Context, name string) (int, bool) {
	id, err := strconv.Atoi(c.Param(name))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s", name)})
		return 0, false
	}
	return n, true
}

func queryDate(c *gin.Context, name string) (time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return time.Time{}, true
	}
	t, err := utils.ParseDate(raw)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid %s, expected %s", name, utils.DateLayout)})
		return time.Time{}, false
	}
	return t, true
}

func (h *stockHandler) createCenter(c *gin.Context) {
	var input models.NewDonationCenter
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	center, err := models.CreateDonationCenter(c.Request.Context(), &input)
	if err != nil {
		h.writeError(c, "createCenter", err)
		return
	}
	c.JSON(http.StatusCreated, center)
}

func (h *stockHandler) listCenters(c *gin.Context) {
	var city *string
	if v, ok := c.GetQuery("city"); ok {
		city = &v
	}
	centers, err := models.ListDonationCenters(c.Request.Context(), city)
	if err != nil {
		h.writeError(c, "listCenters", err)
		return
	}
	c.JSON(http.StatusOK, centers)
}

func (h *stockHandler) listCenterBloodRequests(c *gin.Context) {
	centerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	var status *models.BloodRequestStatus
	if v := c.Query("status"); v != "" {
		s := models.BloodRequestStatus(v)
		switch s {
		case models.BloodRequestStatusPending, models.BloodRequestStatusApproved, models.BloodRequestStatusRejected,
			models.BloodRequestStatusFulfilled, models.BloodRequestStatusCancelled:
			status = &s
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
	}
	requests, err := models.ListBloodRequests(c.Request.Context(), centerId, status)
	if err != nil {
		h.writeError(c, "listCenterBloodRequests", err)
		return
	}
	c.JSON(http.StatusOK, requests)
}

func (h *stockHandler) getCenterStocks(c *gin.Context) {
	centerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := models.GetDonationCenter(ctx, centerId); err != nil {
		h.writeError(c, "getCenterStocks", err)
		return
	}
	stocks, err := models.GetCenterStocks(ctx, centerId)
	if err != nil {
		h.writeError(c, "getCenterStocks", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"center_id": centerId, "stocks": stocks})
}

func (h *stockHandler) getStockUnits(c *gin.Context) {
	centerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	group, err := models.ParseBloodGroup(c.Param("group"))
	if err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if _, err := models.GetDonationCenter(ctx, centerId); err != nil {
		h.writeError(c, "getStockUnits", err)
		return
	}
	units, err := models.GetStockUnits(ctx, centerId, group)
	if err != nil {
		h.writeError(c, "getStockUnits", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"center_id": centerId, "blood_group": group, "unit": units})
}

func (h *stockHandler) listStockUnitBalances(c *gin.Context) {
	centerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	ctx := c.Request.Context()
	if _, err := models.GetDonationCenter(ctx, centerId); err != nil {
		h.writeError(c, "listStockUnitBalances", err)
		return
	}
	balances, err := models.ListStockUnitBalances(ctx, centerId)
	if err != nil {
		h.writeError(c, "listStockUnitBalances", err)
		return
	}
	c.JSON(http.StatusOK, balances)
}

func (h *stockHandler) listNearExpiryStockUnits(c *gin.Context) {
	centerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	days, ok := queryInt(c, "days", 7)
	if !ok {
		return
	}
	stockUnits, err := models.ListNearExpiryStockUnits(c.Request.Context(), centerId, days)
	if err != nil {
		h.writeError(c, "listNearExpiryStockUnits", err)
		return
	}
	c.JSON(http.StatusOK, stockUnits)
}

func (h *stockHandler) getStockSummary(c *gin.Context) {
	centerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	summary, err := reports.GetStockSummaryReport(c.Request.Context(), centerId)
	if err != nil {
		h.writeError(c, "getStockSummary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *stockHandler) listCenterStockTransactions(c *gin.Context) {
	centerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	limit, ok := queryInt(c, "limit", 0)
	if !ok {
		return
	}
	page, err := models.PaginateStockTransactionsForCenter(c.Request.Context(), centerId, limit, c.Query("after"))
	if err != nil {
		h.writeError(c, "listCenterStockTransactions", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *stockHandler) exportStockTransactions(c *gin.Context) {
	centerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	from, ok := queryDate(c, "from")
	if !ok {
		return
	}
	to, ok := queryDate(c, "to")
	if !ok {
		return
	}
	rows, err := reports.GetStockTransactionReport(c.Request.Context(), centerId, from, to)
	if err != nil {
		h.writeError(c, "exportStockTransactions", err)
		return
	}
	filename := fmt.Sprintf("stock-transactions-%d-%s.xlsx", centerId, utils.Today().Format(utils.DateLayout))
	c.Header("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Status(http.StatusOK)
	if err := reports.WriteExcel(c.Writer, rows, reports.StockTransactionHeadings()...); err != nil {
		config.LogError(h.logger, "stockHandlers.go", "exportStockTransactions", "WriteExcel", centerId, err)
		_ = c.Error(err)
	}
}

func (h *stockHandler) reconcileCenter(c *gin.Context) {
	centerId, ok := pathId(c, "id")
	if !ok {
		return
	}
	fix := c.Query("fix") == "true"
	report, err := workflow.ReconcileStocks(c.Request.Context(), h.logger, centerId, fix)
	if err != nil {
		h.writeError(c, "reconcileCenter", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *stockHandler) addStock(c *gin.Context) {
	var req addStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	expiry, err := utils.ParseDate(req.ExpiryDate)
	if err != nil {
		badRequest(c, models.ErrInvalidExpiry)
		return
	}
	stockUnit, err := models.AddStock(c.Request.Context(), &models.NewStockUnit{
		CenterId:   req.CenterId,
		BloodGroup: req.BloodGroup,
		Quantity:   req.Quantity,
		ExpiryDate: expiry,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(c, "addStock", err)
		return
	}
	reports.InvalidateStockSummary(c.Request.Context(), req.CenterId)
	c.JSON(http.StatusCreated, stockUnit)
}

func (h *stockHandler) listStockTransactionsForUnit(c *gin.Context) {
	transactions, err := models.ListStockTransactionsForUnit(c.Request.Context(), c.Param("barcode"))
	if err != nil {
		h.writeError(c, "listStockTransactionsForUnit", err)
		return
	}
	c.JSON(http.StatusOK, transactions)
}

func (h *stockHandler) getTotalDeducted(c *gin.Context) {
	barcode := c.Param("barcode")
	total, err := models.GetTotalDeductedForUnit(c.Request.Context(), barcode)
	if err != nil {
		h.writeError(c, "getTotalDeducted", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"barcode": barcode, "total_deducted": total})
}

func (h *stockHandler) deductStock(c *gin.Context) {
	var req deductStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	ctx := c.Request.Context()
	if req.CenterId == 0 {
		req.CenterId, _ = utils.GetCenterIdFromContext(ctx)
	}
	deductions, err := models.DeductStock(ctx, &models.NewStockDeduction{
		CenterId:   req.CenterId,
		BloodGroup: req.BloodGroup,
		Quantity:   req.Quantity,
		Notes:      req.Notes,
	})
	if err != nil {
		h.writeError(c, "deductStock", err)
		return
	}
	reports.InvalidateStockSummary(ctx, req.CenterId)
	c.JSON(http.StatusOK, gin.H{"deductions": deductions})
}

func (h *stockHandler) transferStock(c *gin.Context) {
	var req transferStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	result, err := models.TransferStock(c.Request.Context(), &models.NewStockTransfer{
		BloodRequestId:    req.BloodRequestId,
		SupplyingCenterId: req.SupplyingCenterId,
		ReceivingCenterId: req.ReceivingCenterId,
		BloodGroup:        req.BloodGroup,
		Quantity:          req.Quantity,
		Notes:             req.Notes,
	})
	if err != nil {
		h.writeError(c, "transferStock", err)
		return
	}
	reports.InvalidateStockSummary(c.Request.Context(), req.SupplyingCenterId, req.ReceivingCenterId)
	c.JSON(http.StatusOK, result)
}

func (h *stockHandler) listLowStocks(c *gin.Context) {
	threshold, ok := queryInt(c, "threshold", 0)
	if !ok {
		return
	}
	stocks, err := models.ListLowStocks(c.Request.Context(), threshold)
	if err != nil {
		h.writeError(c, "listLowStocks", err)
		return
	}
	c.JSON(http.StatusOK, stocks)
}

func (h *stockHandler) findSupplyingCenters(c *gin.Context) {
	group, err := models.ParseBloodGroup(c.Query("group"))
	if err != nil {
		badRequest(c, err)
		return
	}
	units, ok := queryInt(c, "units", 0)
	if !ok {
		return
	}
	exclude, ok := queryInt(c, "exclude_center_id", 0)
	if !ok {
		return
	}
	centers, err := models.FindSupplyingCenters(c.Request.Context(), group, units, exclude)
	if err != nil {
		h.writeError(c, "findSupplyingCenters", err)
		return
	}
	c.JSON(http.StatusOK, centers)
}

func (h *stockHandler) createBloodRequest(c *gin.Context) {
	var input models.NewBloodRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		badRequest(c, err)
		return
	}
	request, err := models.CreateBloodRequest(c.Request.Context(), &input)
	if err != nil {
		h.writeError(c, "createBloodRequest", err)
		return
	}
	c.JSON(http.StatusCreated, request)
}

func (h *stockHandler) getBloodRequest(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	request, err := models.GetBloodRequest(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "getBloodRequest", err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *stockHandler) listRequestStockTransactions(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	entries, err := models.ListStockTransactionsForRequest(c.Request.Context(), models.StockReferenceTypeBloodRequest, id)
	if err != nil {
		h.writeError(c, "listRequestStockTransactions", err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *stockHandler) listTransferLinks(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	links, err := models.ListTransferLinks(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "listTransferLinks", err)
		return
	}
	c.JSON(http.StatusOK, links)
}

func (h *stockHandler) approveBloodRequest(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	request, err := models.ApproveBloodRequest(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, "approveBloodRequest", err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *stockHandler) rejectBloodRequest(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	request, err := models.RejectBloodRequest(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.writeError(c, "rejectBloodRequest", err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *stockHandler) cancelBloodRequest(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	var req reasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	request, err := models.CancelBloodRequest(c.Request.Context(), id, req.Reason)
	if err != nil {
		h.writeError(c, "cancelBloodRequest", err)
		return
	}
	c.JSON(http.StatusOK, request)
}

func (h *stockHandler) fulfillBloodRequest(c *gin.Context) {
	id, ok := pathId(c, "id")
	if !ok {
		return
	}
	result, err := workflow.ProcessBloodRequestFulfilment(c.Request.Context(), h.logger, id)
	if err != nil {
		h.writeError(c, "fulfillBloodRequest", err)
		return
	}
	if r := result.Request; r != nil {
		centerIds := []int{r.CenterId}
		if r.SupplyingCenterId != nil {
			centerIds = append(centerIds, *r.SupplyingCenterId)
		}
		reports.InvalidateStockSummary(c.Request.Context(), centerIds...)
	}
	c.JSON(http.StatusOK, result)
}

func (h *stockHandler) completeDonation(c *gin.Context) {
	var req completeDonationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	var donatedOn, expiry time.Time
	if req.DonatedOn != "" {
		d, err := utils.ParseDate(req.DonatedOn)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid donated_on, expected %s", utils.DateLayout)})
			return
		}
		donatedOn = d
	}
	if req.ExpiryDate != "" {
		d, err := utils.ParseDate(req.ExpiryDate)
		if err != nil {
			badRequest(c, models.ErrInvalidExpiry)
			return
		}
		expiry = d
	}
	stockUnit, err := workflow.CompleteDonation(c.Request.Context(), h.logger, workflow.DonationCompleted{
		DonationId: req.DonationId,
		CenterId:   req.CenterId,
		BloodGroup: req.BloodGroup,
		Quantity:   req.Quantity,
		DonatedOn:  donatedOn,
		ExpiryDate: expiry,
		DonorName:  req.DonorName,
	})
	if err != nil {
		h.writeError(c, "completeDonation", err)
		return
	}
	reports.InvalidateStockSummary(c.Request.Context(), req.CenterId)
	c.JSON(http.StatusOK, stockUnit)
}
