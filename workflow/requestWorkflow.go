package workflow

import (
	"context"
	"errors"

	"bitbucket.org/mmdatafocus/bloodstock_backend/config"
	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
	"bitbucket.org/mmdatafocus/bloodstock_backend/utils"
	"github.com/sirupsen/logrus"
)

// FulfilmentResult holds what a fulfilled request consumed. Transfer is set
// for transfer requests, Deductions otherwise.
type FulfilmentResult struct {
	Request    *models.BloodRequest        `json:"request"`
	Deductions []models.StockDeduction     `json:"deductions,omitempty"`
	Transfer   *models.StockTransferResult `json:"transfer,omitempty"`
}

// isExpectedOutcome reports errors the caller shows to the user as is.
func isExpectedOutcome(err error) bool {
	for _, target := range []error{
		models.ErrInsufficientStock,
		models.ErrValidation,
		models.ErrInvalidQuantity,
		models.ErrInvalidExpiry,
		models.ErrInvalidBloodGroup,
		models.ErrSameCenter,
		models.ErrCenterNotFound,
		models.ErrRequestNotApproved,
		models.ErrRequestAlreadyFulfilled,
		models.ErrInvalidRequestType,
		models.ErrInvalidStatusTransition,
		utils.ErrorRecordNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// logFaultLikeError logs everything except expected outcomes such as insufficient stock.
func logFaultLikeError(logger *logrus.Logger, moduleName, funcName, step string, data any, err error) {
	if err == nil || isExpectedOutcome(err) {
		return
	}
	config.LogError(logger, moduleName, funcName, step, data, err)
}

// ProcessBloodRequestFulfilment fills an approved request. Transfer requests
// without a supplying center draw from the best candidate center.
func ProcessBloodRequestFulfilment(ctx context.Context, logger *logrus.Logger, requestId int) (*FulfilmentResult, error) {
	request, err := models.GetBloodRequest(ctx, requestId)
	if err != nil {
		logFaultLikeError(logger, "requestWorkflow.go", "ProcessBloodRequestFulfilment", "GetBloodRequest", requestId, err)
		return nil, err
	}

	if request.RequestType != models.BloodRequestTypeTransfer {
		deductions, err := models.FulfillBloodRequest(ctx, requestId)
		if err != nil {
			logFaultLikeError(logger, "requestWorkflow.go", "ProcessBloodRequestFulfilment", "FulfillBloodRequest", requestId, err)
			return nil, err
		}
		fulfilled, err := models.GetBloodRequest(ctx, requestId)
		if err != nil {
			config.LogError(logger, "requestWorkflow.go", "ProcessBloodRequestFulfilment", "GetBloodRequest", requestId, err)
			return nil, err
		}
		return &FulfilmentResult{Request: fulfilled, Deductions: deductions}, nil
	}

	var supplyingCenterId int
	if request.SupplyingCenterId != nil {
		supplyingCenterId = *request.SupplyingCenterId
	} else {
		supplyingCenterId, err = pickSupplyingCenter(ctx, request)
		if err != nil {
			logFaultLikeError(logger, "requestWorkflow.go", "ProcessBloodRequestFulfilment", "pickSupplyingCenter", requestId, err)
			return nil, err
		}
	}

	transfer, err := models.TransferStock(ctx, &models.NewStockTransfer{
		BloodRequestId:    request.ID,
		SupplyingCenterId: supplyingCenterId,
		ReceivingCenterId: request.CenterId,
		BloodGroup:        request.BloodGroup,
		Quantity:          request.Units,
	})
	if err != nil {
		logFaultLikeError(logger, "requestWorkflow.go", "ProcessBloodRequestFulfilment", "TransferStock", requestId, err)
		return nil, err
	}
	fulfilled, err := models.GetBloodRequest(ctx, requestId)
	if err != nil {
		config.LogError(logger, "requestWorkflow.go", "ProcessBloodRequestFulfilment", "GetBloodRequest", requestId, err)
		return nil, err
	}
	return &FulfilmentResult{Request: fulfilled, Transfer: transfer}, nil
}

// pickSupplyingCenter returns the first center able to cover the whole request.
// When none can, the shortfall is measured against the best stocked center.
func pickSupplyingCenter(ctx context.Context, request *models.BloodRequest) (int, error) {
	candidates, err := models.FindSupplyingCenters(ctx, request.BloodGroup, 1, request.CenterId)
	if err != nil {
		return 0, err
	}
	best := 0
	for _, c := range candidates {
		if c.Units >= request.Units {
			return c.CenterId, nil
		}
		best = max(best, c.Units)
	}
	return 0, &models.InsufficientStockError{Shortfall: request.Units - best}
}
