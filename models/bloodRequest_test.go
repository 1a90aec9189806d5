package models_test

import (
	"errors"
	"fmt"
	"testing"

	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
)

func TestBloodRequest_Lifecycle(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "General Hospital", "Yangon")
	mustAddStock(t, ctx, center.ID, models.BloodGroupOPositive, 300, days(4))

	request, err := models.CreateBloodRequest(ctx, &models.NewBloodRequest{
		RequestType: models.BloodRequestTypePatient,
		BloodGroup:  models.BloodGroupOPositive,
		Units:       250,
		CenterId:    center.ID,
		PatientName: "  Daw Hla  ",
	})
	if err != nil {
		t.Fatalf("CreateBloodRequest: %v", err)
	}
	if request.Status != models.BloodRequestStatusPending || request.Urgency != models.UrgencyLevelMedium {
		t.Fatalf("new request status/urgency = %s/%s", request.Status, request.Urgency)
	}
	if request.PatientName != "Daw Hla" || request.RequestedByName != "Test" {
		t.Fatalf("unexpected request fields: %+v", request)
	}

	if _, err := models.FulfillBloodRequest(ctx, request.ID); !errors.Is(err, models.ErrRequestNotApproved) {
		t.Fatalf("fulfil pending: expected ErrRequestNotApproved, got %v", err)
	}
	approved, err := models.ApproveBloodRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("ApproveBloodRequest: %v", err)
	}
	if approved.Status != models.BloodRequestStatusApproved || approved.StatusChangedBy != 1 || approved.StatusChangedAt == nil {
		t.Fatalf("approved request = %+v", approved)
	}
	if _, err := models.RejectBloodRequest(ctx, request.ID, "late"); !errors.Is(err, models.ErrInvalidStatusTransition) {
		t.Fatalf("reject approved: expected ErrInvalidStatusTransition, got %v", err)
	}

	deductions, err := models.FulfillBloodRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("FulfillBloodRequest: %v", err)
	}
	if len(deductions) != 1 || deductions[0].Quantity != 250 {
		t.Fatalf("unexpected deductions: %+v", deductions)
	}
	if got := mustGetStockUnits(t, ctx, center.ID, models.BloodGroupOPositive); got != 50 {
		t.Fatalf("aggregate = %d, want 50", got)
	}

	entries, err := models.ListStockTransactionsForRequest(ctx, models.StockReferenceTypeBloodRequest, request.ID)
	if err != nil {
		t.Fatalf("ListStockTransactionsForRequest: %v", err)
	}
	if len(entries) != 1 || entries[0].Notes != fmt.Sprintf("Blood request #%d", request.ID) {
		t.Fatalf("unexpected audit rows: %+v", entries)
	}

	if _, err := models.FulfillBloodRequest(ctx, request.ID); !errors.Is(err, models.ErrRequestAlreadyFulfilled) {
		t.Fatalf("second fulfil: expected ErrRequestAlreadyFulfilled, got %v", err)
	}
	if _, err := models.CancelBloodRequest(ctx, request.ID, "changed mind"); !errors.Is(err, models.ErrRequestAlreadyFulfilled) {
		t.Fatalf("cancel fulfilled: expected ErrRequestAlreadyFulfilled, got %v", err)
	}
	if got := mustGetStockUnits(t, ctx, center.ID, models.BloodGroupOPositive); got != 50 {
		t.Fatalf("aggregate after repeat = %d, want 50", got)
	}
}

func TestBloodRequest_FulfilShortfallKeepsApproved(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "General Hospital", "Yangon")
	mustAddStock(t, ctx, center.ID, models.BloodGroupANegative, 100, days(4))

	request, err := models.CreateBloodRequest(ctx, &models.NewBloodRequest{
		RequestType: models.BloodRequestTypeDonor,
		BloodGroup:  models.BloodGroupANegative,
		Units:       160,
		CenterId:    center.ID,
		Urgency:     models.UrgencyLevelEmergency,
	})
	if err != nil {
		t.Fatalf("CreateBloodRequest: %v", err)
	}
	if _, err := models.ApproveBloodRequest(ctx, request.ID); err != nil {
		t.Fatalf("ApproveBloodRequest: %v", err)
	}
	_, err = models.FulfillBloodRequest(ctx, request.ID)
	if got := models.Shortfall(err); got != 60 {
		t.Fatalf("shortfall = %d (err %v), want 60", got, err)
	}
	current, err := models.GetBloodRequest(ctx, request.ID)
	if err != nil {
		t.Fatalf("GetBloodRequest: %v", err)
	}
	if current.Status != models.BloodRequestStatusApproved || current.IsStockDeducted() {
		t.Fatalf("request changed after shortfall: %+v", current)
	}

	cancelled, err := models.CancelBloodRequest(ctx, request.ID, "sourced elsewhere")
	if err != nil {
		t.Fatalf("CancelBloodRequest: %v", err)
	}
	if cancelled.Status != models.BloodRequestStatusCancelled || cancelled.Reason != "sourced elsewhere" {
		t.Fatalf("cancelled request = %+v", cancelled)
	}
}

func TestBloodRequest_Validation(t *testing.T) {
	ctx := setupTestDB(t)
	center := mustCreateCenter(t, ctx, "General Hospital", "Yangon")
	other := mustCreateCenter(t, ctx, "Annex", "Yangon")
	otherId := other.ID
	sameId := center.ID

	cases := []struct {
		name  string
		input models.NewBloodRequest
		want  error
	}{
		{"missing type", models.NewBloodRequest{BloodGroup: models.BloodGroupAPositive, Units: 10, CenterId: center.ID}, models.ErrValidation},
		{"unknown type", models.NewBloodRequest{RequestType: "walk_in", BloodGroup: models.BloodGroupAPositive, Units: 10, CenterId: center.ID}, models.ErrInvalidRequestType},
		{"zero units", models.NewBloodRequest{RequestType: models.BloodRequestTypePatient, BloodGroup: models.BloodGroupAPositive, CenterId: center.ID}, models.ErrInvalidQuantity},
		{"unknown center", models.NewBloodRequest{RequestType: models.BloodRequestTypePatient, BloodGroup: models.BloodGroupAPositive, Units: 10, CenterId: center.ID + 50}, models.ErrCenterNotFound},
		{"supplier on patient", models.NewBloodRequest{RequestType: models.BloodRequestTypePatient, BloodGroup: models.BloodGroupAPositive, Units: 10, CenterId: center.ID, SupplyingCenterId: &otherId}, models.ErrValidation},
		{"supplier is receiver", models.NewBloodRequest{RequestType: models.BloodRequestTypeTransfer, BloodGroup: models.BloodGroupAPositive, Units: 10, CenterId: center.ID, SupplyingCenterId: &sameId}, models.ErrSameCenter},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			input := tc.input
			if _, err := models.CreateBloodRequest(ctx, &input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestListBloodRequests_FiltersByCenterAndStatus(t *testing.T) {
	ctx := setupTestDB(t)
	a := mustCreateCenter(t, ctx, "A", "Yangon")
	b := mustCreateCenter(t, ctx, "B", "Yangon")

	create := func(centerId int) *models.BloodRequest {
		r, err := models.CreateBloodRequest(ctx, &models.NewBloodRequest{
			RequestType: models.BloodRequestTypePatient,
			BloodGroup:  models.BloodGroupAPositive,
			Units:       10,
			CenterId:    centerId,
		})
		if err != nil {
			t.Fatalf("CreateBloodRequest: %v", err)
		}
		return r
	}
	first := create(a.ID)
	create(a.ID)
	create(b.ID)
	if _, err := models.RejectBloodRequest(ctx, first.ID, "duplicate"); err != nil {
		t.Fatalf("RejectBloodRequest: %v", err)
	}

	all, err := models.ListBloodRequests(ctx, a.ID, nil)
	if err != nil {
		t.Fatalf("ListBloodRequests: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("center a has %d requests, want 2", len(all))
	}
	rejected := models.BloodRequestStatusRejected
	onlyRejected, err := models.ListBloodRequests(ctx, a.ID, &rejected)
	if err != nil {
		t.Fatalf("ListBloodRequests: %v", err)
	}
	if len(onlyRejected) != 1 || onlyRejected[0].ID != first.ID {
		t.Fatalf("rejected filter returned %+v", onlyRejected)
	}
}
