package models_test

import (
	"encoding/json"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/bloodstock_backend/models"
)

func TestParseBloodGroup(t *testing.T) {
	cases := map[string]models.BloodGroup{
		"A+":     models.BloodGroupAPositive,
		"a-":     models.BloodGroupANegative,
		"AB+":    models.BloodGroupABPositive,
		"ab_neg": models.BloodGroupABNegative,
		"O_POS":  models.BloodGroupOPositive,
		"oneg":   models.BloodGroupONegative,
		" B+ ":   models.BloodGroupBPositive,
	}
	for in, want := range cases {
		got, err := models.ParseBloodGroup(in)
		if err != nil || got != want {
			t.Fatalf("ParseBloodGroup(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, in := range []string{"", "C+", "A", "AB", "POS"} {
		if _, err := models.ParseBloodGroup(in); !errors.Is(err, models.ErrInvalidBloodGroup) {
			t.Fatalf("ParseBloodGroup(%q): expected ErrInvalidBloodGroup, got %v", in, err)
		}
	}
}

func TestBloodRequestJSONDecoding(t *testing.T) {
	var input models.NewBloodRequest
	body := `{"request_type":"Transfer","blood_group":"ab_pos","units":200,"center_id":3,"urgency":"emergency"}`
	if err := json.Unmarshal([]byte(body), &input); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if input.RequestType != models.BloodRequestTypeTransfer || input.BloodGroup != models.BloodGroupABPositive ||
		input.Urgency != models.UrgencyLevelEmergency {
		t.Fatalf("decoded %+v", input)
	}
	if err := json.Unmarshal([]byte(`{"blood_group":"X+"}`), &input); err == nil {
		t.Fatalf("expected an error for an unknown blood group")
	}
}

func TestInsufficientStockError(t *testing.T) {
	var err error = &models.InsufficientStockError{Shortfall: 25}
	if !errors.Is(err, models.ErrInsufficientStock) {
		t.Fatalf("errors.Is should match ErrInsufficientStock")
	}
	wrapped := errors.Join(errors.New("fulfil"), err)
	if got := models.Shortfall(wrapped); got != 25 {
		t.Fatalf("Shortfall = %d, want 25", got)
	}
	if got := models.Shortfall(errors.New("other")); got != 0 {
		t.Fatalf("Shortfall of unrelated error = %d", got)
	}
}
