package models

import (
	"errors"
	"strings"
)

type BloodGroup string

const (
	BloodGroupAPositive  BloodGroup = "A+"
	BloodGroupANegative  BloodGroup = "A-"
	BloodGroupBPositive  BloodGroup = "B+"
	BloodGroupBNegative  BloodGroup = "B-"
	BloodGroupABPositive BloodGroup = "AB+"
	BloodGroupABNegative BloodGroup = "AB-"
	BloodGroupOPositive  BloodGroup = "O+"
	BloodGroupONegative  BloodGroup = "O-"
)

// AllBloodGroups lists every group in display order.
var AllBloodGroups = []BloodGroup{
	BloodGroupAPositive, BloodGroupANegative,
	BloodGroupBPositive, BloodGroupBNegative,
	BloodGroupABPositive, BloodGroupABNegative,
	BloodGroupOPositive, BloodGroupONegative,
}

func (g BloodGroup) IsValid() bool {
	for _, v := range AllBloodGroups {
		if v == g {
			return true
		}
	}
	return false
}

// ParseBloodGroup accepts "A+", "a+" and URL-friendly forms such as "A_POS" or "ab-neg".
func ParseBloodGroup(s string) (BloodGroup, error) {
	str := strings.ToUpper(strings.TrimSpace(s))
	str = strings.ReplaceAll(str, " ", "")
	switch {
	case strings.HasSuffix(str, "_POS"), strings.HasSuffix(str, "POS"):
		str = strings.TrimSuffix(strings.TrimSuffix(str, "POS"), "_") + "+"
	case strings.HasSuffix(str, "_NEG"), strings.HasSuffix(str, "NEG"):
		str = strings.TrimSuffix(strings.TrimSuffix(str, "NEG"), "_") + "-"
	}
	g := BloodGroup(str)
	if !g.IsValid() {
		return "", ErrInvalidBloodGroup
	}
	return g, nil
}

func (g *BloodGroup) UnmarshalText(text []byte) error {
	parsed, err := ParseBloodGroup(string(text))
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

type StockTransactionType string

const (
	StockTransactionTypeAddition  StockTransactionType = "addition"
	StockTransactionTypeDeduction StockTransactionType = "deduction"
)

func (t StockTransactionType) IsValid() bool {
	return t == StockTransactionTypeAddition || t == StockTransactionTypeDeduction
}

// StockReferenceType tags the event that caused a stock transaction.
type StockReferenceType string

const (
	StockReferenceTypeNone         StockReferenceType = ""
	StockReferenceTypeBloodRequest StockReferenceType = "BR"
	StockReferenceTypeDonation     StockReferenceType = "DN"
	StockReferenceTypeIntake       StockReferenceType = "IN"
)

type BloodRequestType string

const (
	BloodRequestTypePatient  BloodRequestType = "patient"
	BloodRequestTypeDonor    BloodRequestType = "donor"
	BloodRequestTypeTransfer BloodRequestType = "transfer"
)

func (t *BloodRequestType) UnmarshalText(text []byte) error {
	requestTypes := map[string]BloodRequestType{
		"patient":  BloodRequestTypePatient,
		"donor":    BloodRequestTypeDonor,
		"transfer": BloodRequestTypeTransfer,
	}
	v, ok := requestTypes[strings.ToLower(strings.TrimSpace(string(text)))]
	if !ok {
		return errors.New("invalid blood request type")
	}
	*t = v
	return nil
}

type BloodRequestStatus string

const (
	BloodRequestStatusPending   BloodRequestStatus = "pending"
	BloodRequestStatusApproved  BloodRequestStatus = "approved"
	BloodRequestStatusRejected  BloodRequestStatus = "rejected"
	BloodRequestStatusFulfilled BloodRequestStatus = "fulfilled"
	BloodRequestStatusCancelled BloodRequestStatus = "cancelled"
)

type UrgencyLevel string

const (
	UrgencyLevelLow       UrgencyLevel = "Low"
	UrgencyLevelMedium    UrgencyLevel = "Medium"
	UrgencyLevelHigh      UrgencyLevel = "High"
	UrgencyLevelEmergency UrgencyLevel = "Emergency"
)

func (u *UrgencyLevel) UnmarshalText(text []byte) error {
	urgencyLevels := map[string]UrgencyLevel{
		"low":       UrgencyLevelLow,
		"medium":    UrgencyLevelMedium,
		"high":      UrgencyLevelHigh,
		"emergency": UrgencyLevelEmergency,
	}
	v, ok := urgencyLevels[strings.ToLower(strings.TrimSpace(string(text)))]
	if !ok {
		return errors.New("invalid urgency level")
	}
	*u = v
	return nil
}
