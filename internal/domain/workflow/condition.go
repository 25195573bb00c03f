package workflow

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"bookingfast/internal/domain/booking"
)

// ConditionField names the booking attribute a condition reads.
type ConditionField string

const (
	FieldBookingStatus ConditionField = "booking_status"
	FieldPaymentStatus ConditionField = "payment_status"
	FieldServiceName   ConditionField = "service_name"
	FieldServiceID     ConditionField = "service_id"
	FieldTotalAmount   ConditionField = "total_amount"
	FieldClientPhone   ConditionField = "client_phone"
)

// ParseConditionField converts a raw string into a known field.
func ParseConditionField(s string) (ConditionField, error) {
	switch f := ConditionField(s); f {
	case FieldBookingStatus, FieldPaymentStatus, FieldServiceName,
		FieldServiceID, FieldTotalAmount, FieldClientPhone:
		return f, nil
	}
	return "", fmt.Errorf("unknown condition field: %q", s)
}

// UnmarshalJSON rejects unknown fields.
func (f *ConditionField) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseConditionField(s)
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

// Operator is the comparison applied by a condition.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// ParseOperator converts a raw string into a known operator.
func ParseOperator(s string) (Operator, error) {
	switch op := Operator(s); op {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan:
		return op, nil
	}
	return "", fmt.Errorf("unknown condition operator: %q", s)
}

// UnmarshalJSON rejects unknown operators.
func (op *Operator) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseOperator(s)
	if err != nil {
		return err
	}
	*op = parsed
	return nil
}

// ConditionValue is the right-hand operand of a condition. The settings UI
// stores it as either a JSON string or a JSON number.
type ConditionValue string

// UnmarshalJSON accepts strings, numbers and booleans.
func (v *ConditionValue) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch x := raw.(type) {
	case nil:
		*v = ""
	case string:
		*v = ConditionValue(x)
	case float64:
		*v = ConditionValue(strconv.FormatFloat(x, 'f', -1, 64))
	case bool:
		*v = ConditionValue(strconv.FormatBool(x))
	default:
		return fmt.Errorf("unsupported condition value: %s", string(data))
	}
	return nil
}

// Condition is a single {field, operator, value} rule.
type Condition struct {
	Field    ConditionField `json:"field"`
	Operator Operator       `json:"operator"`
	Value    ConditionValue `json:"value"`
}

// fieldValue is a resolved booking attribute.
type fieldValue struct {
	str     string
	num     float64
	numeric bool
}

func resolveField(field ConditionField, b *booking.Booking) (fieldValue, bool) {
	switch field {
	case FieldBookingStatus:
		return fieldValue{str: string(b.BookingStatus)}, true
	case FieldPaymentStatus:
		return fieldValue{str: string(b.PaymentStatus)}, true
	case FieldServiceName:
		if b.Service == nil {
			return fieldValue{}, true
		}
		return fieldValue{str: b.Service.Name}, true
	case FieldServiceID:
		return fieldValue{str: b.ServiceID}, true
	case FieldTotalAmount:
		return fieldValue{
			str:     strconv.FormatFloat(b.TotalAmount, 'f', -1, 64),
			num:     b.TotalAmount,
			numeric: true,
		}, true
	case FieldClientPhone:
		return fieldValue{str: b.ClientPhone}, true
	}
	return fieldValue{}, false
}

// Evaluate applies a single condition to the booking. Unknown fields or
// operators evaluate to false.
func (c Condition) Evaluate(b *booking.Booking) bool {
	fv, ok := resolveField(c.Field, b)
	if !ok {
		return false
	}
	want := string(c.Value)

	switch c.Operator {
	case OpEquals:
		return equal(fv, want)
	case OpNotEquals:
		return !equal(fv, want)
	case OpContains:
		return strings.Contains(strings.ToLower(fv.str), strings.ToLower(want))
	case OpGreaterThan:
		l, r, ok := numericPair(fv, want)
		return ok && l > r
	case OpLessThan:
		l, r, ok := numericPair(fv, want)
		return ok && l < r
	}
	return false
}

func equal(fv fieldValue, want string) bool {
	if fv.numeric {
		n, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
		return err == nil && n == fv.num
	}
	return fv.str == want
}

func numericPair(fv fieldValue, want string) (float64, float64, bool) {
	l := fv.num
	if !fv.numeric {
		var err error
		if l, err = strconv.ParseFloat(strings.TrimSpace(fv.str), 64); err != nil {
			return 0, 0, false
		}
	}
	r, err := strconv.ParseFloat(strings.TrimSpace(want), 64)
	if err != nil || math.IsNaN(l) || math.IsNaN(r) {
		return 0, 0, false
	}
	return l, r, true
}

// Matches reports whether every condition holds for the booking.
// An empty list always matches.
func Matches(conditions []Condition, b *booking.Booking) bool {
	for _, c := range conditions {
		if !c.Evaluate(b) {
			return false
		}
	}
	return true
}
