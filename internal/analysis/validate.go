package analysis

import (
	"errors"
	"strings"
)

// ErrInvalidBillData is matched by every bill validation failure
var ErrInvalidBillData = errors.New("invalid bill data")

// InvalidBillDataError lists every required field a bill is missing
type InvalidBillDataError struct {
	Problems []string
}

func (e *InvalidBillDataError) Error() string {
	return "Invalid bill data: " + strings.Join(e.Problems, ", ")
}

// Is makes errors.Is(err, ErrInvalidBillData) hold
func (e *InvalidBillDataError) Is(target error) bool {
	return target == ErrInvalidBillData
}

// Validate checks that a bill has the fields required for analysis.
// All problems are reported together.
func Validate(bill *BillRecord) error {
	if bill == nil {
		return &InvalidBillDataError{Problems: []string{"Bill data is required"}}
	}

	var problems []string
	if strings.TrimSpace(bill.Provider.Name) == "" {
		problems = append(problems, "Provider name is required")
	}
	if strings.TrimSpace(bill.Provider.State) == "" {
		problems = append(problems, "Provider state is required for rate comparison")
	}
	if len(bill.Procedures) == 0 {
		problems = append(problems, "At least one procedure is required")
	}
	if strings.TrimSpace(bill.DateOfService) == "" {
		problems = append(problems, "Date of service is required")
	}

	if len(problems) > 0 {
		return &InvalidBillDataError{Problems: problems}
	}
	return nil
}
