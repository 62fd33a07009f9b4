package decision

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/wonny/aegis-signal/internal/contracts"
)

// probabilityTolerance bounds |sum(scenario probabilities) - 1|
const probabilityTolerance = 0.01

var validate = newValidator()

// newValidator reports fields by their JSON names
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		switch name {
		case "-":
			return ""
		case "":
			return fld.Name
		default:
			return name
		}
	})
	return v
}

// FieldError names one offending contract field
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationResult is the outcome of Validate
type ValidationResult struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Messages returns "field: message" strings
func (r ValidationResult) Messages() []string {
	if len(r.Errors) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		out = append(out, e.Error())
	}
	return out
}

// Validate checks a contract against its schema.
// Only a valid contract may be persisted or published.
func Validate(c *contracts.SignalContract) ValidationResult {
	if c == nil {
		return ValidationResult{Errors: []FieldError{{Field: "contract", Message: "missing"}}}
	}

	var errs []FieldError

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			errs = append(errs, FieldError{Field: "contract", Message: err.Error()})
		}
		for _, fe := range verrs {
			errs = append(errs, FieldError{Field: fieldPath(fe.Namespace()), Message: describe(fe)})
		}
	}

	if c.Evidence == nil {
		errs = append(errs, FieldError{Field: "evidence", Message: "missing"})
	}

	if sum, n := probabilitySum(c.Scenarios); n > 0 && math.Abs(sum-1) > probabilityTolerance {
		errs = append(errs, FieldError{
			Field:   "scenarios",
			Message: fmt.Sprintf("probabilities sum to %.3f, want 1.0 ± %.2f", sum, probabilityTolerance),
		})
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// fieldPath drops the root type name: "SignalContract.risk.regime" -> "risk.regime"
func fieldPath(namespace string) string {
	if i := strings.IndexByte(namespace, '.'); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "eq":
		return fmt.Sprintf("must equal %q, got %v", fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "gte":
		return fmt.Sprintf("must be >= %s, got %v", fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("must be <= %s, got %v", fe.Param(), fe.Value())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	default:
		return fmt.Sprintf("failed %q check", fe.Tag())
	}
}

func probabilitySum(s contracts.ScenarioBlock) (float64, int) {
	sum, n := 0.0, 0
	for _, p := range []*float64{s.BullProbability, s.BaseProbability, s.BearProbability} {
		if p != nil {
			sum += *p
			n++
		}
	}
	return sum, n
}
