package validator

import (
	"errors"
	"fmt"
	"regexp"
	"reservo/pkg/logger"
	"reservo/pkg/model"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// entity kinds are lowercase snake identifiers ("room", "meeting_slot").
var kindRegex = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (v ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	if len(v) == 0 {
		return ""
	}
	var messages []string
	for _, err := range v {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %d error(s): [%s]", len(v), strings.Join(messages, "; "))
}

type BookingValidator struct {
	validate *validator.Validate
	logger   *logger.Logger
}

func NewBookingValidator(log *logger.Logger) *BookingValidator {
	v := validator.New()

	if err := v.RegisterValidation("entity_kind", validateEntityKind); err != nil {
		log.Fatal("Failed to register 'entity_kind' validator",
			"error", err,
		)
	}

	return &BookingValidator{
		validate: v,
		logger:   log,
	}
}

func validateEntityKind(fl validator.FieldLevel) bool {
	return kindRegex.MatchString(fl.Field().String())
}

func (v *BookingValidator) Validate(booking *model.Booking) error {
	if err := v.validate.Struct(booking); err != nil {
		var validationErrs validator.ValidationErrors
		if errors.As(err, &validationErrs) {
			return v.translateValidationErrors(validationErrs)
		}
		return err
	}

	return validateTimeRange(booking.StartTime, booking.EndTime)
}

// ValidateRange checks a bare time range, used by availability queries and
// date changes where no full booking document exists yet.
func (v *BookingValidator) ValidateRange(from, to time.Time) error {
	if from.IsZero() || to.IsZero() {
		return ValidationErrors{
			ValidationError{
				Field:   "StartTime",
				Message: "start_time and end_time are required",
			},
		}
	}
	return validateTimeRange(from, to)
}

func validateTimeRange(from, to time.Time) error {
	if !to.After(from) {
		return ValidationErrors{
			ValidationError{
				Field:   "EndTime",
				Message: "end_time must be after start_time",
			},
		}
	}
	return nil
}

func (v *BookingValidator) translateValidationErrors(errs validator.ValidationErrors) ValidationErrors {
	var validationErrors ValidationErrors

	for _, err := range errs {
		message := err.Error()

		switch err.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", err.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s", err.Field(), err.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s", err.Field(), err.Param())
		case "mongodb":
			message = fmt.Sprintf("%s must be a valid MongoDB ObjectID", err.Field())
		case "oneof":
			message = fmt.Sprintf("%s must be one of: %s", err.Field(), err.Param())
		case "gtfield":
			message = fmt.Sprintf("%s must be after %s", err.Field(), err.Param())
		case "entity_kind":
			message = fmt.Sprintf("%s must be a lowercase identifier (letters, digits, underscores)", err.Field())
		}

		validationErrors = append(validationErrors, ValidationError{
			Field:   err.Field(),
			Message: message,
		})
	}

	return validationErrors
}
