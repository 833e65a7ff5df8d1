package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"slotbook/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

// DefaultPhoneRegion is used for numbers entered without a country prefix.
const DefaultPhoneRegion = "SE"

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	_ = v.RegisterValidation("day", func(fl validator.FieldLevel) bool {
		_, err := models.ParseDate(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("slot", func(fl validator.FieldLevel) bool {
		return models.ValidSlot(fl.Field().String())
	})
	return v
}

// BookingRequest is the client payload for POST /book.
type BookingRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Email        string `json:"email" validate:"required,email,max=254"`
	Phone        string `json:"phone" validate:"required,max=32"`
	CustomerType string `json:"customerType" validate:"required,oneof=existing new"`
	Description  string `json:"description" validate:"max=2000"`
	Date         string `json:"date" validate:"required,day"`
	Slot         string `json:"slot" validate:"required,slot"`
}

func (r *BookingRequest) sanitize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = normalizeEmail(r.Email)
	r.Phone = strings.TrimSpace(r.Phone)
	r.CustomerType = strings.ToLower(strings.TrimSpace(r.CustomerType))
	r.Description = strings.TrimSpace(r.Description)
	r.Date = strings.TrimSpace(r.Date)
	r.Slot = strings.TrimSpace(r.Slot)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%w: %s is required", ErrValidation, fe.Field())
	case "day":
		return fmt.Errorf("%w: %s must be YYYY-MM-DD", ErrValidation, fe.Field())
	case "slot":
		return fmt.Errorf("%w: %s must be HH:MM", ErrValidation, fe.Field())
	case "oneof":
		return fmt.Errorf("%w: %s must be one of %s", ErrValidation, fe.Field(), fe.Param())
	case "email":
		return fmt.Errorf("%w: %s is not a valid email address", ErrValidation, fe.Field())
	default:
		return fmt.Errorf("%w: %s is invalid", ErrValidation, fe.Field())
	}
}

// normalizePhone returns the number in E.164 form.
func normalizePhone(raw, region string) (string, error) {
	num, err := phonenumbers.Parse(raw, region)
	if err != nil {
		return "", fmt.Errorf("%w: phone: %v", ErrValidation, err)
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", fmt.Errorf("%w: phone is not a valid number", ErrValidation)
	}
	return phonenumbers.Format(num, phonenumbers.E164), nil
}
