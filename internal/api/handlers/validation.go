package handlers

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
)

// RegisterValidators adds the billing rules to gin's validator engine.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return fmt.Errorf("unexpected validator engine %T", binding.Validator.Engine())
	}
	return v.RegisterValidation("billing_period", func(fl validator.FieldLevel) bool {
		_, err := billing.ParsePeriod(fl.Field().String())
		return err == nil
	})
}
