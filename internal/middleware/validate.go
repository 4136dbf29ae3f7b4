package middleware

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/inklift/inklift/internal/logger"
)

// Validator is a struct that holds the validator instance
type Validator struct {
	validate *validator.Validate
}

// NewValidator creates a new validator instance
func NewValidator() *Validator {
	return &Validator{validate: validator.New()}
}

// Validate validates the request body against the provided struct
func (v *Validator) Validate(s interface{}) error {
	return v.validate.Struct(s)
}

// ParseAndValidate parses the request body into dst and validates it,
// writing the error response itself. Returns false when the request
// was rejected.
func (v *Validator) ParseAndValidate(c *fiber.Ctx, dst interface{}) bool {
	if err := c.BodyParser(dst); err != nil {
		c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"msg":   err.Error(),
		})
		return false
	}

	if err := v.Validate(dst); err != nil {
		fields := make(map[string]string)
		for _, fieldErr := range err.(validator.ValidationErrors) {
			fields[fieldErr.Field()] = fieldErr.Tag()
		}

		c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": fields,
		})
		return false
	}
	return true
}

// ErrorHandler is a middleware that handles errors in a consistent way
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	logger.Get().Error().
		Err(err).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", code).
		Msg("HTTP error")

	return c.Status(code).JSON(fiber.Map{
		"error": http.StatusText(code),
	})
}
