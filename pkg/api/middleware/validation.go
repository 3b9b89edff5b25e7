package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/therealutkarshpriyadarshi/dagsched/pkg/models"
)

var validate *validator.Validate

func init() {
	validate = validator.New()

	_ = validate.RegisterValidation("timestamp", validateTimestamp)
}

// validateTimestamp accepts "2006-01-02 15:04:05" local timestamps
func validateTimestamp(fl validator.FieldLevel) bool {
	value := fl.Field().String()
	if value == "" {
		return true
	}
	_, err := models.ParseTime(value)
	return err == nil
}

// ValidateRequest validates a request struct
func ValidateRequest(obj interface{}) error {
	return validate.Struct(obj)
}

// ValidationErrorResponse converts validator errors to a readable format
func ValidationErrorResponse(err error) map[string]interface{} {
	errors := make(map[string]interface{})

	if validationErrors, ok := err.(validator.ValidationErrors); ok {
		for _, fieldError := range validationErrors {
			field := fieldError.Field()
			tag := fieldError.Tag()

			var message string
			switch tag {
			case "required":
				message = fmt.Sprintf("%s is required", field)
			case "min":
				message = fmt.Sprintf("%s must be at least %s", field, fieldError.Param())
			case "max":
				message = fmt.Sprintf("%s must be at most %s", field, fieldError.Param())
			case "oneof":
				message = fmt.Sprintf("%s must be one of: %s", field, fieldError.Param())
			case "timestamp":
				message = fmt.Sprintf("%s must use the format %s", field, models.TimeLayout)
			default:
				message = fmt.Sprintf("%s failed validation: %s", field, tag)
			}

			errors[field] = message
		}
	} else {
		errors["validation"] = err.Error()
	}

	return errors
}

// BindAndValidate binds and validates a JSON request body
func BindAndValidate(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		AbortWithError(c, http.StatusBadRequest, "INVALID_JSON", err.Error())
		return false
	}
	return validateOrAbort(c, obj)
}

// BindQueryAndValidate binds and validates query parameters
func BindQueryAndValidate(c *gin.Context, obj interface{}) bool {
	if err := c.ShouldBindQuery(obj); err != nil {
		AbortWithError(c, http.StatusBadRequest, "INVALID_QUERY", err.Error())
		return false
	}
	return validateOrAbort(c, obj)
}

func validateOrAbort(c *gin.Context, obj interface{}) bool {
	if err := ValidateRequest(obj); err != nil {
		details := ValidationErrorResponse(err)
		AbortWithErrorDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Request validation failed", details)
		return false
	}
	return true
}
