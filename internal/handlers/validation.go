package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/evalforge/evalforge/internal/models"
	appErrors "github.com/evalforge/evalforge/pkg/errors"
	"github.com/evalforge/evalforge/pkg/response"
	appValidator "github.com/evalforge/evalforge/pkg/validator"
)

func init() {
	// Role names arrive in either case; the canonical values are uppercase.
	_ = appValidator.RegisterValidation("orgrole", func(fl validator.FieldLevel) bool {
		return parseRole(fl.Field().String()).Valid()
	})
	_ = appValidator.RegisterValidation("invitablerole", func(fl validator.FieldLevel) bool {
		return parseRole(fl.Field().String()).Invitable()
	})
}

// parseRole normalises a request role string to its canonical uppercase form.
func parseRole(raw string) models.Role {
	return models.Role(strings.ToUpper(strings.TrimSpace(raw)))
}

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is automatically written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	if err == nil {
		return "invalid request payload"
	}

	if ve, ok := err.(appValidator.ValidationErrors); ok {
		if len(ve) == 0 {
			return "invalid request payload"
		}

		messages := make([]string, 0, len(ve))
		for _, failure := range ve {
			field := prettifyFieldName(failure.Field)
			switch failure.Tag {
			case "required":
				messages = append(messages, fmt.Sprintf("%s is required", field))
			case "email":
				messages = append(messages, fmt.Sprintf("%s must be a valid email address", field))
			case "min":
				messages = append(messages, fmt.Sprintf("%s must be at least %s characters", field, failure.Param))
			case "max":
				messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, failure.Param))
			case "uuid4":
				messages = append(messages, fmt.Sprintf("%s must be a valid UUID", field))
			case "oneof":
				messages = append(messages, fmt.Sprintf("%s must be one of: %s", field, failure.Param))
			case "orgrole":
				messages = append(messages, fmt.Sprintf("%s must be one of: VIEWER, MEMBER, ADMIN, OWNER", field))
			case "invitablerole":
				messages = append(messages, fmt.Sprintf("%s must be one of: VIEWER, MEMBER, ADMIN", field))
			default:
				if failure.Param != "" {
					messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
				} else {
					messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
				}
			}
		}
		return strings.Join(messages, "; ")
	}

	return "invalid request payload"
}

func prettifyFieldName(name string) string {
	if name == "" {
		return "field"
	}
	name = strings.ReplaceAll(name, "_", " ")
	return strings.ToLower(name)
}
