package controllers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/restorix/backend/internal/apperrors"
	"github.com/restorix/backend/internal/logger"
	"gorm.io/gorm"
)

// hideInternalErrors replaces unexpected error messages with a generic one.
var hideInternalErrors bool

// HideInternalErrors is switched on in production.
func HideInternalErrors(hide bool) {
	hideInternalErrors = hide
}

// respondError renders err as {"error":{code,message,details?}}.
func respondError(c *gin.Context, err error) {
	if appErr, ok := apperrors.As(err); ok {
		if appErr.Status() >= http.StatusInternalServerError {
			logger.WithError(err, "controller").WithField("path", c.Request.URL.Path).Error("Request failed")
		}
		writeError(c, appErr.Status(), appErr.Code, appErr.Message, appErr.Details)
		return
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		writeError(c, http.StatusNotFound, apperrors.CodeNotFound, "Record not found", nil)
	case errors.Is(err, gorm.ErrDuplicatedKey):
		writeError(c, http.StatusConflict, apperrors.CodeConflict, "A record with this value already exists", nil)
	default:
		logger.WithError(err, "controller").WithField("path", c.Request.URL.Path).Error("Unhandled error")
		msg := err.Error()
		if hideInternalErrors {
			msg = "An unexpected error occurred"
		}
		writeError(c, http.StatusInternalServerError, apperrors.CodeInternal, msg, nil)
	}
}

func writeError(c *gin.Context, status int, code, message string, details interface{}) {
	body := gin.H{"code": code, "message": message}
	if details != nil {
		body["details"] = details
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

// bindJSON decodes the request body into req and reports binding failures as
// VALIDATION_ERROR with one message per field.
func bindJSON(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		respondError(c, apperrors.Validation("Invalid input data", validationDetails(err)))
		return false
	}
	return true
}

func validationDetails(err error) map[string]string {
	details := map[string]string{}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		details["body"] = err.Error()
		return details
	}
	for _, fe := range verrs {
		field := lowerFirst(fe.Field())
		switch fe.Tag() {
		case "required":
			details[field] = field + " is required"
		case "email":
			details[field] = "Invalid email format"
		case "min":
			details[field] = field + " must be at least " + fe.Param() + " long"
		case "max":
			details[field] = field + " must be at most " + fe.Param() + " long"
		default:
			details[field] = field + " is invalid"
		}
	}
	return details
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
