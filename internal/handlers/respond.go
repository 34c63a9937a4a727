package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/chachabrian/poolit-backend/internal/apperrors"
	"github.com/gin-gonic/gin"
)

// respondError writes err using the application error taxonomy. Payment
// trust failures get a generic message so clients cannot probe the check.
func respondError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error", "code": apperrors.CodeInternal})
		return
	}

	status := apperrors.HTTPStatus(appErr)
	body := gin.H{"error": appErr.Message, "code": appErr.Code}
	switch appErr.Kind {
	case apperrors.KindTrust:
		body["error"] = "payment verification failed"
	case apperrors.KindInternal:
		c.Error(err)
		body["error"] = "internal server error"
	default:
		if len(appErr.Details) > 0 {
			body["details"] = appErr.Details
		}
	}
	c.JSON(status, body)
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error(), "code": apperrors.CodeValidation})
}

// idParam parses a positive numeric path parameter.
func idParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		respondError(c, apperrors.Validation(name, "must be a positive integer"))
		return 0, false
	}
	return uint(id), true
}
