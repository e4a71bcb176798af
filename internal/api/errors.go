package api

import (
	"errors"
	"net/http"

	"barter-service/internal/apperr"
	"barter-service/internal/util"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var statusByKind = map[apperr.Kind]int{
	apperr.KindNotFound:          http.StatusNotFound,
	apperr.KindForbidden:         http.StatusForbidden,
	apperr.KindConflict:          http.StatusConflict,
	apperr.KindSelfTradeRejected: http.StatusMethodNotAllowed,
	apperr.KindTradeClosed:       http.StatusMethodNotAllowed,
	apperr.KindInvalid:           http.StatusBadRequest,
}

// respondError writes the status for err's kind. Storage and unclassified failures are
// logged and reported without detail.
func respondError(c *gin.Context, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		if status, ok := statusByKind[appErr.Kind]; ok {
			c.JSON(status, gin.H{
				"error": appErr.Msg,
				"kind":  appErr.Kind,
			})
			return
		}
	}

	util.LoggerFromContext(c.Request.Context()).Error("Request failed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{
		"error": "internal server error",
	})
}
