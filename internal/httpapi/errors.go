package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/desktopai/runcontrol/internal/apperrors"
)

// writeError maps err's error kind to an HTTP status via
// apperrors.HTTPStatus and writes a JSON body, defaulting to 500 for
// unrecognized errors (internal-invariant territory this mapper was not
// told about).
func writeError(c *gin.Context, err error) {
	status, ok := apperrors.HTTPStatus(err)
	if !ok {
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func writeBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}
