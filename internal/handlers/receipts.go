package handlers

import (
	"fmt"
	"net/http"

	"github.com/chachabrian/poolit-backend/internal/middleware"
	"github.com/chachabrian/poolit-backend/internal/services"
	"github.com/gin-gonic/gin"
)

// DownloadReceipt streams the PDF receipt of a paid booking.
func DownloadReceipt(receipts *services.ReceiptService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := idParam(c, "id")
		if !ok {
			return
		}
		r, err := receipts.Generate(c.Request.Context(), middleware.UserID(c), id)
		if err != nil {
			respondError(c, err)
			return
		}
		if r.URL != "" {
			c.Header("X-Receipt-URL", r.URL)
		}
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, r.Filename))
		c.Data(http.StatusOK, "application/pdf", r.Data)
	}
}
