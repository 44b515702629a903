package handler

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/chatrelay/internal/middleware"
	"github.com/quocanhngo/chatrelay/internal/model"
	"github.com/quocanhngo/chatrelay/pkg/apperror"
)

// respondError writes err with the status its code maps to
func respondError(c *gin.Context, err error) {
	code := apperror.CodeOf(err)
	if code == apperror.CodeInternal || code == apperror.CodeStoreUnavailable {
		log.Printf("⚠️ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(apperror.HTTPStatus(err), model.ErrorResponse{
		Error: apperror.MessageOf(err),
		Code:  string(code),
	})
}

func currentUserID(c *gin.Context) uint64 {
	return c.MustGet(middleware.UserIDKey).(uint64)
}

func validationError(c *gin.Context, msg string, err error) {
	resp := model.ErrorResponse{Error: msg, Code: string(apperror.CodeValidation)}
	if err != nil {
		resp.Message = err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}
