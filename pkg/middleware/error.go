package middleware

import (
	"errors"
	"net/http"

	"goalplay-engagement/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// domainReasons are rejected with 400 and their own message.
var domainReasons = map[errutil.Reason]bool{
	errutil.ReasonInsufficientBalance:     true,
	errutil.ReasonInvalidArgument:         true,
	errutil.ReasonAlreadyClaimed:          true,
	errutil.ReasonAlreadyUnlocked:         true,
	errutil.ReasonSelfReferenceNotAllowed: true,
	errutil.ReasonDuplicateReferral:       true,
	errutil.ReasonExpired:                 true,
}

// Error renders the last handler error. Domain rejections keep their message,
// not found is generic and anything unexpected is a bare 500.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}

		var be errutil.BaseError
		if !errors.As(last.Err, &be) {
			zap.L().Error("unhandled error", zap.String("path", c.FullPath()), zap.Error(last.Err))
			be = errutil.BaseError{Code: errutil.StatusInternal, Message: "internal server error"}
			c.JSON(http.StatusInternalServerError, be.JSON())
			return
		}

		switch {
		case domainReasons[be.Reason]:
			c.JSON(http.StatusBadRequest, be.JSON())
		case be.Code == errutil.StatusNotFound:
			c.JSON(http.StatusNotFound, errutil.BaseError{
				Code:    errutil.StatusNotFound,
				Reason:  errutil.ReasonNotFound,
				Message: "resource not found",
			}.JSON())
		case be.Code.HTTPStatus() >= http.StatusInternalServerError:
			zap.L().Error("request failed", zap.String("path", c.FullPath()), zap.Error(be))
			c.JSON(be.Code.HTTPStatus(), errutil.BaseError{
				Code:    be.Code,
				Message: "internal server error",
			}.JSON())
		default:
			c.JSON(be.Code.HTTPStatus(), be.JSON())
		}
	}
}
