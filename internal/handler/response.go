// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"talklens-go/internal/service"
)

// respondOK 按统一信封返回成功响应。
func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"code":    http.StatusOK,
		"message": "success",
		"data":    data,
	})
}

// respondError 将服务层错误翻译为 HTTP 状态码。
// 未识别的错误一律 500，不向客户端暴露内部细节。
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrRoomNotFound), errors.Is(err, service.ErrReportNotFound):
		c.JSON(http.StatusNotFound, gin.H{"code": http.StatusNotFound, "message": err.Error()})
	case errors.Is(err, service.ErrNotParticipant), errors.Is(err, service.ErrReportNotOwned):
		c.JSON(http.StatusForbidden, gin.H{"code": http.StatusForbidden, "message": err.Error()})
	case errors.Is(err, service.ErrRoomEnded),
		errors.Is(err, service.ErrInvalidSpeaker),
		errors.Is(err, service.ErrNameAlreadyUpdated),
		errors.Is(err, service.ErrEmptyConversation):
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"code": http.StatusInternalServerError, "message": "internal server error"})
	}
}

// respondBadRequest 返回参数校验失败响应。
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": message})
}
