package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dqmpipeline/dqm/internal/dqmlog"
	"github.com/dqmpipeline/dqm/internal/model"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Code        int    `json:"code"`
}

// SuccessResponse 通用成功响应
type SuccessResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// errorName 错误对应的响应名称
func errorName(err error) (string, int) {
	switch {
	case errors.Is(err, model.ErrMalformedConfig):
		return "MalformedConfigError", http.StatusBadRequest
	case errors.Is(err, model.ErrEmptySource):
		return "EmptySourceError", http.StatusInternalServerError
	case errors.Is(err, dqmlog.ErrSinkDelivery):
		return "SinkDeliveryError", http.StatusInternalServerError
	default:
		return "InternalServerError", http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	name, code := errorName(err)
	c.JSON(code, ErrorResponse{Name: name, Description: err.Error(), Code: code})
}

// bindError 请求体无法解析时按配置错误处理
func bindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Name:        "MalformedConfigError",
		Description: err.Error(),
		Code:        http.StatusBadRequest,
	})
}
