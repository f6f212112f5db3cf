package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/swappnet/swapp/internal/service"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Signatures []string `json:"signatures,omitempty"`
}

// SuccessResponse 成功响应
type SuccessResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func success(c *gin.Context, message string, data interface{}) {
	c.JSON(http.StatusOK, SuccessResponse{Code: "SUCCESS", Message: message, Data: data})
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Code: code, Message: message})
}

// fail 将服务层错误映射为 HTTP 状态码
func fail(c *gin.Context, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	resp := ErrorResponse{Message: err.Error()}

	var rej *service.CommandRejectedError
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "INVALID_PARAMS"
	case errors.As(err, &rej):
		status, code = http.StatusUnprocessableEntity, "COMMAND_REJECTED"
		resp.Signatures = rej.Signatures
	case errors.Is(err, service.ErrConnectionUnavailable):
		status, code = http.StatusServiceUnavailable, "CONNECTION_UNAVAILABLE"
	case errors.Is(err, service.ErrCommandTimeout), errors.Is(err, context.DeadlineExceeded):
		status, code = http.StatusGatewayTimeout, "COMMAND_TIMEOUT"
	case errors.Is(err, service.ErrParseIncomplete):
		status, code = http.StatusBadGateway, "PARSE_INCOMPLETE"
	case errors.Is(err, context.Canceled):
		status, code = 499, "REQUEST_CANCELED"
	}
	resp.Code = code
	c.JSON(status, resp)
}
