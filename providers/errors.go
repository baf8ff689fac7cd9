package providers

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/BaSui01/paperflow/types"
)

// mapTransportError 将网络层错误映射为统一错误码。
func mapTransportError(provider string, err error) *types.Error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return types.NewError(types.ErrTimeout, "request timed out").WithCause(err).WithRetryable(true).WithProvider(provider)
	case errors.As(err, &netErr) && netErr.Timeout():
		return types.NewError(types.ErrTimeout, "request timed out").WithCause(err).WithRetryable(true).WithProvider(provider)
	default:
		return types.NewError(types.ErrUpstreamError, "transport failure").WithCause(err).WithRetryable(true).WithProvider(provider)
	}
}

// mapHTTPError 将非 2xx 响应映射为统一错误码。
// 429 与 5xx 可重试，4xx 不可重试。
func mapHTTPError(provider string, status int, body []byte) *types.Error {
	msg := fmt.Sprintf("status %d: %s", status, truncate(string(body), 200))
	switch {
	case status == 429:
		return types.NewError(types.ErrRateLimited, msg).WithRetryable(true).WithProvider(provider)
	case status == 401 || status == 403:
		return types.NewError(types.ErrAuthentication, msg).WithProvider(provider)
	case status >= 500:
		return types.NewError(types.ErrUpstreamError, msg).WithRetryable(true).WithProvider(provider)
	default:
		return types.NewError(types.ErrInvalidRequest, msg).WithProvider(provider)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
