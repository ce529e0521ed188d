package eth

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net"
	"strings"
)

func IsRetryableEthError(err error) bool {
	// Context was explicitly canceled or deadline exceeded; not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	retryableMessages := []string{
		"connection refused",
		"connection reset",
		"EOF",
		"too many requests",
		"request timed out",
	}
	errStr := err.Error()

	for _, msg := range retryableMessages {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}

func toBigInt(value interface{}) (*big.Int, error) {
	result, ok := value.(*big.Int)
	if !ok || result == nil {
		return nil, fmt.Errorf("value is not a big integer")
	}

	return result, nil
}
