package collectors

import (
	"context"
	"errors"
	"fmt"
)

// Non-fatal fetch problems become short messages in SourceMetrics.Errors so
// the classifier prompts and the API response can surface them verbatim.

func statusErrorMessage(code int) string {
	if code == 429 {
		return "Rate limited"
	}
	return fmt.Sprintf("HTTP %d", code)
}

func requestErrorMessage(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "Request timeout"
	}
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return "Request timeout"
	}
	return fmt.Sprintf("Network error: %v", err)
}
