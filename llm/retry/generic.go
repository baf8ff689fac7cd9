package retry

import "context"

// DoWithResult is a type-safe generic wrapper around Retryer.Do that
// captures the result of the final successful attempt.
//
// Usage:
//
//	resp, err := retry.DoWithResult(r, ctx, func() (*llm.ChatResponse, error) {
//	    return p.Completion(ctx, req)
//	})
func DoWithResult[T any](r Retryer, ctx context.Context, fn func() (T, error)) (T, error) {
	var result T
	err := r.Do(ctx, func() error {
		var innerErr error
		result, innerErr = fn()
		return innerErr
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}
