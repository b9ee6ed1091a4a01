package retry

import "context"

// Validator checks a raw API result and converts it to the caller's type.
// Returning an error marks the result as unusable; errors matching
// IsLogicalValidation trigger another full call-and-validate cycle.
type Validator[R, T any] func(raw R) (T, error)

// Metrics describes the work performed by DoTwoLayer.
type Metrics struct {
	// APIRetries is an estimate of transport retries, see DoTwoLayer.
	APIRetries     int `json:"api_retries"`
	LogicalRetries int `json:"logical_retries"`
	// TotalAttempts counts every invocation of the API call.
	TotalAttempts int `json:"total_attempts"`
}

// Outcome is the validated result of DoTwoLayer.
type Outcome[T any] struct {
	Result  T       `json:"result"`
	Metrics Metrics `json:"metrics"`
}

// DoTwoLayer runs apiCall through Do (apiOpts over TransportDefaults) and
// validates the result. Logical validation failures re-run the whole cycle up
// to the logical budget (logicalOpts over LogicalDefaults); other validator
// errors and transport failures are returned immediately.
//
// APIRetries is derived from the running attempt counter as
// TotalAttempts-1-index*(apiMaxRetries+1), clamped at zero, per logical
// attempt. The formula assumes each earlier logical attempt spent its whole
// transport budget, so it undercounts when an earlier call succeeded early.
func DoTwoLayer[R, T any](ctx context.Context, apiCall Operation[R], validate Validator[R, T], apiOpts, logicalOpts []Option) (*Outcome[T], error) {
	api := newSettings(TransportDefaults(), apiOpts)
	logical := newSettings(LogicalDefaults(), logicalOpts)

	var m Metrics
	counted := func(ctx context.Context) (R, error) {
		m.TotalAttempts++
		return apiCall(ctx)
	}

	for idx := 0; idx <= logical.cfg.MaxRetries; idx++ {
		raw, err := do(ctx, counted, api)
		if err != nil {
			return nil, err
		}

		if r := m.TotalAttempts - 1 - idx*(api.cfg.MaxRetries+1); r > 0 {
			m.APIRetries += r
		}

		result, verr := validate(raw)
		if verr == nil {
			return &Outcome[T]{Result: result, Metrics: m}, nil
		}
		if idx == logical.cfg.MaxRetries {
			return nil, verr
		}
		if !IsLogicalValidation(verr) {
			return nil, verr
		}

		m.LogicalRetries++
		delay := Backoff(logical.cfg, idx)
		if logical.notify != nil {
			logical.notify(idx+1, verr, delay)
		}
		if logical.cfg.BaseDelay > 0 && delay > 0 {
			if serr := sleep(ctx, delay); serr != nil {
				return nil, serr
			}
		}
	}
	return nil, ErrInvariant
}
