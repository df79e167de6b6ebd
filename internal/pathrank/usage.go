package pathrank

import "context"

// UsageRecorder is the user-metrics hook fired once per served request.
type UsageRecorder interface {
	RecordSuccessfulQuery(ctx context.Context, userKey string) error
}

// UsageRecorderFunc adapts a function to UsageRecorder.
type UsageRecorderFunc func(ctx context.Context, userKey string) error

// RecordSuccessfulQuery implements UsageRecorder.
func (f UsageRecorderFunc) RecordSuccessfulQuery(ctx context.Context, userKey string) error {
	return f(ctx, userKey)
}

// NopUsageRecorder discards usage events.
type NopUsageRecorder struct{}

// RecordSuccessfulQuery implements UsageRecorder.
func (NopUsageRecorder) RecordSuccessfulQuery(context.Context, string) error { return nil }

// UsagePolicy selects which requests count as usage.
type UsagePolicy string

const (
	// UsagePolicyServed counts requests answered with a path, from cache or fresh.
	UsagePolicyServed UsagePolicy = "served"
	// UsagePolicyAttempt counts every answered request, including "no path" and
	// "no more paths" outcomes.
	UsagePolicyAttempt UsagePolicy = "attempt"
)

// ParseUsagePolicy maps a config value onto a policy, defaulting to UsagePolicyServed.
func ParseUsagePolicy(v string) UsagePolicy {
	if UsagePolicy(v) == UsagePolicyAttempt {
		return UsagePolicyAttempt
	}
	return UsagePolicyServed
}
