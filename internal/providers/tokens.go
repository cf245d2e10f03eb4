package providers

import "strings"

// EstimateUsage approximates token counts when a provider reports none:
// output = whitespace-split word count of the generated text, input is
// assumed to be a third of that. Responses carrying estimated counts are
// flagged so downstream accounting can tell them apart.
func EstimateUsage(content string) Usage {
	out := len(strings.Fields(content))
	in := out / 3
	return Usage{
		InputTokens:  in,
		OutputTokens: out,
		TotalTokens:  in + out,
		Estimated:    true,
	}
}

// finishUsage fills in missing counts on a provider-reported usage. The
// invariant total >= input+output holds for provider-supplied values; when
// the provider omitted everything the estimator runs instead.
func finishUsage(u Usage, content string) Usage {
	if u.InputTokens == 0 && u.OutputTokens == 0 {
		return EstimateUsage(content)
	}
	if u.TotalTokens < u.InputTokens+u.OutputTokens {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}
