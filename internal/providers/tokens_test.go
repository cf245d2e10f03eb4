package providers

import "testing"

func TestEstimateUsage(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantIn  int
		wantOut int
	}{
		{"empty", "", 0, 0},
		{"one word", "hello", 0, 1},
		{"six words", "the quick brown fox jumps over", 2, 6},
		{"whitespace runs", "  a\t\tb\n\nc  ", 1, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := EstimateUsage(tt.content)
			if u.InputTokens != tt.wantIn || u.OutputTokens != tt.wantOut {
				t.Errorf("EstimateUsage() = in %d out %d, want in %d out %d",
					u.InputTokens, u.OutputTokens, tt.wantIn, tt.wantOut)
			}
			if u.TotalTokens != tt.wantIn+tt.wantOut {
				t.Errorf("TotalTokens = %d, want %d", u.TotalTokens, tt.wantIn+tt.wantOut)
			}
			if !u.Estimated {
				t.Error("Estimated flag not set")
			}
		})
	}
}

func TestFinishUsage(t *testing.T) {
	t.Run("provider counts kept", func(t *testing.T) {
		u := finishUsage(Usage{InputTokens: 100, OutputTokens: 50, TotalTokens: 150}, "ignored content")
		if u.Estimated {
			t.Error("provider-supplied counts flagged as estimated")
		}
		if u.TotalTokens != 150 {
			t.Errorf("TotalTokens = %d", u.TotalTokens)
		}
	})

	t.Run("total backfilled", func(t *testing.T) {
		u := finishUsage(Usage{InputTokens: 100, OutputTokens: 50}, "x")
		if u.TotalTokens != 150 {
			t.Errorf("TotalTokens = %d, want 150", u.TotalTokens)
		}
	})

	t.Run("estimator runs when provider reported nothing", func(t *testing.T) {
		u := finishUsage(Usage{}, "three whole words")
		if !u.Estimated {
			t.Error("estimator result not flagged")
		}
		if u.OutputTokens != 3 {
			t.Errorf("OutputTokens = %d, want 3", u.OutputTokens)
		}
	})
}
