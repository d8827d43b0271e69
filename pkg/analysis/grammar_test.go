package analysis

import "testing"

func TestGrammarScore(t *testing.T) {
	tests := []struct {
		name       string
		errorCount int
		wordCount  int
		want       float64
	}{
		{"clean segment", 0, 10, 100},
		{"clean empty segment", 0, 0, 100},
		{"one error in ten words", 1, 10, 90},
		{"half errors", 5, 10, 50},
		{"more errors than words clamps to zero", 15, 10, 0},
		{"errors with no words", 3, 0, 0},
	}

	for _, tc := range tests {
		if got := grammarScore(tc.errorCount, tc.wordCount); got != tc.want {
			t.Errorf("%s: grammarScore(%d, %d) = %f, want %f", tc.name, tc.errorCount, tc.wordCount, got, tc.want)
		}
	}
}

func TestParseFeedbackPriority(t *testing.T) {
	if got := ParseFeedbackPriority("critical"); got != PriorityCritical {
		t.Errorf("parse critical = %s", got)
	}
	if got := ParseFeedbackPriority("invented-by-model"); got != PriorityMinor {
		t.Errorf("unknown severity must default to minor, got %s", got)
	}
}
