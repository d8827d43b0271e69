package analysis

import (
	"context"
	"strings"
)

// hesitationPatterns are the filler words counted against fluency.
var hesitationPatterns = []string{"um", "uh", "er", "ah", "like", "you know"}

// analyzeFluency computes fluency metrics locally, with no AI call.
// A segment with zero duration or no words cannot be rated (undefined
// speech rate) and is skipped entirely.
func (a *Analyzer) analyzeFluency(_ context.Context, segment AudioSegment, session *Session) subAnalysisResult {
	result := subAnalysisResult{category: AnalysisFluency}

	wordCount := len(strings.Fields(segment.Text))
	if segment.Duration <= 0 || wordCount == 0 {
		return result
	}

	speechRate := float64(wordCount) / segment.Duration * 60

	cfg := ConfigForLanguage(session.Language)

	lowered := strings.ToLower(segment.Text)
	hesitationCount := 0
	for _, pattern := range hesitationPatterns {
		if strings.Contains(lowered, pattern) {
			hesitationCount++
		}
	}

	// Pause detection is a transcript-level approximation: punctuation
	// stands in for audible silence until real audio timing is available.
	pauseCount := strings.Count(segment.Text, "...") +
		strings.Count(segment.Text, ",") +
		strings.Count(segment.Text, ".")

	confidenceScore := segment.Confidence * (1 - float64(hesitationCount)/float64(max(wordCount, 1)))

	fluency := FluencyMetrics{
		SpeechRate:       speechRate,
		PauseCount:       pauseCount,
		PauseDuration:    0,
		HesitationCount:  hesitationCount,
		ArticulationRate: speechRate,
		ConfidenceScore:  confidenceScore,
		RhythmScore:      0.8,
	}

	var tips []string

	if speechRate < cfg.MinSpeechRate {
		tips = append(tips, "Consider speaking a bit faster for more natural flow")
	} else if speechRate > cfg.MaxSpeechRate {
		tips = append(tips, "Try slowing down slightly for better clarity")
	}

	if float64(hesitationCount) > float64(wordCount)*0.1 {
		tips = append(tips, "Try to reduce filler words like 'um' and 'uh'")
	}

	if confidenceScore < 0.7 {
		tips = append(tips, "Practice will help build speaking confidence")
	}

	if len(tips) > 0 {
		result.feedback = []RealTimeFeedback{{
			ID:          feedbackID("flu", session.ID),
			Timestamp:   a.now(),
			Type:        AnalysisFluency,
			Priority:    PrioritySuggestion,
			Message:     "Fluency suggestions",
			Explanation: strings.Join(tips, "; "),
			Fluency:     &fluency,
			Confidence:  0.8,
			Actionable:  true,
		}}
	}

	rateRatio := speechRate / cfg.MaxSpeechRate
	if rateRatio > 1 {
		rateRatio = 1
	}
	hesitationPenalty := 1 - float64(hesitationCount)/float64(wordCount)
	if hesitationPenalty < 0 {
		hesitationPenalty = 0
	}

	result.metrics = &fluency
	result.score = confidenceScore*40 + rateRatio*30 + hesitationPenalty*30
	result.scored = true
	return result
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
