package analysis

import (
	"context"
	"fmt"
	"strings"

	"fluently-server/pkg/errors"
)

// pronunciationPayload is the JSON contract the generation prompt asks for.
type pronunciationPayload struct {
	PhoneticTranscription string                   `json:"phonetic_transcription"`
	ExpectedPhonemes      []string                 `json:"expected_phonemes"`
	ActualPhonemes        []string                 `json:"actual_phonemes"`
	Score                 float64                  `json:"score"`
	Errors                []map[string]interface{} `json:"errors"`
	Suggestions           []string                 `json:"suggestions"`
	Confidence            *float64                 `json:"confidence"`
}

func pronunciationPrompt(segment AudioSegment, language string) string {
	return fmt.Sprintf(`Analyze the pronunciation quality of this transcribed speech in %s:

Text: %q
Language: %s
Duration: %.2fs
Confidence: %.2f

Provide pronunciation analysis including:
1. Overall pronunciation score (0-100)
2. Specific pronunciation errors
3. Phonetic issues to address
4. Improvement suggestions

Focus on common %s pronunciation challenges.
Return as JSON with: score, errors, suggestions, confidence.`,
		language, segment.Text, language, segment.Duration, segment.Confidence, language)
}

// analyzePronunciation asks the AI provider to score pronunciation of the
// segment and wraps the parsed result in a single feedback item. Provider
// and parse failures are soft: the outcome carries the error and nothing
// else, so the other categories still proceed.
func (a *Analyzer) analyzePronunciation(ctx context.Context, segment AudioSegment, session *Session) subAnalysisResult {
	result := subAnalysisResult{category: AnalysisPronunciation}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	response, err := a.provider.GenerateResponse(ctx, pronunciationPrompt(segment, session.Language), session.Language)
	if err != nil {
		result.err = errors.Wrap(errors.ErrProviderFailure, "pronunciation analysis call failed").
			WithField("session_id", session.ID)
		return result
	}

	var payload pronunciationPayload
	if err := DecodeJSON(response, &payload); err != nil {
		result.err = errors.Wrap(errors.ErrResponseParse, "failed to parse pronunciation analysis JSON").
			WithField("session_id", session.ID)
		return result
	}

	confidence := 0.5
	if payload.Confidence != nil {
		confidence = *payload.Confidence
	}

	pronunciation := &PronunciationAnalysis{
		Word:                  segment.Text,
		PhoneticTranscription: payload.PhoneticTranscription,
		ExpectedPhonemes:      payload.ExpectedPhonemes,
		ActualPhonemes:        payload.ActualPhonemes,
		Score:                 payload.Score,
		Errors:                payload.Errors,
		Suggestions:           payload.Suggestions,
		Confidence:            confidence,
	}

	var priority FeedbackPriority
	var message string
	switch {
	case pronunciation.Score < 60:
		priority = PriorityCritical
		message = fmt.Sprintf("Pronunciation needs improvement (Score: %.0f%%)", pronunciation.Score)
	case pronunciation.Score < 75:
		priority = PriorityImportant
		message = fmt.Sprintf("Good pronunciation with room for improvement (Score: %.0f%%)", pronunciation.Score)
	default:
		priority = PriorityMinor
		message = fmt.Sprintf("Excellent pronunciation! (Score: %.0f%%)", pronunciation.Score)
	}

	feedback := RealTimeFeedback{
		ID:            feedbackID("pron", session.ID),
		Timestamp:     a.now(),
		Type:          AnalysisPronunciation,
		Priority:      priority,
		Message:       message,
		Explanation:   strings.Join(pronunciation.Suggestions, "; "),
		Pronunciation: pronunciation,
		Confidence:    confidence,
		Actionable:    len(pronunciation.Suggestions) > 0,
	}

	result.feedback = []RealTimeFeedback{feedback}
	result.score = pronunciation.Score
	result.scored = true
	return result
}
