package analysis

import (
	"context"
	"fmt"
	"strings"

	"fluently-server/pkg/errors"
)

// grammarErrorPayload is one element of the JSON array the grammar prompt
// asks the model to return.
type grammarErrorPayload struct {
	ErrorType   string   `json:"error_type"`
	Start       int      `json:"start"`
	End         int      `json:"end"`
	Severity    string   `json:"severity"`
	Correction  string   `json:"correction"`
	Explanation string   `json:"explanation"`
	Rule        string   `json:"rule"`
	Confidence  *float64 `json:"confidence"`
}

func grammarPrompt(segment AudioSegment, language string, rules []string) string {
	return fmt.Sprintf(`Analyze the grammar of this %s text for language learning feedback:

Text: %q
Language: %s
Focus areas: %s

Identify grammar errors and provide:
1. Error type and position
2. Severity (critical/important/minor)
3. Correct version
4. Simple explanation for language learners
5. Grammar rule being violated

Return as JSON array with: error_type, start, end, severity, correction, explanation, rule, confidence.
Only include actual errors, not style suggestions.`,
		language, segment.Text, language, strings.Join(rules, ", "))
}

// analyzeGrammar asks the AI provider for a list of grammar errors and maps
// each one onto a feedback item. The per-call grammar quality score is
// appended once per call regardless of how many errors came back.
func (a *Analyzer) analyzeGrammar(ctx context.Context, segment AudioSegment, session *Session) subAnalysisResult {
	result := subAnalysisResult{category: AnalysisGrammar}

	ctx, cancel := context.WithTimeout(ctx, a.callTimeout)
	defer cancel()

	rules := ConfigForLanguage(session.Language).GrammarRules
	response, err := a.provider.GenerateResponse(ctx, grammarPrompt(segment, session.Language, rules), session.Language)
	if err != nil {
		result.err = errors.Wrap(errors.ErrProviderFailure, "grammar analysis call failed").
			WithField("session_id", session.ID)
		return result
	}

	var grammarErrors []grammarErrorPayload
	if err := DecodeJSON(response, &grammarErrors); err != nil {
		result.err = errors.Wrap(errors.ErrResponseParse, "failed to parse grammar analysis JSON").
			WithField("session_id", session.ID)
		return result
	}

	for _, payload := range grammarErrors {
		if payload.ErrorType == "" {
			payload.ErrorType = "grammar_error"
		}
		if payload.End == 0 {
			payload.End = len(segment.Text)
		}
		confidence := 0.7
		if payload.Confidence != nil {
			confidence = *payload.Confidence
		}

		issue := &GrammarIssue{
			Text:        segment.Text,
			ErrorType:   payload.ErrorType,
			Start:       payload.Start,
			End:         payload.End,
			Severity:    ParseFeedbackPriority(payload.Severity),
			Correction:  payload.Correction,
			Explanation: payload.Explanation,
			Rule:        payload.Rule,
			Confidence:  confidence,
		}

		result.feedback = append(result.feedback, RealTimeFeedback{
			ID:          feedbackID("gram", session.ID),
			Timestamp:   a.now(),
			Type:        AnalysisGrammar,
			Priority:    issue.Severity,
			Message:     fmt.Sprintf("Grammar: %s", issue.ErrorType),
			Correction:  issue.Correction,
			Explanation: issue.Explanation,
			Grammar:     issue,
			Confidence:  confidence,
			Actionable:  issue.Correction != "",
		})
	}

	result.score = grammarScore(len(grammarErrors), len(strings.Fields(segment.Text)))
	result.scored = true
	return result
}

// grammarScore is the per-call quality score: 100 for a clean segment,
// otherwise penalized by the error density.
func grammarScore(errorCount, wordCount int) float64 {
	if errorCount == 0 {
		return 100
	}
	if wordCount == 0 {
		return 0
	}

	score := 100 - float64(errorCount)/float64(wordCount)*100
	if score < 0 {
		return 0
	}
	return score
}
