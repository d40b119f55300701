package service

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/util"
	"edu_portal_backend/pkg/logger"
	"edu_portal_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// SubmittedAnswer is one answer in a completion payload. Answer may be an
// option number, option text, a list of either, or free text.
type SubmittedAnswer struct {
	QuestionID uint            `json:"questionId" binding:"required"`
	Answer     json.RawMessage `json:"answer" swaggertype:"object"`
}

type QuestionResult struct {
	QuestionID        uint   `json:"questionId"`
	Correct           bool   `json:"correct"`
	MarksAwarded      int    `json:"marksAwarded"`
	NeedsManualReview bool   `json:"needsManualReview"`
	Expected          string `json:"expectedSolution,omitempty"`
	Explanation       string `json:"explanation,omitempty"`
}

type ScoreCard struct {
	Results    []QuestionResult `json:"results"`
	Correct    int              `json:"correct"`
	Score      int              `json:"score"`
	TotalMarks int              `json:"totalMarks"`
	Percentage *float64         `json:"percentage"`
	Clamped    bool             `json:"clamped,omitempty"`
}

// submission is a decoded answer: one token for a scalar, several for a list.
type submission struct {
	tokens []string
	list   bool
}

func (s submission) empty() bool {
	return len(s.tokens) == 0
}

func (s submission) single() (string, bool) {
	if len(s.tokens) != 1 {
		return "", false
	}
	return s.tokens[0], true
}

func decodeSubmission(raw json.RawMessage) (submission, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return submission{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return submission{}, err
	}
	switch t := v.(type) {
	case json.Number:
		return submission{tokens: []string{t.String()}}, nil
	case string:
		if strings.TrimSpace(t) == "" {
			return submission{}, nil
		}
		return submission{tokens: []string{t}}, nil
	case []interface{}:
		out := submission{list: true}
		for _, item := range t {
			switch e := item.(type) {
			case json.Number:
				out.tokens = append(out.tokens, e.String())
			case string:
				out.tokens = append(out.tokens, e)
			default:
				return submission{}, util.Validationf("answer list may only hold numbers or strings")
			}
		}
		return out, nil
	}
	return submission{}, util.Validationf("answer must be a number, a string or a list")
}

// optionIndex resolves a token to a 1-based option number: either the number
// itself or the position of an option with the same trimmed text.
func optionIndex(token string, options []string) (int, bool) {
	token = strings.TrimSpace(token)
	if n, err := strconv.Atoi(token); err == nil {
		return n, true
	}
	for i, opt := range options {
		if strings.TrimSpace(opt) == token {
			return i + 1, true
		}
	}
	return 0, false
}

func optionText(idx int, options []string) (string, bool) {
	if idx < 1 || idx > len(options) {
		return "", false
	}
	return options[idx-1], true
}

func containsIndex(set []int, idx int) bool {
	for _, v := range set {
		if v == idx {
			return true
		}
	}
	return false
}

func matchChoice(correct model.CorrectAnswer, options []string, sub submission) bool {
	if sub.empty() {
		return false
	}
	switch correct.Kind {
	case model.AnswerIndex:
		token, ok := sub.single()
		if !ok {
			return false
		}
		idx, ok := optionIndex(token, options)
		return ok && idx == correct.Index
	case model.AnswerIndexSet:
		// any-of: every submitted option must be one of the accepted ones
		for _, token := range sub.tokens {
			idx, ok := optionIndex(token, options)
			if !ok || !containsIndex(correct.Indices, idx) {
				return false
			}
		}
		return true
	case model.AnswerText:
		token, ok := sub.single()
		if !ok {
			return false
		}
		want := strings.TrimSpace(correct.Text)
		if strings.TrimSpace(token) == want {
			return true
		}
		if n, err := strconv.Atoi(strings.TrimSpace(token)); err == nil {
			if text, ok := optionText(n, options); ok {
				return strings.TrimSpace(text) == want
			}
		}
	}
	return false
}

// expectedSolution renders the accepted answer with option text where the
// index resolves.
func expectedSolution(q *model.Question) string {
	options := []string(q.Options)
	switch q.Correct.Kind {
	case model.AnswerIndex:
		if text, ok := optionText(q.Correct.Index, options); ok {
			return text
		}
	case model.AnswerIndexSet:
		parts := make([]string, 0, len(q.Correct.Indices))
		for _, idx := range q.Correct.Indices {
			if text, ok := optionText(idx, options); ok {
				parts = append(parts, text)
			} else {
				parts = append(parts, strconv.Itoa(idx))
			}
		}
		return strings.Join(parts, " | ")
	}
	return strings.TrimSpace(q.Correct.String())
}

// ScoreQuestion grades one answer. It is deterministic and never fails: an
// unreadable answer is simply wrong.
func ScoreQuestion(q *model.Question, raw json.RawMessage) QuestionResult {
	res := QuestionResult{QuestionID: q.ID, Explanation: q.Explanation}
	sub, err := decodeSubmission(raw)
	if err != nil {
		sub = submission{}
	}

	switch q.Type {
	case model.QuestionMCQ:
		res.Expected = expectedSolution(q)
		if q.Correct.IsBlank() {
			res.NeedsManualReview = true
			break
		}
		res.Correct = matchChoice(q.Correct, q.Options, sub)
	case model.QuestionShort:
		expected := strings.TrimSpace(q.Correct.String())
		res.Expected = expected
		if expected == "" {
			res.NeedsManualReview = true
			if res.Explanation == "" {
				res.Explanation = "no expected answer set; graded manually"
			}
			break
		}
		if token, ok := sub.single(); ok && !sub.list {
			res.Correct = strings.TrimSpace(token) == expected
		}
	default:
		res.NeedsManualReview = true
		if res.Explanation == "" {
			res.Explanation = "essay answers are graded manually"
		}
	}

	if res.Correct {
		res.MarksAwarded = q.Marks
	}
	return res
}

// ValidateAnswers rejects answers for questions outside the assessment,
// repeated question ids and answers of an unsupported JSON shape.
func ValidateAnswers(questions []model.Question, answers []SubmittedAnswer) error {
	known := make(map[uint]struct{}, len(questions))
	for _, q := range questions {
		known[q.ID] = struct{}{}
	}
	seen := make(map[uint]struct{}, len(answers))
	for _, ans := range answers {
		if _, ok := known[ans.QuestionID]; !ok {
			return util.Validationf("question %d is not part of this assessment", ans.QuestionID)
		}
		if _, dup := seen[ans.QuestionID]; dup {
			return util.Validationf("question %d answered more than once", ans.QuestionID)
		}
		seen[ans.QuestionID] = struct{}{}
		if _, err := decodeSubmission(ans.Answer); err != nil {
			return util.Validationf("question %d: %v", ans.QuestionID, err)
		}
	}
	return nil
}

// ScoreAssessment grades every question of a in question order. A positive
// TotalMarks caps the score; exceeding it is logged and counted.
func ScoreAssessment(a *model.Assessment, answers []SubmittedAnswer) ScoreCard {
	byQuestion := make(map[uint]json.RawMessage, len(answers))
	for _, ans := range answers {
		byQuestion[ans.QuestionID] = ans.Answer
	}

	card := ScoreCard{Results: make([]QuestionResult, 0, len(a.Questions)), TotalMarks: a.TotalMarks}
	possible := 0
	for i := range a.Questions {
		q := &a.Questions[i]
		res := ScoreQuestion(q, byQuestion[q.ID])
		card.Results = append(card.Results, res)
		card.Score += res.MarksAwarded
		possible += q.Marks
		if res.Correct {
			card.Correct++
		}
	}

	if a.TotalMarks > 0 && card.Score > a.TotalMarks {
		logger.Log.Warn("computed score exceeds assessment total marks, clamping",
			zap.Uint("assessment_id", a.ID),
			zap.Int("score", card.Score),
			zap.Int("total_marks", a.TotalMarks))
		monitoring.ScoreClamps.Inc()
		card.Score = a.TotalMarks
		card.Clamped = true
	}
	if card.TotalMarks <= 0 {
		card.TotalMarks = possible
	}
	if card.TotalMarks > 0 {
		pct := util.Round2(float64(card.Score) / float64(card.TotalMarks) * 100)
		card.Percentage = &pct
	}
	return card
}

// ValidateQuestion checks a question before it is stored.
func ValidateQuestion(q *model.Question) error {
	if !q.Type.Valid() {
		return util.Validationf("unknown question type %q", q.Type)
	}
	if strings.TrimSpace(q.Prompt) == "" {
		return util.Validationf("question text is required")
	}
	if q.Marks <= 0 {
		return util.Validationf("marks must be a positive integer")
	}
	if q.Type != model.QuestionMCQ {
		return nil
	}

	options := make([]string, 0, len(q.Options))
	for _, opt := range q.Options {
		if strings.TrimSpace(opt) != "" {
			options = append(options, opt)
		}
	}
	if len(options) == 0 {
		return util.Validationf("multiple-choice questions need at least one option")
	}
	if len(options) != len(q.Options) {
		return util.Validationf("options may not be blank")
	}

	switch q.Correct.Kind {
	case model.AnswerIndex:
		if _, ok := optionText(q.Correct.Index, options); !ok {
			return util.Validationf("correct option %d is out of range 1-%d", q.Correct.Index, len(options))
		}
	case model.AnswerIndexSet:
		if len(q.Correct.Indices) == 0 {
			return util.Validationf("correct option set is empty")
		}
		for _, idx := range q.Correct.Indices {
			if _, ok := optionText(idx, options); !ok {
				return util.Validationf("correct option %d is out of range 1-%d", idx, len(options))
			}
		}
	case model.AnswerText:
		want := strings.TrimSpace(q.Correct.Text)
		for _, opt := range options {
			if strings.TrimSpace(opt) == want {
				return nil
			}
		}
		return util.Validationf("correct answer %q matches no option", q.Correct.Text)
	default:
		return util.Validationf("multiple-choice questions need a correct answer")
	}
	return nil
}
