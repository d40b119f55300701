package service

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/repository"
	"edu_portal_backend/internal/util"
	"edu_portal_backend/pkg/logger"
	"edu_portal_backend/pkg/tracing"

	"go.uber.org/zap"
)

// ManualSummary aggregates marked assessment attempts for one student.
type ManualSummary struct {
	Key                string   `json:"key"`
	StudentID          *uint    `json:"studentId"`
	StudentEmail       string   `json:"studentEmail"`
	AttemptsCount      int      `json:"attemptsCount"`
	TotalScore         int      `json:"totalScore"`
	PossibleTotalMarks int      `json:"possibleTotalMarks"`
	PercentOfTotal     *float64 `json:"percentOfTotal"`
	AvgScore           float64  `json:"avgScore"`
}

// AISummary aggregates puzzle attempts for one user. It is never merged
// into ManualSummary; the two scales differ.
type AISummary struct {
	Key           string  `json:"key"`
	UserID        *string `json:"userId"`
	StudentEmail  string  `json:"studentEmail"`
	StudentName   string  `json:"studentName"`
	AttemptsCount int     `json:"attemptsCount"`
	TotalCorrect  int     `json:"totalCorrect"`
	TotalPossible int     `json:"totalPossible"`
	AvgScorePct   float64 `json:"avgScorePct"`
}

func (s ManualSummary) SearchText() string {
	return strings.Join([]string{s.Key, s.StudentEmail}, " ")
}

func (s ManualSummary) Column(name string) (float64, bool) {
	switch name {
	case "attemptsCount", "attempts_count":
		return float64(s.AttemptsCount), true
	case "totalScore", "total_score":
		return float64(s.TotalScore), true
	case "possibleTotalMarks", "possible_total_marks":
		return float64(s.PossibleTotalMarks), true
	case "percentOfTotal", "percent_of_total":
		if s.PercentOfTotal == nil {
			return 0, true
		}
		return *s.PercentOfTotal, true
	case "avgScore", "avg_score":
		return s.AvgScore, true
	}
	return 0, false
}

func (s AISummary) SearchText() string {
	return strings.Join([]string{s.Key, s.StudentEmail, s.StudentName}, " ")
}

func (s AISummary) Column(name string) (float64, bool) {
	switch name {
	case "attemptsCount", "attempts_count":
		return float64(s.AttemptsCount), true
	case "totalCorrect", "total_correct":
		return float64(s.TotalCorrect), true
	case "totalPossible", "total_possible":
		return float64(s.TotalPossible), true
	case "avgScorePct", "avg_score_pct":
		return s.AvgScorePct, true
	}
	return 0, false
}

// Summary is what FilterSummaries and SortSummaries operate on.
type Summary interface {
	SearchText() string
	Column(name string) (float64, bool)
}

func manualKey(a *model.Attempt) string {
	switch {
	case a.StudentID != nil:
		return strconv.FormatUint(uint64(*a.StudentID), 10)
	case a.StudentEmail != "":
		return a.StudentEmail
	}
	return fmt.Sprintf("u-%d", a.ID)
}

// AggregateManual groups attempts by student id, then email. Groups keep the
// order in which their first attempt appears.
func AggregateManual(attempts []model.Attempt) []ManualSummary {
	return aggregateManualBy(attempts, manualKey)
}

func aggregateManualBy(attempts []model.Attempt, keyOf func(*model.Attempt) string) []ManualSummary {
	out := make([]ManualSummary, 0)
	index := make(map[string]int)
	seen := make(map[string]map[uint]struct{})

	for i := range attempts {
		a := &attempts[i]
		key := keyOf(a)
		pos, ok := index[key]
		if !ok {
			pos = len(out)
			index[key] = pos
			seen[key] = make(map[uint]struct{})
			out = append(out, ManualSummary{Key: key, StudentID: a.StudentID, StudentEmail: a.StudentEmail})
		}
		sum := &out[pos]
		if sum.StudentID == nil && a.StudentID != nil {
			sum.StudentID = a.StudentID
		}
		if sum.StudentEmail == "" {
			sum.StudentEmail = a.StudentEmail
		}
		sum.AttemptsCount++
		sum.TotalScore += util.IntValue(a.Score)

		// 同一测试只计一次满分
		if _, counted := seen[key][a.AssessmentID]; !counted && a.Assessment != nil {
			seen[key][a.AssessmentID] = struct{}{}
			if a.Assessment.TotalMarks > 0 {
				sum.PossibleTotalMarks += a.Assessment.TotalMarks
			}
		}
	}

	for i := range out {
		sum := &out[i]
		if sum.PossibleTotalMarks > 0 {
			pct := util.Round2(float64(sum.TotalScore) / float64(sum.PossibleTotalMarks) * 100)
			sum.PercentOfTotal = &pct
		}
		if sum.AttemptsCount > 0 {
			sum.AvgScore = util.Round2(float64(sum.TotalScore) / float64(sum.AttemptsCount))
		}
	}
	return out
}

func aiKey(a *model.AIAttempt) string {
	if a.UserID != nil && *a.UserID != "" {
		return *a.UserID
	}
	return "anon-" + a.ID
}

func nonNegative(p *int) int {
	if v := util.IntValue(p); v > 0 {
		return v
	}
	return 0
}

// AggregateAI groups AI attempts by user id. Missing or negative counts
// contribute nothing.
func AggregateAI(attempts []model.AIAttempt) []AISummary {
	return aggregateAIBy(attempts, aiKey)
}

func aggregateAIBy(attempts []model.AIAttempt, keyOf func(*model.AIAttempt) string) []AISummary {
	out := make([]AISummary, 0)
	index := make(map[string]int)

	for i := range attempts {
		a := &attempts[i]
		key := keyOf(a)
		pos, ok := index[key]
		if !ok {
			pos = len(out)
			index[key] = pos
			out = append(out, AISummary{Key: key, UserID: a.UserID})
		}
		sum := &out[pos]
		if sum.UserID == nil && a.UserID != nil {
			sum.UserID = a.UserID
		}
		if sum.StudentEmail == "" {
			sum.StudentEmail = a.StudentEmail
		}
		if sum.StudentName == "" {
			sum.StudentName = a.StudentName
		}
		sum.AttemptsCount++
		sum.TotalCorrect += nonNegative(a.CorrectCount)
		sum.TotalPossible += nonNegative(a.TotalPuzzles)
	}

	for i := range out {
		sum := &out[i]
		possible := sum.TotalPossible
		if possible < 1 {
			possible = 1
		}
		sum.AvgScorePct = util.Round2(float64(sum.TotalCorrect) / float64(possible) * 100)
	}
	return out
}

// EnrichAI fills missing names and emails from profiles keyed by user id.
func EnrichAI(rows []AISummary, profiles map[string]model.Profile) {
	for i := range rows {
		if rows[i].UserID == nil {
			continue
		}
		p, ok := profiles[*rows[i].UserID]
		if !ok {
			continue
		}
		if rows[i].StudentName == "" {
			rows[i].StudentName = p.DisplayName()
		}
		if rows[i].StudentEmail == "" {
			rows[i].StudentEmail = p.Email
		}
	}
}

// FilterSummaries keeps rows whose identity contains q, ignoring case.
func FilterSummaries[T Summary](rows []T, q string) []T {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return rows
	}
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		if strings.Contains(strings.ToLower(r.SearchText()), q) {
			out = append(out, r)
		}
	}
	return out
}

type SortSpec struct {
	Key string
	Dir string
}

// SortSummaries orders rows in place by a numeric column. Ties keep their
// grouping order in both directions.
func SortSummaries[T Summary](rows []T, order SortSpec) error {
	if order.Key == "" {
		return nil
	}
	var zero T
	if _, ok := zero.Column(order.Key); !ok {
		return util.Validationf("unknown sort column %q", order.Key)
	}
	desc := false
	switch strings.ToLower(order.Dir) {
	case "", util.SortAsc:
	case util.SortDesc:
		desc = true
	default:
		return util.Validationf("sort direction must be asc or desc")
	}
	sort.SliceStable(rows, func(i, j int) bool {
		a, _ := rows[i].Column(order.Key)
		b, _ := rows[j].Column(order.Key)
		if desc {
			return a > b
		}
		return a < b
	})
	return nil
}

type MarksQuery struct {
	Search     string `form:"search"`
	ManualSort string `form:"manualSort"`
	ManualDir  string `form:"manualDir"`
	AISort     string `form:"aiSort"`
	AIDir      string `form:"aiDir"`
}

// MarksReport shows both sources side by side.
type MarksReport struct {
	Manual []ManualSummary `json:"manual"`
	AI     []AISummary     `json:"ai"`
	// AITruncated is set when the AI source returned a full page and older
	// attempts were left out of the summaries.
	AITruncated bool `json:"aiTruncated,omitempty"`
}

type StudentMarks struct {
	Manual *ManualSummary `json:"manual"`
	AI     *AISummary     `json:"ai"`
}

type MarksService struct {
	Manual   ManualAttemptSource
	AI       AIAttemptSource
	Identity *IdentityService
}

func NewMarksService(manual ManualAttemptSource, ai AIAttemptSource, identity *IdentityService) *MarksService {
	return &MarksService{Manual: manual, AI: ai, Identity: identity}
}

func (s *MarksService) Report(ctx context.Context, q MarksQuery) (*MarksReport, error) {
	ctx, span := tracing.Tracer().Start(ctx, "MarksService.Report")
	defer span.End()

	attempts, err := s.Manual.ListByStudent(ctx, model.StudentIdentity{})
	if err != nil {
		return nil, util.NewStorageError("list attempts", err)
	}
	aiAttempts, err := s.AI.ListByStudent(ctx, model.StudentIdentity{})
	if err != nil {
		return nil, util.NewStorageError("list ai attempts", err)
	}

	truncated := len(aiAttempts) >= repository.AIAttemptListLimit
	if truncated {
		logger.Log.Warn("marks report built from a truncated ai attempt set",
			zap.Int("rows", len(aiAttempts)))
	}

	manual := AggregateManual(attempts)
	ai := AggregateAI(aiAttempts)
	s.enrich(ctx, ai)

	manual = FilterSummaries(manual, q.Search)
	ai = FilterSummaries(ai, q.Search)
	if err := SortSummaries(manual, SortSpec{Key: q.ManualSort, Dir: q.ManualDir}); err != nil {
		return nil, err
	}
	if err := SortSummaries(ai, SortSpec{Key: q.AISort, Dir: q.AIDir}); err != nil {
		return nil, err
	}
	return &MarksReport{Manual: manual, AI: ai, AITruncated: truncated}, nil
}

func (s *MarksService) enrich(ctx context.Context, rows []AISummary) {
	if s.Identity == nil {
		return
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		if r.UserID != nil {
			ids = append(ids, *r.UserID)
		}
	}
	EnrichAI(rows, s.Identity.ProfilesByIDs(ctx, ids))
}

// StudentMarks summarises one student's attempts from both sources. A
// source with no attempts yields a nil summary.
func (s *MarksService) StudentMarks(ctx context.Context, identity model.StudentIdentity) (*StudentMarks, error) {
	if identity.IsZero() {
		return nil, fmt.Errorf("%w: student identity is required", util.ErrInvalidStudent)
	}
	ctx, span := tracing.Tracer().Start(ctx, "MarksService.StudentMarks")
	defer span.End()

	// AI 记录按 profile 关联，令牌中缺少用户ID时按邮箱补全
	if identity.UserID == "" && identity.Email != "" && s.Identity != nil {
		if p := s.Identity.ProfileByEmail(ctx, identity.Email); p != nil {
			identity.UserID = p.ID
		}
	}

	attempts, err := s.Manual.ListByStudent(ctx, identity)
	if err != nil {
		return nil, util.NewStorageError("list attempts", err)
	}
	aiAttempts, err := s.AI.ListByStudent(ctx, identity)
	if err != nil {
		return nil, util.NewStorageError("list ai attempts", err)
	}

	label := identity.Label()
	out := &StudentMarks{}
	if rows := aggregateManualBy(attempts, func(*model.Attempt) string { return label }); len(rows) > 0 {
		out.Manual = &rows[0]
	}
	if rows := aggregateAIBy(aiAttempts, func(*model.AIAttempt) string { return label }); len(rows) > 0 {
		s.enrich(ctx, rows)
		out.AI = &rows[0]
	}
	return out, nil
}
