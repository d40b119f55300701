package service

import (
	"context"
	"strings"
	"time"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/util"
)

type AssessmentService struct {
	Repo     AssessmentStore
	Identity *IdentityService
	Location *time.Location
	Now      func() time.Time
}

func NewAssessmentService(repo AssessmentStore, identity *IdentityService, loc *time.Location) *AssessmentService {
	if loc == nil {
		loc = time.Local
	}
	return &AssessmentService{Repo: repo, Identity: identity, Location: loc, Now: time.Now}
}

type AssessmentRequest struct {
	Course     string `json:"course" binding:"required"`
	Level      string `json:"level" binding:"required"`
	Date       string `json:"date" binding:"required,isodate"`
	StartTime  string `json:"startTime" binding:"required,clock"`
	EndTime    string `json:"endTime" binding:"required,clock"`
	Duration   int    `json:"duration" binding:"gte=0"`
	TotalMarks int    `json:"totalMarks" binding:"gte=0"`
}

type QuestionRequest struct {
	Type        string              `json:"type" binding:"required"`
	Question    string              `json:"question" binding:"required"`
	Options     []string            `json:"options"`
	Correct     model.CorrectAnswer `json:"correct" swaggertype:"object"`
	Explanation string              `json:"explanation"`
	Marks       int                 `json:"marks" binding:"gte=0"`
	AIGenerated bool                `json:"aiGenerated"`
}

// StudentAssessment is an assessment as listed to a student, with its
// window resolved at request time.
type StudentAssessment struct {
	model.Assessment
	State            WindowState `json:"state"`
	RemainingSeconds int64       `json:"remainingSeconds,omitempty"`
	RemainingText    string      `json:"remainingText,omitempty"`
}

func (s *AssessmentService) buildAssessment(req AssessmentRequest) (*model.Assessment, error) {
	a := &model.Assessment{
		Course:     strings.TrimSpace(req.Course),
		Level:      strings.TrimSpace(req.Level),
		Date:       strings.TrimSpace(req.Date),
		StartTime:  strings.TrimSpace(req.StartTime),
		EndTime:    strings.TrimSpace(req.EndTime),
		Duration:   req.Duration,
		TotalMarks: req.TotalMarks,
	}
	if a.Course == "" || a.Level == "" {
		return nil, util.Validationf("course and level are required")
	}
	if a.Duration < 0 || a.TotalMarks < 0 {
		return nil, util.Validationf("duration and total marks may not be negative")
	}
	if _, _, err := ScheduleBounds(a, s.Location); err != nil {
		return nil, util.Validationf("invalid schedule: %v", err)
	}
	return a, nil
}

func (s *AssessmentService) CreateAssessment(ctx context.Context, req AssessmentRequest) (*model.Assessment, error) {
	a, err := s.buildAssessment(req)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.CreateAssessment(ctx, a); err != nil {
		return nil, util.NewStorageError("create assessment", err)
	}
	return a, nil
}

func (s *AssessmentService) UpdateAssessment(ctx context.Context, id uint, req AssessmentRequest) (*model.Assessment, error) {
	existing, err := s.Repo.FindAssessmentByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "find assessment", "assessment", id)
	}
	a, err := s.buildAssessment(req)
	if err != nil {
		return nil, err
	}
	a.BaseModel = existing.BaseModel
	if err := s.Repo.UpdateAssessment(ctx, a); err != nil {
		return nil, util.NewStorageError("update assessment", err)
	}
	return a, nil
}

func (s *AssessmentService) DeleteAssessment(ctx context.Context, id uint) error {
	if err := s.Repo.DeleteAssessment(ctx, id); err != nil {
		return lookupError(err, "delete assessment", "assessment", id)
	}
	return nil
}

func (s *AssessmentService) GetAssessment(ctx context.Context, id uint) (*model.Assessment, error) {
	a, err := s.Repo.FindAssessmentWithQuestions(ctx, id)
	if err != nil {
		return nil, lookupError(err, "find assessment", "assessment", id)
	}
	return a, nil
}

func (s *AssessmentService) ListAssessments(ctx context.Context, page, limit int) ([]model.Assessment, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	as, total, err := s.Repo.ListAssessments(ctx, page, limit)
	if err != nil {
		return nil, 0, util.NewStorageError("list assessments", err)
	}
	return as, total, nil
}

func (s *AssessmentService) AddQuestion(ctx context.Context, assessmentID uint, req QuestionRequest) (*model.Question, error) {
	if _, err := s.Repo.FindAssessmentByID(ctx, assessmentID); err != nil {
		return nil, lookupError(err, "find assessment", "assessment", assessmentID)
	}

	qt, ok := model.ParseQuestionType(req.Type)
	if !ok {
		return nil, util.Validationf("unknown question type %q", req.Type)
	}
	marks := req.Marks
	if marks == 0 {
		marks = 1
	}
	q := &model.Question{
		AssessmentID: assessmentID,
		Type:         qt,
		Prompt:       strings.TrimSpace(req.Question),
		Correct:      req.Correct,
		Explanation:  strings.TrimSpace(req.Explanation),
		Marks:        marks,
		AIGenerated:  req.AIGenerated,
	}
	if qt == model.QuestionMCQ {
		q.Options = req.Options
	}
	if err := ValidateQuestion(q); err != nil {
		return nil, err
	}
	if err := s.Repo.CreateQuestion(ctx, q); err != nil {
		return nil, util.NewStorageError("create question", err)
	}
	return q, nil
}

func (s *AssessmentService) ListQuestions(ctx context.Context, assessmentID uint) ([]model.Question, error) {
	if _, err := s.Repo.FindAssessmentByID(ctx, assessmentID); err != nil {
		return nil, lookupError(err, "find assessment", "assessment", assessmentID)
	}
	qs, err := s.Repo.ListQuestions(ctx, assessmentID)
	if err != nil {
		return nil, util.NewStorageError("list questions", err)
	}
	return qs, nil
}

func (s *AssessmentService) DeleteQuestion(ctx context.Context, id uint) error {
	if _, err := s.Repo.FindQuestionByID(ctx, id); err != nil {
		return lookupError(err, "find question", "question", id)
	}
	if err := s.Repo.DeleteQuestion(ctx, id); err != nil {
		return lookupError(err, "delete question", "question", id)
	}
	return nil
}

// ListForStudent returns the assessments of the student's course and level
// with their current window.
func (s *AssessmentService) ListForStudent(ctx context.Context, identity model.StudentIdentity) ([]StudentAssessment, error) {
	student, err := s.Identity.ResolveStudent(ctx, identity.StudentID, identity.Email)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(student.Course) == "" || strings.TrimSpace(student.Level) == "" {
		return []StudentAssessment{}, nil
	}

	as, err := s.Repo.ListForCourseLevel(ctx, student.Course, student.Level)
	if err != nil {
		return nil, util.NewStorageError("list assessments", err)
	}
	now := s.Now()
	out := make([]StudentAssessment, 0, len(as))
	for _, a := range as {
		w := ResolveState(&a, now, s.Location)
		item := StudentAssessment{Assessment: a, State: w.State}
		if w.State == StateUpcoming || w.State == StateOngoing {
			item.RemainingSeconds = int64(w.Remaining / time.Second)
			item.RemainingText = HumanizeRemaining(w.Remaining)
		}
		out = append(out, item)
	}
	return out, nil
}
