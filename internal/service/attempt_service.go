package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/util"
	"edu_portal_backend/pkg/logger"
	"edu_portal_backend/pkg/monitoring"
	"edu_portal_backend/pkg/tracing"

	"github.com/jinzhu/copier"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptService struct {
	Assessments AssessmentStore
	Attempts    AttemptStore
	Identity    *IdentityService
	Location    *time.Location
	Now         func() time.Time
}

func NewAttemptService(assessments AssessmentStore, attempts AttemptStore, identity *IdentityService, loc *time.Location) *AttemptService {
	if loc == nil {
		loc = time.Local
	}
	return &AttemptService{
		Assessments: assessments,
		Attempts:    attempts,
		Identity:    identity,
		Location:    loc,
		Now:         time.Now,
	}
}

type StartAttemptRequest struct {
	AssessmentID uint   `json:"assessmentId" binding:"required"`
	StudentID    *uint  `json:"studentId"`
	StudentEmail string `json:"studentEmail" binding:"omitempty,email"`
}

type CompleteAttemptRequest struct {
	Answers []SubmittedAnswer `json:"answers" binding:"dive"`
}

type CompletionResult struct {
	Attempt *model.Attempt `json:"attempt"`
	ScoreCard
}

// StudentQuestion is a question as shown during an attempt, without the
// answer key.
type StudentQuestion struct {
	ID           uint               `json:"id"`
	AssessmentID uint               `json:"assessmentId"`
	Type         model.QuestionType `json:"type"`
	Prompt       string             `json:"question"`
	Options      []string           `json:"options,omitempty"`
	Marks        int                `json:"marks"`
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, util.ErrNotFound):
		return "not_found"
	case errors.Is(err, util.ErrWindowClosed):
		return "window_closed"
	case errors.Is(err, util.ErrAlreadyCompleted):
		return "already_completed"
	case errors.Is(err, util.ErrInvalidStudent):
		return "invalid_student"
	case errors.Is(err, util.ErrValidation):
		return "validation"
	}
	return "storage"
}

func (s *AttemptService) reject(span trace.Span, op string, err error) error {
	reason := rejectionReason(err)
	monitoring.AttemptRejections.WithLabelValues(op, reason).Inc()
	span.SetAttributes(attribute.String("attempt.rejection", reason))
	if reason == "storage" {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func lookupError(err error, op, entity string, id uint) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.NotFoundf("%s %d", entity, id)
	}
	return util.NewStorageError(op, err)
}

// finishedError explains why a non-started attempt cannot move.
func finishedError(a *model.Attempt) error {
	if a.Status == model.AttemptAbandoned {
		return fmt.Errorf("%w: attempt %d was abandoned", util.ErrAlreadyCompleted, a.ID)
	}
	return util.ErrAlreadyCompleted
}

// StartAttempt opens an attempt, or returns the one already started for the
// same student and assessment. The window is always checked here, whatever
// the client displayed.
func (s *AttemptService) StartAttempt(ctx context.Context, req StartAttemptRequest) (*model.Attempt, error) {
	ctx, span := tracing.Tracer().Start(ctx, "AttemptService.StartAttempt",
		trace.WithAttributes(attribute.Int64("assessment.id", int64(req.AssessmentID))))
	defer span.End()

	assessment, err := s.Assessments.FindAssessmentByID(ctx, req.AssessmentID)
	if err != nil {
		return nil, s.reject(span, "start", lookupError(err, "find assessment", "assessment", req.AssessmentID))
	}

	now := s.Now()
	window := ResolveState(assessment, now, s.Location)
	span.SetAttributes(attribute.String("assessment.window", string(window.State)))
	if window.State != StateOngoing {
		return nil, s.reject(span, "start", fmt.Errorf("%w (%s)", util.ErrWindowClosed, window.State))
	}

	student, err := s.Identity.ResolveStudent(ctx, req.StudentID, req.StudentEmail)
	if err != nil {
		return nil, s.reject(span, "start", err)
	}

	existing, err := s.Attempts.FindActive(ctx, student.ID, assessment.ID)
	if err != nil {
		return nil, s.reject(span, "start", util.NewStorageError("find active attempt", err))
	}
	if existing != nil {
		monitoring.AttemptTransitions.WithLabelValues("reused").Inc()
		return existing, nil
	}

	studentID := student.ID
	attempt := &model.Attempt{
		AssessmentID: assessment.ID,
		StudentID:    &studentID,
		StudentEmail: student.Email,
		Status:       model.AttemptStarted,
		StartedAt:    now,
	}
	if err := s.Attempts.Create(ctx, attempt); err != nil {
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, s.reject(span, "start", util.NewStorageError("create attempt", err))
		}
		// 并发请求已创建，返回已存在的记录
		winner, ferr := s.Attempts.FindActive(ctx, student.ID, assessment.ID)
		if ferr != nil {
			return nil, s.reject(span, "start", util.NewStorageError("find active attempt", ferr))
		}
		if winner == nil {
			return nil, s.reject(span, "start", util.NewStorageError("create attempt", err))
		}
		monitoring.AttemptTransitions.WithLabelValues("reused").Inc()
		return winner, nil
	}

	monitoring.AttemptTransitions.WithLabelValues("started").Inc()
	logger.Log.Info("attempt started",
		zap.Uint("attempt_id", attempt.ID),
		zap.Uint("assessment_id", assessment.ID),
		zap.Uint("student_id", student.ID))
	return attempt, nil
}

// CompleteAttempt scores the answers and closes the attempt. A second call
// fails with ErrAlreadyCompleted and leaves the stored score untouched.
func (s *AttemptService) CompleteAttempt(ctx context.Context, attemptID uint, answers []SubmittedAnswer) (*CompletionResult, error) {
	ctx, span := tracing.Tracer().Start(ctx, "AttemptService.CompleteAttempt",
		trace.WithAttributes(attribute.Int64("attempt.id", int64(attemptID))))
	defer span.End()

	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, s.reject(span, "complete", lookupError(err, "find attempt", "attempt", attemptID))
	}
	if attempt.Status != model.AttemptStarted {
		return nil, s.reject(span, "complete", finishedError(attempt))
	}

	assessment, err := s.Assessments.FindAssessmentWithQuestions(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, s.reject(span, "complete", lookupError(err, "find assessment", "assessment", attempt.AssessmentID))
	}
	if err := ValidateAnswers(assessment.Questions, answers); err != nil {
		return nil, s.reject(span, "complete", err)
	}

	card := ScoreAssessment(assessment, answers)
	if answers == nil {
		answers = []SubmittedAnswer{}
	}
	payload, err := json.Marshal(answers)
	if err != nil {
		return nil, s.reject(span, "complete", util.Validationf("answers could not be encoded: %v", err))
	}

	now := s.Now()
	ok, err := s.Attempts.Complete(ctx, attempt.ID, card.Score, datatypes.JSON(payload), now)
	if err != nil {
		return nil, s.reject(span, "complete", util.NewStorageError("complete attempt", err))
	}
	if !ok {
		// 并发提交：重新读取以区分已完成和已删除
		current, ferr := s.Attempts.FindByID(ctx, attempt.ID)
		if ferr != nil {
			return nil, s.reject(span, "complete", lookupError(ferr, "find attempt", "attempt", attempt.ID))
		}
		return nil, s.reject(span, "complete", finishedError(current))
	}

	score := card.Score
	attempt.Status = model.AttemptCompleted
	attempt.CompletedAt = &now
	attempt.Score = &score
	attempt.Answers = datatypes.JSON(payload)
	attempt.ActiveKey = nil

	monitoring.AttemptTransitions.WithLabelValues("completed").Inc()
	span.SetAttributes(attribute.Int("attempt.score", score))
	logger.Log.Info("attempt completed",
		zap.Uint("attempt_id", attempt.ID),
		zap.Int("score", score),
		zap.Int("total_marks", card.TotalMarks))
	return &CompletionResult{Attempt: attempt, ScoreCard: card}, nil
}

// AbandonAttempt is the administrative started -> abandoned transition.
func (s *AttemptService) AbandonAttempt(ctx context.Context, attemptID uint) (*model.Attempt, error) {
	ctx, span := tracing.Tracer().Start(ctx, "AttemptService.AbandonAttempt",
		trace.WithAttributes(attribute.Int64("attempt.id", int64(attemptID))))
	defer span.End()

	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, s.reject(span, "abandon", lookupError(err, "find attempt", "attempt", attemptID))
	}
	if attempt.Status.Terminal() {
		return nil, s.reject(span, "abandon", finishedError(attempt))
	}

	ok, err := s.Attempts.Abandon(ctx, attemptID, s.Now())
	if err != nil {
		return nil, s.reject(span, "abandon", util.NewStorageError("abandon attempt", err))
	}
	current, ferr := s.Attempts.FindByID(ctx, attemptID)
	if ferr != nil {
		return nil, s.reject(span, "abandon", lookupError(ferr, "find attempt", "attempt", attemptID))
	}
	if !ok {
		return nil, s.reject(span, "abandon", finishedError(current))
	}

	monitoring.AttemptTransitions.WithLabelValues("abandoned").Inc()
	logger.Log.Info("attempt abandoned", zap.Uint("attempt_id", attemptID))
	return current, nil
}

func (s *AttemptService) GetAttempt(ctx context.Context, attemptID uint) (*model.Attempt, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, lookupError(err, "find attempt", "attempt", attemptID)
	}
	return attempt, nil
}

// AttemptQuestions lists the attempt's questions without correct answers
// or explanations.
func (s *AttemptService) AttemptQuestions(ctx context.Context, attemptID uint) ([]StudentQuestion, error) {
	attempt, err := s.GetAttempt(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	questions, err := s.Assessments.ListQuestions(ctx, attempt.AssessmentID)
	if err != nil {
		return nil, util.NewStorageError("list questions", err)
	}
	out := make([]StudentQuestion, 0, len(questions))
	if err := copier.Copy(&out, &questions); err != nil {
		return nil, fmt.Errorf("map questions: %w", err)
	}
	return out, nil
}
