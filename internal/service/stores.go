package service

import (
	"context"
	"time"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/internal/repository"

	"gorm.io/datatypes"
)

// Services receive their storage handles at construction. Implementations
// report a missing row with gorm.ErrRecordNotFound and a unique-index
// collision with gorm.ErrDuplicatedKey.

type AssessmentStore interface {
	CreateAssessment(ctx context.Context, a *model.Assessment) error
	UpdateAssessment(ctx context.Context, a *model.Assessment) error
	DeleteAssessment(ctx context.Context, id uint) error
	FindAssessmentByID(ctx context.Context, id uint) (*model.Assessment, error)
	FindAssessmentWithQuestions(ctx context.Context, id uint) (*model.Assessment, error)
	ListAssessments(ctx context.Context, page, limit int) ([]model.Assessment, int64, error)
	ListForCourseLevel(ctx context.Context, course, level string) ([]model.Assessment, error)
	CreateQuestion(ctx context.Context, q *model.Question) error
	FindQuestionByID(ctx context.Context, id uint) (*model.Question, error)
	ListQuestions(ctx context.Context, assessmentID uint) ([]model.Question, error)
	DeleteQuestion(ctx context.Context, id uint) error
}

type AttemptStore interface {
	Create(ctx context.Context, attempt *model.Attempt) error
	FindByID(ctx context.Context, id uint) (*model.Attempt, error)
	// FindActive returns nil, nil when no started attempt exists.
	FindActive(ctx context.Context, studentID, assessmentID uint) (*model.Attempt, error)
	Complete(ctx context.Context, id uint, score int, answers datatypes.JSON, at time.Time) (bool, error)
	Abandon(ctx context.Context, id uint, at time.Time) (bool, error)
}

// AttemptSource lists one kind of attempt for a student. A zero identity
// lists every attempt of that kind.
type AttemptSource[T any] interface {
	ListByStudent(ctx context.Context, identity model.StudentIdentity) ([]T, error)
}

type ManualAttemptSource = AttemptSource[model.Attempt]

type AIAttemptSource = AttemptSource[model.AIAttempt]

type StudentDirectory interface {
	FindByID(ctx context.Context, id uint) (*model.Student, error)
	FindByEmail(ctx context.Context, email string) (*model.Student, error)
	FindProfilesByIDs(ctx context.Context, ids []string) ([]model.Profile, error)
	FindProfileByEmail(ctx context.Context, email string) (*model.Profile, error)
}

var (
	_ AssessmentStore     = (*repository.AssessmentRepository)(nil)
	_ AttemptStore        = (*repository.AttemptRepository)(nil)
	_ ManualAttemptSource = (*repository.AttemptRepository)(nil)
	_ AIAttemptSource     = (*repository.AIAttemptRepository)(nil)
	_ StudentDirectory    = (*repository.StudentRepository)(nil)
)
