package repository

import (
	"context"
	"errors"
	"time"

	"edu_portal_backend/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// Create inserts a started attempt. A concurrent insert for the same
// (student, assessment) fails on the active_key unique index with
// gorm.ErrDuplicatedKey.
func (r *AttemptRepository) Create(ctx context.Context, attempt *model.Attempt) error {
	if attempt.Status == model.AttemptStarted && attempt.StudentID != nil {
		key := model.ActiveAttemptKey(*attempt.StudentID, attempt.AssessmentID)
		attempt.ActiveKey = &key
	}
	return r.DB.WithContext(ctx).Create(attempt).Error
}

func (r *AttemptRepository) FindByID(ctx context.Context, id uint) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.WithContext(ctx).First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// FindActive returns the started attempt for the pair, or nil when there is none.
func (r *AttemptRepository) FindActive(ctx context.Context, studentID, assessmentID uint) (*model.Attempt, error) {
	var a model.Attempt
	err := r.DB.WithContext(ctx).
		Where("active_key = ?", model.ActiveAttemptKey(studentID, assessmentID)).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// Complete moves a started attempt to completed, writing status, completion
// time, score and answers in one conditional UPDATE. It reports false when
// the attempt was no longer started.
func (r *AttemptRepository) Complete(ctx context.Context, id uint, score int, answers datatypes.JSON, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("id = ? AND status = ?", id, model.AttemptStarted).
		Updates(map[string]interface{}{
			"status":       model.AttemptCompleted,
			"completed_at": at,
			"score":        score,
			"answers":      answers,
			"active_key":   nil,
		})
	return res.RowsAffected > 0, res.Error
}

// Abandon moves a started attempt to abandoned. Score stays null.
func (r *AttemptRepository) Abandon(ctx context.Context, id uint, at time.Time) (bool, error) {
	res := r.DB.WithContext(ctx).Model(&model.Attempt{}).
		Where("id = ? AND status = ?", id, model.AttemptStarted).
		Updates(map[string]interface{}{
			"status":       model.AttemptAbandoned,
			"completed_at": at,
			"active_key":   nil,
		})
	return res.RowsAffected > 0, res.Error
}

// ListByStudent returns manual attempts with their assessment preloaded,
// soft-deleted assessments included so totals stay paired with scores. A
// zero identity lists every attempt.
func (r *AttemptRepository) ListByStudent(ctx context.Context, identity model.StudentIdentity) ([]model.Attempt, error) {
	var attempts []model.Attempt
	query := r.DB.WithContext(ctx).Preload("Assessment", func(db *gorm.DB) *gorm.DB { return db.Unscoped() })
	switch {
	case identity.StudentID != nil && identity.Email != "":
		query = query.Where("student_id = ? OR LOWER(student_email) = LOWER(?)", *identity.StudentID, identity.Email)
	case identity.StudentID != nil:
		query = query.Where("student_id = ?", *identity.StudentID)
	case identity.Email != "":
		query = query.Where("LOWER(student_email) = LOWER(?)", identity.Email)
	case identity.UserID != "":
		// 手动测试记录不含 profile 用户ID
		return []model.Attempt{}, nil
	}
	err := query.Order("started_at desc, id desc").Find(&attempts).Error
	return attempts, err
}
