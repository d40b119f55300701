package repository

import (
	"context"

	"edu_portal_backend/internal/model"
	"edu_portal_backend/pkg/logger"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AIAttemptListLimit caps one listing. Callers treat a full page as a
// truncated result.
const AIAttemptListLimit = 1000

// AIAttemptRepository reads the puzzle attempts written by the AI assessment
// flow. Nothing here writes them.
type AIAttemptRepository struct {
	DB *gorm.DB
}

func NewAIAttemptRepository(db *gorm.DB) *AIAttemptRepository {
	return &AIAttemptRepository{DB: db}
}

func (r *AIAttemptRepository) ListByStudent(ctx context.Context, identity model.StudentIdentity) ([]model.AIAttempt, error) {
	var attempts []model.AIAttempt
	query := r.DB.WithContext(ctx)
	switch {
	case identity.UserID != "" && identity.Email != "":
		query = query.Where("user_id = ? OR LOWER(student_email) = LOWER(?)", identity.UserID, identity.Email)
	case identity.UserID != "":
		query = query.Where("user_id = ?", identity.UserID)
	case identity.Email != "":
		query = query.Where("LOWER(student_email) = LOWER(?)", identity.Email)
	case identity.StudentID != nil:
		// AI attempts carry no student_list id
		return attempts, nil
	}
	err := query.Order("created_at desc").Limit(AIAttemptListLimit).Find(&attempts).Error
	if err == nil && len(attempts) == AIAttemptListLimit {
		logger.Log.Warn("ai attempt listing hit the row cap, older rows skipped",
			zap.Int("limit", AIAttemptListLimit),
			zap.String("identity", identity.Label()))
	}
	return attempts, err
}
