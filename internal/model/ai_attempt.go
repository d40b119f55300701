package model

import (
	"time"

	"gorm.io/datatypes"
)

// AIAttempt is a puzzle-based attempt graded by the AI assessment flow. It is
// never joined to Attempt by key; UserID refers to a Profile.
// swagger:model AIAttempt
type AIAttempt struct {
	UUIDBase
	UserID       *string        `gorm:"size:36;index" json:"userId"`
	StudentEmail string         `gorm:"size:150" json:"studentEmail"`
	StudentName  string         `gorm:"size:150" json:"studentName"`
	TotalPuzzles *int           `json:"totalPuzzles"`
	CorrectCount *int           `json:"correctCount"`
	ScorePct     *float64       `json:"scorePct"`
	StartedAt    *time.Time     `json:"startedAt"`
	FinishedAt   *time.Time     `json:"finishedAt"`
	Details      datatypes.JSON `json:"details,omitempty"`
}

func (AIAttempt) TableName() string {
	return "ai_assessments"
}
