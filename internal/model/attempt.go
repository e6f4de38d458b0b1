package model

import (
	"encoding/json"
	"time"
)

type AttemptMode string

const (
	ModeRandom AttemptMode = "RANDOM_30"
	ModeBlock  AttemptMode = "BLOCK"
)

// Attempt is one test-taking session. The selected question list is frozen at
// creation; once IsCompleted flips to true the attempt and its answers are
// immutable.
// swagger:model Attempt
type Attempt struct {
	UUIDBase
	UserID         uint        `gorm:"index;type:bigint unsigned" json:"userId"`
	Mode           AttemptMode `gorm:"type:enum('RANDOM_30','BLOCK');not null" json:"mode"`
	SubjectID      uint        `gorm:"index;type:bigint unsigned" json:"subjectId"`
	BlockID        *uint       `gorm:"index;type:bigint unsigned" json:"blockId,omitempty"`
	QuestionIDs    string      `gorm:"type:json" json:"-"`
	TotalQuestions int         `gorm:"not null" json:"totalQuestions"`
	IsCompleted    bool        `gorm:"default:false;index" json:"isCompleted"`
	Score          *float64    `json:"score,omitempty"`
	CorrectAnswers *int        `json:"correctAnswers,omitempty"`
	WrongAnswers   *int        `json:"wrongAnswers,omitempty"`
	SkippedAnswers *int        `json:"skippedAnswers,omitempty"`
	TimeSpent      int         `json:"timeSpent"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
}

func (Attempt) TableName() string {
	return "attempts"
}

// SelectedIDs decodes the frozen, ordered question selection.
func (a *Attempt) SelectedIDs() []uint {
	var ids []uint
	if a.QuestionIDs != "" {
		_ = json.Unmarshal([]byte(a.QuestionIDs), &ids)
	}
	return ids
}

func (a *Attempt) SetSelectedIDs(ids []uint) {
	b, _ := json.Marshal(ids)
	a.QuestionIDs = string(b)
	a.TotalQuestions = len(ids)
}
