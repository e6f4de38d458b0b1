package model

// AttemptAnswer holds one response slot within an attempt. Exactly one row
// exists per (attempt, question) pair; rows are created at attempt creation
// with a null UserAnswer and updated in place at submission, never inserted
// again.
type AttemptAnswer struct {
	BaseModel
	AttemptID  string  `gorm:"uniqueIndex:idx_attempt_question;type:varchar(36)" json:"attemptId"`
	QuestionID uint    `gorm:"uniqueIndex:idx_attempt_question;index;type:bigint unsigned" json:"questionId"`
	UserAnswer *string `gorm:"size:20" json:"userAnswer"`
	IsCorrect  *bool   `json:"isCorrect"`
}

func (AttemptAnswer) TableName() string {
	return "attempt_answers"
}
