package model

// QuizBlock is a curated, fixed subset of a subject's questions. Every
// question referenced by a block belongs to the block's subject.
// swagger:model QuizBlock
type QuizBlock struct {
	BaseModel
	Title         string  `gorm:"size:200;not null" json:"title"`
	SubjectID     uint    `gorm:"index;type:bigint unsigned" json:"subjectId"`
	Difficulty    string  `gorm:"size:20" json:"difficulty"`
	QuestionCount int     `gorm:"default:0" json:"questionCount"`
	TotalAttempts int     `gorm:"default:0" json:"totalAttempts"`
	AverageScore  float64 `gorm:"default:0" json:"averageScore"`
}

func (QuizBlock) TableName() string {
	return "quiz_blocks"
}
