package model

type QuestionType string

const (
	SingleAnswer   QuestionType = "SINGLE"
	MultipleAnswer QuestionType = "MULTIPLE"
)

// Question is an authored fact. The engine never edits question content;
// only the usage counters move, and only through atomic updates.
// swagger:model Question
type Question struct {
	BaseModel
	Text          string       `gorm:"type:text;not null" json:"text"`
	Image         string       `gorm:"size:255" json:"image,omitempty"`
	OptionA       string       `gorm:"size:1000;not null" json:"optionA"`
	OptionB       string       `gorm:"size:1000;not null" json:"optionB"`
	OptionC       string       `gorm:"size:1000;not null" json:"optionC"`
	OptionD       string       `gorm:"size:1000;not null" json:"optionD"`
	OptionE       string       `gorm:"size:1000" json:"optionE,omitempty"`
	CorrectAnswer string       `gorm:"size:20;not null" json:"-"`
	QuestionType  QuestionType `gorm:"type:enum('SINGLE','MULTIPLE');default:'SINGLE'" json:"questionType"`
	Difficulty    string       `gorm:"size:20" json:"difficulty"`
	SubjectID     uint         `gorm:"index;type:bigint unsigned" json:"subjectId"`
	BlockID       *uint        `gorm:"index;type:bigint unsigned" json:"blockId,omitempty"`
	TimesShown    int          `gorm:"default:0" json:"timesShown"`
	TimesCorrect  int          `gorm:"default:0" json:"timesCorrect"`
	TimesWrong    int          `gorm:"default:0" json:"timesWrong"`
}

func (Question) TableName() string {
	return "questions"
}

// CorrectSet returns the stored correct answer normalized to an AnswerSet.
func (q *Question) CorrectSet() AnswerSet {
	return ParseAnswerSet(q.CorrectAnswer)
}
