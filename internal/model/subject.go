package model

// swagger:model Subject
type Subject struct {
	BaseModel
	Name          string  `gorm:"size:200;not null" json:"name"`
	Description   string  `gorm:"type:text" json:"description"`
	TotalAttempts int     `gorm:"default:0" json:"totalAttempts"`
	AverageScore  float64 `gorm:"default:0" json:"averageScore"`
}

func (Subject) TableName() string {
	return "subjects"
}
