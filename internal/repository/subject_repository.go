package repository

import (
	"context"
	"errors"

	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/util"
	"gorm.io/gorm"
)

type SubjectRepository struct {
	DB *gorm.DB
}

func NewSubjectRepository(db *gorm.DB) *SubjectRepository {
	return &SubjectRepository{DB: db}
}

func (r *SubjectRepository) FindByID(ctx context.Context, id uint) (*model.Subject, error) {
	var s model.Subject
	if err := r.DB.WithContext(ctx).First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrSubjectNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *SubjectRepository) List(ctx context.Context) ([]model.Subject, error) {
	var subjects []model.Subject
	err := r.DB.WithContext(ctx).Order("name").Find(&subjects).Error
	return subjects, err
}

// RecordAttemptScore folds one completed attempt into the subject's rolling
// counters in a single atomic statement. The assignment order matters: the
// streaming mean must read total_attempts before it is bumped.
func (r *SubjectRepository) RecordAttemptScore(ctx context.Context, subjectID uint, score float64) error {
	return r.DB.WithContext(ctx).Exec(
		`UPDATE subjects
		 SET average_score = average_score + (? - average_score) / (total_attempts + 1),
		     total_attempts = total_attempts + 1
		 WHERE id = ?`,
		score, subjectID,
	).Error
}
