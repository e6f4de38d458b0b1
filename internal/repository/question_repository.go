package repository

import (
	"context"

	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
	"gorm.io/gorm"
)

// QuestionRepository is the read-only accessor over the authored question
// pool. Usage counters are the one thing it writes, always as storage-side
// atomic increments.
type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

func (r *QuestionRepository) ListIDsBySubject(ctx context.Context, subjectID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).
		Model(&model.Question{}).
		Where("subject_id = ?", subjectID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *QuestionRepository) ListIDsByBlock(ctx context.Context, blockID uint) ([]uint, error) {
	var ids []uint
	err := r.DB.WithContext(ctx).
		Model(&model.Question{}).
		Where("block_id = ?", blockID).
		Pluck("id", &ids).Error
	return ids, err
}

func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error) {
	var questions []model.Question
	if len(ids) == 0 {
		return questions, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error
	return questions, err
}

func (r *QuestionRepository) ListBySubject(ctx context.Context, subjectID uint) ([]model.Question, error) {
	var questions []model.Question
	err := r.DB.WithContext(ctx).Where("subject_id = ?", subjectID).Find(&questions).Error
	return questions, err
}

// CountsBySubject returns the pool size per subject in one grouped query.
func (r *QuestionRepository) CountsBySubject(ctx context.Context) (map[uint]int64, error) {
	var rows []struct {
		SubjectID uint
		Total     int64
	}
	err := r.DB.WithContext(ctx).
		Model(&model.Question{}).
		Select("subject_id, COUNT(*) AS total").
		Group("subject_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[uint]int64, len(rows))
	for _, row := range rows {
		counts[row.SubjectID] = row.Total
	}
	return counts, nil
}

func (r *QuestionRepository) IncrementTimesShown(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).
		Model(&model.Question{}).
		Where("id IN ?", ids).
		UpdateColumn("times_shown", gorm.Expr("times_shown + 1")).Error
}

func (r *QuestionRepository) IncrementResult(ctx context.Context, questionID uint, correct bool) error {
	column := "times_wrong"
	if correct {
		column = "times_correct"
	}
	return r.DB.WithContext(ctx).
		Model(&model.Question{}).
		Where("id = ?", questionID).
		UpdateColumn(column, gorm.Expr(column+" + 1")).Error
}
