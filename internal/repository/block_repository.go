package repository

import (
	"context"
	"errors"

	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/util"
	"gorm.io/gorm"
)

type BlockRepository struct {
	DB *gorm.DB
}

func NewBlockRepository(db *gorm.DB) *BlockRepository {
	return &BlockRepository{DB: db}
}

func (r *BlockRepository) FindByID(ctx context.Context, id uint) (*model.QuizBlock, error) {
	var b model.QuizBlock
	if err := r.DB.WithContext(ctx).First(&b, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrBlockNotFound
		}
		return nil, err
	}
	return &b, nil
}

func (r *BlockRepository) ListBySubject(ctx context.Context, subjectID uint) ([]model.QuizBlock, error) {
	var blocks []model.QuizBlock
	err := r.DB.WithContext(ctx).Where("subject_id = ?", subjectID).Order("title").Find(&blocks).Error
	return blocks, err
}

// RecordAttemptScore mirrors SubjectRepository.RecordAttemptScore for block
// rollups: one atomic UPDATE, streaming mean first, counter second.
func (r *BlockRepository) RecordAttemptScore(ctx context.Context, blockID uint, score float64) error {
	return r.DB.WithContext(ctx).Exec(
		`UPDATE quiz_blocks
		 SET average_score = average_score + (? - average_score) / (total_attempts + 1),
		     total_attempts = total_attempts + 1
		 WHERE id = ?`,
		score, blockID,
	).Error
}
