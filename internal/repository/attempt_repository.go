package repository

import (
	"context"
	"errors"

	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/util"
	"gorm.io/gorm"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// CreateWithAnswers persists the attempt row and its answer rows in one
// transaction, so a reader never observes an attempt without its answer slots.
func (r *AttemptRepository) CreateWithAnswers(ctx context.Context, attempt *model.Attempt, answers []model.AttemptAnswer) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(attempt).Error; err != nil {
			return err
		}
		for i := range answers {
			answers[i].AttemptID = attempt.ID
		}
		if len(answers) == 0 {
			return nil
		}
		return tx.Create(&answers).Error
	})
}

func (r *AttemptRepository) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	var a model.Attempt
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrAttemptNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) GetAnswers(ctx context.Context, attemptID string) ([]model.AttemptAnswer, error) {
	var answers []model.AttemptAnswer
	err := r.DB.WithContext(ctx).Where("attempt_id = ?", attemptID).Find(&answers).Error
	return answers, err
}

// CompleteWithAnswers performs the guarded open→completed transition. The
// conditional UPDATE on is_completed is the serialization point: of two
// concurrent submissions exactly one sees RowsAffected == 1 and gets to write
// the graded answers; the loser returns false and must take the idempotent
// read path. Answer rows are updated in place, never inserted.
func (r *AttemptRepository) CompleteWithAnswers(ctx context.Context, attempt *model.Attempt, graded []model.AttemptAnswer) (bool, error) {
	won := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Attempt{}).
			Where("id = ? AND is_completed = ?", attempt.ID, false).
			Updates(map[string]interface{}{
				"is_completed":    true,
				"score":           attempt.Score,
				"correct_answers": attempt.CorrectAnswers,
				"wrong_answers":   attempt.WrongAnswers,
				"skipped_answers": attempt.SkippedAnswers,
				"time_spent":      attempt.TimeSpent,
				"completed_at":    attempt.CompletedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		for _, ans := range graded {
			err := tx.Model(&model.AttemptAnswer{}).
				Where("attempt_id = ? AND question_id = ?", ans.AttemptID, ans.QuestionID).
				Updates(map[string]interface{}{
					"user_answer": ans.UserAnswer,
					"is_correct":  ans.IsCorrect,
				}).Error
			if err != nil {
				return err
			}
		}
		won = true
		return nil
	})
	return won, err
}

// SubjectBreakdown is one row of a caller's per-subject history.
type SubjectBreakdown struct {
	SubjectID    uint    `json:"subjectId"`
	SubjectName  string  `json:"subjectName"`
	Attempts     int64   `json:"attempts"`
	AverageScore float64 `json:"averageScore"`
}

// UserStats aggregates a caller's completed attempts at read time.
type UserStats struct {
	CompletedAttempts int64              `json:"completedAttempts"`
	AverageScore      float64            `json:"averageScore"`
	PerSubject        []SubjectBreakdown `json:"perSubject"`
}

func (r *AttemptRepository) UserStats(ctx context.Context, userID uint) (*UserStats, error) {
	stats := &UserStats{PerSubject: []SubjectBreakdown{}}

	row := struct {
		Count int64
		Avg   *float64
	}{}
	err := r.DB.WithContext(ctx).
		Model(&model.Attempt{}).
		Select("COUNT(*) AS count, AVG(score) AS avg").
		Where("user_id = ? AND is_completed = ?", userID, true).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	stats.CompletedAttempts = row.Count
	if row.Avg != nil {
		stats.AverageScore = *row.Avg
	}

	err = r.DB.WithContext(ctx).Raw(
		`SELECT a.subject_id AS subject_id,
		        s.name AS subject_name,
		        COUNT(*) AS attempts,
		        AVG(a.score) AS average_score
		 FROM attempts a
		 JOIN subjects s ON s.id = a.subject_id
		 WHERE a.user_id = ? AND a.is_completed = ? AND a.deleted_at IS NULL
		 GROUP BY a.subject_id, s.name
		 ORDER BY s.name`,
		userID, true,
	).Scan(&stats.PerSubject).Error
	if err != nil {
		return nil, err
	}

	return stats, nil
}
