package service

import (
	"context"

	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
)

// QuestionCounters mutates per-question usage counters. Implementations must
// increment at the storage layer, not read-modify-write, since many attempts
// grade concurrently against the same question.
type QuestionCounters interface {
	IncrementTimesShown(ctx context.Context, ids []uint) error
	IncrementResult(ctx context.Context, questionID uint, correct bool) error
}

// ScoreRollup folds one completed attempt score into a rolling
// totalAttempts/averageScore pair (streaming mean).
type ScoreRollup interface {
	RecordAttemptScore(ctx context.Context, id uint, score float64) error
}

// StatsService updates question, block and subject counters as a side effect
// of selection and grading.
type StatsService struct {
	Questions QuestionCounters
	Blocks    ScoreRollup
	Subjects  ScoreRollup
}

func NewStatsService(questions QuestionCounters, blocks, subjects ScoreRollup) *StatsService {
	return &StatsService{Questions: questions, Blocks: blocks, Subjects: subjects}
}

func (s *StatsService) RecordShown(ctx context.Context, questionIDs []uint) error {
	return s.Questions.IncrementTimesShown(ctx, questionIDs)
}

// RecordGrades bumps timesCorrect/timesWrong for answered questions. Skipped
// questions (null user answer) increment neither counter.
func (s *StatsService) RecordGrades(ctx context.Context, graded []model.AttemptAnswer) error {
	for _, ans := range graded {
		if ans.UserAnswer == nil || ans.IsCorrect == nil {
			continue
		}
		if err := s.Questions.IncrementResult(ctx, ans.QuestionID, *ans.IsCorrect); err != nil {
			return err
		}
	}
	return nil
}

// RecordCompletion folds the attempt score into the owning subject's rollup,
// and the block's as well for BLOCK mode attempts.
func (s *StatsService) RecordCompletion(ctx context.Context, attempt *model.Attempt) error {
	if attempt.Score == nil {
		return nil
	}
	if err := s.Subjects.RecordAttemptScore(ctx, attempt.SubjectID, *attempt.Score); err != nil {
		return err
	}
	if attempt.Mode == model.ModeBlock && attempt.BlockID != nil {
		return s.Blocks.RecordAttemptScore(ctx, *attempt.BlockID, *attempt.Score)
	}
	return nil
}
