package service

import (
	"context"

	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/repository"
)

// CatalogService serves the subject/block catalog reads a client needs to
// pick an attempt mode.
type CatalogService struct {
	Subjects  *repository.SubjectRepository
	Blocks    *repository.BlockRepository
	Questions *repository.QuestionRepository
}

func NewCatalogService(subjects *repository.SubjectRepository, blocks *repository.BlockRepository, questions *repository.QuestionRepository) *CatalogService {
	return &CatalogService{Subjects: subjects, Blocks: blocks, Questions: questions}
}

// SubjectSummary is a subject plus the size of its question pool, so the
// client can grey out subjects that cannot open a random attempt yet.
type SubjectSummary struct {
	model.Subject
	QuestionCount int64 `json:"questionCount"`
}

func (s *CatalogService) ListSubjects(ctx context.Context) ([]SubjectSummary, error) {
	subjects, err := s.Subjects.List(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := s.Questions.CountsBySubject(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]SubjectSummary, len(subjects))
	for i, subject := range subjects {
		out[i] = SubjectSummary{Subject: subject, QuestionCount: counts[subject.ID]}
	}
	return out, nil
}

func (s *CatalogService) ListBlocks(ctx context.Context, subjectID uint) ([]model.QuizBlock, error) {
	if _, err := s.Subjects.FindByID(ctx, subjectID); err != nil {
		return nil, err
	}
	return s.Blocks.ListBySubject(ctx, subjectID)
}

// ListQuestionUsage exposes per-question counters for teacher review.
func (s *CatalogService) ListQuestionUsage(ctx context.Context, subjectID uint) ([]model.Question, error) {
	if _, err := s.Subjects.FindByID(ctx, subjectID); err != nil {
		return nil, err
	}
	return s.Questions.ListBySubject(ctx, subjectID)
}
