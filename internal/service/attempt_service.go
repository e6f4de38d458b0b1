package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/vasifalituri/sechenov-plus-sub000/internal/cache"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/config"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/repository"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/util"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/logger"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/monitoring"
	"go.uber.org/zap"
)

// QuestionStore is the read-only view of the authored question pool.
type QuestionStore interface {
	ListIDsBySubject(ctx context.Context, subjectID uint) ([]uint, error)
	ListIDsByBlock(ctx context.Context, blockID uint) ([]uint, error)
	FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error)
}

// AttemptStore persists attempts and their answer rows.
type AttemptStore interface {
	CreateWithAnswers(ctx context.Context, attempt *model.Attempt, answers []model.AttemptAnswer) error
	FindByID(ctx context.Context, id string) (*model.Attempt, error)
	GetAnswers(ctx context.Context, attemptID string) ([]model.AttemptAnswer, error)
	CompleteWithAnswers(ctx context.Context, attempt *model.Attempt, graded []model.AttemptAnswer) (bool, error)
	UserStats(ctx context.Context, userID uint) (*repository.UserStats, error)
}

type SubjectCatalog interface {
	FindByID(ctx context.Context, id uint) (*model.Subject, error)
}

type BlockCatalog interface {
	FindByID(ctx context.Context, id uint) (*model.QuizBlock, error)
}

type ImageResolver interface {
	ResolveImageURL(ctx context.Context, ref string) string
}

// AttemptService drives the attempt lifecycle: selection, grading and review.
// It is stateless per request; all durable state lives behind the injected
// stores.
type AttemptService struct {
	Questions QuestionStore
	Attempts  AttemptStore
	Subjects  SubjectCatalog
	Blocks    BlockCatalog
	Stats     *StatsService
	Storage   ImageResolver
	Cache     cache.AttemptCache
	Backoff   cache.BackoffPolicy

	mu       sync.RWMutex
	drawSize int
}

func NewAttemptService(
	questions QuestionStore,
	attempts AttemptStore,
	subjects SubjectCatalog,
	blocks BlockCatalog,
	stats *StatsService,
	storage ImageResolver,
	attemptCache cache.AttemptCache,
	cfg *config.Config,
) *AttemptService {
	backoff := cache.DefaultBackoff()
	if cfg.Quiz.ResyncBaseMs > 0 {
		backoff.BaseDelay = time.Duration(cfg.Quiz.ResyncBaseMs) * time.Millisecond
	}
	if cfg.Quiz.ResyncCapMs > 0 {
		backoff.MaxDelay = time.Duration(cfg.Quiz.ResyncCapMs) * time.Millisecond
	}
	if cfg.Quiz.ResyncMaxRetries > 0 {
		backoff.MaxAttempts = cfg.Quiz.ResyncMaxRetries
	}

	return &AttemptService{
		Questions: questions,
		Attempts:  attempts,
		Subjects:  subjects,
		Blocks:    blocks,
		Stats:     stats,
		Storage:   storage,
		Cache:     attemptCache,
		Backoff:   backoff,
		drawSize:  cfg.Quiz.RandomDrawSize,
	}
}

func (s *AttemptService) DrawSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.drawSize
}

// SetDrawSize applies a config reload without restarting open attempts.
func (s *AttemptService) SetDrawSize(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	s.drawSize = n
	s.mu.Unlock()
}

// QuestionView is the question payload handed to the client. It never
// carries the correct answer; review data travels separately in AnswerView.
type QuestionView struct {
	ID           uint               `json:"id"`
	Text         string             `json:"text"`
	Image        string             `json:"image,omitempty"`
	OptionA      string             `json:"optionA"`
	OptionB      string             `json:"optionB"`
	OptionC      string             `json:"optionC"`
	OptionD      string             `json:"optionD"`
	OptionE      string             `json:"optionE,omitempty"`
	QuestionType model.QuestionType `json:"questionType"`
}

type AnswerView struct {
	QuestionID    uint    `json:"questionId"`
	UserAnswer    *string `json:"userAnswer"`
	IsCorrect     *bool   `json:"isCorrect,omitempty"`
	CorrectAnswer string  `json:"correctAnswer,omitempty"`
}

type StartAttemptRequest struct {
	Mode      model.AttemptMode `json:"mode" binding:"required"`
	SubjectID uint              `json:"subjectId"`
	BlockID   uint              `json:"blockId"`
}

type StartAttemptResponse struct {
	AttemptID      string            `json:"attemptId"`
	Mode           model.AttemptMode `json:"mode"`
	TotalQuestions int               `json:"totalQuestions"`
	Questions      []QuestionView    `json:"questions"`
}

type SubmittedAnswer struct {
	QuestionID uint    `json:"questionId" binding:"required"`
	UserAnswer *string `json:"userAnswer"`
}

type SubmitRequest struct {
	Answers   []SubmittedAnswer `json:"answers"`
	TimeSpent int               `json:"timeSpent"`
}

type AttemptSummary struct {
	AttemptID      string            `json:"attemptId"`
	Mode           model.AttemptMode `json:"mode"`
	TotalQuestions int               `json:"totalQuestions"`
	CorrectAnswers int               `json:"correctAnswers"`
	WrongAnswers   int               `json:"wrongAnswers"`
	SkippedAnswers int               `json:"skippedAnswers"`
	Score          float64           `json:"score"`
	TimeSpent      int               `json:"timeSpent"`
	CompletedAt    time.Time         `json:"completedAt"`
}

type AttemptDetail struct {
	Attempt   *model.Attempt       `json:"attempt"`
	Questions []QuestionView       `json:"questions"`
	Answers   []AnswerView         `json:"answers,omitempty"`
	Draft     *cache.CachedAttempt `json:"draft,omitempty"`
}

// StartAttempt freezes a question selection for the caller and opens the
// attempt. The returned payload excludes correct answers.
func (s *AttemptService) StartAttempt(ctx context.Context, userID uint, req StartAttemptRequest) (*StartAttemptResponse, error) {
	var (
		selected []uint
		attempt  *model.Attempt
	)

	switch req.Mode {
	case model.ModeRandom:
		subject, err := s.Subjects.FindByID(ctx, req.SubjectID)
		if err != nil {
			return nil, err
		}
		pool, err := s.Questions.ListIDsBySubject(ctx, subject.ID)
		if err != nil {
			return nil, err
		}
		n := s.DrawSize()
		if len(pool) < n {
			return nil, util.ErrInsufficientQuestions
		}
		selected = samplePool(pool, n)
		attempt = &model.Attempt{
			UserID:    userID,
			Mode:      model.ModeRandom,
			SubjectID: subject.ID,
		}

	case model.ModeBlock:
		block, err := s.Blocks.FindByID(ctx, req.BlockID)
		if err != nil {
			return nil, err
		}
		pool, err := s.Questions.ListIDsByBlock(ctx, block.ID)
		if err != nil {
			return nil, err
		}
		if len(pool) == 0 {
			return nil, util.ErrEmptyBlock
		}
		selected = samplePool(pool, len(pool))
		blockID := block.ID
		attempt = &model.Attempt{
			UserID:    userID,
			Mode:      model.ModeBlock,
			SubjectID: block.SubjectID,
			BlockID:   &blockID,
		}

	default:
		return nil, fmt.Errorf("unknown attempt mode %q", req.Mode)
	}

	attempt.SetSelectedIDs(selected)

	answers := make([]model.AttemptAnswer, len(selected))
	for i, qid := range selected {
		answers[i] = model.AttemptAnswer{QuestionID: qid}
	}

	if err := s.Attempts.CreateWithAnswers(ctx, attempt, answers); err != nil {
		return nil, err
	}

	// Usage counters are best effort: a failed increment must not lose the
	// attempt the caller already owns.
	if err := s.Stats.RecordShown(ctx, selected); err != nil {
		logger.Log.Warn("Failed to increment timesShown",
			zap.String("attemptId", attempt.ID), zap.Error(err))
	}

	monitoring.AttemptsStarted.WithLabelValues(string(attempt.Mode)).Inc()

	questions, err := s.questionsInOrder(ctx, selected)
	if err != nil {
		return nil, err
	}

	resp := &StartAttemptResponse{
		AttemptID:      attempt.ID,
		Mode:           attempt.Mode,
		TotalQuestions: attempt.TotalQuestions,
		Questions:      s.viewsOf(ctx, questions),
	}

	if payload, err := json.Marshal(resp); err == nil {
		entry := &cache.CachedAttempt{AttemptID: attempt.ID, Payload: payload}
		if err := s.Cache.Put(ctx, entry); err != nil {
			logger.Log.Warn("Failed to seed resync cache",
				zap.String("attemptId", attempt.ID), zap.Error(err))
		}
	}

	return resp, nil
}

// Submit grades the attempt and finalizes it exactly once. Resubmitting a
// completed attempt returns the stored result without touching counters.
func (s *AttemptService) Submit(ctx context.Context, userID uint, attemptID string, req SubmitRequest) (*AttemptSummary, error) {
	attempt, err := s.Attempts.FindByID(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrPermissionDenied
	}
	if attempt.IsCompleted {
		return summaryOf(attempt), nil
	}

	selected := attempt.SelectedIDs()
	selectedSet := make(map[uint]bool, len(selected))
	for _, qid := range selected {
		selectedSet[qid] = true
	}
	for _, ans := range req.Answers {
		if !selectedSet[ans.QuestionID] {
			return nil, util.ErrUnknownQuestion
		}
	}

	questions, err := s.Questions.FindByIDs(ctx, selected)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	submitted := make(map[uint]*string, len(req.Answers))
	for i := range req.Answers {
		submitted[req.Answers[i].QuestionID] = req.Answers[i].UserAnswer
	}

	graded := make([]model.AttemptAnswer, 0, len(selected))
	correct, skipped := 0, 0
	for _, qid := range selected {
		row := model.AttemptAnswer{AttemptID: attempt.ID, QuestionID: qid}

		var set model.AnswerSet
		if raw := submitted[qid]; raw != nil {
			set = model.ParseAnswerSet(*raw)
		}

		if set.Empty() {
			// A blank answer is a skip, not an error: graded false but
			// counted apart from wrong answers.
			skipped++
			isCorrect := false
			row.IsCorrect = &isCorrect
		} else {
			normalized := set.String()
			row.UserAnswer = &normalized
			q := byID[qid]
			isCorrect := set.Equal(q.CorrectSet())
			row.IsCorrect = &isCorrect
			if isCorrect {
				correct++
			}
		}
		graded = append(graded, row)
	}

	wrong := attempt.TotalQuestions - correct - skipped
	score := 100 * float64(correct) / float64(attempt.TotalQuestions)
	now := time.Now()

	attempt.IsCompleted = true
	attempt.Score = &score
	attempt.CorrectAnswers = &correct
	attempt.WrongAnswers = &wrong
	attempt.SkippedAnswers = &skipped
	attempt.TimeSpent = req.TimeSpent
	attempt.CompletedAt = &now

	won, err := s.Attempts.CompleteWithAnswers(ctx, attempt, graded)
	if err != nil {
		return nil, err
	}
	if !won {
		// A concurrent submission finalized the attempt first; its result is
		// the attempt's result.
		existing, err := s.Attempts.FindByID(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		return summaryOf(existing), nil
	}

	if err := s.Stats.RecordGrades(ctx, graded); err != nil {
		logger.Log.Warn("Failed to update question counters",
			zap.String("attemptId", attempt.ID), zap.Error(err))
	}
	if err := s.Stats.RecordCompletion(ctx, attempt); err != nil {
		logger.Log.Warn("Failed to update block/subject rollups",
			zap.String("attemptId", attempt.ID), zap.Error(err))
	}

	monitoring.AttemptsCompleted.WithLabelValues(string(attempt.Mode)).Inc()

	if err := s.Cache.Clear(ctx, attempt.ID); err != nil {
		logger.Log.Warn("Failed to clear resync cache",
			zap.String("attemptId", attempt.ID), zap.Error(err))
	}

	return summaryOf(attempt), nil
}

// GetAttempt returns the attempt for answering (open) or review (completed).
// Correct answers appear only after completion. A read racing ahead of
// storage replication is retried with bounded backoff before NotFound
// reaches the caller.
func (s *AttemptService) GetAttempt(ctx context.Context, userID uint, attemptID string) (*AttemptDetail, error) {
	attempt, err := s.findWithResync(ctx, attemptID)
	if err != nil {
		return nil, err
	}
	if attempt.UserID != userID {
		return nil, util.ErrPermissionDenied
	}

	selected := attempt.SelectedIDs()
	questions, err := s.questionsInOrder(ctx, selected)
	if err != nil {
		return nil, err
	}

	detail := &AttemptDetail{
		Attempt:   attempt,
		Questions: s.viewsOf(ctx, questions),
	}

	if attempt.IsCompleted {
		rows, err := s.Attempts.GetAnswers(ctx, attemptID)
		if err != nil {
			return nil, err
		}
		byQuestion := make(map[uint]model.AttemptAnswer, len(rows))
		for _, row := range rows {
			byQuestion[row.QuestionID] = row
		}
		for _, q := range questions {
			row := byQuestion[q.ID]
			detail.Answers = append(detail.Answers, AnswerView{
				QuestionID:    q.ID,
				UserAnswer:    row.UserAnswer,
				IsCorrect:     row.IsCorrect,
				CorrectAnswer: q.CorrectSet().String(),
			})
		}
		return detail, nil
	}

	// Open attempt: hand back the client's draft so a reload resumes where
	// it left off. The payload itself is already in detail.Questions.
	if draft, err := s.Cache.Get(ctx, attemptID); err == nil && draft != nil {
		draft.Payload = nil
		detail.Draft = draft
	}

	return detail, nil
}

type SaveProgressRequest struct {
	Answers map[uint]string `json:"answers"`
	Flagged []uint          `json:"flagged"`
}

// SaveProgress stores the caller's draft answers and flagged questions in the
// resync cache. It is a no-op for completed attempts.
func (s *AttemptService) SaveProgress(ctx context.Context, userID uint, attemptID string, req SaveProgressRequest) error {
	attempt, err := s.findWithResync(ctx, attemptID)
	if err != nil {
		return err
	}
	if attempt.UserID != userID {
		return util.ErrPermissionDenied
	}
	if attempt.IsCompleted {
		return nil
	}

	entry, err := s.Cache.Get(ctx, attemptID)
	if err != nil || entry == nil {
		entry = &cache.CachedAttempt{AttemptID: attemptID}
	}
	entry.Answers = req.Answers
	entry.Flagged = req.Flagged
	return s.Cache.Put(ctx, entry)
}

func (s *AttemptService) GetStats(ctx context.Context, userID uint) (*repository.UserStats, error) {
	return s.Attempts.UserStats(ctx, userID)
}

func (s *AttemptService) findWithResync(ctx context.Context, attemptID string) (*model.Attempt, error) {
	var attempt *model.Attempt
	err := s.Backoff.Retry(ctx,
		func(err error) bool { return errors.Is(err, util.ErrAttemptNotFound) },
		func() error {
			var ferr error
			attempt, ferr = s.Attempts.FindByID(ctx, attemptID)
			return ferr
		},
	)
	if err != nil {
		return nil, err
	}
	return attempt, nil
}

func (s *AttemptService) questionsInOrder(ctx context.Context, ids []uint) ([]model.Question, error) {
	questions, err := s.Questions.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uint]model.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}
	ordered := make([]model.Question, 0, len(ids))
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			ordered = append(ordered, q)
		}
	}
	return ordered, nil
}

func (s *AttemptService) viewsOf(ctx context.Context, questions []model.Question) []QuestionView {
	views := make([]QuestionView, len(questions))
	for i, q := range questions {
		views[i] = QuestionView{
			ID:           q.ID,
			Text:         q.Text,
			Image:        s.Storage.ResolveImageURL(ctx, q.Image),
			OptionA:      q.OptionA,
			OptionB:      q.OptionB,
			OptionC:      q.OptionC,
			OptionD:      q.OptionD,
			OptionE:      q.OptionE,
			QuestionType: q.QuestionType,
		}
	}
	return views
}

// samplePool draws n distinct IDs uniformly without replacement.
func samplePool(pool []uint, n int) []uint {
	shuffled := make([]uint, len(pool))
	copy(shuffled, pool)
	rand.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	return shuffled[:n]
}

func summaryOf(a *model.Attempt) *AttemptSummary {
	sum := &AttemptSummary{
		AttemptID:      a.ID,
		Mode:           a.Mode,
		TotalQuestions: a.TotalQuestions,
		TimeSpent:      a.TimeSpent,
	}
	if a.Score != nil {
		sum.Score = *a.Score
	}
	if a.CorrectAnswers != nil {
		sum.CorrectAnswers = *a.CorrectAnswers
	}
	if a.WrongAnswers != nil {
		sum.WrongAnswers = *a.WrongAnswers
	}
	if a.SkippedAnswers != nil {
		sum.SkippedAnswers = *a.SkippedAnswers
	}
	if a.CompletedAt != nil {
		sum.CompletedAt = *a.CompletedAt
	}
	return sum
}
