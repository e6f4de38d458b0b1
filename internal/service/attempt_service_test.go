package service_test

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/vasifalituri/sechenov-plus-sub000/internal/cache"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/config"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/repository"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/service"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/util"
)

/* ---------------- In-memory fakes for the attempt service's stores ---------------- */

type fakeQuestionStore struct {
	mu        sync.Mutex
	questions map[uint]model.Question
	shown     map[uint]int
	correct   map[uint]int
	wrong     map[uint]int
}

func newFakeQuestionStore() *fakeQuestionStore {
	return &fakeQuestionStore{
		questions: map[uint]model.Question{},
		shown:     map[uint]int{},
		correct:   map[uint]int{},
		wrong:     map[uint]int{},
	}
}

func (s *fakeQuestionStore) ListIDsBySubject(ctx context.Context, subjectID uint) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for id, q := range s.questions {
		if q.SubjectID == subjectID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeQuestionStore) ListIDsByBlock(ctx context.Context, blockID uint) ([]uint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []uint
	for id, q := range s.questions {
		if q.BlockID != nil && *q.BlockID == blockID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (s *fakeQuestionStore) FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Question
	for _, id := range ids {
		if q, ok := s.questions[id]; ok {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *fakeQuestionStore) IncrementTimesShown(ctx context.Context, ids []uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		s.shown[id]++
	}
	return nil
}

func (s *fakeQuestionStore) IncrementResult(ctx context.Context, questionID uint, correct bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if correct {
		s.correct[questionID]++
	} else {
		s.wrong[questionID]++
	}
	return nil
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	seq      int
	attempts map[string]*model.Attempt
	answers  map[string][]model.AttemptAnswer
	misses   int // pending not-found responses, simulating replication lag
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{
		attempts: map[string]*model.Attempt{},
		answers:  map[string][]model.AttemptAnswer{},
	}
}

func (s *fakeAttemptStore) CreateWithAnswers(ctx context.Context, attempt *model.Attempt, answers []model.AttemptAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	if attempt.ID == "" {
		attempt.ID = fmt.Sprintf("attempt-%d", s.seq)
	}
	cp := *attempt
	s.attempts[attempt.ID] = &cp
	rows := make([]model.AttemptAnswer, len(answers))
	for i, a := range answers {
		a.AttemptID = attempt.ID
		rows[i] = a
	}
	s.answers[attempt.ID] = rows
	return nil
}

func (s *fakeAttemptStore) FindByID(ctx context.Context, id string) (*model.Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.misses > 0 {
		s.misses--
		return nil, util.ErrAttemptNotFound
	}
	a, ok := s.attempts[id]
	if !ok {
		return nil, util.ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakeAttemptStore) GetAnswers(ctx context.Context, attemptID string) ([]model.AttemptAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.AttemptAnswer(nil), s.answers[attemptID]...), nil
}

func (s *fakeAttemptStore) CompleteWithAnswers(ctx context.Context, attempt *model.Attempt, graded []model.AttemptAnswer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.attempts[attempt.ID]
	if !ok {
		return false, util.ErrAttemptNotFound
	}
	if stored.IsCompleted {
		return false, nil
	}
	stored.IsCompleted = true
	stored.Score = attempt.Score
	stored.CorrectAnswers = attempt.CorrectAnswers
	stored.WrongAnswers = attempt.WrongAnswers
	stored.SkippedAnswers = attempt.SkippedAnswers
	stored.TimeSpent = attempt.TimeSpent
	stored.CompletedAt = attempt.CompletedAt

	rows := s.answers[attempt.ID]
	for _, g := range graded {
		for i := range rows {
			if rows[i].QuestionID == g.QuestionID {
				rows[i].UserAnswer = g.UserAnswer
				rows[i].IsCorrect = g.IsCorrect
			}
		}
	}
	return true, nil
}

func (s *fakeAttemptStore) UserStats(ctx context.Context, userID uint) (*repository.UserStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &repository.UserStats{PerSubject: []repository.SubjectBreakdown{}}
	var sum float64
	for _, a := range s.attempts {
		if a.UserID != userID || !a.IsCompleted || a.Score == nil {
			continue
		}
		stats.CompletedAttempts++
		sum += *a.Score
	}
	if stats.CompletedAttempts > 0 {
		stats.AverageScore = sum / float64(stats.CompletedAttempts)
	}
	return stats, nil
}

type fakeSubjectCatalog struct {
	subjects map[uint]*model.Subject
}

func (c *fakeSubjectCatalog) FindByID(ctx context.Context, id uint) (*model.Subject, error) {
	s, ok := c.subjects[id]
	if !ok {
		return nil, util.ErrSubjectNotFound
	}
	return s, nil
}

type fakeBlockCatalog struct {
	blocks map[uint]*model.QuizBlock
}

func (c *fakeBlockCatalog) FindByID(ctx context.Context, id uint) (*model.QuizBlock, error) {
	b, ok := c.blocks[id]
	if !ok {
		return nil, util.ErrBlockNotFound
	}
	return b, nil
}

// fakeRollup folds scores with the same streaming mean the SQL layer uses.
type fakeRollup struct {
	mu       sync.Mutex
	attempts map[uint]int64
	average  map[uint]float64
}

func newFakeRollup() *fakeRollup {
	return &fakeRollup{attempts: map[uint]int64{}, average: map[uint]float64{}}
}

func (r *fakeRollup) RecordAttemptScore(ctx context.Context, id uint, score float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.attempts[id]
	r.average[id] = r.average[id] + (score-r.average[id])/float64(n+1)
	r.attempts[id] = n + 1
	return nil
}

type passthroughResolver struct{}

func (passthroughResolver) ResolveImageURL(ctx context.Context, ref string) string { return ref }

/* ---------------- Harness ---------------- */

type engine struct {
	svc           *service.AttemptService
	questions     *fakeQuestionStore
	attempts      *fakeAttemptStore
	subjects      *fakeSubjectCatalog
	blocks        *fakeBlockCatalog
	subjectRollup *fakeRollup
	blockRollup   *fakeRollup
	cache         *cache.MemoryAttemptCache
}

func newEngine() *engine {
	e := &engine{
		questions:     newFakeQuestionStore(),
		attempts:      newFakeAttemptStore(),
		subjects:      &fakeSubjectCatalog{subjects: map[uint]*model.Subject{}},
		blocks:        &fakeBlockCatalog{blocks: map[uint]*model.QuizBlock{}},
		subjectRollup: newFakeRollup(),
		blockRollup:   newFakeRollup(),
		cache:         cache.NewMemoryAttemptCache(),
	}

	cfg := &config.Config{}
	cfg.Quiz = config.QuizConfig{
		RandomDrawSize:   30,
		ResyncBaseMs:     1,
		ResyncCapMs:      2,
		ResyncMaxRetries: 5,
	}

	stats := service.NewStatsService(e.questions, e.blockRollup, e.subjectRollup)
	e.svc = service.NewAttemptService(
		e.questions, e.attempts, e.subjects, e.blocks,
		stats, passthroughResolver{}, e.cache, cfg,
	)
	return e
}

func (e *engine) addSubject(id uint) {
	e.subjects.subjects[id] = &model.Subject{BaseModel: model.BaseModel{ID: id}, Name: fmt.Sprintf("subject-%d", id)}
}

func (e *engine) addBlock(id, subjectID uint) {
	e.blocks.blocks[id] = &model.QuizBlock{BaseModel: model.BaseModel{ID: id}, SubjectID: subjectID}
}

// addQuestions seeds n single-answer questions (correct answer "A") and
// returns their IDs.
func (e *engine) addQuestions(n int, subjectID uint, blockID *uint) []uint {
	e.questions.mu.Lock()
	defer e.questions.mu.Unlock()
	start := uint(len(e.questions.questions)) + 1
	ids := make([]uint, 0, n)
	for i := 0; i < n; i++ {
		id := start + uint(i)
		e.questions.questions[id] = model.Question{
			BaseModel:     model.BaseModel{ID: id},
			Text:          fmt.Sprintf("question %d", id),
			OptionA:       "option a",
			OptionB:       "option b",
			OptionC:       "option c",
			OptionD:       "option d",
			CorrectAnswer: "A",
			QuestionType:  model.SingleAnswer,
			SubjectID:     subjectID,
			BlockID:       blockID,
		}
		ids = append(ids, id)
	}
	return ids
}

func strPtr(s string) *string { return &s }

/* ---------------- Selection ---------------- */

func TestStartRandomAttemptDrawsDistinctQuestions(t *testing.T) {
	e := newEngine()
	e.addSubject(1)
	pool := e.addQuestions(40, 1, nil)
	poolSet := map[uint]bool{}
	for _, id := range pool {
		poolSet[id] = true
	}

	resp, err := e.svc.StartAttempt(context.Background(), 10, service.StartAttemptRequest{
		Mode:      model.ModeRandom,
		SubjectID: 1,
	})
	if err != nil {
		t.Fatalf("StartAttempt returned %v", err)
	}
	if resp.TotalQuestions != 30 || len(resp.Questions) != 30 {
		t.Fatalf("drew %d questions (total %d), want 30", len(resp.Questions), resp.TotalQuestions)
	}

	seen := map[uint]bool{}
	for _, q := range resp.Questions {
		if seen[q.ID] {
			t.Errorf("question %d drawn twice", q.ID)
		}
		seen[q.ID] = true
		if !poolSet[q.ID] {
			t.Errorf("question %d is not in the subject pool", q.ID)
		}
	}

	stored, err := e.attempts.FindByID(context.Background(), resp.AttemptID)
	if err != nil {
		t.Fatalf("stored attempt not found: %v", err)
	}
	if stored.IsCompleted {
		t.Error("new attempt should be open")
	}
	for i, id := range stored.SelectedIDs() {
		if resp.Questions[i].ID != id {
			t.Fatalf("payload order diverges from frozen selection at %d", i)
		}
	}

	for _, q := range resp.Questions {
		if e.questions.shown[q.ID] != 1 {
			t.Errorf("question %d timesShown = %d, want 1", q.ID, e.questions.shown[q.ID])
		}
	}
}

func TestStartRandomAttemptRejectsSmallPool(t *testing.T) {
	e := newEngine()
	e.addSubject(1)
	e.addQuestions(29, 1, nil)

	_, err := e.svc.StartAttempt(context.Background(), 10, service.StartAttemptRequest{
		Mode:      model.ModeRandom,
		SubjectID: 1,
	})
	if err != util.ErrInsufficientQuestions {
		t.Fatalf("StartAttempt returned %v, want ErrInsufficientQuestions", err)
	}
	if len(e.attempts.attempts) != 0 {
		t.Error("no attempt should be created when the pool is too small")
	}
}

func TestStartAttemptUnknownSubject(t *testing.T) {
	e := newEngine()

	_, err := e.svc.StartAttempt(context.Background(), 10, service.StartAttemptRequest{
		Mode:      model.ModeRandom,
		SubjectID: 42,
	})
	if err != util.ErrSubjectNotFound {
		t.Fatalf("StartAttempt returned %v, want ErrSubjectNotFound", err)
	}
}

func TestStartBlockAttemptUsesWholeBlock(t *testing.T) {
	e := newEngine()
	e.addSubject(1)
	e.addBlock(5, 1)
	blockID := uint(5)
	pool := e.addQuestions(12, 1, &blockID)

	resp, err := e.svc.StartAttempt(context.Background(), 10, service.StartAttemptRequest{
		Mode:    model.ModeBlock,
		BlockID: 5,
	})
	if err != nil {
		t.Fatalf("StartAttempt returned %v", err)
	}
	if resp.TotalQuestions != len(pool) {
		t.Fatalf("block attempt drew %d questions, want all %d", resp.TotalQuestions, len(pool))
	}

	seen := map[uint]bool{}
	for _, q := range resp.Questions {
		seen[q.ID] = true
	}
	for _, id := range pool {
		if !seen[id] {
			t.Errorf("block question %d missing from attempt", id)
		}
	}

	stored, _ := e.attempts.FindByID(context.Background(), resp.AttemptID)
	if stored.SubjectID != 1 {
		t.Errorf("block attempt subjectID = %d, want the block's subject", stored.SubjectID)
	}
	if stored.BlockID == nil || *stored.BlockID != 5 {
		t.Error("block attempt should carry its block ID")
	}
}

func TestStartBlockAttemptRejectsEmptyBlock(t *testing.T) {
	e := newEngine()
	e.addSubject(1)
	e.addBlock(5, 1)

	_, err := e.svc.StartAttempt(context.Background(), 10, service.StartAttemptRequest{
		Mode:    model.ModeBlock,
		BlockID: 5,
	})
	if err != util.ErrEmptyBlock {
		t.Fatalf("StartAttempt returned %v, want ErrEmptyBlock", err)
	}

	_, err = e.svc.StartAttempt(context.Background(), 10, service.StartAttemptRequest{
		Mode:    model.ModeBlock,
		BlockID: 99,
	})
	if err != util.ErrBlockNotFound {
		t.Fatalf("StartAttempt returned %v, want ErrBlockNotFound", err)
	}
}

func TestStartAttemptPayloadNeverLeaksCorrectAnswers(t *testing.T) {
	e := newEngine()
	e.addSubject(1)
	e.addBlock(5, 1)
	blockID := uint(5)
	e.addQuestions(4, 1, &blockID)

	resp, err := e.svc.StartAttempt(context.Background(), 10, service.StartAttemptRequest{
		Mode:    model.ModeBlock,
		BlockID: 5,
	})
	if err != nil {
		t.Fatalf("StartAttempt returned %v", err)
	}

	raw, err := json.Marshal(resp)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(strings.ToLower(string(raw)), "correct") {
		t.Errorf("attempt payload leaks grading data: %s", raw)
	}
}

func TestSetDrawSizeAppliesToNewAttempts(t *testing.T) {
	e := newEngine()
	e.addSubject(1)
	e.addQuestions(6, 1, nil)

	e.svc.SetDrawSize(5)

	resp, err := e.svc.StartAttempt(context.Background(), 10, service.StartAttemptRequest{
		Mode:      model.ModeRandom,
		SubjectID: 1,
	})
	if err != nil {
		t.Fatalf("StartAttempt returned %v", err)
	}
	if resp.TotalQuestions != 5 {
		t.Fatalf("drew %d questions after SetDrawSize(5)", resp.TotalQuestions)
	}
}

/* ---------------- Grading ---------------- */

// startBlockAttempt seeds a block of n questions (correct answer "A") and
// opens an attempt for userID.
func startBlockAttempt(t *testing.T, e *engine, userID uint, n int) *service.StartAttemptResponse {
	t.Helper()
	e.addSubject(1)
	e.addBlock(5, 1)
	blockID := uint(5)
	e.addQuestions(n, 1, &blockID)

	resp, err := e.svc.StartAttempt(context.Background(), userID, service.StartAttemptRequest{
		Mode:    model.ModeBlock,
		BlockID: 5,
	})
	if err != nil {
		t.Fatalf("StartAttempt returned %v", err)
	}
	return resp
}

func TestSubmitScoresAndSeparatesSkipsFromWrong(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 10)

	// 7 correct (one lowercase), 1 wrong, 1 blank, 1 omitted entirely.
	var answers []service.SubmittedAnswer
	for i, q := range resp.Questions {
		switch {
		case i < 6:
			answers = append(answers, service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr("A")})
		case i == 6:
			answers = append(answers, service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr(" a ")})
		case i == 7:
			answers = append(answers, service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr("B")})
		case i == 8:
			answers = append(answers, service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr("")})
		}
	}

	sum, err := e.svc.Submit(context.Background(), 10, resp.AttemptID, service.SubmitRequest{
		Answers:   answers,
		TimeSpent: 321,
	})
	if err != nil {
		t.Fatalf("Submit returned %v", err)
	}

	if sum.CorrectAnswers != 7 || sum.WrongAnswers != 1 || sum.SkippedAnswers != 2 {
		t.Fatalf("graded %d/%d/%d (correct/wrong/skipped), want 7/1/2",
			sum.CorrectAnswers, sum.WrongAnswers, sum.SkippedAnswers)
	}
	if sum.Score != 70.0 {
		t.Errorf("score = %v, want 70.0", sum.Score)
	}
	if sum.TimeSpent != 321 {
		t.Errorf("timeSpent = %d, want 321", sum.TimeSpent)
	}
	if sum.CompletedAt.IsZero() {
		t.Error("completedAt should be stamped")
	}

	// Skipped questions leave usage counters untouched; answered ones move
	// exactly one counter.
	rows, _ := e.attempts.GetAnswers(context.Background(), resp.AttemptID)
	for _, row := range rows {
		if row.IsCorrect == nil {
			t.Fatalf("question %d was not graded", row.QuestionID)
		}
		if row.UserAnswer == nil {
			if e.questions.correct[row.QuestionID]+e.questions.wrong[row.QuestionID] != 0 {
				t.Errorf("skipped question %d moved a result counter", row.QuestionID)
			}
			if *row.IsCorrect {
				t.Errorf("skipped question %d marked correct", row.QuestionID)
			}
		} else if *row.IsCorrect {
			if e.questions.correct[row.QuestionID] != 1 {
				t.Errorf("correct question %d counter = %d", row.QuestionID, e.questions.correct[row.QuestionID])
			}
		} else if e.questions.wrong[row.QuestionID] != 1 {
			t.Errorf("wrong question %d counter = %d", row.QuestionID, e.questions.wrong[row.QuestionID])
		}
	}

	if e.subjectRollup.attempts[1] != 1 || e.subjectRollup.average[1] != 70.0 {
		t.Errorf("subject rollup = %d/%v, want 1/70", e.subjectRollup.attempts[1], e.subjectRollup.average[1])
	}
	if e.blockRollup.attempts[5] != 1 || e.blockRollup.average[5] != 70.0 {
		t.Errorf("block rollup = %d/%v, want 1/70", e.blockRollup.attempts[5], e.blockRollup.average[5])
	}

	if entry, _ := e.cache.Get(context.Background(), resp.AttemptID); entry != nil {
		t.Error("resync cache should be cleared after submission")
	}
}

func TestSubmitMultiAnswerIgnoresOrderAndCase(t *testing.T) {
	e := newEngine()
	e.addSubject(1)
	e.addBlock(5, 1)
	blockID := uint(5)
	e.questions.questions[1] = model.Question{
		BaseModel:     model.BaseModel{ID: 1},
		Text:          "pick two",
		OptionA:       "a",
		OptionB:       "b",
		OptionC:       "c",
		OptionD:       "d",
		CorrectAnswer: "A,B",
		QuestionType:  model.MultipleAnswer,
		SubjectID:     1,
		BlockID:       &blockID,
	}

	resp, err := e.svc.StartAttempt(context.Background(), 10, service.StartAttemptRequest{
		Mode:    model.ModeBlock,
		BlockID: 5,
	})
	if err != nil {
		t.Fatalf("StartAttempt returned %v", err)
	}

	sum, err := e.svc.Submit(context.Background(), 10, resp.AttemptID, service.SubmitRequest{
		Answers: []service.SubmittedAnswer{{QuestionID: 1, UserAnswer: strPtr("b, a")}},
	})
	if err != nil {
		t.Fatalf("Submit returned %v", err)
	}
	if sum.CorrectAnswers != 1 || sum.Score != 100.0 {
		t.Errorf("'b, a' graded %d correct (score %v), want full credit for A,B", sum.CorrectAnswers, sum.Score)
	}

	rows, _ := e.attempts.GetAnswers(context.Background(), resp.AttemptID)
	if rows[0].UserAnswer == nil || *rows[0].UserAnswer != "A,B" {
		t.Errorf("stored answer = %v, want normalized A,B", rows[0].UserAnswer)
	}
}

func TestSubmitRejectsQuestionOutsideSelection(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 4)

	_, err := e.svc.Submit(context.Background(), 10, resp.AttemptID, service.SubmitRequest{
		Answers: []service.SubmittedAnswer{{QuestionID: 9999, UserAnswer: strPtr("A")}},
	})
	if err != util.ErrUnknownQuestion {
		t.Fatalf("Submit returned %v, want ErrUnknownQuestion", err)
	}

	stored, _ := e.attempts.FindByID(context.Background(), resp.AttemptID)
	if stored.IsCompleted {
		t.Error("rejected submission must leave the attempt open")
	}
	if e.subjectRollup.attempts[1] != 0 {
		t.Error("rejected submission must not touch rollups")
	}
}

func TestSubmitChecksOwnership(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 4)

	_, err := e.svc.Submit(context.Background(), 99, resp.AttemptID, service.SubmitRequest{})
	if err != util.ErrPermissionDenied {
		t.Fatalf("Submit returned %v, want ErrPermissionDenied", err)
	}

	_, err = e.svc.GetAttempt(context.Background(), 99, resp.AttemptID)
	if err != util.ErrPermissionDenied {
		t.Fatalf("GetAttempt returned %v, want ErrPermissionDenied", err)
	}
}

func TestSubmitIsIdempotent(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 4)

	allCorrect := make([]service.SubmittedAnswer, len(resp.Questions))
	for i, q := range resp.Questions {
		allCorrect[i] = service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr("A")}
	}

	first, err := e.svc.Submit(context.Background(), 10, resp.AttemptID, service.SubmitRequest{Answers: allCorrect})
	if err != nil {
		t.Fatalf("first Submit returned %v", err)
	}
	if first.Score != 100.0 {
		t.Fatalf("first score = %v, want 100", first.Score)
	}

	// Resubmit with worse answers: the stored result wins and nothing moves.
	allWrong := make([]service.SubmittedAnswer, len(resp.Questions))
	for i, q := range resp.Questions {
		allWrong[i] = service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr("B")}
	}
	second, err := e.svc.Submit(context.Background(), 10, resp.AttemptID, service.SubmitRequest{Answers: allWrong})
	if err != nil {
		t.Fatalf("second Submit returned %v", err)
	}
	if second.Score != 100.0 || second.CorrectAnswers != first.CorrectAnswers {
		t.Errorf("second submission changed the result: %+v", second)
	}

	if e.subjectRollup.attempts[1] != 1 {
		t.Errorf("subject rollup counted %d attempts, want 1", e.subjectRollup.attempts[1])
	}
	for _, q := range resp.Questions {
		if e.questions.correct[q.ID] != 1 || e.questions.wrong[q.ID] != 0 {
			t.Errorf("question %d counters moved on resubmit: correct=%d wrong=%d",
				q.ID, e.questions.correct[q.ID], e.questions.wrong[q.ID])
		}
	}
}

func TestConcurrentSubmitsFinalizeExactlyOnce(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 4)

	const racers = 8
	results := make([]*service.AttemptSummary, racers)
	errs := make([]error, racers)

	var wg sync.WaitGroup
	for i := 0; i < racers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Racers disagree about the answers; exactly one grading wins.
			answer := "A"
			if i%2 == 1 {
				answer = "B"
			}
			answers := make([]service.SubmittedAnswer, len(resp.Questions))
			for j, q := range resp.Questions {
				answers[j] = service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr(answer)}
			}
			results[i], errs[i] = e.svc.Submit(context.Background(), 10, resp.AttemptID, service.SubmitRequest{Answers: answers})
		}()
	}
	wg.Wait()

	for i := 0; i < racers; i++ {
		if errs[i] != nil {
			t.Fatalf("racer %d failed: %v", i, errs[i])
		}
	}

	stored, _ := e.attempts.FindByID(context.Background(), resp.AttemptID)
	if !stored.IsCompleted || stored.Score == nil {
		t.Fatal("attempt should be completed with a score")
	}
	for i, sum := range results {
		if sum.Score != *stored.Score {
			t.Errorf("racer %d saw score %v, stored is %v", i, sum.Score, *stored.Score)
		}
	}

	if e.subjectRollup.attempts[1] != 1 {
		t.Errorf("subject rollup counted %d attempts, want 1", e.subjectRollup.attempts[1])
	}
	if e.blockRollup.attempts[5] != 1 {
		t.Errorf("block rollup counted %d attempts, want 1", e.blockRollup.attempts[5])
	}
}

func TestConcurrentCompletionsKeepRollupConsistent(t *testing.T) {
	e := newEngine()
	e.addSubject(1)
	e.addBlock(5, 1)
	blockID := uint(5)
	e.addQuestions(4, 1, &blockID)

	const attempts = 100
	ids := make([]string, attempts)
	for i := 0; i < attempts; i++ {
		resp, err := e.svc.StartAttempt(context.Background(), uint(100+i), service.StartAttemptRequest{
			Mode:    model.ModeBlock,
			BlockID: 5,
		})
		if err != nil {
			t.Fatalf("StartAttempt %d returned %v", i, err)
		}
		ids[i] = resp.AttemptID
	}

	// Attempt i answers i%5 of 4 questions correctly, so the expected mean is
	// known exactly.
	var expectedSum float64
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		nCorrect := i % 5
		if nCorrect > 4 {
			nCorrect = 4
		}
		expectedSum += 100 * float64(nCorrect) / 4

		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			stored, err := e.attempts.FindByID(context.Background(), ids[i])
			if err != nil {
				t.Errorf("attempt %d: %v", i, err)
				return
			}
			var answers []service.SubmittedAnswer
			for j, qid := range stored.SelectedIDs() {
				answer := "B"
				if j < i%5 {
					answer = "A"
				}
				answers = append(answers, service.SubmittedAnswer{QuestionID: qid, UserAnswer: strPtr(answer)})
			}
			if _, err := e.svc.Submit(context.Background(), uint(100+i), ids[i], service.SubmitRequest{Answers: answers}); err != nil {
				t.Errorf("submit %d: %v", i, err)
			}
		}()
	}
	wg.Wait()

	if e.blockRollup.attempts[5] != attempts {
		t.Fatalf("block rollup counted %d attempts, want %d", e.blockRollup.attempts[5], attempts)
	}
	wantMean := expectedSum / attempts
	gotMean := e.blockRollup.average[5]
	if diff := gotMean - wantMean; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("block mean = %v, want %v", gotMean, wantMean)
	}
}

/* ---------------- Reads and resync ---------------- */

func TestGetAttemptRidesOutReplicationLag(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 4)

	e.attempts.mu.Lock()
	e.attempts.misses = 3
	e.attempts.mu.Unlock()

	detail, err := e.svc.GetAttempt(context.Background(), 10, resp.AttemptID)
	if err != nil {
		t.Fatalf("GetAttempt returned %v, want success after retries", err)
	}
	if detail.Attempt.ID != resp.AttemptID {
		t.Errorf("got attempt %s, want %s", detail.Attempt.ID, resp.AttemptID)
	}
}

func TestGetAttemptGivesUpAfterRetryBudget(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 4)

	e.attempts.mu.Lock()
	e.attempts.misses = 10
	e.attempts.mu.Unlock()

	_, err := e.svc.GetAttempt(context.Background(), 10, resp.AttemptID)
	if err != util.ErrAttemptNotFound {
		t.Fatalf("GetAttempt returned %v, want ErrAttemptNotFound", err)
	}
}

func TestGetAttemptHidesAnswersUntilCompleted(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 4)
	ctx := context.Background()

	open, err := e.svc.GetAttempt(ctx, 10, resp.AttemptID)
	if err != nil {
		t.Fatalf("GetAttempt returned %v", err)
	}
	if len(open.Answers) != 0 {
		t.Errorf("open attempt exposes %d answer rows", len(open.Answers))
	}
	if len(open.Questions) != 4 {
		t.Errorf("open attempt has %d questions, want 4", len(open.Questions))
	}

	answers := make([]service.SubmittedAnswer, len(resp.Questions))
	for i, q := range resp.Questions {
		answers[i] = service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr("A")}
	}
	if _, err := e.svc.Submit(ctx, 10, resp.AttemptID, service.SubmitRequest{Answers: answers}); err != nil {
		t.Fatalf("Submit returned %v", err)
	}

	done, err := e.svc.GetAttempt(ctx, 10, resp.AttemptID)
	if err != nil {
		t.Fatalf("GetAttempt returned %v", err)
	}
	if len(done.Answers) != 4 {
		t.Fatalf("completed attempt exposes %d answer rows, want 4", len(done.Answers))
	}
	for _, av := range done.Answers {
		if av.CorrectAnswer != "A" {
			t.Errorf("review row for %d lacks the correct answer", av.QuestionID)
		}
		if av.IsCorrect == nil || !*av.IsCorrect {
			t.Errorf("review row for %d should be marked correct", av.QuestionID)
		}
	}
}

func TestSaveProgressRoundTripsDraft(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 4)
	ctx := context.Background()

	qid := resp.Questions[0].ID
	err := e.svc.SaveProgress(ctx, 10, resp.AttemptID, service.SaveProgressRequest{
		Answers: map[uint]string{qid: "A"},
		Flagged: []uint{qid},
	})
	if err != nil {
		t.Fatalf("SaveProgress returned %v", err)
	}

	detail, err := e.svc.GetAttempt(ctx, 10, resp.AttemptID)
	if err != nil {
		t.Fatalf("GetAttempt returned %v", err)
	}
	if detail.Draft == nil {
		t.Fatal("open attempt should carry the saved draft")
	}
	if detail.Draft.Answers[qid] != "A" {
		t.Errorf("draft answers = %v, want %d => A", detail.Draft.Answers, qid)
	}
	if len(detail.Draft.Flagged) != 1 || detail.Draft.Flagged[0] != qid {
		t.Errorf("draft flags = %v, want [%d]", detail.Draft.Flagged, qid)
	}

	// Completion drops the draft; late saves are ignored.
	answers := make([]service.SubmittedAnswer, len(resp.Questions))
	for i, q := range resp.Questions {
		answers[i] = service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr("A")}
	}
	if _, err := e.svc.Submit(ctx, 10, resp.AttemptID, service.SubmitRequest{Answers: answers}); err != nil {
		t.Fatalf("Submit returned %v", err)
	}
	if err := e.svc.SaveProgress(ctx, 10, resp.AttemptID, service.SaveProgressRequest{
		Answers: map[uint]string{qid: "B"},
	}); err != nil {
		t.Fatalf("SaveProgress after completion returned %v", err)
	}
	if entry, _ := e.cache.Get(ctx, resp.AttemptID); entry != nil {
		t.Error("completed attempt should have no cached draft")
	}
}

func TestGetStatsAggregatesCompletedAttempts(t *testing.T) {
	e := newEngine()
	resp := startBlockAttempt(t, e, 10, 4)
	ctx := context.Background()

	answers := make([]service.SubmittedAnswer, len(resp.Questions))
	for i, q := range resp.Questions {
		answers[i] = service.SubmittedAnswer{QuestionID: q.ID, UserAnswer: strPtr("A")}
	}
	if _, err := e.svc.Submit(ctx, 10, resp.AttemptID, service.SubmitRequest{Answers: answers}); err != nil {
		t.Fatalf("Submit returned %v", err)
	}

	stats, err := e.svc.GetStats(ctx, 10)
	if err != nil {
		t.Fatalf("GetStats returned %v", err)
	}
	if stats.CompletedAttempts != 1 || stats.AverageScore != 100.0 {
		t.Errorf("stats = %+v, want 1 attempt at 100", stats)
	}
}
