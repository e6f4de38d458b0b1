// Seeds a demo subject with enough questions to open a random attempt.
//
// Meant for local development and first deployments; production content comes
// from the authoring platform.
//
// Usage: go run scripts/seed_questions.go

package main

import (
	"fmt"
	"log"
	"os"

	"github.com/vasifalituri/sechenov-plus-sub000/internal/config"
	"github.com/vasifalituri/sechenov-plus-sub000/internal/model"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/database"
	"github.com/vasifalituri/sechenov-plus-sub000/pkg/logger"

	"gopkg.in/yaml.v3"
)

func main() {
	data, err := os.ReadFile("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to read config file: %v", err)
	}

	var cfg config.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Fatalf("Failed to parse config file: %v", err)
	}
	cfg.ForceMigrate = true

	logger.InitLogger(&cfg)

	db, err := database.InitDB(&cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	subject := model.Subject{Name: "Anatomy (demo)", Description: "Seeded demo subject"}
	if err := db.FirstOrCreate(&subject, model.Subject{Name: subject.Name}).Error; err != nil {
		log.Fatalf("Failed to create subject: %v", err)
	}

	block := model.QuizBlock{Title: "Demo block", SubjectID: subject.ID, Difficulty: "easy"}
	if err := db.FirstOrCreate(&block, model.QuizBlock{Title: block.Title, SubjectID: subject.ID}).Error; err != nil {
		log.Fatalf("Failed to create block: %v", err)
	}

	var count int64
	db.Model(&model.Question{}).Where("subject_id = ?", subject.ID).Count(&count)
	if count >= 40 {
		log.Printf("Subject %d already has %d questions, nothing to do", subject.ID, count)
		return
	}

	blockID := block.ID
	for i := int(count); i < 40; i++ {
		q := model.Question{
			Text:          fmt.Sprintf("Demo question %d: which option is marked correct?", i+1),
			OptionA:       "This one",
			OptionB:       "Not this one",
			OptionC:       "Also not this one",
			OptionD:       "Definitely not this one",
			CorrectAnswer: "A",
			QuestionType:  model.SingleAnswer,
			Difficulty:    "easy",
			SubjectID:     subject.ID,
		}
		// First ten questions form the demo block.
		if i < 10 {
			q.BlockID = &blockID
		}
		if err := db.Create(&q).Error; err != nil {
			log.Fatalf("Failed to create question: %v", err)
		}
	}

	db.Model(&model.QuizBlock{}).Where("id = ?", block.ID).Update("question_count", 10)

	log.Printf("Seeded subject %d with 40 questions (block %d holds 10)", subject.ID, block.ID)
}
