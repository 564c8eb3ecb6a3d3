package quiz

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mcdev12/globalquiz/go/internal/models"
)

var (
	// ErrEmptyCatalog is returned when a catalog has no questions
	ErrEmptyCatalog = errors.New("catalog has no questions")

	// ErrInvalidQuestion is returned for a question that cannot be played
	ErrInvalidQuestion = errors.New("invalid question")
)

// Catalog is an ordered, immutable list of questions sharing a theme and difficulty
type Catalog struct {
	theme      string
	difficulty string
	questions  []models.Question
}

// NewCatalog validates questions and assigns their ordinal indexes
func NewCatalog(theme, difficulty string, questions []models.Question) (*Catalog, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyCatalog
	}

	indexed := make([]models.Question, len(questions))
	for i, q := range questions {
		if err := validateQuestion(q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		q.Index = i
		q.Options = append([]string(nil), q.Options...)
		indexed[i] = q
	}

	return &Catalog{
		theme:      theme,
		difficulty: difficulty,
		questions:  indexed,
	}, nil
}

func validateQuestion(q models.Question) error {
	if strings.TrimSpace(q.Prompt) == "" {
		return fmt.Errorf("%w: empty prompt", ErrInvalidQuestion)
	}
	if len(q.Options) < 2 {
		return fmt.Errorf("%w: need at least 2 options, got %d", ErrInvalidQuestion, len(q.Options))
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return fmt.Errorf("%w: correct answer %d out of range", ErrInvalidQuestion, q.CorrectOption)
	}
	return nil
}

func (c *Catalog) Theme() string      { return c.theme }
func (c *Catalog) Difficulty() string { return c.difficulty }
func (c *Catalog) Len() int           { return len(c.questions) }

// Question returns the question at index i
func (c *Catalog) Question(i int) (models.Question, bool) {
	if i < 0 || i >= len(c.questions) {
		return models.Question{}, false
	}
	q := c.questions[i]
	q.Options = append([]string(nil), q.Options...)
	return q, true
}

// Questions returns a copy of every question in order
func (c *Catalog) Questions() []models.Question {
	out := make([]models.Question, len(c.questions))
	for i := range c.questions {
		out[i], _ = c.Question(i)
	}
	return out
}
