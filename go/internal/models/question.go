package models

// Question is an immutable quiz record. CorrectOption and Explanation are
// never sent to clients before the reveal.
type Question struct {
	Index         int      `json:"index" yaml:"-"`
	Prompt        string   `json:"question" yaml:"question"`
	Options       []string `json:"options" yaml:"options"`
	CorrectOption int      `json:"-" yaml:"correct_answer"`
	Explanation   string   `json:"-" yaml:"explanation"`
}

// IsCorrect reports whether option is the correct answer index
func (q Question) IsCorrect(option int) bool {
	return option == q.CorrectOption
}
