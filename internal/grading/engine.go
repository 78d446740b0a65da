package grading

import (
	"context"
	"fmt"
	"strings"
)

// Question type identifiers. The exam package validates against this set.
const (
	TypeSingleChoice = "single_choice"
	TypeMultiChoice  = "multi_choice"
	TypeFillBlank    = "fill_blank"
	TypeEssay        = "essay"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	Type        string
	Score       int
	RightAnswer string
}

// Result is the outcome of grading a single submitted answer.
type Result struct {
	Points      int  // points awarded automatically
	MaxPoints   int  // the question's point value
	NeedsReview bool // true if the answer must be graded by hand
}

// Strategy grades a single question type.
type Strategy interface {
	Grade(ctx context.Context, q Q, answer string) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, answer string) (Result, error)
}

// EssayPolicy selects how free-text answers are scored automatically.
type EssayPolicy string

const (
	// EssayManual awards 0 and flags the record for manual grading.
	EssayManual EssayPolicy = "manual"
	// EssayCompletion awards full points for any non-blank submission.
	EssayCompletion EssayPolicy = "completion"
	// EssayKeyword awards points proportional to reference keywords found.
	EssayKeyword EssayPolicy = "keyword"
)

type config struct {
	essayPolicy EssayPolicy
}

type Option func(*config)

func WithEssayPolicy(p EssayPolicy) Option { return func(c *config) { c.essayPolicy = p } }

type defaultGrader struct {
	strategies map[string]Strategy
}

// NewDefaultGrader installs the built-in strategies.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{essayPolicy: EssayManual}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{
		strategies: map[string]Strategy{
			TypeSingleChoice: singleChoiceStrategy{},
			TypeMultiChoice:  multiChoiceStrategy{},
			TypeFillBlank:    fillBlankStrategy{},
			TypeEssay:        essayStrategy{policy: cfg.essayPolicy},
		},
	}
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, answer string) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		return Result{}, fmt.Errorf("unknown question type %q", q.Type)
	}
	return s.Grade(ctx, q, answer)
}

// --- Strategies ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Grade(_ context.Context, q Q, answer string) (Result, error) {
	res := Result{MaxPoints: q.Score}
	if n := normalize(answer); n != "" && n == normalize(q.RightAnswer) {
		res.Points = q.Score
	}
	return res, nil
}

// multiChoiceStrategy compares the submitted option tokens against the
// reference tokens as unordered sets. All-or-nothing: no partial credit.
type multiChoiceStrategy struct{}

func (multiChoiceStrategy) Grade(_ context.Context, q Q, answer string) (Result, error) {
	res := Result{MaxPoints: q.Score}
	want := tokenSet(q.RightAnswer, ",")
	got := tokenSet(answer, ",")
	if len(want) > 0 && setEqual(want, got) {
		res.Points = q.Score
	}
	return res, nil
}

// fillBlankStrategy accepts any of the |-separated reference alternatives.
type fillBlankStrategy struct{}

func (fillBlankStrategy) Grade(_ context.Context, q Q, answer string) (Result, error) {
	res := Result{MaxPoints: q.Score}
	na := normalize(answer)
	if na == "" {
		return res, nil
	}
	for _, alt := range strings.Split(q.RightAnswer, "|") {
		if normalize(alt) == na {
			res.Points = q.Score
			return res, nil
		}
	}
	return res, nil
}

type essayStrategy struct{ policy EssayPolicy }

func (s essayStrategy) Grade(_ context.Context, q Q, answer string) (Result, error) {
	res := Result{MaxPoints: q.Score}
	switch s.policy {
	case EssayCompletion:
		if strings.TrimSpace(answer) != "" {
			res.Points = q.Score
		}
	case EssayKeyword:
		res.Points = keywordScore(answer, strings.Split(q.RightAnswer, ","), q.Score)
	default: // EssayManual
		res.NeedsReview = true
	}
	return res, nil
}

// helpers

func tokenSet(s, sep string) map[string]struct{} {
	out := map[string]struct{}{}
	for _, t := range strings.Split(s, sep) {
		if n := normalize(t); n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func keywordScore(text string, keywords []string, max int) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}
	low := strings.ToLower(text)
	total, found := 0, 0
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		total++
		if strings.Contains(low, strings.ToLower(k)) {
			found++
		}
	}
	if total == 0 {
		return 0
	}
	return max * found / total
}
