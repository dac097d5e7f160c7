package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ggasparott/FastMission/internal/apperrors"
)

// ErrInvalidInput is returned when the description or the code is blank.
var ErrInvalidInput = fmt.Errorf("%w: description and code are required", apperrors.ErrInvalidInput)

// Policy decides how correction rules interact with the category result.
type Policy string

const (
	// PolicyLastWriterWins lets corrections overwrite any field the category rule set.
	PolicyLastWriterWins Policy = "last-writer-wins"
	// PolicyCategoryPrecedence skips corrections when the category rule already flagged a divergence.
	PolicyCategoryPrecedence Policy = "category-precedence"
)

// ParsePolicy converts a configuration value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyLastWriterWins, "":
		return PolicyLastWriterWins, nil
	case PolicyCategoryPrecedence:
		return PolicyCategoryPrecedence, nil
	default:
		return "", fmt.Errorf("unknown rule policy: %q", s)
	}
}

// CodeCheck is the outcome of looking a code up in the reference catalog.
type CodeCheck struct {
	// Checked is false when no catalog is available to decide.
	Checked    bool
	Known      bool
	Suggestion string
}

// CodeChecker resolves codes against the reference catalog.
type CodeChecker interface {
	CheckCode(code string) CodeCheck
}

// Input is the normalized view of one item the rules evaluate.
type Input struct {
	Description   string
	Code          string
	SecondaryCode *string

	text   string
	digits string
}

func newInput(description, code string, secondaryCode *string) Input {
	return Input{
		Description:   description,
		Code:          code,
		SecondaryCode: secondaryCode,
		text:          Fold(description),
		digits:        Digits(code),
	}
}

func (in Input) hasSecondary() bool {
	return in.SecondaryCode != nil && strings.TrimSpace(*in.SecondaryCode) != ""
}

// Options configures an Engine.
type Options struct {
	Policy  Policy
	Rules   []Rule      // defaults to DefaultRules()
	Checker CodeChecker // optional
}

// Engine is a pure, deterministic classifier. It is safe for concurrent use.
type Engine struct {
	policy      Policy
	categories  []Rule
	corrections []Rule
	checker     CodeChecker
}

// NewEngine creates an Engine. Category rules are evaluated by descending priority,
// corrections by ascending priority, with declaration order breaking ties in both.
func NewEngine(opts Options) *Engine {
	if opts.Policy == "" {
		opts.Policy = PolicyLastWriterWins
	}
	ruleSet := opts.Rules
	if ruleSet == nil {
		ruleSet = DefaultRules()
	}

	e := &Engine{policy: opts.Policy, checker: opts.Checker}
	for _, rule := range ruleSet {
		switch rule.Pass {
		case PassCorrection:
			e.corrections = append(e.corrections, rule)
		default:
			e.categories = append(e.categories, rule)
		}
	}
	sort.SliceStable(e.categories, func(i, j int) bool {
		return e.categories[i].Priority > e.categories[j].Priority
	})
	sort.SliceStable(e.corrections, func(i, j int) bool {
		return e.corrections[i].Priority < e.corrections[j].Priority
	})
	return e
}

// Policy returns the configured correction policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// Rules returns the rules in evaluation order: category pass first, then corrections.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, 0, len(e.categories)+len(e.corrections))
	out = append(out, e.categories...)
	return append(out, e.corrections...)
}

// Classify maps a description and its codes to fiscal attributes.
func (e *Engine) Classify(description, code string, secondaryCode *string) (Result, error) {
	if strings.TrimSpace(description) == "" || strings.TrimSpace(code) == "" {
		return Result{}, ErrInvalidInput
	}

	in := newInput(description, code, secondaryCode)
	r := defaultResult(in)

	for _, rule := range e.categories {
		if rule.matches(in) {
			rule.Apply(in, &r)
			break
		}
	}

	categoryDivergent := r.Status == StatusDivergent
	for _, rule := range e.corrections {
		if !rule.matches(in) {
			continue
		}
		if e.policy == PolicyCategoryPrecedence && categoryDivergent {
			continue
		}
		rule.Apply(in, &r)
	}

	if e.checker != nil && r.Status == StatusValid {
		e.applyCatalogCheck(in, &r)
	}

	return r, nil
}

func (e *Engine) applyCatalogCheck(in Input, r *Result) {
	check := e.checker.CheckCode(in.Code)
	if !check.Checked || check.Known {
		return
	}
	r.markDivergent(check.Suggestion)
	r.Explanation = fmt.Sprintf("NCM %s não encontrado na tabela oficial.", in.Code)
	if check.Suggestion != "" {
		r.Explanation += fmt.Sprintf(" Sugestão: %s", check.Suggestion)
	}
}
