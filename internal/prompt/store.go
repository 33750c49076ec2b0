// Package prompt loads the evaluator prompt document and resolves the system
// and user messages sent for each workbook step.
package prompt

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/argument-tutor/internal/model"
)

// DefaultMaxPasses bounds fragment substitution.
const DefaultMaxPasses = 3

// Document is the on-disk prompt configuration.
type Document struct {
	Fragments map[string]string          `yaml:"fragments"`
	Steps     map[model.Step]StepPrompts `yaml:"steps"`
}

// StepPrompts holds the prompts for one evaluated step. A claim-side variant
// takes precedence over the generic System prompt.
type StepPrompts struct {
	System       string                 `yaml:"system"`
	Variants     map[model.Claim]string `yaml:"variants"`
	UserTemplate string                 `yaml:"user_template"`
}

// Fields are the values substituted into a user template.
type Fields struct {
	Text     string
	Evidence string
	Claim    model.Claim
}

// NotFoundError reports a step with neither a matching variant nor a generic
// system prompt.
type NotFoundError struct {
	Step  model.Step
	Claim model.Claim
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("prompt: no system prompt for step=%s claim_side=%s", e.Step, e.Claim)
}

// Store resolves prompts from a loaded Document. It is read-only after
// construction and safe for concurrent use.
type Store struct {
	doc       Document
	maxPasses int
}

// New creates a Store over doc. maxPasses <= 0 selects DefaultMaxPasses.
func New(doc Document, maxPasses int) *Store {
	if maxPasses <= 0 {
		maxPasses = DefaultMaxPasses
	}
	if doc.Fragments == nil {
		doc.Fragments = map[string]string{}
	}
	if doc.Steps == nil {
		doc.Steps = map[model.Step]StepPrompts{}
	}
	return &Store{doc: doc, maxPasses: maxPasses}
}

// Parse decodes a YAML prompt document.
func Parse(data []byte, maxPasses int) (*Store, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "prompt: parse document")
	}
	return New(doc, maxPasses), nil
}

// Load reads a YAML prompt document from path.
func Load(path string, maxPasses int) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "prompt: read %s", path)
	}
	return Parse(data, maxPasses)
}

// Resolve returns the fully expanded system prompt for step and claim side.
func (s *Store) Resolve(step model.Step, claim model.Claim) (string, error) {
	sp, ok := s.doc.Steps[step]
	if ok {
		if claim != model.ClaimNone {
			if v, ok := sp.Variants[claim]; ok && v != "" {
				return s.expand(v), nil
			}
		}
		if sp.System != "" {
			return s.expand(sp.System), nil
		}
	}
	return "", &NotFoundError{Step: step, Claim: claim}
}

// RenderUserMessage fills the step's user template. Without a template the
// submitted text is sent as-is.
func (s *Store) RenderUserMessage(step model.Step, f Fields) string {
	text := strings.TrimSpace(f.Text)
	tpl := s.doc.Steps[step].UserTemplate
	if tpl == "" {
		return text
	}
	r := strings.NewReplacer(
		"{text}", text,
		"{reasoning}", text,
		"{evidence}", strings.TrimSpace(f.Evidence),
		"{claim_side}", string(f.Claim),
	)
	return r.Replace(tpl)
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_]+)\s*\}\}`)

// expand substitutes fragment placeholders until the text stops changing or
// the pass limit is reached. Whatever remains after the last pass is used.
func (s *Store) expand(text string) string {
	out := text
	for i := 0; i < s.maxPasses; i++ {
		next := s.expandOnce(out)
		if next == out {
			return out
		}
		out = next
	}
	if s.expandOnce(out) != out {
		zap.L().Debug("prompt: placeholder expansion did not converge",
			zap.Int("max_passes", s.maxPasses),
		)
	}
	return out
}

func (s *Store) expandOnce(text string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(m string) string {
		name := placeholderRe.FindStringSubmatch(m)[1]
		if frag, ok := s.doc.Fragments[name]; ok {
			return frag
		}
		return m
	})
}

// Issue describes a step/claim combination that cannot be served.
type Issue struct {
	Step    model.Step  `json:"step"`
	Claim   model.Claim `json:"claim_side"`
	Problem string      `json:"problem"`
}

// Check resolves every step for every claim side and reports gaps. Missing
// user templates are reported but are not fatal.
func (s *Store) Check() []Issue {
	var issues []Issue
	for _, step := range model.Steps {
		for _, claim := range model.Claims {
			text, err := s.Resolve(step, claim)
			if err != nil {
				issues = append(issues, Issue{Step: step, Claim: claim, Problem: err.Error()})
				continue
			}
			if m := placeholderRe.FindString(text); m != "" {
				issues = append(issues, Issue{Step: step, Claim: claim, Problem: "unresolved placeholder " + m})
			}
		}
		if s.doc.Steps[step].UserTemplate == "" {
			issues = append(issues, Issue{Step: step, Problem: "no user template; raw text will be sent"})
		}
	}
	return issues
}
