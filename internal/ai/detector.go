// Package ai is the optional AI detector. It asks an external provider to review the
// source text and never lets a provider failure escape to its caller.
package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.uber.org/zap"

	"codeguard/internal/normalize"
	"codeguard/internal/prompt"
	"codeguard/internal/redact"
)

const (
	stageConfig   = "config"
	stageRequest  = "request"
	stageTimeout  = "timeout"
	stageParse    = "parse"
	stageSchema   = "schema"
	stagePanic    = "panic"
	stageCanceled = "canceled"
)

// ProviderError is any failure while calling or parsing an AI provider.
type ProviderError struct {
	Provider string
	Stage    string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("ai provider %s failed at %s: %v", e.Provider, e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

type Detector struct {
	client    *http.Client
	logger    *zap.Logger
	schema    *jsonschema.Schema
	template  string
	fallback  string
	onFailure func(*ProviderError)
}

type Option func(*Detector)

func WithHTTPClient(c *http.Client) Option {
	return func(d *Detector) {
		if c != nil {
			d.client = c
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithFallback selects what Detect returns on failure: FallbackNone or FallbackDemo.
func WithFallback(mode string) Option {
	return func(d *Detector) { d.fallback = strings.ToLower(strings.TrimSpace(mode)) }
}

func WithTemplate(tmpl string) Option {
	return func(d *Detector) { d.template = tmpl }
}

// WithFailureHook observes every provider failure after it has been recovered.
func WithFailureHook(fn func(*ProviderError)) Option {
	return func(d *Detector) { d.onFailure = fn }
}

func NewDetector(opts ...Option) (*Detector, error) {
	schema, err := compileReplySchema()
	if err != nil {
		return nil, err
	}
	d := &Detector{
		client:   &http.Client{},
		logger:   zap.NewNop(),
		schema:   schema,
		template: prompt.Detection,
		fallback: FallbackNone,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.fallback == "" {
		d.fallback = FallbackNone
	}
	if !ValidFallback(d.fallback) {
		return nil, fmt.Errorf("unsupported ai fallback %q (supported: %s, %s)", d.fallback, FallbackNone, FallbackDemo)
	}
	if err := prompt.Validate(d.template); err != nil {
		return nil, fmt.Errorf("ai prompt template: %w", err)
	}
	return d, nil
}

func (d *Detector) Fallback() string { return d.fallback }

// Detect runs one provider request for source. It never returns an error: failures are
// logged and replaced by the configured fallback candidates.
func (d *Detector) Detect(ctx context.Context, source, language string, cfg Config) []normalize.Candidate {
	return d.DetectFile(ctx, "", source, language, cfg)
}

// DetectFile is Detect with a file name included in the prompt.
func (d *Detector) DetectFile(ctx context.Context, fileName, source, language string, cfg Config) (out []normalize.Candidate) {
	if strings.TrimSpace(source) == "" {
		return []normalize.Candidate{}
	}
	cfg = NormalizeConfig(cfg)
	defer func() {
		if r := recover(); r != nil {
			out = d.fail(&ProviderError{Provider: cfg.Provider, Stage: stagePanic, Err: fmt.Errorf("%v", r)}, cfg)
		}
	}()

	candidates, perr := d.request(ctx, fileName, source, language, cfg)
	if perr != nil {
		return d.fail(perr, cfg)
	}
	d.logger.Debug("ai detection complete",
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
		zap.Int("candidates", len(candidates)))
	return candidates
}

func (d *Detector) request(ctx context.Context, fileName, source, language string, cfg Config) ([]normalize.Candidate, *ProviderError) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, &ProviderError{Provider: cfg.Provider, Stage: stageConfig, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	promptText := prompt.Render(d.template, prompt.Params{
		Language: language,
		FileName: fileName,
		Code:     source,
	})
	content, err := execute(ctx, d.client, cfg, promptText)
	if err != nil {
		stage := stageRequest
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			stage = stageTimeout
		case errors.Is(ctx.Err(), context.Canceled):
			stage = stageCanceled
		}
		return nil, &ProviderError{Provider: cfg.Provider, Stage: stage, Err: err}
	}

	candidates, stage, err := parseReply(d.schema, content)
	if err != nil {
		return nil, &ProviderError{Provider: cfg.Provider, Stage: stage, Err: err}
	}
	return candidates, nil
}

func (d *Detector) fail(perr *ProviderError, cfg Config) []normalize.Candidate {
	d.logger.Warn("ai detection failed",
		zap.String("provider", perr.Provider),
		zap.String("stage", perr.Stage),
		zap.String("error", redact.Secret(perr.Error(), cfg.APIKey)),
		zap.String("fallback", d.fallback))
	if d.onFailure != nil {
		d.onFailure(perr)
	}
	if d.fallback == FallbackDemo {
		return DemoCandidates()
	}
	return []normalize.Candidate{}
}

// DemoCandidates is the fixed illustrative set returned in demo fallback mode.
func DemoCandidates() []normalize.Candidate {
	high, critical, medium := 0.85, 0.9, 0.75
	return []normalize.Candidate{
		{
			Type:        "xss",
			Severity:    "high",
			Line:        1,
			Description: "Unsanitized user input is written into the DOM.",
			CodeSnippet: "element.innerHTML = userInput;",
			Fix:         "Use textContent or sanitize the value before inserting HTML.",
			Confidence:  &high,
		},
		{
			Type:        "injection",
			Severity:    "critical",
			Line:        2,
			Description: "Dynamic code evaluation of untrusted input.",
			CodeSnippet: "eval(userInput);",
			Fix:         "Remove eval and parse the input explicitly.",
			Confidence:  &critical,
		},
		{
			Type:        "secrets",
			Severity:    "medium",
			Line:        3,
			Description: "Credential literal committed in source.",
			CodeSnippet: `const apiKey = "[REDACTED]";`,
			Fix:         "Load credentials from the environment or a secret manager.",
			Confidence:  &medium,
		},
	}
}
