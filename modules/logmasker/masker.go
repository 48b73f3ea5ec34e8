// Package logmasker wraps a modular.Logger so credentials and contact
// details never reach log output in clear text.
//
// Field rules match the key of a key/value pair, case-insensitively.
// Pattern rules match string values whose key has no field rule:
//
//	logger, err := logmasker.New(base, nil)
//	logger.Info("Inbound message received", "from", "+15550001234")
//	// from=********1234
package logmasker

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/GoCodeAlone/modular"
)

// ErrInvalidPattern is returned by New for a pattern rule that does not compile.
var ErrInvalidPattern = errors.New("invalid masking pattern")

// MaskStrategy defines the type of masking to apply.
type MaskStrategy string

const (
	// MaskStrategyRedact replaces the entire value with "[REDACTED]".
	MaskStrategyRedact MaskStrategy = "redact"

	// MaskStrategyPartial shows only part of the value, masking the rest.
	MaskStrategyPartial MaskStrategy = "partial"

	// MaskStrategyHash replaces the value with a short SHA-256 digest so equal
	// values can still be correlated.
	MaskStrategyHash MaskStrategy = "hash"

	// MaskStrategyNone does not mask the value.
	MaskStrategyNone MaskStrategy = "none"
)

const redacted = "[REDACTED]"

// MaskableValue lets a value decide its own log representation.
type MaskableValue interface {
	ShouldMask() bool
	MaskedValue() any
}

// FieldRule masks the value logged under Field.
type FieldRule struct {
	Field    string         `yaml:"field" json:"field"`
	Strategy MaskStrategy   `yaml:"strategy" json:"strategy"`
	Partial  *PartialConfig `yaml:"partial,omitempty" json:"partial,omitempty"`
}

// PatternRule masks string values matching Pattern.
type PatternRule struct {
	Pattern  string         `yaml:"pattern" json:"pattern"`
	Strategy MaskStrategy   `yaml:"strategy" json:"strategy"`
	Partial  *PartialConfig `yaml:"partial,omitempty" json:"partial,omitempty"`
}

// PartialConfig defines how to partially mask a value.
type PartialConfig struct {
	ShowFirst int    `yaml:"showFirst" json:"showFirst"`
	ShowLast  int    `yaml:"showLast" json:"showLast"`
	MaskChar  string `yaml:"maskChar" json:"maskChar"`
	// MinLength is the length below which the whole value is redacted.
	MinLength int `yaml:"minLength" json:"minLength"`
}

// Config holds the masking rules.
type Config struct {
	Enabled         bool          `yaml:"enabled" json:"enabled"`
	DefaultStrategy MaskStrategy  `yaml:"defaultStrategy" json:"defaultStrategy"`
	FieldRules      []FieldRule   `yaml:"fieldRules" json:"fieldRules"`
	PatternRules    []PatternRule `yaml:"patternRules" json:"patternRules"`
	DefaultPartial  PartialConfig `yaml:"defaultPartial" json:"defaultPartial"`
}

// DefaultConfig redacts credentials and keeps the last four digits of
// phone numbers.
func DefaultConfig() *Config {
	lastFour := &PartialConfig{ShowLast: 4, MaskChar: "*", MinLength: 6}
	return &Config{
		Enabled:         true,
		DefaultStrategy: MaskStrategyRedact,
		FieldRules: []FieldRule{
			{Field: "password", Strategy: MaskStrategyRedact},
			{Field: "token", Strategy: MaskStrategyRedact},
			{Field: "secret", Strategy: MaskStrategyRedact},
			{Field: "apiKey", Strategy: MaskStrategyRedact},
			{Field: "authorization", Strategy: MaskStrategyRedact},
			{Field: "signature", Strategy: MaskStrategyRedact},
			{Field: "phone", Strategy: MaskStrategyPartial, Partial: lastFour},
			{Field: "email", Strategy: MaskStrategyPartial, Partial: &PartialConfig{ShowFirst: 2, ShowLast: 4, MaskChar: "*", MinLength: 6}},
		},
		PatternRules: []PatternRule{
			// E.164 phone numbers, with or without the plus sign.
			{Pattern: `^\+?[1-9]\d{7,14}$`, Strategy: MaskStrategyPartial, Partial: lastFour},
			// Bearer tokens and bare JWTs.
			{Pattern: `^(?i:bearer\s+)\S+$`, Strategy: MaskStrategyRedact},
			{Pattern: `^eyJ[\w-]+\.[\w-]+\.[\w-]*$`, Strategy: MaskStrategyRedact},
		},
		DefaultPartial: PartialConfig{ShowFirst: 2, ShowLast: 2, MaskChar: "*", MinLength: 4},
	}
}

type compiledPattern struct {
	rule PatternRule
	re   *regexp.Regexp
}

// Logger is a modular.Logger that masks arguments before delegating.
type Logger struct {
	inner    modular.Logger
	config   *Config
	fields   map[string]FieldRule
	patterns []compiledPattern
}

var _ modular.Logger = (*Logger)(nil)

// New wraps inner with the rules in cfg. A nil cfg uses DefaultConfig.
func New(inner modular.Logger, cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	l := &Logger{
		inner:  inner,
		config: cfg,
		fields: make(map[string]FieldRule, len(cfg.FieldRules)),
	}
	for _, r := range cfg.FieldRules {
		l.fields[strings.ToLower(r.Field)] = r
	}
	for _, r := range cfg.PatternRules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("%w %q: %w", ErrInvalidPattern, r.Pattern, err)
		}
		l.patterns = append(l.patterns, compiledPattern{rule: r, re: re})
	}
	return l, nil
}

// Inner returns the wrapped logger.
func (l *Logger) Inner() modular.Logger { return l.inner }

func (l *Logger) Info(msg string, args ...any)  { l.inner.Info(msg, l.maskArgs(args)...) }
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, l.maskArgs(args)...) }
func (l *Logger) Warn(msg string, args ...any)  { l.inner.Warn(msg, l.maskArgs(args)...) }
func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, l.maskArgs(args)...) }

// maskArgs applies the rules to each key/value pair. A trailing key with
// no value is passed through.
func (l *Logger) maskArgs(args []any) []any {
	if !l.config.Enabled || len(args) < 2 {
		return args
	}
	out := make([]any, len(args))
	copy(out, args)
	for i := 1; i < len(out); i += 2 {
		key, _ := out[i-1].(string)
		out[i] = l.mask(key, out[i])
	}
	return out
}

func (l *Logger) mask(key string, value any) any {
	if m, ok := value.(MaskableValue); ok {
		if m.ShouldMask() {
			return m.MaskedValue()
		}
		return value
	}
	if rule, ok := l.fields[strings.ToLower(key)]; ok {
		return l.apply(value, rule.Strategy, rule.Partial)
	}
	s, ok := value.(string)
	if !ok {
		return value
	}
	for _, p := range l.patterns {
		if p.re.MatchString(s) {
			return l.apply(s, p.rule.Strategy, p.rule.Partial)
		}
	}
	return value
}

func (l *Logger) apply(value any, strategy MaskStrategy, partial *PartialConfig) any {
	switch strategy {
	case MaskStrategyNone:
		return value
	case MaskStrategyRedact:
		return redacted
	case MaskStrategyHash:
		sum := sha256.Sum256([]byte(fmt.Sprint(value)))
		return fmt.Sprintf("[HASH:%x]", sum[:6])
	case MaskStrategyPartial:
		s, ok := value.(string)
		if !ok {
			return redacted
		}
		if partial == nil {
			partial = &l.config.DefaultPartial
		}
		return partialMask(s, partial)
	default:
		if l.config.DefaultStrategy == "" || l.config.DefaultStrategy == strategy {
			return redacted
		}
		return l.apply(value, l.config.DefaultStrategy, partial)
	}
}

func partialMask(s string, cfg *PartialConfig) string {
	if s == "" {
		return s
	}
	if len(s) < cfg.MinLength || cfg.ShowFirst+cfg.ShowLast >= len(s) {
		return redacted
	}
	maskChar := cfg.MaskChar
	if maskChar == "" {
		maskChar = "*"
	}
	return s[:cfg.ShowFirst] + strings.Repeat(maskChar, len(s)-cfg.ShowFirst-cfg.ShowLast) + s[len(s)-cfg.ShowLast:]
}
