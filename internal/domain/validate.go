package domain

import (
	"errors"
	"strings"
	"unicode/utf8"
)

// ValidateTask checks field limits on a task before it is written.
func ValidateTask(t Task) error {
	var errs []error
	title := strings.TrimSpace(t.Title)
	if title == "" || utf8.RuneCountInString(title) > MaxTitleLength {
		errs = append(errs, ErrInvalidTitle)
	}
	if utf8.RuneCountInString(t.Description) > MaxDescriptionLength {
		errs = append(errs, ErrInvalidDescription)
	}
	if utf8.RuneCountInString(t.Project) > MaxProjectLength {
		errs = append(errs, ErrInvalidProject)
	}
	if t.EstimatedHours < 0 || t.ActualHours < 0 {
		errs = append(errs, ErrInvalidHours)
	}
	if !t.Status.Valid() {
		errs = append(errs, invalid(ErrInvalidStatus, string(t.Status)))
	}
	if !t.Priority.Valid() {
		errs = append(errs, invalid(ErrInvalidPriority, string(t.Priority)))
	}
	return errors.Join(errs...)
}

// ValidateBlocker checks a blocker's description and enums.
func ValidateBlocker(b Blocker) error {
	var errs []error
	desc := strings.TrimSpace(b.Description)
	if desc == "" || utf8.RuneCountInString(desc) > MaxBlockerDescriptionLength {
		errs = append(errs, ErrInvalidBlockerText)
	}
	if !b.Type.Valid() {
		errs = append(errs, invalid(ErrInvalidBlockerType, string(b.Type)))
	}
	if !b.Severity.Valid() {
		errs = append(errs, invalid(ErrInvalidSeverity, string(b.Severity)))
	}
	if !b.Status.Valid() {
		errs = append(errs, invalid(ErrInvalidBlockerStatus, string(b.Status)))
	}
	return errors.Join(errs...)
}

// NormalizeTags trims, lowercases and deduplicates tags, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
