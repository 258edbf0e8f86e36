// Package categorizer assigns categories to transactions by substring rules
// held in a time-bounded cache.
package categorizer

import (
	"context"
	"strings"

	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/sirupsen/logrus"
)

// fieldSeparator joins the searchable fields. Patterns are single-line, so a
// newline keeps a match from spanning two fields.
const fieldSeparator = "\n"

// RuleProvider yields the current ordered rule sequence.
type RuleProvider interface {
	Rules(ctx context.Context) ([]domain.CategoryRule, error)
}

type Categorizer struct {
	rules RuleProvider
	log   logrus.FieldLogger
}

func New(rules RuleProvider, log logrus.FieldLogger) *Categorizer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Categorizer{rules: rules, log: log.WithField(logging.FieldComponent, "categorizer")}
}

// Categorize returns the first rule match in stored order. The scan is linear
// over the rule table. Categorization is best effort: if rules cannot be
// loaded the transaction is left uncategorized.
func (c *Categorizer) Categorize(ctx context.Context, tx domain.Transaction) domain.Match {
	text := SearchText(tx)
	if strings.TrimSpace(text) == "" {
		return domain.Match{}
	}

	rules, err := c.rules.Rules(ctx)
	if err != nil {
		c.log.WithError(err).Warn("Category rules unavailable, leaving transaction uncategorized")
		return domain.Match{}
	}

	for _, rule := range rules {
		if rule.ReceiverPattern == "" || !strings.Contains(text, rule.ReceiverPattern) {
			continue
		}
		category := rule.Category
		match := domain.Match{Category: &category}
		if rule.NewContent != nil && *rule.NewContent != "" {
			display := *rule.NewContent
			match.DisplayContent = &display
		}
		c.log.WithFields(logrus.Fields{
			"pattern":             rule.ReceiverPattern,
			logging.FieldCategory: category,
			"content_replaced":    match.DisplayContent != nil,
		}).Debug("Matched category rule")
		return match
	}
	return domain.Match{}
}

// SearchText builds the lowercase text that rules are matched against:
// content, description, receiver and code, skipping absent or blank fields.
func SearchText(tx domain.Transaction) string {
	parts := make([]string, 0, 4)
	add := func(s string) {
		if strings.TrimSpace(s) != "" {
			parts = append(parts, strings.ToLower(s))
		}
	}
	add(tx.Content)
	for _, field := range []*string{tx.Description, tx.Receiver, tx.Code} {
		if field != nil {
			add(*field)
		}
	}
	return strings.Join(parts, fieldSeparator)
}
