package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/punchamoorthee/bankfeed/internal/domain"
	"gopkg.in/yaml.v3"
)

// RuleFile is the on-disk layout of a category rule seed file.
type RuleFile struct {
	Rules []domain.CategoryRule `yaml:"rules"`
}

// LoadRulesFile reads category rules from a YAML file, keeping file order.
func LoadRulesFile(path string) ([]domain.CategoryRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading rules file: %w", err)
	}
	return ParseRules(data)
}

// ParseRules decodes a rule file. Every rule needs a pattern and a category.
func ParseRules(data []byte) ([]domain.CategoryRule, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var file RuleFile
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("error parsing rules file: %w", err)
	}

	for i, r := range file.Rules {
		if strings.TrimSpace(r.ReceiverPattern) == "" {
			return nil, fmt.Errorf("rule %d: receiver_pattern is required", i+1)
		}
		if strings.TrimSpace(r.Category) == "" {
			return nil, fmt.Errorf("rule %d (%q): category is required", i+1, r.ReceiverPattern)
		}
	}
	return file.Rules, nil
}
