package rule

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"lily/internal/logger"
)

// RulesLoader reads raw rule definitions from the filesystem. Each JSON
// file holds one rule object or an array of them; definitions load as
// plain maps because transformation happens in the service.
type RulesLoader struct {
	logger *logger.Logger
}

// NewRulesLoader creates a new rules loader
func NewRulesLoader(log *logger.Logger) *RulesLoader {
	return &RulesLoader{
		logger: log,
	}
}

// LoadFromDirectory loads all rule definitions from a directory and its
// subdirectories
func (l *RulesLoader) LoadFromDirectory(path string) ([]map[string]interface{}, error) {
	var rules []map[string]interface{}

	err := filepath.Walk(path, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() || filepath.Ext(path) != ".json" {
			return nil
		}

		l.logger.Debug("loading rule file", "path", path)

		data, err := os.ReadFile(path)
		if err != nil {
			l.logger.Error("failed to read rule file",
				"path", path,
				"error", err)
			return err
		}

		loaded, err := decodeRuleFile(data)
		if err != nil {
			l.logger.Error("failed to parse rule file",
				"path", path,
				"error", err)
			return fmt.Errorf("parse %s: %w", path, err)
		}

		l.logger.Debug("successfully loaded rule definitions",
			"path", path,
			"count", len(loaded))

		rules = append(rules, loaded...)
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	l.logger.Info("rule definitions loaded",
		"totalRules", len(rules))

	return rules, nil
}

// decodeRuleFile accepts a single rule object or an array of them
func decodeRuleFile(data []byte) ([]map[string]interface{}, error) {
	var list []map[string]interface{}
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var single map[string]interface{}
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []map[string]interface{}{single}, nil
}
