package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/noah-isme/sma-gradebook-api/internal/grading"
	"github.com/noah-isme/sma-gradebook-api/internal/models"
)

// scoresFile is the YAML layout of one student's scores.
type scoresFile struct {
	StudentID string             `yaml:"student_id"`
	Scores    models.RawScoreSet `yaml:"scores"`
	Exams     models.ExamInputs  `yaml:"exams"`
}

func loadConfig(path string) (*models.GradingConfig, error) {
	if path == "" {
		return grading.DefaultConfig("local"), nil
	}
	cfg := &models.GradingConfig{}
	if err := decodeYAML(path, cfg); err != nil {
		return nil, err
	}
	if cfg.InstitutionID == "" {
		cfg.InstitutionID = "local"
	}
	if err := grading.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func loadScores(path string) (*scoresFile, error) {
	file := &scoresFile{}
	if err := decodeYAML(path, file); err != nil {
		return nil, err
	}
	if file.Scores == nil {
		file.Scores = models.RawScoreSet{}
	}
	return file, nil
}

// checkCodes rejects period IDs and variable codes the config does not declare.
func (f *scoresFile) checkCodes(cfg *models.GradingConfig) error {
	periodIDs := make([]string, 0, len(f.Scores))
	for id := range f.Scores {
		periodIDs = append(periodIDs, id)
	}
	sort.Strings(periodIDs)

	for _, id := range periodIDs {
		period, ok := cfg.Period(id)
		if !ok {
			return fmt.Errorf("scores.%s: unknown period", id)
		}
		codes := make([]string, 0, len(f.Scores[id].Values))
		for code := range f.Scores[id].Values {
			codes = append(codes, code)
		}
		sort.Strings(codes)
		for _, code := range codes {
			if _, ok := period.Component(code); !ok {
				return fmt.Errorf("scores.%s.values.%s: unknown variable code", id, code)
			}
		}
	}
	return nil
}

func decodeYAML(path string, dest interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(dest); err != nil && err != io.EOF {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
