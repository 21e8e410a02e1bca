package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EvalPlan describes an evaluation run loaded from a YAML file. Unset fields
// keep the values from the environment.
type EvalPlan struct {
	Modes               []string        `yaml:"modes"`
	QuestionSet         string          `yaml:"question_set"`
	ReportDir           string          `yaml:"report_dir"`
	TopK                int             `yaml:"top_k"`
	QuestionConcurrency int             `yaml:"question_concurrency"`
	TypeRerank          *TypeRerankPlan `yaml:"type_rerank"`
}

type TypeRerankPlan struct {
	Enabled     bool    `yaml:"enabled"`
	Delta       float64 `yaml:"delta"`
	MaxSameType int     `yaml:"max_same_type"`
}

func LoadEvalPlan(path string) (*EvalPlan, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read eval plan: %w", err)
	}
	var plan EvalPlan
	if err := yaml.Unmarshal(raw, &plan); err != nil {
		return nil, fmt.Errorf("decode eval plan %s: %w", path, err)
	}
	return &plan, nil
}

// Apply returns cfg overridden by the plan's non-zero fields.
func (p *EvalPlan) Apply(cfg Config) Config {
	if p == nil {
		return cfg
	}
	if p.QuestionSet != "" {
		cfg.QuestionSetPath = p.QuestionSet
	}
	if p.ReportDir != "" {
		cfg.ReportDir = p.ReportDir
	}
	if p.TopK > 0 {
		cfg.RAGTopK = p.TopK
	}
	if p.QuestionConcurrency > 0 {
		cfg.EvalQuestionConcurrency = p.QuestionConcurrency
	}
	if p.TypeRerank != nil {
		cfg.RAGTypeRerankEnabled = p.TypeRerank.Enabled
		if p.TypeRerank.Delta > 0 {
			cfg.RAGTypeRerankDelta = p.TypeRerank.Delta
		}
		if p.TypeRerank.MaxSameType > 0 {
			cfg.RAGTypeRerankMaxSameType = p.TypeRerank.MaxSameType
		}
	}
	return cfg
}
