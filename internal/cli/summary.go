package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"pageoverlay/internal/openai"
	"pageoverlay/internal/overlay"
)

type summaryItem struct {
	SourceURL           string  `json:"source_url"`
	FinalURL            string  `json:"final_url,omitempty"`
	Title               string  `json:"title,omitempty"`
	Success             bool    `json:"success"`
	DurationMS          int64   `json:"duration_ms"`
	OutputPath          string  `json:"output_path,omitempty"`
	Session             string  `json:"session,omitempty"`
	Dispatched          int     `json:"dispatched"`
	Translated          int     `json:"translated"`
	Failed              int     `json:"failed,omitempty"`
	Discarded           int     `json:"discarded,omitempty"`
	Skipped             int     `json:"skipped,omitempty"`
	Restored            bool    `json:"restored,omitempty"`
	InputTokens         int64   `json:"input_tokens,omitempty"`
	OutputTokens        int64   `json:"output_tokens,omitempty"`
	TotalTokens         int64   `json:"total_tokens,omitempty"`
	MissingUsageCount   int     `json:"missing_usage_count,omitempty"`
	CostEstimate        float64 `json:"cost_estimate,omitempty"`
	CostEstimateModel   string  `json:"cost_estimate_model,omitempty"`
	CostEstimatePartial bool    `json:"cost_estimate_partial,omitempty"`
	ErrorType           string  `json:"error_type,omitempty"`
	ErrorMessage        string  `json:"error_message,omitempty"`
}

func (i *summaryItem) setReport(r overlay.Report) {
	i.Session = r.Session
	i.Dispatched = r.Dispatched
	i.Translated = r.Translated
	i.Failed = r.Failed
	i.Discarded = r.Discarded
	i.Skipped = r.Skipped
}

func (i *summaryItem) setUsage(usage usageStats, prices priceConfig, model string) {
	i.InputTokens = usage.inputTokens
	i.OutputTokens = usage.outputTokens
	i.TotalTokens = usage.totalTokens
	i.MissingUsageCount = usage.missingUsageCount
	if cost, estimated, partial := estimateCost(usage, prices, model); estimated {
		i.CostEstimate = cost
		i.CostEstimateModel = model
		i.CostEstimatePartial = partial
	}
}

type taskSummary struct {
	GeneratedAt         string        `json:"generated_at"`
	Model               string        `json:"model"`
	Mode                string        `json:"mode"`
	TargetLang          string        `json:"target_lang"`
	Format              string        `json:"format"`
	TotalURLs           int           `json:"total_urls"`
	SuccessCount        int           `json:"success_count"`
	FailureCount        int           `json:"failure_count"`
	TotalDurationMS     int64         `json:"total_duration_ms"`
	Translated          int           `json:"translated"`
	Failed              int           `json:"failed,omitempty"`
	Discarded           int           `json:"discarded,omitempty"`
	InputTokens         int64         `json:"input_tokens,omitempty"`
	OutputTokens        int64         `json:"output_tokens,omitempty"`
	TotalTokens         int64         `json:"total_tokens,omitempty"`
	MissingUsageCount   int           `json:"missing_usage_count,omitempty"`
	CostEstimate        float64       `json:"cost_estimate,omitempty"`
	CostEstimateModel   string        `json:"cost_estimate_model,omitempty"`
	CostEstimatePartial bool          `json:"cost_estimate_partial,omitempty"`
	Results             []summaryItem `json:"results"`
}

// add folds item into the totals and appends it to the results.
func (s *taskSummary) add(item summaryItem) {
	s.Translated += item.Translated
	s.Failed += item.Failed
	s.Discarded += item.Discarded
	s.InputTokens += item.InputTokens
	s.OutputTokens += item.OutputTokens
	s.TotalTokens += item.TotalTokens
	s.MissingUsageCount += item.MissingUsageCount
	if item.CostEstimateModel != "" {
		s.CostEstimate += item.CostEstimate
		s.CostEstimateModel = item.CostEstimateModel
		if item.CostEstimatePartial {
			s.CostEstimatePartial = true
		}
	}
	s.Results = append(s.Results, item)
}

type usageStats struct {
	inputTokens       int64
	outputTokens      int64
	totalTokens       int64
	missingUsageCount int
}

func usageFrom(t *openai.Translator) usageStats {
	usage, _, missing := t.Usage()
	return usageStats{
		inputTokens:       usage.InputTokens,
		outputTokens:      usage.OutputTokens,
		totalTokens:       usage.TotalTokens,
		missingUsageCount: missing,
	}
}

type priceConfig map[string]modelPrice

type modelPrice struct {
	InputPerMillion  float64 `json:"input_per_million"`
	OutputPerMillion float64 `json:"output_per_million"`
	TotalPerMillion  float64 `json:"total_per_million"`
}

func loadPriceConfig(path string) (priceConfig, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read price config %s: %w", path, err)
	}

	var cfg priceConfig
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse price config %s: %w", path, err)
	}

	return cfg, nil
}

func estimateCost(usage usageStats, cfg priceConfig, model string) (cost float64, estimated bool, partial bool) {
	if cfg == nil {
		return 0, false, false
	}

	price, ok := cfg[model]
	if !ok {
		price, ok = cfg["default"]
		if !ok {
			return 0, false, false
		}
	}

	if price.InputPerMillion > 0 || price.OutputPerMillion > 0 {
		cost = float64(usage.inputTokens)*price.InputPerMillion/1_000_000.0 +
			float64(usage.outputTokens)*price.OutputPerMillion/1_000_000.0
	} else if price.TotalPerMillion > 0 {
		cost = float64(usage.totalTokens) * price.TotalPerMillion / 1_000_000.0
	} else {
		return 0, false, false
	}

	return cost, true, usage.missingUsageCount > 0
}

func writeSummary(path string, summary taskSummary) error {
	payload, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal summary JSON: %w", err)
	}
	payload = append(payload, '\n')
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write summary file %s: %w", path, err)
	}
	return nil
}
