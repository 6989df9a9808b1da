package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/caseval/caseval/internal/domain"
)

// ModelPrice is the per-million-token price of one model in CNY.
type ModelPrice struct {
	InputCNY  float64 `json:"input_cny" yaml:"input_cny"`
	OutputCNY float64 `json:"output_cny" yaml:"output_cny"`
}

// DefaultPrices covers the models used in practice. Matched by substring
// against the model name so versioned names resolve without maintenance.
var DefaultPrices = map[string]ModelPrice{
	"deepseek-chat":     {InputCNY: 2.0, OutputCNY: 8.0},
	"deepseek-reasoner": {InputCNY: 4.0, OutputCNY: 16.0},
	"gpt-4o":            {InputCNY: 36.0, OutputCNY: 108.0},
	"gpt-4-turbo":       {InputCNY: 72.0, OutputCNY: 216.0},
	"gemini-2.5-pro":    {InputCNY: 9.0, OutputCNY: 72.0},
	"gemini-2.0-flash":  {InputCNY: 0.72, OutputCNY: 2.88},
	"qwen-max":          {InputCNY: 0.86, OutputCNY: 3.46},
	"claude":            {InputCNY: 108.0, OutputCNY: 540.0},
}

const tokensPerPriceUnit = 1_000_000

// modelCost accumulates usage and cost for one model.
type modelCost struct {
	model            string
	promptTokens     int64
	completionTokens int64
	calls            int64
	costCNY          float64
	priced           bool
}

// WriteCostReport estimates run cost per answer model from recorded token
// usage. Models without a price entry report tokens with a dash for cost
// instead of a guessed number.
func WriteCostReport(w io.Writer, results []domain.CaseResult, prices map[string]ModelPrice) error {
	if prices == nil {
		prices = DefaultPrices
	}

	byModel := make(map[string]*modelCost)
	for i := range results {
		for j := range results[i].Questions {
			q := &results[i].Questions[j]
			if q.Answer.Model == "" {
				continue
			}
			mc, ok := byModel[q.Answer.Model]
			if !ok {
				mc = &modelCost{model: q.Answer.Model}
				byModel[q.Answer.Model] = mc
			}
			mc.promptTokens += q.Answer.Usage.PromptTokens
			mc.completionTokens += q.Answer.Usage.CompletionTokens
			mc.calls += q.Answer.Usage.Calls
		}
	}

	models := make([]string, 0, len(byModel))
	for model := range byModel {
		models = append(models, model)
	}
	sort.Strings(models)

	for _, model := range models {
		mc := byModel[model]
		if price, ok := lookupPrice(prices, model); ok {
			mc.priced = true
			mc.costCNY = float64(mc.promptTokens)/tokensPerPriceUnit*price.InputCNY +
				float64(mc.completionTokens)/tokensPerPriceUnit*price.OutputCNY
		}
	}

	if _, err := fmt.Fprintln(w, "\nestimated cost by answer model:"); err != nil {
		return err
	}
	for _, model := range models {
		mc := byModel[model]
		cost := "-"
		if mc.priced {
			cost = fmt.Sprintf("¥%.2f", mc.costCNY)
		}
		if _, err := fmt.Fprintf(w, "  %-24s calls=%-4d in=%-8d out=%-8d cost=%s\n",
			mc.model, mc.calls, mc.promptTokens, mc.completionTokens, cost); err != nil {
			return err
		}
	}
	return nil
}

// lookupPrice resolves a model name to its price entry, preferring the
// longest matching key.
func lookupPrice(prices map[string]ModelPrice, model string) (ModelPrice, bool) {
	var best string
	for key := range prices {
		if strings.Contains(model, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return ModelPrice{}, false
	}
	return prices[best], true
}
