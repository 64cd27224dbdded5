// Package tokens estimates how many LLM tokens a request and its response
// cost, so callers can see what a query result will consume.
package tokens

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sync"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// DefaultModel is the encoding used when none is configured.
const DefaultModel = "cl100k_base"

// Estimator counts tokens for a given text.
type Estimator interface {
	Model() string
	Count(text string) (int, error)
}

type tiktokenEstimator struct {
	model string
	mu    sync.Mutex
	enc   *tiktoken.Tiktoken
}

func (e *tiktokenEstimator) Model() string { return e.model }

func (e *tiktokenEstimator) Count(text string) (int, error) {
	// tiktoken-go encoders are not documented as goroutine-safe.
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.enc.Encode(text, nil, nil)), nil
}

// NewEstimator loads the tiktoken encoding for model. Loading may fetch the
// BPE ranks over the network on first use.
func NewEstimator(model string) (Estimator, error) {
	if model == "" {
		model = DefaultModel
	}
	enc, err := tiktoken.GetEncoding(model)
	if err != nil {
		return nil, fmt.Errorf("get encoding %q: %w", model, err)
	}
	return &tiktokenEstimator{model: model, enc: enc}, nil
}

// approxEstimator assumes four bytes per token.
type approxEstimator struct{}

// Approx returns an estimator that needs no encoding data. It is used when
// the tiktoken encoding cannot be loaded.
func Approx() Estimator { return approxEstimator{} }

func (approxEstimator) Model() string { return "approx-4b" }

func (approxEstimator) Count(text string) (int, error) {
	return (len(text) + 3) / 4, nil
}

// Usage is reported in response metadata.
type Usage struct {
	InputEstimated  int         `json:"input_estimated"`
	OutputEstimated int         `json:"output_estimated"`
	TotalEstimated  int         `json:"total_estimated"`
	Model           string      `json:"model,omitempty"`
	Efficiency      *Efficiency `json:"efficiency,omitempty"`
}

// Efficiency holds derived metrics for a Usage.
type Efficiency struct {
	TokensPerRow    float64 `json:"tokens_per_row,omitempty"`
	IOEfficiency    float64 `json:"io_efficiency,omitempty"`
	CostEstimateUSD float64 `json:"cost_estimate_usd,omitempty"`
}

// Pricing per 1M tokens (GPT-4o as reference).
const (
	costPerMillionInputTokens  = 2.50
	costPerMillionOutputTokens = 10.00
)

// CalculateEfficiency computes per-row, output/input and cost figures,
// rounded for display.
func CalculateEfficiency(inputTokens, outputTokens, rowCount int) *Efficiency {
	eff := &Efficiency{}
	if rowCount > 0 {
		eff.TokensPerRow = math.Round(float64(outputTokens)/float64(rowCount)*100) / 100
	}
	if inputTokens > 0 {
		eff.IOEfficiency = math.Round(float64(outputTokens)/float64(inputTokens)*100) / 100
	}
	cost := float64(inputTokens)/1_000_000*costPerMillionInputTokens +
		float64(outputTokens)/1_000_000*costPerMillionOutputTokens
	eff.CostEstimateUSD = math.Round(cost*1_000_000) / 1_000_000
	return eff
}

// Estimation is bounded so huge payloads are never fully serialized.
const maxEstimationBytes = 1 << 20

var errLimitExceeded = errors.New("size limit exceeded")

// limitedWriter stops writing once the limit is reached.
type limitedWriter struct {
	buf   *bytes.Buffer
	limit int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.buf.Len()+len(p) > w.limit {
		if remaining := w.limit - w.buf.Len(); remaining > 0 {
			w.buf.Write(p[:remaining])
		}
		return len(p), errLimitExceeded
	}
	return w.buf.Write(p)
}

// Counter estimates token usage of JSON-encodable values.
type Counter struct {
	est Estimator
}

// NewCounter wraps est. A nil est yields a Counter that always reports zero.
func NewCounter(est Estimator) *Counter {
	return &Counter{est: est}
}

// Model names the underlying encoding.
func (c *Counter) Model() string {
	if c == nil || c.est == nil {
		return ""
	}
	return c.est.Model()
}

// EstimateValue JSON-encodes v and counts its tokens. Payloads over the
// estimation cap are estimated from the cap.
func (c *Counter) EstimateValue(v interface{}) (int, error) {
	if c == nil || c.est == nil {
		return 0, nil
	}
	buf := &bytes.Buffer{}
	enc := json.NewEncoder(&limitedWriter{buf: buf, limit: maxEstimationBytes})
	err := enc.Encode(v)
	if errors.Is(err, errLimitExceeded) {
		return maxEstimationBytes / 4, nil
	}
	if err != nil {
		return 0, err
	}
	return c.est.Count(buf.String())
}

// Usage estimates input and output tokens and derives efficiency figures.
func (c *Counter) Usage(input, output interface{}, rowCount int) (*Usage, error) {
	if c == nil || c.est == nil {
		return nil, nil
	}
	in, err := c.EstimateValue(input)
	if err != nil {
		return nil, fmt.Errorf("estimate input tokens: %w", err)
	}
	out, err := c.EstimateValue(output)
	if err != nil {
		return nil, fmt.Errorf("estimate output tokens: %w", err)
	}
	return &Usage{
		InputEstimated:  in,
		OutputEstimated: out,
		TotalEstimated:  in + out,
		Model:           c.est.Model(),
		Efficiency:      CalculateEfficiency(in, out, rowCount),
	}, nil
}
