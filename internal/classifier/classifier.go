// Package classifier converts article text into a validated classification via
// an external text-generation service.
package classifier

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/regwatch/regwatch/internal/logging"
	"github.com/regwatch/regwatch/internal/metrics"
)

// Generator performs one text-generation call.
type Generator interface {
	Generate(ctx context.Context, system, user string) (string, error)
}

// Classifier runs the fixed instruction against a Generator and decodes the reply.
// There is no retry; a failed attempt is final for the current run.
type Classifier struct {
	gen     Generator
	timeout time.Duration
	logger  *zap.Logger
}

// DefaultTimeout bounds one inference call when New is given no timeout.
const DefaultTimeout = 60 * time.Second

// New returns a Classifier. timeout <= 0 selects DefaultTimeout.
func New(gen Generator, timeout time.Duration, logger *zap.Logger) *Classifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Classifier{gen: gen, timeout: timeout, logger: logging.Component(logger, "classifier")}
}

// Classify returns the decoded Result. The error is non-nil only when the
// inference call itself failed, in which case the Result is nil.
func (c *Classifier) Classify(ctx context.Context, text string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	start := time.Now()
	raw, err := c.gen.Generate(ctx, systemPrompt, userPrompt(text))
	if err != nil {
		metrics.ObserveClassification("transport_error", time.Since(start))
		return nil, fmt.Errorf("inference call: %w", err)
	}
	res := Decode(raw)
	metrics.ObserveClassification(res.Kind(), time.Since(start))
	c.logger.Debug("classification decoded", zap.String("kind", res.Kind()), zap.Int("raw_len", len(raw)))
	return res, nil
}
