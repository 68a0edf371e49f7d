package detection

import (
	"errors"
	"log/slog"
)

// Chain tries multiple detectors in order until one succeeds.
type Chain struct {
	detectors []Detector
	logger    *slog.Logger
}

// NewChain creates a detector chain.
// At least one detector is required.
func NewChain(detectors ...Detector) (*Chain, error) {
	if len(detectors) == 0 {
		return nil, ErrDetectionUnavailable
	}
	return &Chain{
		detectors: detectors,
		logger:    slog.Default().With("component", "detection.chain"),
	}, nil
}

// NewChainWithLogger creates a detector chain with a custom logger.
func NewChainWithLogger(logger *slog.Logger, detectors ...Detector) (*Chain, error) {
	chain, err := NewChain(detectors...)
	if err != nil {
		return nil, err
	}
	chain.logger = logger.With("component", "detection.chain")
	return chain, nil
}

// Detect tries each detector until one succeeds. An invalid frame is not
// retried on the next detector since none of them can decode it either.
func (c *Chain) Detect(jpeg []byte) ([]Face, error) {
	var errs []error

	for i, d := range c.detectors {
		faces, err := d.Detect(jpeg)
		if err == nil {
			if i > 0 {
				c.logger.Debug("fallback detector succeeded", "detector_index", i)
			}
			return faces, nil
		}

		errs = append(errs, err)
		if errors.Is(err, ErrInvalidImage) {
			break
		}
		c.logger.Debug("detector failed, trying next", "detector_index", i, "error", err)
	}

	return nil, &ChainError{Errors: errs}
}

// Close closes every detector and returns the first error.
func (c *Chain) Close() error {
	var first error
	for _, d := range c.detectors {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
