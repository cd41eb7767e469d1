package pipeline

import (
	"context"
	"fmt"
)

// Run launches cmds with DefaultConfig adjusted by opts. See RunConfig.
func Run(ctx context.Context, cmds Commands, opts ...Option) (*Processes, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return RunConfig(ctx, cmds, cfg)
}

// RunConfig launches cmds as configured. When cfg.Block is set it waits for
// completion and closes the pipeline before returning. If waiting fails the
// pipeline is returned alongside the error; after a timeout or cancellation
// it is still running and the caller must Kill or Close it.
// Without Block the caller owns the returned pipeline and should Close it.
func RunConfig(ctx context.Context, cmds Commands, cfg Config) (*Processes, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var specs []StageSpec
	var err error
	if cfg.Shell != "" {
		specs, err = NormalizeShell(cmds, cfg.Shell)
	} else {
		specs, err = Normalize(cmds, cfg.Tokenizer)
	}
	if err != nil {
		return nil, err
	}

	p, err := start(specs, cfg)
	if err != nil {
		return nil, err
	}
	if !cfg.Block {
		return p, nil
	}
	if err := p.Block(ctx); err != nil {
		if p.Done() {
			if cerr := p.Close(); cerr != nil {
				cfg.Logger.Debug("close after failed block", "id", p.ID(), "err", cerr)
			}
		}
		return p, err
	}
	if err := p.Close(); err != nil {
		return p, fmt.Errorf("close pipeline: %w", err)
	}
	return p, nil
}

// Sub runs cmds to completion and returns their text output.
func Sub(ctx context.Context, cmds Commands, opts ...Option) (string, error) {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Mode != ModeText {
		return "", fmt.Errorf("%w: Sub requires text mode", ErrInvalidOption)
	}
	if !cfg.Block {
		return "", fmt.Errorf("%w: Sub always blocks", ErrInvalidOption)
	}
	p, err := RunConfig(ctx, cmds, cfg)
	if err != nil {
		return "", err
	}
	return p.OutputText()
}
