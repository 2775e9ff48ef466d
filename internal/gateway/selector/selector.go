// Package selector builds the gateway implementation named by configuration.
package selector

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/nkaluva9/health-chatbot/internal/clock"
	"github.com/nkaluva9/health-chatbot/internal/config"
	"github.com/nkaluva9/health-chatbot/internal/gateway"
	"github.com/nkaluva9/health-chatbot/internal/gateway/directline"
	"github.com/nkaluva9/health-chatbot/internal/gateway/simulator"
)

// Options carries dependencies shared by the implementations.
type Options struct {
	Clock  clock.Scheduler
	Logger *zap.Logger
}

// New returns a simulator or a Direct Line gateway according to cfg.Mode.
func New(cfg config.GatewayConfig, opts Options) (gateway.Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch cfg.Mode {
	case config.ModeSimulator, "":
		return simulator.New(simulator.Options{Clock: opts.Clock, Logger: logger}), nil
	case config.ModeDirectLine:
		g, err := directline.New(directline.Options{
			Domain:       cfg.Domain,
			Token:        cfg.Token,
			Secret:       cfg.Secret,
			WebSocket:    cfg.WebSocket,
			PollInterval: cfg.PollInterval.Duration,
			Logger:       logger,
		})
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown gateway mode %q", cfg.Mode)
	}
}
