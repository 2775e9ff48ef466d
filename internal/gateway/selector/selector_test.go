package selector

import (
	"errors"
	"testing"

	"github.com/nkaluva9/health-chatbot/internal/clock"
	"github.com/nkaluva9/health-chatbot/internal/config"
	"github.com/nkaluva9/health-chatbot/internal/gateway/directline"
	"github.com/nkaluva9/health-chatbot/internal/gateway/simulator"
)

func TestNew(t *testing.T) {
	vc := clock.NewVirtual(clock.Real().Now())

	g, err := New(config.GatewayConfig{Mode: config.ModeSimulator}, Options{Clock: vc})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(*simulator.Simulator); !ok {
		t.Errorf("simulator mode built %T", g)
	}
	g.Dispose()

	g, err = New(config.GatewayConfig{Mode: config.ModeDirectLine, Token: "tok"}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := g.(*directline.Gateway); !ok {
		t.Errorf("directline mode built %T", g)
	}
	g.Dispose()
}

func TestNewErrors(t *testing.T) {
	g, err := New(config.GatewayConfig{Mode: config.ModeDirectLine}, Options{})
	if !errors.Is(err, directline.ErrCredentialRequired) {
		t.Errorf("error = %v, want ErrCredentialRequired", err)
	}
	if g != nil {
		t.Errorf("gateway = %v, want nil", g)
	}

	if _, err := New(config.GatewayConfig{Mode: "smoke-signals"}, Options{}); err == nil {
		t.Error("expected error for unknown mode")
	}
}
