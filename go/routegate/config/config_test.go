package config

import (
	"errors"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Errorf("Default() should validate, got %v", err)
	}
}

func TestPresetsValidate(t *testing.T) {
	for name, c := range map[string]Config{
		"FAST":        FAST(),
		"PRODUCTION":  PRODUCTION(),
		"COMPRESSION": COMPRESSION(),
	} {
		if err := c.Validate(); err != nil {
			t.Errorf("%s preset should validate, got %v", name, err)
		}
	}
}

func TestValidateRejectsUnimplementedOptimizer(t *testing.T) {
	c := Default()
	c.Optimizer.Type = OptimizerLAMB
	err := c.Validate()
	if err == nil {
		t.Fatal("expected error for unimplemented optimizer type")
	}
	if !errors.Is(err, ErrConfig) {
		t.Errorf("expected errors.Is(err, ErrConfig), got %v", err)
	}
}

func TestValidateRejectsUnimplementedPruningStrategy(t *testing.T) {
	c := Default()
	c.Pruning.Strategy = PruningSensitivity
	if err := c.Validate(); !errors.Is(err, ErrConfig) {
		t.Errorf("expected ErrConfig, got %v", err)
	}
}

func TestWrapperUnwrapsToSentinel(t *testing.T) {
	err := Wrapper(ErrShape, "bad length")
	if !errors.Is(err, ErrShape) {
		t.Errorf("expected errors.Is to find ErrShape")
	}
	if errors.Is(err, ErrConfig) {
		t.Errorf("did not expect errors.Is to find ErrConfig")
	}
}
