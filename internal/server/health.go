package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulpriyanshu/coryfi-main2-sub003/internal/graph"
)

// HealthService defines behaviour for readiness probes.
type HealthService interface {
	Probe(ctx context.Context) error
}

// ProbeFunc adapts a function to HealthService.
type ProbeFunc func(ctx context.Context) error

// Probe implements HealthService.
func (f ProbeFunc) Probe(ctx context.Context) error { return f(ctx) }

// GraphHealthService verifies the graph store behind the path engine is reachable.
type GraphHealthService struct {
	Client graph.Client
}

// Probe implements the HealthService interface.
func (s GraphHealthService) Probe(ctx context.Context) error {
	if s.Client == nil {
		return nil
	}
	if err := s.Client.VerifyConnectivity(ctx); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	return nil
}

// CompositeHealth runs every named probe and joins the failures.
type CompositeHealth map[string]HealthService

// Probe implements the HealthService interface.
func (c CompositeHealth) Probe(ctx context.Context) error {
	var errs []error
	for name, probe := range c {
		if probe == nil {
			continue
		}
		if err := probe.Probe(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
