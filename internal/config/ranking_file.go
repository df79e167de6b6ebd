package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

// rankingFile is the decoded layout of a PATH_RANKING_FILE:
//
//	weights {
//	  hop_penalty       = 0.85
//	  recency_weight    = 0.25
//	  recency_half_life = "720h"
//	}
//	limits {
//	  max_hops       = 4
//	  max_candidates = 20
//	  max_expansions = 250000
//	}
//	cache {
//	  capacity        = 10000
//	  ttl             = "10m"
//	  compute_timeout = "5s"
//	}
type rankingFile struct {
	Weights *weightsBlock `hcl:"weights,block"`
	Limits  *limitsBlock  `hcl:"limits,block"`
	Cache   *cacheBlock   `hcl:"cache,block"`
}

type weightsBlock struct {
	HopPenalty      *float64 `hcl:"hop_penalty,optional"`
	RecencyWeight   *float64 `hcl:"recency_weight,optional"`
	RecencyHalfLife *string  `hcl:"recency_half_life,optional"`
}

type limitsBlock struct {
	MaxHops       *int `hcl:"max_hops,optional"`
	MaxCandidates *int `hcl:"max_candidates,optional"`
	MaxExpansions *int `hcl:"max_expansions,optional"`
}

type cacheBlock struct {
	Capacity       *int    `hcl:"capacity,optional"`
	TTL            *string `hcl:"ttl,optional"`
	ComputeTimeout *string `hcl:"compute_timeout,optional"`
}

// applyRankingFile overlays the settings found in an HCL ranking file onto p.
func applyRankingFile(path string, p *PathConfig) error {
	file, diags := hclparse.NewParser().ParseHCLFile(path)
	if diags.HasErrors() {
		return fmt.Errorf("parse ranking file %s: %w", path, diags)
	}

	var parsed rankingFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return fmt.Errorf("decode ranking file %s: %w", path, diags)
	}

	if w := parsed.Weights; w != nil {
		setIf(&p.HopPenalty, w.HopPenalty)
		setIf(&p.RecencyWeight, w.RecencyWeight)
		if err := setDuration(&p.RecencyHalfLife, w.RecencyHalfLife, "recency_half_life"); err != nil {
			return err
		}
	}
	if l := parsed.Limits; l != nil {
		setIf(&p.MaxHops, l.MaxHops)
		setIf(&p.MaxCandidates, l.MaxCandidates)
		setIf(&p.MaxExpansions, l.MaxExpansions)
	}
	if c := parsed.Cache; c != nil {
		setIf(&p.CacheCapacity, c.Capacity)
		if err := setDuration(&p.CacheTTL, c.TTL, "ttl"); err != nil {
			return err
		}
		if err := setDuration(&p.ComputeTimeout, c.ComputeTimeout, "compute_timeout"); err != nil {
			return err
		}
	}
	return nil
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *string, name string) error {
	if v == nil {
		return nil
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return fmt.Errorf("invalid %s in ranking file: %w", name, err)
	}
	*dst = d
	return nil
}
