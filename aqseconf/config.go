// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Package aqseconf holds the adaptive query stage engine's
// read-only-at-query-start configuration.
package aqseconf

import (
	"os"

	"sigs.k8s.io/yaml"
)

// Config is read once per query from whatever the host engine's
// session/cluster settings resolve to. Fields are exported and
// yaml/json tagged so Load can decode it with sigs.k8s.io/yaml,
// which round-trips YAML through encoding/json.
type Config struct {
	AdaptiveExecutionEnabled   bool `json:"adaptiveExecutionEnabled"`
	AdaptiveJoinEnabled        bool `json:"adaptiveJoinEnabled"`
	AdaptiveSkewedJoinEnabled  bool `json:"adaptiveSkewedJoinEnabled"`

	TargetPostShuffleInputSize        int64 `json:"targetPostShuffleInputSize"`
	AdaptiveTargetPostShuffleRowCount int64 `json:"adaptiveTargetPostShuffleRowCount"`
	MinNumPostShufflePartitions       int   `json:"minNumPostShufflePartitions"`

	AdaptiveBroadcastJoinThreshold int64 `json:"adaptiveBroadcastJoinThreshold"`

	AdaptiveSkewedFactor           float64 `json:"adaptiveSkewedFactor"`
	AdaptiveSkewedSizeThreshold    int64   `json:"adaptiveSkewedSizeThreshold"`
	AdaptiveSkewedRowCountThreshold int64  `json:"adaptiveSkewedRowCountThreshold"`
}

// Default returns the configuration AQSE uses when nothing has
// been loaded: adaptive execution, adaptive join and skew handling
// on, with every threshold at the fallback value setDefaults fills in.
func Default() Config {
	c := Config{
		AdaptiveExecutionEnabled:  true,
		AdaptiveJoinEnabled:       true,
		AdaptiveSkewedJoinEnabled: true,
	}
	c.setDefaults()
	return c
}

// setDefaults replaces every non-positive threshold with a fixed
// fallback (64MiB byte target, 10MiB broadcast threshold, skew
// factor 5, 256MiB and ~1M-row skew floors) rather than erroring.
// A Config returned by Parse or Default therefore never carries a
// non-positive byte target; the single-group fallback in
// coordinator.Config.byteTarget only applies to a
// coordinator.Config built with a zero target directly.
func (c *Config) setDefaults() {
	if c.TargetPostShuffleInputSize <= 0 {
		c.TargetPostShuffleInputSize = 64 << 20 // 64MiB
	}
	if c.AdaptiveBroadcastJoinThreshold <= 0 {
		c.AdaptiveBroadcastJoinThreshold = 10 << 20 // 10MiB
	}
	if c.AdaptiveSkewedFactor <= 0 {
		c.AdaptiveSkewedFactor = 5
	}
	if c.AdaptiveSkewedSizeThreshold <= 0 {
		c.AdaptiveSkewedSizeThreshold = 256 << 20 // 256MiB
	}
	if c.AdaptiveSkewedRowCountThreshold <= 0 {
		c.AdaptiveSkewedRowCountThreshold = 1 << 20 // ~1M rows
	}
}

// Load reads a Config from a YAML (or JSON, which is valid YAML)
// file at path, applying setDefaults to anything left unset.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes a Config from raw YAML/JSON bytes.
func Parse(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	c.setDefaults()
	return c, nil
}
