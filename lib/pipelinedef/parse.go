// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipelinedef provides parsing and validation for Conveyor
// pipeline definitions.
//
// Definitions are authored on disk as YAML or as JSONC (JSON extended
// with comments and trailing commas). Both parse into the same
// schema.PipelineDefinition; the engine does not care which format a
// definition came from.
//
// The typical flow:
//
//  1. ReadFile or ParseYAML/ParseJSONC: bytes → schema.PipelineDefinition
//  2. Validate: structural checks (unique stage orders, step actions,
//     parseable timeouts, valid cron schedules, ...)
//  3. Register the definition with a store; the engine snapshots it
//     at trigger time.
package pipelinedef

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// ParseJSONC strips JSONC comments and trailing commas from data,
// then unmarshals the result into a PipelineDefinition.
func ParseJSONC(data []byte) (*schema.PipelineDefinition, error) {
	stripped := jsonc.ToJSON(data)

	var definition schema.PipelineDefinition
	if err := json.Unmarshal(stripped, &definition); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}

	return &definition, nil
}

// ParseYAML unmarshals a YAML pipeline definition.
func ParseYAML(data []byte) (*schema.PipelineDefinition, error) {
	var definition schema.PipelineDefinition
	if err := yaml.Unmarshal(data, &definition); err != nil {
		return nil, fmt.Errorf("parsing pipeline: %w", err)
	}

	return &definition, nil
}

// ReadFile reads a pipeline definition from disk, choosing the parser
// by file extension: .yaml/.yml for YAML, .json/.jsonc for JSONC.
// When the definition has no explicit ID, the file's base name
// (without extension) is used.
func ReadFile(path string) (*schema.PipelineDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var definition *schema.PipelineDefinition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		definition, err = ParseYAML(data)
	case ".json", ".jsonc":
		definition, err = ParseJSONC(data)
	default:
		return nil, fmt.Errorf("%s: unsupported extension (want .yaml, .yml, .json, or .jsonc)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	if definition.ID == "" {
		definition.ID = NameFromPath(path)
	}

	return definition, nil
}

// NameFromPath extracts a pipeline name from a file path by stripping
// the directory prefix and the file extension. For example,
// "deploy/pipelines/web-release.yaml" returns "web-release".
func NameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
