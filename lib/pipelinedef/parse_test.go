// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package pipelinedef

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/conveyor-foundation/conveyor/lib/schema"
)

const yamlDefinition = `
id: web-release
name: Web release
settings:
  timeout: 90m
  queue_limit: 5
  auto_cancel: true
stages:
  - name: build
    type: build
    order: 1
    jobs:
      - name: compile
        steps:
          - name: checkout
            action: checkout
          - name: build
            run: make build
  - name: deploy
    type: deploy
    order: 2
    environment: production
    approval:
      approvers: [alice]
      timeout: 24h
    jobs:
      - name: rollout
        steps:
          - name: apply
            run: make deploy
triggers:
  - type: push
    branches: [main]
  - type: schedule
    schedule: "0 3 * * *"
variables:
  - name: REGION
    value: eu-west-1
`

const jsoncDefinition = `{
	// nightly maintenance pipeline
	"id": "nightly",
	"stages": [
		{
			"name": "cleanup",
			"order": 1,
			"jobs": [
				{"name": "prune", "steps": [{"name": "prune", "run": "make prune"}]},
			],
		},
	],
}`

func TestParseYAML(t *testing.T) {
	t.Parallel()

	definition, err := ParseYAML([]byte(yamlDefinition))
	if err != nil {
		t.Fatalf("ParseYAML: %v", err)
	}

	if definition.ID != "web-release" {
		t.Errorf("ID = %q, want web-release", definition.ID)
	}
	if len(definition.Stages) != 2 {
		t.Fatalf("len(Stages) = %d, want 2", len(definition.Stages))
	}
	if !definition.Settings.AutoCancel || definition.Settings.QueueLimit != 5 {
		t.Errorf("settings not parsed: %+v", definition.Settings)
	}

	deploy := definition.Stage("deploy")
	if deploy == nil {
		t.Fatal("stage deploy not found")
	}
	if deploy.Type != schema.StageDeploy || deploy.Environment != "production" {
		t.Errorf("deploy stage = %+v", deploy)
	}
	if deploy.Approval == nil || deploy.Approval.Timeout != "24h" {
		t.Errorf("approval = %+v", deploy.Approval)
	}

	if len(definition.Triggers) != 2 || definition.Triggers[1].Schedule != "0 3 * * *" {
		t.Errorf("triggers = %+v", definition.Triggers)
	}

	steps := definition.Stages[0].Jobs[0].Steps
	if len(steps) != 2 || steps[0].Action != "checkout" || steps[1].Run != "make build" {
		t.Errorf("steps = %+v", steps)
	}
}

func TestParseJSONCStripsComments(t *testing.T) {
	t.Parallel()

	definition, err := ParseJSONC([]byte(jsoncDefinition))
	if err != nil {
		t.Fatalf("ParseJSONC: %v", err)
	}
	if definition.ID != "nightly" || len(definition.Stages) != 1 {
		t.Errorf("definition = %+v", definition)
	}
}

func TestReadFileByExtension(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "web-release.yaml")
	if err := os.WriteFile(yamlPath, []byte(yamlDefinition), 0o644); err != nil {
		t.Fatal(err)
	}
	jsoncPath := filepath.Join(dir, "nightly.jsonc")
	if err := os.WriteFile(jsoncPath, []byte(jsoncDefinition), 0o644); err != nil {
		t.Fatal(err)
	}

	fromYAML, err := ReadFile(yamlPath)
	if err != nil {
		t.Fatalf("ReadFile yaml: %v", err)
	}
	if fromYAML.ID != "web-release" {
		t.Errorf("yaml ID = %q", fromYAML.ID)
	}

	fromJSONC, err := ReadFile(jsoncPath)
	if err != nil {
		t.Fatalf("ReadFile jsonc: %v", err)
	}
	if fromJSONC.ID != "nightly" {
		t.Errorf("jsonc ID = %q", fromJSONC.ID)
	}

	if _, err := ReadFile(filepath.Join(dir, "noexist.yaml")); err == nil {
		t.Error("ReadFile on missing file succeeded")
	}
	badExt := filepath.Join(dir, "pipeline.toml")
	if err := os.WriteFile(badExt, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(badExt); err == nil {
		t.Error("ReadFile on unsupported extension succeeded")
	}
}

func TestReadFileDefaultsIDFromName(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "implicit-id.yaml")
	content := "stages:\n  - name: only\n    order: 1\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	definition, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if definition.ID != "implicit-id" {
		t.Errorf("ID = %q, want implicit-id", definition.ID)
	}
}

func TestNameFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct{ path, want string }{
		{"deploy/pipelines/web-release.yaml", "web-release"},
		{"nightly.jsonc", "nightly"},
		{"/abs/path/to/thing.yml", "thing"},
	}
	for _, tc := range tests {
		if got := NameFromPath(tc.path); got != tc.want {
			t.Errorf("NameFromPath(%q) = %q, want %q", tc.path, got, tc.want)
		}
	}
}
