// Copyright 2026 The Conveyor Authors
// SPDX-License-Identifier: Apache-2.0

package deploy

import (
	"fmt"

	"github.com/conveyor-foundation/conveyor/lib/schema"
)

// CreateRelease registers a new release in draft status.
func (t *Tracker) CreateRelease(version, tag, commit, changelog string) (*schema.Release, error) {
	if version == "" {
		return nil, fmt.Errorf("release requires a version")
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.releaseCounter++
	now := t.clock.Now()
	release := &schema.Release{
		ID:        fmt.Sprintf("rel-%d", t.releaseCounter),
		Version:   version,
		Tag:       tag,
		Commit:    commit,
		Changelog: changelog,
		Status:    schema.ReleaseDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	t.releases[release.ID] = release
	return snapshotRelease(release), nil
}

// AttachDeployment binds an existing deployment to a release under
// its environment. A release may hold at most one deployment per
// environment; attaching a second replaces the reference.
func (t *Tracker) AttachDeployment(releaseID, deploymentID string) (*schema.Release, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	release, ok := t.releases[releaseID]
	if !ok {
		return nil, fmt.Errorf("%w: release %s", ErrNotFound, releaseID)
	}
	deployment, ok := t.deployments[deploymentID]
	if !ok {
		return nil, fmt.Errorf("%w: deployment %s", ErrNotFound, deploymentID)
	}
	if release.Status == schema.ReleaseArchived {
		return nil, fmt.Errorf("%w: release %s is archived", ErrInvalidState, releaseID)
	}

	entry := schema.ReleaseDeployment{
		Environment:  deployment.Environment,
		DeploymentID: deployment.ID,
	}
	replaced := false
	for i := range release.Deployments {
		if release.Deployments[i].Environment == entry.Environment {
			release.Deployments[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		release.Deployments = append(release.Deployments, entry)
	}
	release.UpdatedAt = t.clock.Now()
	return snapshotRelease(release), nil
}

// AdvanceRelease moves a release to the next lifecycle status. Only
// the strictly-forward draft → pending → released → archived chain is
// legal, one step at a time.
func (t *Tracker) AdvanceRelease(releaseID string, target schema.ReleaseStatus) (*schema.Release, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	release, ok := t.releases[releaseID]
	if !ok {
		return nil, fmt.Errorf("%w: release %s", ErrNotFound, releaseID)
	}
	if !release.Status.CanAdvanceTo(target) {
		return nil, fmt.Errorf("%w: release %s cannot advance from %s to %s",
			ErrInvalidState, releaseID, release.Status, target)
	}
	release.Status = target
	release.UpdatedAt = t.clock.Now()

	t.logger.Info("release advanced",
		"release_id", releaseID,
		"version", release.Version,
		"status", target,
	)
	return snapshotRelease(release), nil
}

// GetRelease returns a copy of the release.
func (t *Tracker) GetRelease(releaseID string) (*schema.Release, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	release, ok := t.releases[releaseID]
	if !ok {
		return nil, fmt.Errorf("%w: release %s", ErrNotFound, releaseID)
	}
	return snapshotRelease(release), nil
}

func snapshotRelease(release *schema.Release) *schema.Release {
	copied := *release
	copied.Deployments = append([]schema.ReleaseDeployment(nil), release.Deployments...)
	return &copied
}
