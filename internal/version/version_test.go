/*
Copyright (c) 2025 Tobias Schäfer. All rights reserved.
Licensed under the MIT License, see LICENSE file in the project root for details.
*/
package version

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func releaseReturnsDevWhenVersionIsEmpty(t *testing.T) {
	Version = ""
	assert.Equal(t, "dev", Release())
	assert.Empty(t, Version)
}

func commitReturnsEmptyStringWhenGitCommitIsEmpty(t *testing.T) {
	GitCommit = ""
	assert.Equal(t, "", Commit())
}

func releaseReturnsVersionWhenVersionIsSet(t *testing.T) {
	Version = "1.0.0"
	defer func() { Version = "" }()
	assert.Equal(t, "1.0.0", Release())
}

func commitReturnsCommitHashWhenGitCommitIsSet(t *testing.T) {
	GitCommit = "f98352c5101f5097c183cb667401a4f459dc7221"
	defer func() { GitCommit = "" }()
	assert.Equal(t, "f98352c5101f5097c183cb667401a4f459dc7221", Commit())
}

func printWritesPlainBannerIfNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	Version = "1.2.3"
	defer func() { Version = "" }()

	var buf bytes.Buffer
	Print(&buf)
	assert.NotContains(t, buf.String(), "\033[34m")
	assert.Contains(t, buf.String(), Banner())
	assert.Contains(t, buf.String(), "Release: 1.2.3\n")
}

func printWritesColoredBanner(t *testing.T) {
	t.Setenv("NO_COLOR", "false")

	var buf bytes.Buffer
	Print(&buf)
	assert.Contains(t, buf.String(), "\033[34m")
	assert.Contains(t, buf.String(), "Release: dev\n")
}

func TestVersion(t *testing.T) {
	t.Run("version.Release returns 'dev' when Version is empty", releaseReturnsDevWhenVersionIsEmpty)
	t.Run("version.Commit returns empty string when GitCommit is empty", commitReturnsEmptyStringWhenGitCommitIsEmpty)
	t.Run("version.Release returns Version when Version is set", releaseReturnsVersionWhenVersionIsSet)
	t.Run("version.Commit returns commit hash when GitCommit is set", commitReturnsCommitHashWhenGitCommitIsSet)
	t.Run("version.Print writes plain banner if NO_COLOR is set", printWritesPlainBannerIfNoColor)
	t.Run("version.Print writes colored banner", printWritesColoredBanner)
}
