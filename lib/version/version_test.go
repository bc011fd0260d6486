// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package version

import (
	"strings"
	"testing"
)

func TestInfoMarksDirtyBuilds(t *testing.T) {
	savedCommit, savedDirty := GitCommit, GitDirty
	t.Cleanup(func() { GitCommit, GitDirty = savedCommit, savedDirty })

	GitCommit = "abc1234"
	GitDirty = "false"
	if got := Info(); !strings.Contains(got, "(abc1234,") {
		t.Errorf("Info() = %q, want clean commit", got)
	}
	GitDirty = "true"
	if got := Info(); !strings.Contains(got, "abc1234-dirty") {
		t.Errorf("Info() = %q, want dirty marker", got)
	}
	if !strings.HasPrefix(Full(), Info()) {
		t.Errorf("Full() does not start with Info()")
	}
	if UserAgent() != "inviter/"+Version {
		t.Errorf("UserAgent() = %q", UserAgent())
	}
}
