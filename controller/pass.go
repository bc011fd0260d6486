// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package controller

import (
	"fmt"
	"strings"
	"time"

	"github.com/bureau-foundation/inviter/reconcile"
)

// PassResult collects the reports of one pass, in directory order.
type PassResult struct {
	Options  reconcile.Options
	Started  time.Time
	Duration time.Duration
	Reports  []*reconcile.Report
}

// Count returns how many rooms ended with status.
func (p *PassResult) Count(status reconcile.Status) int {
	count := 0
	for _, report := range p.Reports {
		if report.Status == status {
			count++
		}
	}
	return count
}

// Summary is a one-line description of the pass.
func (p *PassResult) Summary() string {
	return fmt.Sprintf("%s pass over %d rooms in %s: %d reconciled, %d failed, %d not manageable, %d unresolvable",
		mode(p.Options), len(p.Reports), p.Duration.Round(time.Second),
		p.Count(reconcile.StatusReconciled),
		p.Count(reconcile.StatusFailed),
		p.Count(reconcile.StatusNotManageable),
		p.Count(reconcile.StatusUnresolvable)+p.Count(reconcile.StatusWouldCreate),
	)
}

// Markdown renders the rooms worth an administrator's attention: those
// that changed, had failures or warnings, or did not reconcile. It
// returns "" when every room was already in line.
func (p *PassResult) Markdown() string {
	var sections []string
	for _, report := range p.Reports {
		if noteworthy(report) {
			sections = append(sections, report.Markdown())
		}
	}
	if len(sections) == 0 {
		return ""
	}
	return p.Summary() + "\n\n" + strings.Join(sections, "\n---\n\n")
}

func noteworthy(report *reconcile.Report) bool {
	return report.Status != reconcile.StatusReconciled ||
		report.Created ||
		len(report.Invited) > 0 ||
		len(report.Kicked) > 0 ||
		report.PowerLevelsChanged ||
		len(report.Normalized) > 0 ||
		len(report.Failed) > 0 ||
		len(report.Warnings) > 0
}

func mode(options reconcile.Options) string {
	switch {
	case options.AllowInvite && options.AllowKick:
		return "full"
	case options.AllowInvite:
		return "cautious"
	case options.AllowKick:
		return "kick-only"
	default:
		return "dry"
	}
}
