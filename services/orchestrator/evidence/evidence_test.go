// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package evidence

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
)

func bundleWith(score float64, snippet string) datatypes.EvidenceBundle {
	return datatypes.EvidenceBundle{
		Context: snippet,
		Citations: []datatypes.Citation{
			{Title: "doc", Source: "public/doc.txt#0", Snippet: snippet, Score: score},
		},
	}
}

func TestAssess_NoEvidence(t *testing.T) {
	a := Assess("How do I reset my VPN client?", datatypes.EvidenceBundle{}, DefaultMinScore)

	assert.True(t, a.NoEvidence)
	assert.False(t, a.WeakEvidence, "weak requires at least one citation")
	assert.True(t, a.NeedWeb, "zero citations must always trigger the web path")
	assert.Zero(t, a.BestScore)
}

func TestAssess_StrongRelevantEvidence(t *testing.T) {
	b := bundleWith(0.5, "To reset the VPN client, open settings and click Reset.")
	a := Assess("How do I reset my VPN client?", b, DefaultMinScore)

	assert.False(t, a.NoEvidence)
	assert.False(t, a.WeakEvidence)
	assert.False(t, a.LowOverlap, "snippet contains both 'reset' and 'client'")
	assert.False(t, a.NeedWeb)
	assert.InDelta(t, 0.5, a.BestScore, 1e-9)
}

func TestAssess_WeakEvidence(t *testing.T) {
	b := bundleWith(0.001, "To reset the VPN client, open settings.")
	a := Assess("How do I reset my VPN client?", b, DefaultMinScore)

	assert.True(t, a.WeakEvidence)
	assert.True(t, a.NeedWeb)
	assert.Empty(t, FilterCitations(a, b.Citations),
		"weak citations are dropped from the response")
}

func TestAssess_LowOverlap(t *testing.T) {
	b := bundleWith(0.9, "Quarterly revenue grew eleven percent year over year.")
	a := Assess("How do I reset my VPN client?", b, DefaultMinScore)

	assert.True(t, a.LowOverlap, "high score but off-topic text")
	assert.True(t, a.NeedWeb)
	assert.Empty(t, FilterCitations(a, b.Citations))
}

func TestAssess_OverlapCountsSubstringsCaseInsensitively(t *testing.T) {
	b := bundleWith(0.2, "RESETTING the corporate CLIENT software")
	a := Assess("How do I reset my VPN client?", b, DefaultMinScore)

	assert.False(t, a.LowOverlap,
		"'reset' and 'client' match inside larger words regardless of case")
}

func TestAssess_BlankQuestionNeverLowOverlap(t *testing.T) {
	a := Assess("a an it", bundleWith(0.2, "anything"), DefaultMinScore)
	assert.False(t, a.LowOverlap, "no tokens of usable length means no overlap signal")
}

func TestFilterCitations_KeepsGoodEvidence(t *testing.T) {
	b := bundleWith(0.5, "To reset the VPN client, open settings.")
	a := Assess("How do I reset my VPN client?", b, DefaultMinScore)

	assert.Len(t, FilterCitations(a, b.Citations), 1)
}

func TestQuestionTokens(t *testing.T) {
	tokens := QuestionTokens("How do I reset my VPN-client? Reset it NOW, please.")
	assert.Equal(t, []string{"reset", "client", "please"}, tokens,
		"short words dropped, duplicates collapsed, lowercased")
}

func TestQuestionTokens_CapsAtTwentyFive(t *testing.T) {
	long := ""
	for i := 0; i < 40; i++ {
		long += fmt.Sprintf(" token%02d", i)
	}
	assert.Len(t, QuestionTokens(long), 25)
}
