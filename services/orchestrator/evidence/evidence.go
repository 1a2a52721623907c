// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package evidence decides whether retrieved context is good enough to
// answer from, or whether the pipeline should offer a web search instead.
package evidence

import (
	"strings"
	"unicode"

	"github.com/kodiak-ai/kodiak/services/orchestrator/datatypes"
)

// DefaultMinScore is the hybrid-score floor below which evidence counts as
// weak. Hybrid scores from the index are small fractions, so the floor is
// deliberately tiny.
const DefaultMinScore = 0.01

const (
	maxQuestionTokens = 25
	minTokenLength    = 4
	minOverlapHits    = 2
)

// Assessment is the outcome of judging an evidence bundle against the
// question that produced it.
type Assessment struct {
	BestScore    float64
	NoEvidence   bool
	WeakEvidence bool
	LowOverlap   bool
	NeedWeb      bool
}

// Assess scores bundle against question.
//
// # Description
//
// NoEvidence means zero citations came back. WeakEvidence means citations
// came back but the best score sits under minScore. LowOverlap means fewer
// than two of the question's leading content tokens appear anywhere in the
// retrieved text, which usually marks the hits as off topic regardless of
// score. Any of the three sets NeedWeb.
func Assess(question string, bundle datatypes.EvidenceBundle, minScore float64) Assessment {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}

	a := Assessment{NoEvidence: len(bundle.Citations) == 0}

	for _, c := range bundle.Citations {
		if c.Score > a.BestScore {
			a.BestScore = c.Score
		}
	}
	a.WeakEvidence = !a.NoEvidence && a.BestScore < minScore

	a.LowOverlap = lowOverlap(question, bundle)
	a.NeedWeb = a.NoEvidence || a.WeakEvidence || a.LowOverlap
	return a
}

// FilterCitations drops internal citations when the assessment judged them
// off topic or too weak. They still counted toward the NeedWeb decision,
// but surfacing them to the caller would present noise as provenance.
func FilterCitations(a Assessment, citations []datatypes.Citation) []datatypes.Citation {
	if a.WeakEvidence || a.LowOverlap {
		return nil
	}
	return citations
}

// lowOverlap checks whether the bundle's text plausibly concerns the
// question at all. It takes the first maxQuestionTokens distinct
// alphanumeric tokens of length >= minTokenLength from the question and
// counts how many occur as case-insensitive substrings of the combined
// context and snippets.
func lowOverlap(question string, bundle datatypes.EvidenceBundle) bool {
	tokens := QuestionTokens(question)
	if len(tokens) == 0 {
		return false
	}

	var sb strings.Builder
	sb.WriteString(bundle.Context)
	for _, c := range bundle.Citations {
		sb.WriteString("\n")
		sb.WriteString(c.Snippet)
	}
	haystack := strings.ToLower(sb.String())

	hits := 0
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			hits++
			if hits >= minOverlapHits {
				return false
			}
		}
	}
	return hits < minOverlapHits
}

// QuestionTokens extracts the question's leading content words: distinct
// alphanumeric runs of length >= minTokenLength, lowercased, capped at
// maxQuestionTokens.
func QuestionTokens(question string) []string {
	fields := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})

	seen := make(map[string]struct{}, len(fields))
	tokens := make([]string, 0, len(fields))
	for _, f := range fields {
		if len([]rune(f)) < minTokenLength {
			continue
		}
		if _, dup := seen[f]; dup {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
		if len(tokens) == maxQuestionTokens {
			break
		}
	}
	return tokens
}
