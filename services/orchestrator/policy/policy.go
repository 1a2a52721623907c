// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package policy implements the data-classification lattice and the
// role-based access decisions that gate every chat request.
//
// The model is deliberately small: four ordered classification tiers, a
// handful of caller roles, and pure functions mapping one to the other.
// Nothing in this package performs I/O, which keeps the access decisions
// trivially testable.
package policy

import "strings"

// Classification is a security tier attached to content and to requests.
// Tiers are totally ordered: Public < Internal < Confidential < Restricted.
type Classification string

const (
	Public       Classification = "Public"
	Internal     Classification = "Internal"
	Confidential Classification = "Confidential"
	Restricted   Classification = "Restricted"

	// Unknown marks chunks ingested from a path with no recognized
	// classification prefix. Unknown content never matches any access
	// filter until it is reclassified.
	Unknown Classification = "Unknown"
)

// Role identifies the kind of caller making a request. Role is trusted as
// given by the upstream gateway; this service performs no identity checks.
type Role string

const (
	RoleCustomer Role = "Customer"
	RoleAgent    Role = "Agent"
	RoleAdmin    Role = "Admin"
)

// classificationRank orders the lattice. Unknown and unrecognized tiers
// rank as Public so a garbled boundary can never widen access.
func classificationRank(c Classification) int {
	switch c {
	case Internal:
		return 1
	case Confidential:
		return 2
	case Restricted:
		return 3
	default:
		return 0
	}
}

// Rank returns the position of c in the classification order.
func (c Classification) Rank() int { return classificationRank(c) }

// Tag returns the lowercase form stored on indexed chunks.
func (c Classification) Tag() string { return strings.ToLower(string(c)) }

// roleAliases maps common caller-supplied role spellings onto canonical roles.
var roleAliases = map[string]Role{
	"customer": RoleCustomer,
	"user":     RoleCustomer,
	"enduser":  RoleCustomer,
	"agent":    RoleAgent,
	"soc":      RoleAgent,
	"analyst":  RoleAgent,
	"admin":    RoleAdmin,
	"it":       RoleAdmin,
}

// maxBoundary maps each role to the highest classification it may read.
// Restricted never appears here: it is escalation-only for every role.
var maxBoundary = map[Role]Classification{
	RoleCustomer: Public,
	RoleAgent:    Internal,
	RoleAdmin:    Confidential,
}

// NormalizeBoundary maps a raw boundary string onto the classification
// lattice, case-insensitively. Unrecognized input is title-cased and passed
// through; since unrecognized tiers rank as Public this is permissive in
// name only and never widens access.
func NormalizeBoundary(raw string) Classification {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Public
	}
	switch strings.ToLower(trimmed) {
	case "public":
		return Public
	case "internal":
		return Internal
	case "confidential":
		return Confidential
	case "restricted":
		return Restricted
	}
	return Classification(titleCase(trimmed))
}

// NormalizeRole maps a raw role string onto a canonical Role. Unrecognized
// input falls back to a capitalized echo so a misconfigured gateway cannot
// crash the pipeline; an echoed role has no entry in the boundary table and
// therefore resolves to Public access.
func NormalizeRole(raw string) Role {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return RoleCustomer
	}
	if role, ok := roleAliases[strings.ToLower(trimmed)]; ok {
		return role
	}
	return Role(titleCase(trimmed))
}

// MaxBoundaryFor returns the highest classification the role may access.
// Roles outside the table get Public.
func MaxBoundaryFor(role Role) Classification {
	if b, ok := maxBoundary[role]; ok {
		return b
	}
	return Public
}

// RequiresEscalation reports whether an explicitly requested boundary must
// be escalated to a human instead of served or downgraded. Two cases:
// Restricted is escalation-only for everyone, and an explicit Confidential
// request from a non-Admin escalates rather than silently downgrading, so
// the caller is never misled about why their answer is limited.
func RequiresEscalation(role Role, requested Classification) (bool, string) {
	if requested == Restricted {
		return true, "Restricted content requires escalation"
	}
	if requested == Confidential && role != RoleAdmin {
		return true, "Confidential request requires Admin access"
	}
	return false, ""
}

// DecideEffectiveBoundary clamps the requested boundary to the role's
// maximum. Callers must check RequiresEscalation first; this function only
// handles the silent-downgrade cases.
func DecideEffectiveBoundary(role Role, requested Classification) Classification {
	max := MaxBoundaryFor(role)
	if classificationRank(requested) <= classificationRank(max) {
		// Unrecognized tiers rank 0 and clamp to Public rather than
		// echoing through to the retrieval filter.
		switch requested {
		case Public, Internal, Confidential, Restricted:
			return requested
		default:
			return Public
		}
	}
	return max
}

// BuildClassificationFilter expands an effective boundary into the set of
// chunk classification tags the caller may see. Every retrieval query must
// carry this filter; Unknown is excluded from every expansion.
func BuildClassificationFilter(effective Classification) []string {
	switch effective {
	case Internal:
		return []string{Public.Tag(), Internal.Tag()}
	case Confidential:
		return []string{Public.Tag(), Internal.Tag(), Confidential.Tag()}
	case Restricted:
		return []string{Restricted.Tag()}
	default:
		return []string{Public.Tag()}
	}
}

// ClassifyPath infers a chunk classification from the first segment of a
// storage path ("internal/runbooks/vpn.md" -> Internal). Anything without a
// recognized prefix is Unknown and stays invisible to every filter.
func ClassifyPath(path string) Classification {
	normalized := strings.TrimLeft(strings.ReplaceAll(path, "\\", "/"), "/")
	segment, _, _ := strings.Cut(normalized, "/")
	switch strings.ToLower(segment) {
	case "public":
		return Public
	case "internal":
		return Internal
	case "confidential":
		return Confidential
	case "restricted":
		return Restricted
	default:
		return Unknown
	}
}

// titleCase upper-cases the first rune and lower-cases the rest. Good
// enough for echoing enum-ish identifiers; not a general text casing.
func titleCase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}
