// Copyright (C) 2025 Kodiak Labs (eng@kodiaklabs.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "fmt"

// ProviderError is returned when an external provider call fails in a way
// the caller may need to branch on.
//
// Retryable marks transient failures (429, 5xx) that exhausted their retry
// budget; non-retryable errors indicate misconfiguration or an unexpected
// response shape and must surface instead of being retried.
type ProviderError struct {
	Provider   string
	StatusCode int
	Message    string
	Retryable  bool
}

// Error implements the error interface for ProviderError.
func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s provider error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s provider error: %s", e.Provider, e.Message)
}

// IsProviderError checks if an error is a *ProviderError.
func IsProviderError(err error) bool {
	_, ok := err.(*ProviderError)
	return ok
}

// AsProviderError extracts the *ProviderError, or nil.
func AsProviderError(err error) *ProviderError {
	if pe, ok := err.(*ProviderError); ok {
		return pe
	}
	return nil
}
