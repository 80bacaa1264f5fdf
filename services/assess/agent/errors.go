// Copyright (C) 2025 Veracity AI (oss@veracityai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package agent

import "errors"

// Collaborator error kinds. These are sentinels so callers can classify
// with errors.Is regardless of how many layers wrapped the original
// failure. The retry policy lives with the caller, not here.
var (
	// ErrReasoningUnavailable indicates a transport or auth failure
	// talking to the model provider. Recoverable via fallback synthesis.
	ErrReasoningUnavailable = errors.New("reasoning unavailable")

	// ErrReasoningMalformed indicates JSON was requested but the reply
	// could not be parsed. Recoverable via fallback synthesis.
	ErrReasoningMalformed = errors.New("reasoning reply malformed")

	// ErrConnection indicates the target system could not be reached or
	// the transport dropped mid-call.
	ErrConnection = errors.New("tool connection failed")

	// ErrConnectionClosed indicates an established session was closed by
	// the remote side. The scan executor reconnects once before retrying.
	ErrConnectionClosed = errors.New("tool connection closed")

	// ErrCapabilityNotFound indicates the target does not advertise the
	// requested capability. Never retried.
	ErrCapabilityNotFound = errors.New("capability not found")

	// ErrRateLimited indicates the target asked us to back off.
	ErrRateLimited = errors.New("rate limited by target")

	// ErrInvocation indicates the capability executed and failed.
	ErrInvocation = errors.New("tool invocation failed")
)
