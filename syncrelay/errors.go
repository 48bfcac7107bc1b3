// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package syncrelay

import "errors"

// Error category sentinels for the relay's public contract.
// Concrete failures wrap one of these with fmt.Errorf("%w: ...") so that
// callers can classify with errors.Is without depending on message text.
//
// ErrValidation: the delta is malformed and must not be retried.
// ErrStorage: the durable store failed; the caller decides retry policy.
// ErrBroadcast: a per-device send failed; never escalated out of the
// broadcast step, exposed only for logging and tests.
var (
	ErrValidation = errors.New("validation_error")
	ErrStorage    = errors.New("storage_error")
	ErrBroadcast  = errors.New("broadcast_error")
)

// ErrNotFound is returned by EntityStore.Get when no record exists for the
// requested (entityType, entityID). It is not a failure: the relay treats a
// missing record as the all-zero clock, empty-field baseline.
var ErrNotFound = errors.New("entity not found")

// ErrRelayClosed is returned by operations invoked after Close.
var ErrRelayClosed = errors.New("sync relay has been closed")
