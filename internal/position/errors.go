// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package position

import (
	"errors"
	"fmt"
)

// ErrorCode is the failure reason reported by the location platform.
type ErrorCode int

const (
	CodePermissionDenied ErrorCode = iota + 1
	CodePositionUnavailable
	CodeTimeout
)

func (c ErrorCode) String() string {
	switch c {
	case CodePermissionDenied:
		return "permission_denied"
	case CodePositionUnavailable:
		return "position_unavailable"
	case CodeTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("code(%d)", int(c))
	}
}

// ParseErrorCode is the inverse of ErrorCode.String.
func ParseErrorCode(s string) (ErrorCode, bool) {
	switch s {
	case "permission_denied":
		return CodePermissionDenied, true
	case "position_unavailable":
		return CodePositionUnavailable, true
	case "timeout":
		return CodeTimeout, true
	}
	return 0, false
}

var (
	ErrUnsupported         = errors.New("location services are not supported on this device")
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPermissionRevoked   = fmt.Errorf("%w: access was revoked", ErrPermissionDenied)
	ErrTransient           = errors.New("location temporarily unavailable")
	ErrUnavailable         = fmt.Errorf("%w: no signal", ErrTransient)
	ErrTimeout             = fmt.Errorf("%w: request timed out", ErrTransient)
	ErrSignalStale         = errors.New("location signal lost")
	ErrRecalibrationFailed = errors.New("recalibration failed")
)

// Classify maps a platform error code onto the error taxonomy. Anything
// that is not an explicit denial is transient.
func Classify(code ErrorCode) error {
	switch code {
	case CodePermissionDenied:
		return ErrPermissionDenied
	case CodeTimeout:
		return ErrTimeout
	default:
		return ErrUnavailable
	}
}
