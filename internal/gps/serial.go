// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"errors"
	"fmt"
	"io"
	"io/fs"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/geofix/internal/position"
)

// OpenSerial opens the GPS serial port at the given baud rate (8N1).
func OpenSerial(portName string, baudRate int) (io.ReadWriteCloser, error) {
	opts := serial.OpenOptions{
		PortName:              portName,
		BaudRate:              uint(baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open GPS serial port %s: %w", portName, err)
	}
	return port, nil
}

// PermissionFromOpenError maps a port open error to the permission state
// the location pipeline should see: a permission error means denied, any
// other failure means the device is simply not there yet.
func PermissionFromOpenError(err error) position.PermissionState {
	switch {
	case err == nil:
		return position.PermissionGranted
	case errors.Is(err, fs.ErrPermission):
		return position.PermissionDenied
	default:
		return position.PermissionPrompt
	}
}
