// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"errors"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
)

const (
	knotsToMPS = 0.514444

	// DefaultUERE is the user equivalent range error (meters) used to turn
	// HDOP into an accuracy radius.
	DefaultUERE = 5.0

	// accuracy reported before any GGA told us the HDOP
	unknownAccuracyM = 50.0
)

// ErrNoFix is returned when the receiver reports a void fix.
var ErrNoFix = errors.New("gps: receiver has no fix")

// Assembler combines NMEA sentences into fixes. RMC carries position,
// speed and validity; the latest GGA contributes HDOP and satellite count.
type Assembler struct {
	UERE float64

	// Now stamps fixes whose sentences carry no date. Defaults to time.Now.
	Now func() time.Time

	hdop       float64
	satellites int64
	haveGGA    bool
}

// NewAssembler creates an assembler with the default UERE.
func NewAssembler() *Assembler {
	return &Assembler{UERE: DefaultUERE, Now: time.Now}
}

// Feed consumes one line of NMEA. It returns ok == true when the line
// completed a fix, ErrNoFix when the receiver reported a void fix, and
// ignores anything it cannot parse.
func (a *Assembler) Feed(line string) (Fix, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return Fix{}, false, nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy GPS or partial sentences
		return Fix{}, false, nil
	}

	switch sentence.DataType() {
	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			a.haveGGA = false
			return Fix{}, false, nil
		}
		a.hdop = m.HDOP
		a.satellites = m.NumSatellites
		a.haveGGA = true
		return Fix{}, false, nil

	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return Fix{}, false, ErrNoFix
		}
		return a.fixFromRMC(m), true, nil

	default:
		// GSA, GSV, VTG and friends carry nothing we need
		return Fix{}, false, nil
	}
}

func (a *Assembler) fixFromRMC(m nmea.RMC) Fix {
	speed := m.Speed * knotsToMPS
	f := Fix{
		Time:      m.Time.String(),
		Date:      m.Date.String(),
		Timestamp: a.timestamp(m.Date, m.Time),
		Latitude:  m.Latitude,
		Longitude: m.Longitude,
		AccuracyM: unknownAccuracyM,
		SpeedMPS:  &speed,
		CourseDeg: m.Course,
		Validity:  m.Validity,
	}
	if a.haveGGA && a.hdop > 0 {
		f.HDOP = a.hdop
		f.Satellites = a.satellites
		f.AccuracyM = a.hdop * a.uere()
	}
	return f
}

func (a *Assembler) uere() float64 {
	if a.UERE <= 0 {
		return DefaultUERE
	}
	return a.UERE
}

func (a *Assembler) timestamp(d nmea.Date, t nmea.Time) time.Time {
	if !d.Valid || !t.Valid {
		if a.Now != nil {
			return a.Now()
		}
		return time.Now()
	}
	year := 2000 + d.YY
	if d.YY >= 80 {
		year = 1900 + d.YY
	}
	return time.Date(year, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
