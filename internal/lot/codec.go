// Package lot encodes and decodes Café Tiko LOT identifiers.
//
// Formats:
//
//	Roast:     V/2025NOV05/1
//	Drip:      TG/V/2025NOV05/1
//	Advent:    AK/2025NOV05/1
//	Cold brew: CB/2025NOV05/1
//
// The date part uses Hungarian month abbreviations. Eleven codes are three
// letters; September is the five-letter "SZEPT", so the date part has no
// fixed width and must be parsed by prefix.
package lot

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Kind identifies which LOT family an identifier belongs to.
type Kind string

const (
	KindRoast    Kind = "roast"
	KindDrip     Kind = "drip"
	KindAdvent   Kind = "advent"
	KindColdBrew Kind = "cold_brew"
)

// Level is a roast level code as it appears in LOT strings.
type Level string

const (
	// LevelLight is "Világos".
	LevelLight Level = "V"
	// LevelMedium is "Közepes".
	LevelMedium Level = "K"
	// LevelDark is "Sötét".
	LevelDark Level = "S"
)

// levelNames maps level codes to their Hungarian display names.
var levelNames = map[Level]string{
	LevelLight:  "Világos (Light)",
	LevelMedium: "Közepes (Medium)",
	LevelDark:   "Sötét (Dark)",
}

// monthCodes is indexed by time.Month-1. The table is load-bearing: LOT
// strings printed on bags must keep these exact byte sequences.
var monthCodes = [12]string{
	"JAN", "FEB", "MÁR", "ÁPR", "MÁJ", "JÚN",
	"JÚL", "AUG", "SZEPT", "OKT", "NOV", "DEC",
}

const (
	prefixDrip     = "TG"
	prefixAdvent   = "AK"
	prefixColdBrew = "CB"
)

// ParseError reports an unrecognised LOT string.
type ParseError struct {
	Lot    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("lot: cannot parse %q: %s", e.Lot, e.Reason)
}

// Components holds the decoded parts of a LOT identifier. Level is empty
// for advent and cold-brew LOTs.
type Components struct {
	Kind     Kind
	Level    Level
	Date     time.Time
	Sequence int
}

// ParseLevel validates a roast level code.
func ParseLevel(s string) (Level, error) {
	lvl := Level(s)
	if _, ok := levelNames[lvl]; !ok {
		return "", fmt.Errorf("lot: invalid roast level %q: must be V, K or S", s)
	}
	return lvl, nil
}

// Name returns the human-readable Hungarian name for the level code.
func (l Level) Name() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return string(l)
}

// MonthCode returns the Hungarian abbreviation for m.
func MonthCode(m time.Month) string {
	return monthCodes[m-1]
}

// FormatDatePart renders d as YEARMONTHDAY, e.g. 2025NOV05.
func FormatDatePart(d time.Time) string {
	return fmt.Sprintf("%04d%s%02d", d.Year(), monthCodes[d.Month()-1], d.Day())
}

// ParseDatePart is the inverse of FormatDatePart. The month code is matched
// by prefix because SZEPT is longer than the other codes.
func ParseDatePart(s string) (time.Time, error) {
	if len(s) < 4 {
		return time.Time{}, fmt.Errorf("lot: date part %q too short", s)
	}
	year, err := strconv.Atoi(s[:4])
	if err != nil {
		return time.Time{}, fmt.Errorf("lot: date part %q: bad year", s)
	}
	rest := s[4:]
	for i, code := range monthCodes {
		if !strings.HasPrefix(rest, code) {
			continue
		}
		day, err := strconv.Atoi(rest[len(code):])
		if err != nil {
			return time.Time{}, fmt.Errorf("lot: date part %q: bad day", s)
		}
		month := time.Month(i + 1)
		d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
		if d.Year() != year || d.Month() != month || d.Day() != day {
			return time.Time{}, fmt.Errorf("lot: date part %q: no such day", s)
		}
		return d, nil
	}
	return time.Time{}, fmt.Errorf("lot: date part %q: unknown month code", s)
}

// EncodeRoast builds a roast batch LOT: {Level}/{datepart}/{seq}.
func EncodeRoast(level Level, date time.Time, seq int) string {
	return fmt.Sprintf("%s/%s/%d", level, FormatDatePart(date), seq)
}

// EncodeDrip builds a drip coffee LOT: TG/{Level}/{datepart}/{seq}.
func EncodeDrip(level Level, date time.Time, seq int) string {
	return fmt.Sprintf("%s/%s/%s/%d", prefixDrip, level, FormatDatePart(date), seq)
}

// EncodeAdvent builds an advent calendar LOT: AK/{datepart}/{seq}.
func EncodeAdvent(date time.Time, seq int) string {
	return fmt.Sprintf("%s/%s/%d", prefixAdvent, FormatDatePart(date), seq)
}

// EncodeColdBrew builds a cold brew LOT: CB/{datepart}/{seq}.
func EncodeColdBrew(date time.Time, seq int) string {
	return fmt.Sprintf("%s/%s/%d", prefixColdBrew, FormatDatePart(date), seq)
}

// Decode splits a LOT string and dispatches on its first segment.
func Decode(s string) (Components, error) {
	parts := strings.Split(s, "/")
	switch parts[0] {
	case prefixDrip:
		if len(parts) != 4 {
			return Components{}, &ParseError{Lot: s, Reason: "drip lot needs 4 segments"}
		}
		level, err := ParseLevel(parts[1])
		if err != nil {
			return Components{}, &ParseError{Lot: s, Reason: err.Error()}
		}
		return decodeDated(s, KindDrip, level, parts[2], parts[3])
	case prefixAdvent:
		if len(parts) != 3 {
			return Components{}, &ParseError{Lot: s, Reason: "advent lot needs 3 segments"}
		}
		return decodeDated(s, KindAdvent, "", parts[1], parts[2])
	case prefixColdBrew:
		if len(parts) != 3 {
			return Components{}, &ParseError{Lot: s, Reason: "cold brew lot needs 3 segments"}
		}
		return decodeDated(s, KindColdBrew, "", parts[1], parts[2])
	}
	if level, err := ParseLevel(parts[0]); err == nil {
		if len(parts) != 3 {
			return Components{}, &ParseError{Lot: s, Reason: "roast lot needs 3 segments"}
		}
		return decodeDated(s, KindRoast, level, parts[1], parts[2])
	}
	return Components{}, &ParseError{Lot: s, Reason: "unknown prefix"}
}

func decodeDated(lot string, kind Kind, level Level, datePart, seqPart string) (Components, error) {
	date, err := ParseDatePart(datePart)
	if err != nil {
		return Components{}, &ParseError{Lot: lot, Reason: err.Error()}
	}
	seq, err := strconv.Atoi(seqPart)
	if err != nil {
		return Components{}, &ParseError{Lot: lot, Reason: "sequence is not an integer"}
	}
	return Components{Kind: kind, Level: level, Date: date, Sequence: seq}, nil
}
