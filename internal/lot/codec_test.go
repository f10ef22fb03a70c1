package lot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestFormatDatePart(t *testing.T) {
	require.Equal(t, "2025NOV05", FormatDatePart(date(2025, time.November, 5)))
	require.Equal(t, "2025SZEPT09", FormatDatePart(date(2025, time.September, 9)))
	require.Equal(t, "2024JAN01", FormatDatePart(date(2024, time.January, 1)))
}

func TestEncodeRoast(t *testing.T) {
	require.Equal(t, "V/2025NOV05/1", EncodeRoast(LevelLight, date(2025, time.November, 5), 1))
	require.Equal(t, "S/2025DEC31/12", EncodeRoast(LevelDark, date(2025, time.December, 31), 12))
}

func TestEncodeOtherKinds(t *testing.T) {
	d := date(2025, time.November, 5)
	require.Equal(t, "TG/V/2025NOV05/1", EncodeDrip(LevelLight, d, 1))
	require.Equal(t, "AK/2025NOV05/1", EncodeAdvent(d, 1))
	require.Equal(t, "CB/2025NOV05/1", EncodeColdBrew(d, 1))
}

func TestRoundTripAllMonths(t *testing.T) {
	for m := time.January; m <= time.December; m++ {
		d := date(2025, m, 14)
		got, err := Decode(EncodeRoast(LevelMedium, d, 7))
		require.NoError(t, err, "month %s", m)
		require.Equal(t, KindRoast, got.Kind)
		require.Equal(t, LevelMedium, got.Level)
		require.True(t, got.Date.Equal(d), "month %s: got %s", m, got.Date)
		require.Equal(t, 7, got.Sequence)
	}
}

func TestRoundTripYearBoundary(t *testing.T) {
	for _, d := range []time.Time{
		date(2025, time.December, 31),
		date(2026, time.January, 1),
	} {
		got, err := Decode(EncodeColdBrew(d, 2))
		require.NoError(t, err)
		require.Equal(t, KindColdBrew, got.Kind)
		require.True(t, got.Date.Equal(d))
		require.Equal(t, 2, got.Sequence)
	}
}

func TestDecodeDrip(t *testing.T) {
	got, err := Decode("TG/K/2025SZEPT30/3")
	require.NoError(t, err)
	require.Equal(t, KindDrip, got.Kind)
	require.Equal(t, LevelMedium, got.Level)
	require.True(t, got.Date.Equal(date(2025, time.September, 30)))
	require.Equal(t, 3, got.Sequence)
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, bad := range []string{
		"",
		"X/2025NOV05/1",        // unknown level
		"V/2025XXX05/1",        // unknown month code
		"V/2025NOV05/one",      // non-integer sequence
		"V/2025NOV05",          // missing sequence
		"TG/2025NOV05/1",       // drip without level
		"V/2025FEB30/1",        // no such day
		"AK/2025NOV05/1/extra", // too many segments
	} {
		_, err := Decode(bad)
		require.Error(t, err, "input %q", bad)
		var perr *ParseError
		require.ErrorAs(t, err, &perr, "input %q", bad)
	}
}

func TestParseDatePartVariableWidth(t *testing.T) {
	// SZEPT is two bytes longer than NOV; a fixed-width slice would
	// swallow part of the day.
	d, err := ParseDatePart("2025SZEPT05")
	require.NoError(t, err)
	require.True(t, d.Equal(date(2025, time.September, 5)))

	_, err = ParseDatePart("2025SZEPT")
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	for _, ok := range []string{"V", "K", "S"} {
		lvl, err := ParseLevel(ok)
		require.NoError(t, err)
		require.Equal(t, Level(ok), lvl)
	}
	_, err := ParseLevel("v")
	require.Error(t, err)
	_, err = ParseLevel("M")
	require.Error(t, err)
}
