package roastimport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cafetiko/roastledger/internal/lot"
)

func TestParseNumbersAndStrings(t *testing.T) {
	// Older exports quote the weights, newer ones do not.
	data := []byte(`{
		"uid": "abc123",
		"roastName": "Etiópia Sidamo",
		"dateTime": 1762300800000,
		"weightGreen": "1000",
		"weightRoasted": 860,
		"dropTemperature": "215.5",
		"indexFirstCrackStart": 960,
		"sampleRate": 2,
		"totalRoastTime": 620
	}`)
	r, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, "abc123", r.UID)
	require.InDelta(t, 1000.0, r.GreenWeightG, 0.0001)
	require.InDelta(t, 860.0, r.RoastedWeightG, 0.0001)
	require.InDelta(t, 14.0, r.WeightLossPercent, 0.0001)
	require.InDelta(t, 215.5, r.DropTempC, 0.0001)
	require.Equal(t, 480, r.FirstCrackSeconds)
	require.Equal(t, 620, r.TotalRoastSeconds)
	require.Equal(t, 2025, r.RoastedAt.Year())
}

func TestParseRequiresUID(t *testing.T) {
	_, err := Parse([]byte(`{"roastName": "névtelen"}`))
	require.Error(t, err)
}

func TestGuessLevel(t *testing.T) {
	// Name hints win over measurements.
	require.Equal(t, lot.LevelLight, GuessLevel("Brazil világos", 20, 230))
	require.Equal(t, lot.LevelDark, GuessLevel("Brazil sötét pörkölés", 10, 200))
	require.Equal(t, lot.LevelMedium, GuessLevel("Brazil közepes", 10, 200))

	require.Equal(t, lot.LevelLight, GuessLevel("Brazil", 12, 215))
	require.Equal(t, lot.LevelLight, GuessLevel("Brazil", 14, 205))
	require.Equal(t, lot.LevelDark, GuessLevel("Brazil", 16, 215))
	require.Equal(t, lot.LevelDark, GuessLevel("Brazil", 14, 225))
	require.Equal(t, lot.LevelMedium, GuessLevel("Brazil", 14, 215))
	// No measurements at all defaults to medium.
	require.Equal(t, lot.LevelMedium, GuessLevel("Brazil", 0, 0))
}

func TestLoadAllSkipsBadFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.json", `{"uid":"u1","roastName":"Kenya","dateTime":1762300800000,"weightGreen":500,"weightRoasted":430}`)
	writeFile(t, dir, "older.json", `{"uid":"u2","roastName":"Kenya","dateTime":1762200800000,"weightGreen":500,"weightRoasted":430}`)
	writeFile(t, dir, "broken.json", `{not json`)
	writeFile(t, dir, "readme.txt", `not a roast`)

	im := NewImporter(dir)
	roasts, errs := im.LoadAll()
	require.Len(t, roasts, 2)
	require.Len(t, errs, 1)
	// Newest first.
	require.Equal(t, "u1", roasts[0].UID)

	r, err := im.ByUID("u2")
	require.NoError(t, err)
	require.Equal(t, "u2", r.UID)

	_, err = im.ByUID("missing")
	require.Error(t, err)
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}
