// Package roastimport reads RoastTime export files. Each roast is one JSON
// file whose schema drifted across app versions: numeric fields arrive as
// numbers or as strings, and several fields are missing from older exports.
// The importer is tolerant by design since these files cannot be fixed at
// the source.
package roastimport

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cafetiko/roastledger/internal/lot"
	"github.com/cafetiko/roastledger/internal/shared"
)

// Roast is one parsed RoastTime export.
type Roast struct {
	UID               string    `json:"uid"`
	Name              string    `json:"name"`
	RoastedAt         time.Time `json:"roasted_at"`
	GreenWeightG      float64   `json:"green_weight_g"`
	RoastedWeightG    float64   `json:"roasted_weight_g"`
	WeightLossPercent float64   `json:"weight_loss_percent"`
	PreheatTempC      float64   `json:"preheat_temp_c,omitempty"`
	ChargeTempC       float64   `json:"charge_temp_c,omitempty"`
	FirstCrackSeconds int       `json:"first_crack_seconds,omitempty"`
	FirstCrackTempC   float64   `json:"first_crack_temp_c,omitempty"`
	DropTempC         float64   `json:"drop_temp_c,omitempty"`
	TotalRoastSeconds int       `json:"total_roast_seconds,omitempty"`
	AmbientTempC      float64   `json:"ambient_temp_c,omitempty"`
	Humidity          float64   `json:"humidity,omitempty"`
	GuessedLevel      lot.Level `json:"guessed_level"`
}

// flexFloat unmarshals a number that may be JSON-encoded as a string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("roastimport: not a number: %q", s)
	}
	*f = flexFloat(v)
	return nil
}

// rawRoast mirrors the RoastTime file schema.
type rawRoast struct {
	UID                  string    `json:"uid"`
	RoastName            string    `json:"roastName"`
	DateTime             int64     `json:"dateTime"`
	WeightGreen          flexFloat `json:"weightGreen"`
	WeightRoasted        flexFloat `json:"weightRoasted"`
	PreheatTemperature   flexFloat `json:"preheatTemperature"`
	ChargeTemperature    flexFloat `json:"chargeTemperature"`
	IndexFirstCrackStart int       `json:"indexFirstCrackStart"`
	SampleRate           int       `json:"sampleRate"`
	FirstCrackTemp       flexFloat `json:"firstCrackTemperature"`
	DropTemperature      flexFloat `json:"dropTemperature"`
	TotalRoastTime       flexFloat `json:"totalRoastTime"`
	AmbientTemperature   flexFloat `json:"ambientTemperature"`
	Humidity             flexFloat `json:"humidity"`
}

// Parse decodes one RoastTime export.
func Parse(data []byte) (Roast, error) {
	var raw rawRoast
	if err := json.Unmarshal(data, &raw); err != nil {
		return Roast{}, fmt.Errorf("roastimport: decode: %w", err)
	}
	if raw.UID == "" {
		return Roast{}, shared.Validationf("uid", "is required")
	}

	r := Roast{
		UID:               raw.UID,
		Name:              strings.TrimSpace(raw.RoastName),
		GreenWeightG:      float64(raw.WeightGreen),
		RoastedWeightG:    float64(raw.WeightRoasted),
		PreheatTempC:      float64(raw.PreheatTemperature),
		ChargeTempC:       float64(raw.ChargeTemperature),
		FirstCrackTempC:   float64(raw.FirstCrackTemp),
		DropTempC:         float64(raw.DropTemperature),
		TotalRoastSeconds: int(raw.TotalRoastTime),
		AmbientTempC:      float64(raw.AmbientTemperature),
		Humidity:          float64(raw.Humidity),
	}
	if raw.DateTime > 0 {
		r.RoastedAt = time.UnixMilli(raw.DateTime).UTC()
	}
	if raw.SampleRate > 0 && raw.IndexFirstCrackStart > 0 {
		r.FirstCrackSeconds = raw.IndexFirstCrackStart / raw.SampleRate
	}
	if r.GreenWeightG > 0 {
		r.WeightLossPercent = (r.GreenWeightG - r.RoastedWeightG) / r.GreenWeightG * 100
	}
	r.GuessedLevel = GuessLevel(r.Name, r.WeightLossPercent, r.DropTempC)
	return r, nil
}

// GuessLevel estimates the roast level. An explicit level word in the
// roast name wins; otherwise weight loss and drop temperature decide.
func GuessLevel(name string, weightLossPercent, dropTempC float64) lot.Level {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "világos"):
		return lot.LevelLight
	case strings.Contains(lower, "sötét"):
		return lot.LevelDark
	case strings.Contains(lower, "közép"), strings.Contains(lower, "közepes"):
		return lot.LevelMedium
	}
	switch {
	case weightLossPercent > 0 && weightLossPercent < 13, dropTempC > 0 && dropTempC < 210:
		return lot.LevelLight
	case weightLossPercent > 15, dropTempC > 220:
		return lot.LevelDark
	default:
		return lot.LevelMedium
	}
}

// Importer reads RoastTime exports from a directory.
type Importer struct {
	dir string
}

// NewImporter builds Importer.
func NewImporter(dir string) *Importer {
	return &Importer{dir: dir}
}

// LoadAll parses every .json file in the directory, newest roast first.
// Files that fail to parse are skipped and reported alongside the result.
func (im *Importer) LoadAll() ([]Roast, []error) {
	entries, err := os.ReadDir(im.dir)
	if err != nil {
		return nil, []error{fmt.Errorf("roastimport: read dir: %w", err)}
	}
	var (
		roasts []Roast
		errs   []error
	)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(im.dir, entry.Name()))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r, err := Parse(data)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", entry.Name(), err))
			continue
		}
		roasts = append(roasts, r)
	}
	sort.Slice(roasts, func(i, j int) bool { return roasts[i].RoastedAt.After(roasts[j].RoastedAt) })
	return roasts, errs
}

// ByUID loads one roast by its RoastTime uid.
func (im *Importer) ByUID(uid string) (Roast, error) {
	roasts, _ := im.LoadAll()
	for _, r := range roasts {
		if r.UID == uid {
			return r, nil
		}
	}
	return Roast{}, &shared.NotFoundError{Entity: "roasttime export", Key: uid}
}
