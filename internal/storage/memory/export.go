package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ktgames/mining/internal/config"
	"github.com/ktgames/mining/pkg/core"
)

// Report is the root JSON structure of an exported session.
type Report struct {
	ExtensionVersion string         `json:"extensionVersion"`
	SessionUUID      string         `json:"sessionUuid"`
	WorldName        string         `json:"worldName"`
	Tag              string         `json:"tag"`
	StartTime        time.Time      `json:"startTime"`
	EndTime          time.Time      `json:"endTime"`
	Duration         float64        `json:"duration"`
	Seed             int64          `json:"seed"`
	UseChaos         bool           `json:"useChaos"`
	Spots            []SpotJSON     `json:"spots"`
	Depleted         map[string]int `json:"depleted"`
	Events           [][]any        `json:"events"`
}

// SpotJSON summarizes one spot over the session.
type SpotJSON struct {
	ID          uint32           `json:"id"`
	Name        string           `json:"name"`
	Position    [3]float64       `json:"position"`
	Generations []GenerationJSON `json:"generations"`
	Depletions  int              `json:"depletions"`
}

// GenerationJSON is one type draw of a spot.
type GenerationJSON struct {
	Generation  uint32  `json:"generation"`
	Time        float64 `json:"time"`
	Type        string  `json:"type"`
	Seed        int64   `json:"seed"`
	RandomValue float64 `json:"randomValue"`
	Fallback    bool    `json:"fallback"`
}

// BuildReport turns a session history into its export form. Event times are
// seconds since the session start.
func BuildReport(h core.SessionHistory) Report {
	s := h.Session
	r := Report{
		ExtensionVersion: s.ExtensionVersion,
		SessionUUID:      s.UUID,
		WorldName:        s.WorldName,
		Tag:              s.Tag,
		StartTime:        s.StartTime,
		EndTime:          s.EndTime,
		Seed:             s.Seed,
		UseChaos:         s.UseChaos,
		Spots:            make([]SpotJSON, 0),
		Depleted:         make(map[string]int),
		Events:           make([][]any, 0),
	}
	if !s.EndTime.IsZero() {
		r.Duration = s.EndTime.Sub(s.StartTime).Seconds()
	}
	offset := func(t time.Time) float64 {
		if t.IsZero() {
			return 0
		}
		return t.Sub(s.StartTime).Seconds()
	}

	spots := make(map[core.SpotID]*SpotJSON)
	spotFor := func(id core.SpotID) *SpotJSON {
		sp, ok := spots[id]
		if !ok {
			sp = &SpotJSON{ID: uint32(id), Generations: make([]GenerationJSON, 0)}
			spots[id] = sp
		}
		return sp
	}

	type timed struct {
		at    float64
		order int
		row   []any
	}
	var events []timed
	add := func(at float64, row ...any) {
		events = append(events, timed{at: at, order: len(events), row: append([]any{at}, row...)})
	}

	// Format: [time, "generation", spotId, generation, type, fallback]
	for _, g := range h.Generations {
		sp := spotFor(g.SpotID)
		if sp.Name == "" {
			sp.Name = g.SpotName
			sp.Position = [3]float64{g.Position.X, g.Position.Y, g.Position.Z}
		}
		sp.Generations = append(sp.Generations, GenerationJSON{
			Generation:  g.Generation,
			Time:        offset(g.Time),
			Type:        g.MineralType.String(),
			Seed:        g.Seed,
			RandomValue: g.RandomValue,
			Fallback:    g.Fallback,
		})
		add(offset(g.Time), "generation", uint32(g.SpotID), g.Generation, g.MineralType.String(), g.Fallback)
	}

	// Format: [time, "conversion", spotId, generation, kind, [x, y, z]]
	for _, c := range h.Conversions {
		add(offset(c.Time), "conversion", uint32(c.SpotID), c.Generation, c.Kind.String(),
			[]float64{c.Position.X, c.Position.Y, c.Position.Z})
	}

	// Format: [time, "progress", spotId, generation, accumulated, total]
	for _, p := range h.Progress {
		add(offset(p.Time), "progress", uint32(p.SpotID), p.Generation, p.Accumulated, p.Total)
	}

	// Format: [time, "depletion", spotId, generation, type, respawnAt]
	for _, d := range h.Depletions {
		spotFor(d.SpotID).Depletions++
		r.Depleted[d.MineralType.String()]++
		add(offset(d.Time), "depletion", uint32(d.SpotID), d.Generation, d.MineralType.String(), offset(d.RespawnAt))
	}

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].at == events[j].at {
			return events[i].order < events[j].order
		}
		return events[i].at < events[j].at
	})
	for _, e := range events {
		r.Events = append(r.Events, e.row)
	}

	for _, sp := range spots {
		r.Spots = append(r.Spots, *sp)
	}
	sort.Slice(r.Spots, func(i, j int) bool { return r.Spots[i].ID < r.Spots[j].ID })
	return r
}

// FileName returns the report file name for a session.
func FileName(s core.Session, compress bool) string {
	name := strings.NewReplacer(" ", "_", ":", "_", "/", "_").Replace(s.WorldName)
	if name == "" {
		name = "session"
	}
	filename := fmt.Sprintf("%s_%s", name, s.StartTime.Format("20060102_150405"))
	if compress {
		return filename + ".json.gz"
	}
	return filename + ".json"
}

// Export builds the report for h and writes it under cfg.OutputDir,
// returning the written path.
func Export(cfg config.MemoryConfig, h core.SessionHistory) (string, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}
	outputPath := filepath.Join(cfg.OutputDir, FileName(h.Session, cfg.CompressOutput))
	if err := WriteReport(outputPath, BuildReport(h), cfg.CompressOutput); err != nil {
		return "", err
	}
	return outputPath, nil
}

// WriteReport writes r as JSON to path, gzipped when compress is set.
func WriteReport(path string, r Report, compress bool) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	if !compress {
		if err := json.NewEncoder(f).Encode(r); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return f.Close()
	}

	gz := gzip.NewWriter(f)
	if err := json.NewEncoder(gz).Encode(r); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return f.Close()
}
