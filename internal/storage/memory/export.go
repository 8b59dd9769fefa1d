// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// SessionExport is the root JSON structure.
// Rows are positional arrays keyed by seconds since session start.
type SessionExport struct {
	SessionID        string        `json:"sessionId"`
	SessionName      string        `json:"sessionName"`
	ExtensionVersion string        `json:"extensionVersion"`
	StartTime        string        `json:"startTime"`
	EndTime          string        `json:"endTime"`
	Duration         float64       `json:"duration"`
	Androids         []AndroidJSON `json:"androids"`
	Foremen          []ForemanJSON `json:"foremen"`
	Brains           []BrainJSON   `json:"brains"`
}

// AndroidJSON is the condition history of one android
type AndroidJSON struct {
	ID string `json:"id"`
	// [t, old, new, level]
	Power [][]any `json:"power"`
	// [t, subsystem, old, new]
	Subsystems [][]any `json:"subsystems"`
	// [t, [caps...], readiness]
	Capabilities [][]any `json:"capabilities"`
}

// ForemanJSON is everything one dispatch loop emitted
type ForemanJSON struct {
	ID string `json:"id"`
	// [t, worker, site, taskType, distance, [x, y, z]]
	Assignments [][]any `json:"assignments"`
	// [t, from, to, result]
	Transitions [][]any `json:"transitions"`
	// [t, total, idle, active, nearby]
	Reports [][]any `json:"reports"`
}

// BrainJSON is the decision log of one vision brain
type BrainJSON struct {
	ID string `json:"id"`
	// [t, command, snap, summary, targetFound, targetTag, action]
	Decisions [][]any `json:"decisions"`
}

// exportJSON writes the session data to a (possibly compressed) JSON file
func (b *Backend) exportJSON() error {
	export := b.buildExport()

	// Build filename
	name := strings.ReplaceAll(b.session.Name, " ", "_")
	name = strings.ReplaceAll(name, ":", "_")
	if name == "" {
		name = "session"
	}
	timestamp := b.session.StartTime.Format("20060102_150405")

	filename := fmt.Sprintf("%s_%s.json", name, timestamp)
	compression := ""
	if b.cfg.CompressOutput {
		compression = strings.ToLower(b.cfg.Compression)
		switch compression {
		case "zstd":
			filename += ".zst"
		default:
			compression = "gzip"
			filename += ".gz"
		}
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if err := writeExport(outputPath, compression, export); err != nil {
		return err
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() SessionExport {
	start := b.session.StartTime
	at := func(t time.Time) float64 {
		return roundMillis(t.Sub(start).Seconds())
	}

	export := SessionExport{
		SessionID:        b.session.ID,
		SessionName:      b.session.Name,
		ExtensionVersion: b.session.ExtensionVersion,
		StartTime:        start.UTC().Format(time.RFC3339),
		EndTime:          b.endTime.UTC().Format(time.RFC3339),
		Duration:         at(b.endTime),
		Androids:         make([]AndroidJSON, 0, len(b.androids)),
		Foremen:          make([]ForemanJSON, 0, len(b.foremen)),
		Brains:           make([]BrainJSON, 0, len(b.brains)),
	}

	for _, id := range sortedKeys(b.androids) {
		r := b.androids[id]
		a := AndroidJSON{
			ID:           id,
			Power:        make([][]any, 0, len(r.PowerChanges)),
			Subsystems:   make([][]any, 0, len(r.SubsystemChanges)),
			Capabilities: make([][]any, 0, len(r.CapabilityChanges)),
		}
		for _, e := range r.PowerChanges {
			a.Power = append(a.Power, []any{at(e.Time), e.Old.String(), e.New.String(), e.PowerLevel})
		}
		for _, e := range r.SubsystemChanges {
			a.Subsystems = append(a.Subsystems, []any{at(e.Time), e.Subsystem.String(), e.Old.String(), e.New.String()})
		}
		for _, e := range r.CapabilityChanges {
			caps := make([]string, len(e.Capabilities))
			for i, c := range e.Capabilities {
				caps[i] = string(c)
			}
			a.Capabilities = append(a.Capabilities, []any{at(e.Time), caps, e.Readiness.String()})
		}
		export.Androids = append(export.Androids, a)
	}

	for _, id := range sortedKeys(b.foremen) {
		r := b.foremen[id]
		f := ForemanJSON{
			ID:          id,
			Assignments: make([][]any, 0, len(r.Assignments)),
			Transitions: make([][]any, 0, len(r.Transitions)),
			Reports:     make([][]any, 0, len(r.Reports)),
		}
		for _, e := range r.Assignments {
			f.Assignments = append(f.Assignments, []any{
				at(e.Time), e.WorkerID, e.SiteID, string(e.TaskType), roundMillis(e.Distance), e.Location.Array(),
			})
		}
		for _, e := range r.Transitions {
			f.Transitions = append(f.Transitions, []any{at(e.Time), e.From, e.To, e.Result})
		}
		for _, e := range r.Reports {
			f.Reports = append(f.Reports, []any{at(e.Time), e.Total, e.Idle, e.Active, e.Nearby})
		}
		export.Foremen = append(export.Foremen, f)
	}

	for _, id := range sortedKeys(b.brains) {
		r := b.brains[id]
		bj := BrainJSON{ID: id, Decisions: make([][]any, 0, len(r.Decisions))}
		for _, d := range r.Decisions {
			bj.Decisions = append(bj.Decisions, []any{
				at(d.Time), d.Command, d.Snap, d.Decision.Summary, d.Decision.TargetFound, d.Decision.TargetTag, d.Decision.Action,
			})
		}
		export.Brains = append(export.Brains, bj)
	}

	return export
}

func writeExport(path, compression string, data SessionExport) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	var w io.WriteCloser
	switch compression {
	case "gzip":
		w = gzip.NewWriter(f)
	case "zstd":
		zw, err := zstd.NewWriter(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd writer: %w", err)
		}
		w = zw
	default:
		return json.NewEncoder(f).Encode(data)
	}

	if err := json.NewEncoder(w).Encode(data); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to encode export: %w", err)
	}
	return w.Close()
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func roundMillis(v float64) float64 {
	return math.Round(v*1000) / 1000
}
