// Package cogmap persists the foreman's cognitive map: a snapshot of every
// entity it has perceived, written as JSON and read back as a sensor readout.
package cogmap

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wytcherly/foreman/pkg/core"
)

const (
	NoSensorData    = "NO SENSOR DATA"
	NoSensorTargets = "NO SENSOR TARGETS"
)

// DefaultPath returns the map location under baseDir.
func DefaultPath(baseDir string) string {
	return filepath.Join(baseDir, "Saved", "Cognitive", "CognitiveMap.json")
}

// Entry is one perceived entity. RawValue holds input that could not be
// decoded as an entry.
type Entry struct {
	ActorName string   `json:"ActorName"`
	Tags      []string `json:"Tags,omitempty"`
	Distance  float64  `json:"Distance"`
	Location  string   `json:"Location,omitempty"`
	Material  string   `json:"Material,omitempty"`
	RawValue  string   `json:"RawValue,omitempty"`
}

// Map is the document written to disk.
type Map struct {
	SeenEntries  []Entry `json:"SeenEntries"`
	Count        int     `json:"Count"`
	UpdatedAtUtc string  `json:"UpdatedAtUtc"`
}

func newMap(entries []Entry, now time.Time) Map {
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].ActorName < entries[j].ActorName })
	if entries == nil {
		entries = []Entry{}
	}
	return Map{
		SeenEntries:  entries,
		Count:        len(entries),
		UpdatedAtUtc: now.UTC().Format(time.RFC3339),
	}
}

// FromPerception builds a map keyed by entity name. A later entity with the
// same name replaces an earlier one.
func FromPerception(entities []core.PerceivedEntity, now time.Time) Map {
	byName := make(map[string]Entry, len(entities))
	for _, e := range entities {
		name := e.Name
		if name == "" {
			name = e.ID
		}
		byName[name] = Entry{
			ActorName: name,
			Tags:      append([]string(nil), e.Tags...),
			Distance:  e.Distance,
			Location:  e.Location.String(),
			Material:  e.Material,
		}
	}
	entries := make([]Entry, 0, len(byName))
	for _, entry := range byName {
		entries = append(entries, entry)
	}
	return newMap(entries, now)
}

// FromRaw builds a map from name to JSON-encoded entry, as sent by the host.
// Values that do not decode are kept verbatim in RawValue.
func FromRaw(raw map[string]string, now time.Time) Map {
	entries := make([]Entry, 0, len(raw))
	for name, value := range raw {
		entries = append(entries, decodeEntry(name, []byte(value)))
	}
	return newMap(entries, now)
}

func decodeEntry(name string, raw []byte) Entry {
	var e Entry
	if err := json.Unmarshal(raw, &e); err == nil {
		if e.ActorName == "" {
			e.ActorName = name
		}
		return e
	}

	// Salvage the name from a partially valid object.
	var loose map[string]any
	if err := json.Unmarshal(raw, &loose); err == nil {
		if s, ok := loose["ActorName"].(string); ok && s != "" {
			name = s
		}
	}
	return Entry{ActorName: name, RawValue: string(raw)}
}

// Save writes m to path atomically, creating parent directories.
func Save(path string, m Map) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create map directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode map: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".cogmap-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write map: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close map: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace map: %w", err)
	}
	return nil
}

// Load reads the map at path. Entries that do not decode are returned with
// their raw JSON in RawValue.
func Load(path string) (Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Map{}, err
	}

	var root struct {
		SeenEntries  []json.RawMessage `json:"SeenEntries"`
		UpdatedAtUtc string            `json:"UpdatedAtUtc"`
	}
	if err := json.Unmarshal(data, &root); err != nil {
		return Map{}, fmt.Errorf("failed to decode map: %w", err)
	}
	if root.SeenEntries == nil {
		return Map{}, errors.New("map has no SeenEntries")
	}

	m := Map{SeenEntries: make([]Entry, 0, len(root.SeenEntries)), UpdatedAtUtc: root.UpdatedAtUtc}
	for i, raw := range root.SeenEntries {
		m.SeenEntries = append(m.SeenEntries, decodeEntry(fmt.Sprintf("#%d", i+1), raw))
	}
	m.Count = len(m.SeenEntries)
	return m, nil
}

// Readout renders the map at path for display. It returns the number of
// entries listed.
func Readout(path string) (string, int) {
	m, err := Load(path)
	if err != nil {
		return NoSensorData, 0
	}
	return Format(m), len(m.SeenEntries)
}

// Format renders m as a sensor readout.
func Format(m Map) string {
	if len(m.SeenEntries) == 0 {
		return NoSensorTargets
	}
	var lines []string
	for i, e := range m.SeenEntries {
		lines = append(lines,
			fmt.Sprintf("[%02d] %s", i+1, e.ActorName),
			"  TAGS: "+orDash(strings.Join(e.Tags, ", ")),
			fmt.Sprintf("  DIST: %.1f", e.Distance),
			"  LOC : "+orDash(e.Location),
			"  MAT : "+orDash(e.Material),
			"",
		)
	}
	return strings.Join(lines, "\n")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// Writer saves a fresh map for every perception update.
type Writer struct {
	mu   sync.Mutex
	path string
}

// NewWriter creates a writer for path.
func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Path returns the file the writer saves to.
func (w *Writer) Path() string { return w.path }

// Update replaces the map on disk with entities.
func (w *Writer) Update(entities []core.PerceivedEntity, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Save(w.path, FromPerception(entities, at))
}

// SaveRaw replaces the map on disk with host-provided entries.
func (w *Writer) SaveRaw(raw map[string]string, at time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Save(w.path, FromRaw(raw, at))
}

// Exists reports whether a map has been written.
func (w *Writer) Exists() bool {
	_, err := os.Stat(w.path)
	return !errors.Is(err, fs.ErrNotExist)
}
