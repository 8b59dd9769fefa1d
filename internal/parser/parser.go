// Package parser turns raw host command arguments into domain values.
// It performs no I/O and holds no state beyond a logger.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/wytcherly/foreman/internal/geo"
	"github.com/wytcherly/foreman/internal/util"
	"github.com/wytcherly/foreman/pkg/core"
)

var (
	// ErrMissingArgs is returned when a command carries fewer args than it needs.
	ErrMissingArgs = errors.New("missing arguments")
	// ErrNotFinite is returned for NaN and infinite numeric args.
	ErrNotFinite = errors.New("number is not finite")
)

// maxSeconds is the largest seconds value a time.Duration can hold.
const maxSeconds = float64(math.MaxInt64) / float64(time.Second)

func need(args []string, n int) error {
	if len(args) < n {
		return fmt.Errorf("%w: want %d, got %d", ErrMissingArgs, n, len(args))
	}
	return nil
}

// parseIntFromFloat parses a string that may be an integer ("32") or float ("32.00") into int64.
// The host scripting language has no integer type and may serialize numbers as floats.
func parseIntFromFloat(s string) (int64, error) {
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if f != float64(int64(f)) {
		return 0, fmt.Errorf("parseIntFromFloat: %q is not a valid int64", s)
	}
	return int64(f), nil
}

// optionalFloat parses s, returning nil when s is empty.
func optionalFloat(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := ParseFloat(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// ParseFloat parses a single finite numeric arg.
func ParseFloat(s string) (float64, error) {
	v, err := strconv.ParseFloat(util.CleanArg(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid number %q: %w", s, ErrNotFinite)
	}
	return v, nil
}

// ParseSeconds parses a fractional seconds value into a duration.
func ParseSeconds(s string) (time.Duration, error) {
	v, err := ParseFloat(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative duration %v", v)
	}
	if v > maxSeconds {
		return 0, fmt.Errorf("duration %v out of range", v)
	}
	return time.Duration(v * float64(time.Second)), nil
}

// ParseBool accepts true/false and 1/0.
func ParseBool(s string) (bool, error) {
	return strconv.ParseBool(strings.ToLower(util.CleanArg(s)))
}

// ParsePosition parses "[x,y,z]" or "x,y,z".
func ParsePosition(s string) (core.Position3D, error) {
	return geo.Position3DFromString(util.CleanArg(s))
}

// ParseTags decodes a JSON string array. An empty arg yields no tags.
func ParseTags(s string) ([]string, error) {
	s = util.CleanArg(s)
	if s == "" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(s), &tags); err != nil {
		return nil, fmt.Errorf("invalid tag list: %w", err)
	}
	return tags, nil
}

// ParseCapabilities decodes a JSON array of capability names.
func ParseCapabilities(s string) (core.CapabilitySet, error) {
	names, err := ParseTags(s)
	if err != nil {
		return nil, err
	}
	set := core.NewCapabilitySet()
	for _, n := range names {
		c, err := core.ParseCapability(n)
		if err != nil {
			return nil, err
		}
		set[c] = struct{}{}
	}
	return set, nil
}

// ParseTaskType accepts "Task.Build" or "Build" (case-insensitive).
func ParseTaskType(s string) (core.TaskType, error) {
	s = util.CleanArg(s)
	for _, t := range []core.TaskType{core.TaskBuild, core.TaskHaul, core.TaskPatrol, core.TaskCut} {
		if strings.EqualFold(string(t), s) || strings.EqualFold(strings.TrimPrefix(string(t), "Task."), s) {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// AndroidSpec describes a newly registered android.
type AndroidSpec struct {
	ID   string
	Base core.CapabilitySet
	Seed int64
	// PowerLevel and DrainRate are nil when the host left them out.
	PowerLevel *float64
	DrainRate  *float64
}

// Parser provides pure []string -> domain conversion.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new parser with only a logger dependency
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// ParseAndroidNew parses id, base caps (JSON array), seed, power, drainRate.
// Seed, power and drain rate may be omitted or empty.
func (p *Parser) ParseAndroidNew(args []string) (AndroidSpec, error) {
	if err := need(args, 2); err != nil {
		return AndroidSpec{}, err
	}
	util.CleanArgs(args)

	spec := AndroidSpec{ID: args[0]}
	if spec.ID == "" {
		return spec, errors.New("android id is empty")
	}
	base, err := ParseCapabilities(args[1])
	if err != nil {
		return spec, err
	}
	spec.Base = base

	if len(args) > 2 && args[2] != "" {
		if spec.Seed, err = parseIntFromFloat(args[2]); err != nil {
			return spec, fmt.Errorf("invalid seed: %w", err)
		}
	}
	if len(args) > 3 {
		if spec.PowerLevel, err = optionalFloat(args[3]); err != nil {
			return spec, fmt.Errorf("invalid power level: %w", err)
		}
	}
	if len(args) > 4 {
		if spec.DrainRate, err = optionalFloat(args[4]); err != nil {
			return spec, fmt.Errorf("invalid drain rate: %w", err)
		}
	}

	p.logger.Debug("Parsed android", "id", spec.ID, "caps", len(spec.Base))
	return spec, nil
}

// ParseSubsystemUpdate parses id, subsystem, status.
func (p *Parser) ParseSubsystemUpdate(args []string) (string, core.Subsystem, core.SubsystemStatus, error) {
	if err := need(args, 3); err != nil {
		return "", 0, 0, err
	}
	util.CleanArgs(args)

	sub, err := core.ParseSubsystem(args[1])
	if err != nil {
		return "", 0, 0, err
	}
	status, err := core.ParseSubsystemStatus(args[2])
	if err != nil {
		return "", 0, 0, err
	}
	return args[0], sub, status, nil
}

// ParseWorkerUpsert parses id, tags (JSON array), state, position and an optional name.
func (p *Parser) ParseWorkerUpsert(args []string) (core.Worker, error) {
	if err := need(args, 4); err != nil {
		return core.Worker{}, err
	}
	util.CleanArgs(args)

	w := core.Worker{ID: args[0]}
	var err error
	if w.Tags, err = ParseTags(args[1]); err != nil {
		return w, err
	}
	if w.State, err = core.ParseWorkerState(args[2]); err != nil {
		return w, err
	}
	if w.Location, err = ParsePosition(args[3]); err != nil {
		return w, err
	}
	if len(args) > 4 {
		w.Name = args[4]
	}
	return w, nil
}

// ParseSiteUpsert parses id, taskType, position, operational and an optional name.
func (p *Parser) ParseSiteUpsert(args []string) (core.WorkSite, error) {
	if err := need(args, 4); err != nil {
		return core.WorkSite{}, err
	}
	util.CleanArgs(args)

	s := core.WorkSite{ID: args[0]}
	var err error
	if s.TaskType, err = ParseTaskType(args[1]); err != nil {
		return s, err
	}
	if s.Location, err = ParsePosition(args[2]); err != nil {
		return s, err
	}
	if s.Operational, err = ParseBool(args[3]); err != nil {
		return s, fmt.Errorf("invalid operational flag: %w", err)
	}
	if len(args) > 4 {
		s.Name = args[4]
	}
	return s, nil
}

// wireEntity is a perceived entity as the host serializes it.
type wireEntity struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Tags          []string  `json:"tags"`
	Distance      float64   `json:"distance"`
	Location      []float64 `json:"location"`
	Material      string    `json:"material"`
	SinceLastSeen float64   `json:"sinceLastSeen"`
	Visible       *bool     `json:"visible"`
}

// ParsePerception decodes a JSON array of perceived entities. Entities
// without an explicit visible flag are treated as visible.
func (p *Parser) ParsePerception(args []string) ([]core.PerceivedEntity, error) {
	if err := need(args, 1); err != nil {
		return nil, err
	}
	raw := util.CleanArg(args[0])
	var wire []wireEntity
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("invalid perception payload: %w", err)
	}

	out := make([]core.PerceivedEntity, 0, len(wire))
	for i, w := range wire {
		if w.ID == "" && w.Name == "" {
			return nil, fmt.Errorf("perceived entity %d has neither id nor name", i)
		}
		e := core.PerceivedEntity{
			ID:            w.ID,
			Name:          w.Name,
			Tags:          w.Tags,
			Distance:      w.Distance,
			Material:      w.Material,
			SinceLastSeen: time.Duration(w.SinceLastSeen * float64(time.Second)),
			Visible:       w.Visible == nil || *w.Visible,
		}
		switch len(w.Location) {
		case 0:
		case 2, 3:
			e.Location = core.Position3D{X: w.Location[0], Y: w.Location[1]}
			if len(w.Location) == 3 {
				e.Location.Z = w.Location[2]
			}
		default:
			return nil, fmt.Errorf("perceived entity %d: location needs 2 or 3 values", i)
		}
		out = append(out, e)
	}
	return out, nil
}
