package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wytcherly/foreman/internal/parser"
	"github.com/wytcherly/foreman/pkg/core"
)

// Scenario is a headless simulation setup read from YAML.
type Scenario struct {
	Foreman  ScenarioForeman   `yaml:"foreman"`
	Workers  []ScenarioWorker  `yaml:"workers"`
	Sites    []ScenarioSite    `yaml:"sites"`
	Androids []ScenarioAndroid `yaml:"androids"`
	// Duration is the simulated time; Step the tick delta.
	Duration time.Duration `yaml:"duration"`
	Step     time.Duration `yaml:"step"`
	// WorkTime is how long a worker spends at a site that sets no interaction time.
	WorkTime time.Duration `yaml:"workTime"`
}

type ScenarioForeman struct {
	Position      [3]float64    `yaml:"position"`
	CheckInterval time.Duration `yaml:"checkInterval"`
	WaitDuration  time.Duration `yaml:"waitDuration"`
	RequireWork   *bool         `yaml:"requireWorkToPlan"`
}

type ScenarioWorker struct {
	ID       string     `yaml:"id"`
	Name     string     `yaml:"name"`
	Tags     []string   `yaml:"tags"`
	Position [3]float64 `yaml:"position"`
}

type ScenarioSite struct {
	ID       string     `yaml:"id"`
	Name     string     `yaml:"name"`
	Task     string     `yaml:"task"`
	Position [3]float64 `yaml:"position"`
	// Seconds of work; zero uses the scenario WorkTime.
	Interaction float64 `yaml:"interaction"`
	Offline     bool    `yaml:"offline"`
}

// ScenarioAndroid gives a worker a condition model. Power drains over the
// run; a disabled android stops taking work.
type ScenarioAndroid struct {
	ID           string   `yaml:"id"`
	Capabilities []string `yaml:"capabilities"`
	Power        float64  `yaml:"power"`
	DrainRate    float64  `yaml:"drainRate"`
	Seed         int64    `yaml:"seed"`
}

func loadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return parseScenario(data)
}

func parseScenario(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	if err := s.normalize(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Scenario) normalize() error {
	if s.Duration <= 0 {
		s.Duration = time.Minute
	}
	if s.Step <= 0 {
		s.Step = 100 * time.Millisecond
	}
	if s.WorkTime <= 0 {
		s.WorkTime = 5 * time.Second
	}
	if len(s.Workers) == 0 {
		return errors.New("scenario: no workers")
	}
	seen := make(map[string]bool)
	for _, w := range s.Workers {
		if w.ID == "" {
			return errors.New("scenario: worker without id")
		}
		if seen[w.ID] {
			return fmt.Errorf("scenario: duplicate worker %q", w.ID)
		}
		seen[w.ID] = true
	}
	for _, site := range s.Sites {
		if site.ID == "" {
			return errors.New("scenario: site without id")
		}
		if _, err := parser.ParseTaskType(site.Task); err != nil {
			return fmt.Errorf("scenario: site %q: %w", site.ID, err)
		}
	}
	for _, a := range s.Androids {
		if !seen[a.ID] {
			return fmt.Errorf("scenario: android %q has no worker", a.ID)
		}
	}
	return nil
}

func position(p [3]float64) core.Position3D {
	return core.Position3D{X: p[0], Y: p[1], Z: p[2]}
}
