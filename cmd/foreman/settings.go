package main

import (
	"fmt"

	"github.com/wytcherly/foreman/internal/brain"
	"github.com/wytcherly/foreman/internal/config"
	"github.com/wytcherly/foreman/internal/foreman"
	"github.com/wytcherly/foreman/internal/llm"
	"github.com/wytcherly/foreman/internal/parser"
)

// loopConfig maps the foreman config section onto the dispatch loop.
// Zero durations keep the loop defaults.
func loopConfig(c config.ForemanConfig) foreman.Config {
	cfg := foreman.DefaultConfig()
	if c.CheckInterval > 0 {
		cfg.CheckInterval = c.CheckInterval
	}
	if c.WaitDuration > 0 {
		cfg.WaitDuration = c.WaitDuration
	}
	if c.ScanInterval > 0 {
		cfg.ScanInterval = c.ScanInterval
	}
	if c.SurveyRadius > 0 {
		cfg.SurveyRadius = c.SurveyRadius
	}
	if c.ScanCommand != "" {
		cfg.ScanCommand = c.ScanCommand
	}
	cfg.TriggerScan = c.TriggerScan
	cfg.RequireWorkToPlan = c.RequireWorkToPlan
	cfg.MonitorCue = c.MonitorCue
	cfg.WaitCue = c.WaitCue
	cfg.RallyCue = c.RallyCue
	return cfg
}

// brainConfig maps the brain config section onto the vision brain.
func brainConfig(c config.BrainConfig) (brain.Config, error) {
	cfg := brain.Config{
		SnapsPerScan:     c.SnapsPerScan,
		YawStep:          c.YawStep,
		SnapInterval:     c.SnapInterval,
		ArrivalDistance:  c.ArrivalDistance,
		AcceptanceRadius: c.AcceptanceRadius,
		PriorityTag:      c.PriorityTag,
		MaxRescans:       c.MaxRescans,
	}
	if c.Destination != "" {
		dest, err := parser.ParsePosition(c.Destination)
		if err != nil {
			return brain.Config{}, fmt.Errorf("brain.destination: %w", err)
		}
		cfg.Destination = dest
	}
	return cfg, nil
}

func llmOptions(c config.BrainConfig) []llm.Option {
	var opts []llm.Option
	if c.Model != "" {
		opts = append(opts, llm.WithModel(c.Model))
	}
	if c.Temperature > 0 {
		opts = append(opts, llm.WithTemperature(c.Temperature))
	}
	if c.MaxTokens > 0 {
		opts = append(opts, llm.WithMaxTokens(c.MaxTokens))
	}
	if c.Timeout > 0 {
		opts = append(opts, llm.WithTimeout(c.Timeout))
	}
	return opts
}
