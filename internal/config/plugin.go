// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/relabs-tech/controller_manager/internal/controlmode"
)

// ModeEntry is one control mode in a plugin file, given either by field
// names or by its packed code.
type ModeEntry struct {
	ControlMode    string `yaml:"control_mode"`
	YawMode        string `yaml:"yaw_mode"`
	ReferenceFrame string `yaml:"reference_frame"`
	Code           *uint8 `yaml:"code"`
}

// pluginFile is the YAML layout of a plugin configuration file.
type pluginFile struct {
	InputControlModes   []ModeEntry        `yaml:"input_control_modes"`
	OutputControlModes  []ModeEntry        `yaml:"output_control_modes"`
	UseBypass           *bool              `yaml:"use_bypass"`
	PreferredOutputMode *uint8             `yaml:"preferred_output_mode"`
	Parameters          map[string]float64 `yaml:"parameters"`
}

// Plugin is the resolved configuration of one control law.
type Plugin struct {
	InputModes  []controlmode.Code
	OutputModes []controlmode.Code
	Parameters  map[string]float64

	// Overrides of the process configuration; nil keeps the process value.
	UseBypass           *bool
	PreferredOutputMode *controlmode.Code
}

// LoadPlugin reads and resolves a plugin YAML file.
func LoadPlugin(path string) (*Plugin, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin config: %w", err)
	}
	p, err := ParsePlugin(data)
	if err != nil {
		return nil, fmt.Errorf("plugin config %s: %w", path, err)
	}
	return p, nil
}

// ParsePlugin resolves a plugin YAML document. Unknown keys are rejected.
func ParsePlugin(data []byte) (*Plugin, error) {
	var f pluginFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if len(f.InputControlModes) == 0 {
		return nil, fmt.Errorf("input_control_modes must not be empty")
	}
	if len(f.OutputControlModes) == 0 {
		return nil, fmt.Errorf("output_control_modes must not be empty")
	}

	in, err := resolveModes("input_control_modes", f.InputControlModes)
	if err != nil {
		return nil, err
	}
	out, err := resolveModes("output_control_modes", f.OutputControlModes)
	if err != nil {
		return nil, err
	}

	p := &Plugin{
		InputModes:  in,
		OutputModes: out,
		Parameters:  f.Parameters,
		UseBypass:   f.UseBypass,
	}
	if f.PreferredOutputMode != nil {
		c := controlmode.Code(*f.PreferredOutputMode)
		p.PreferredOutputMode = &c
	}
	return p, nil
}

func resolveModes(field string, entries []ModeEntry) ([]controlmode.Code, error) {
	codes := make([]controlmode.Code, 0, len(entries))
	for i, e := range entries {
		if e.Code != nil {
			if e.ControlMode != "" || e.YawMode != "" || e.ReferenceFrame != "" {
				return nil, fmt.Errorf("%s[%d]: code and field names are exclusive", field, i)
			}
			codes = append(codes, controlmode.Code(*e.Code))
			continue
		}
		m, err := controlmode.ParseMode(e.ControlMode, e.YawMode, e.ReferenceFrame)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", field, i, err)
		}
		codes = append(codes, m.Code())
	}
	return codes, nil
}
