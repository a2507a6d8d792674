package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Profile is a named VAD tuning preset
type Profile struct {
	MinSilenceMs int `yaml:"min_silence_ms"`
}

// Profiles maps profile names to presets
type Profiles map[string]Profile

// DefaultProfiles returns the built-in presets
func DefaultProfiles() Profiles {
	return Profiles{
		"fast":      {MinSilenceMs: 80},
		"balanced":  {MinSilenceMs: 500},
		"dictation": {MinSilenceMs: 1000},
	}
}

type profileFile struct {
	Profiles Profiles `yaml:"profiles"`
}

// LoadProfiles reads extra or overriding presets from a YAML file:
//
//	profiles:
//	  meeting:
//	    min_silence_ms: 700
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var file profileFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse profile file %s: %w", path, err)
	}

	for name, p := range file.Profiles {
		if p.MinSilenceMs <= 0 {
			return nil, fmt.Errorf("profile %q: min_silence_ms must be positive", name)
		}
	}

	return file.Profiles, nil
}

// Merge returns a copy of p with other's entries added or replaced
func (p Profiles) Merge(other Profiles) Profiles {
	merged := make(Profiles, len(p)+len(other))
	for name, profile := range p {
		merged[name] = profile
	}
	for name, profile := range other {
		merged[name] = profile
	}
	return merged
}

// MinSilence resolves the silence duration of a named profile
func (p Profiles) MinSilence(name string) (time.Duration, error) {
	profile, ok := p[name]
	if !ok {
		names := make([]string, 0, len(p))
		for n := range p {
			names = append(names, n)
		}
		sort.Strings(names)
		return 0, fmt.Errorf("unknown VAD profile %q (available: %s)", name, strings.Join(names, ", "))
	}
	return time.Duration(profile.MinSilenceMs) * time.Millisecond, nil
}
