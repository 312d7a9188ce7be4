// Package harness runs declarative YAML scenarios against the match
// runtime: seat participants, script events, assert the resulting trace
// against per-step expectations and golden files.
package harness

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/wrightlabs/gamewright/internal/artifact"
)

// Scenario is one declarative test case: a participant seating, an
// opening state, the artifacts to run against, and an event script.
// Participants are keyed by alias; the harness mints concrete ids when
// the match is seated.
type Scenario struct {
	Name         string                    `yaml:"name"`
	Description  string                    `yaml:"description"`
	Seed         int64                     `yaml:"seed"`
	Aliases      []string                  `yaml:"aliases"`
	Shared       map[string]any            `yaml:"shared"`
	Participants map[string]map[string]any `yaml:"participants"`
	Graph        map[string]any            `yaml:"graph"`
	Templates    []map[string]any          `yaml:"templates"`
	Steps        []Step                    `yaml:"steps"`
	Expect       map[string]any            `yaml:"expect"`
}

// Step is one scripted event with optional assertions on the phase
// reached and the number of op failures reported.
type Step struct {
	Event        string `yaml:"event"`
	ExpectPhase  string `yaml:"expectPhase"`
	ExpectErrors int    `yaml:"expectErrors"`
}

// LoadScenario reads and validates one scenario file. Unknown YAML keys
// are rejected so fixture typos fail loudly instead of silently
// dropping an assertion.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scenario: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario %s: %w", path, err)
	}
	if errs := validateScenario(&sc); len(errs) > 0 {
		return nil, fmt.Errorf("scenario %s: %s", path, strings.Join(errs, "; "))
	}
	return &sc, nil
}

func validateScenario(sc *Scenario) []string {
	var errs []string
	if sc.Name == "" {
		errs = append(errs, "name is required")
	}
	if len(sc.Aliases) == 0 {
		errs = append(errs, "at least one alias is required")
	}
	declared := make(map[string]bool, len(sc.Aliases))
	for _, a := range sc.Aliases {
		declared[a] = true
	}
	for a := range sc.Participants {
		if !declared[a] {
			errs = append(errs, fmt.Sprintf("participant %q is not a declared alias", a))
		}
	}
	if sc.Graph == nil {
		errs = append(errs, "graph is required")
	}
	if len(sc.Templates) == 0 {
		errs = append(errs, "at least one template is required")
	}
	if len(sc.Steps) == 0 {
		errs = append(errs, "at least one step is required")
	}
	for i, st := range sc.Steps {
		if st.Event == "" {
			errs = append(errs, fmt.Sprintf("step %d: event is required", i))
		}
	}
	return errs
}

// graph and templates decode through a JSON round-trip: the YAML trees
// carry the same shape as the artifact wire format.

func (sc *Scenario) graph() (artifact.TransitionGraph, error) {
	var g artifact.TransitionGraph
	if err := convert(sc.Graph, &g); err != nil {
		return g, fmt.Errorf("graph: %w", err)
	}
	return g, nil
}

func (sc *Scenario) templates() (artifact.TemplateLibrary, error) {
	var lib artifact.TemplateLibrary
	if err := convert(map[string]any{"templates": sc.Templates}, &lib); err != nil {
		return lib, fmt.Errorf("templates: %w", err)
	}
	return lib, nil
}

func convert(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}
