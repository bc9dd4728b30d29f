package domain

import (
	"fmt"
	"time"
)

// StepKind is the closed set of step kinds a PipelineConfig may wire
// together.
type StepKind string

const (
	StepDocumentLoader     StepKind = "DOCUMENT_LOADER"
	StepLineSplitter       StepKind = "LINE_SPLITTER"
	StepDelimiterSplitter  StepKind = "DELIMITER_SPLITTER"
	StepParagraphSplitter  StepKind = "PARAGRAPH_SPLITTER"
	StepSentenceSplitter   StepKind = "SENTENCE_SPLITTER"
	StepRegexExtractor     StepKind = "REGEX_EXTRACTOR"
	StepUserScript         StepKind = "USER_SCRIPT"
	StepMetadataPropagator StepKind = "METADATA_PROPAGATOR"
	StepDBExporter         StepKind = "DB_EXPORTER"
	StepFileExporter       StepKind = "FILE_EXPORTER"
	StepJSONExporter       StepKind = "JSON_EXPORTER"
)

var validStepKinds = map[StepKind]bool{
	StepDocumentLoader: true, StepLineSplitter: true, StepDelimiterSplitter: true,
	StepParagraphSplitter: true, StepSentenceSplitter: true, StepRegexExtractor: true,
	StepUserScript: true, StepMetadataPropagator: true, StepDBExporter: true,
	StepFileExporter: true, StepJSONExporter: true,
}

// StepConfig is one node of a PipelineConfig's step graph.
type StepConfig struct {
	ID          string
	Kind        StepKind
	Name        string
	Params      map[string]any
	InputStepID *string
	DependsOn   []string
}

// PipelineConfig is a directed acyclic graph over StepConfig nodes, with
// soft-delete and monotonic versioning lifecycle semantics.
type PipelineConfig struct {
	ID            string
	Name          string
	Description   string
	Steps         []StepConfig
	Schedule      string
	SourceConfig  map[string]any
	TargetConfig  map[string]any
	Version       int
	Active        bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Validate implements the structural invariants and the kind-specific
// param contracts. It returns the first violation found; ConfigInvalid
// callers should wrap the message.
func (p *PipelineConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("pipeline: name must not be empty")
	}
	if len(p.Steps) == 0 {
		return fmt.Errorf("pipeline: must have at least one step")
	}

	ids := make(map[string]StepConfig, len(p.Steps))
	for _, s := range p.Steps {
		if _, dup := ids[s.ID]; dup {
			return fmt.Errorf("pipeline: duplicate step id %q", s.ID)
		}
		ids[s.ID] = s
	}

	for _, s := range p.Steps {
		if !validStepKinds[s.Kind] {
			return fmt.Errorf("pipeline: step %q has unknown kind %q", s.ID, s.Kind)
		}
		if s.InputStepID != nil && len(s.DependsOn) > 0 {
			return fmt.Errorf("pipeline: step %q may not set both input_step_id and depends_on", s.ID)
		}
		if s.InputStepID != nil {
			if _, ok := ids[*s.InputStepID]; !ok {
				return fmt.Errorf("pipeline: step %q references unknown input_step_id %q", s.ID, *s.InputStepID)
			}
		}
		for _, dep := range s.DependsOn {
			if _, ok := ids[dep]; !ok {
				return fmt.Errorf("pipeline: step %q references unknown dependency %q", s.ID, dep)
			}
		}
		if err := validateStepParams(s); err != nil {
			return err
		}
	}

	if cyc := findCycle(p.Steps); cyc != "" {
		return fmt.Errorf("pipeline: cycle detected at step %q", cyc)
	}
	return nil
}

// validateStepParams implements the kind-specific required-param
// contracts.
func validateStepParams(s StepConfig) error {
	switch s.Kind {
	case StepDocumentLoader:
		_, hasPath := s.Params["source_path"]
		_, hasPaths := s.Params["document_paths"]
		if !hasPath && !hasPaths {
			return fmt.Errorf("pipeline: step %q (DOCUMENT_LOADER) requires source_path or document_paths", s.ID)
		}
	case StepUserScript:
		if v, ok := s.Params["script_id"]; !ok || v == "" {
			return fmt.Errorf("pipeline: step %q (USER_SCRIPT) requires script_id", s.ID)
		}
	case StepDBExporter:
		if v, ok := s.Params["table_name"]; !ok || v == "" {
			return fmt.Errorf("pipeline: step %q (DB_EXPORTER) requires table_name", s.ID)
		}
	case StepFileExporter, StepJSONExporter:
		if v, ok := s.Params["output_path"]; !ok || v == "" {
			return fmt.Errorf("pipeline: step %q (%s) requires output_path", s.ID, s.Kind)
		}
	}
	return nil
}

// findCycle runs a DFS cycle check over the dependency graph formed by
// InputStepID and DependsOn edges, returning the id of a step
// participating in a cycle, or "" if the graph is acyclic.
func findCycle(steps []StepConfig) string {
	byID := make(map[string]StepConfig, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(steps))

	var edgesOf func(s StepConfig) []string
	edgesOf = func(s StepConfig) []string {
		if s.InputStepID != nil {
			return []string{*s.InputStepID}
		}
		return s.DependsOn
	}

	var visit func(id string) string
	visit = func(id string) string {
		color[id] = grey
		for _, dep := range edgesOf(byID[id]) {
			switch color[dep] {
			case grey:
				return dep
			case white:
				if cyc := visit(dep); cyc != "" {
					return cyc
				}
			}
		}
		color[id] = black
		return ""
	}

	for _, s := range steps {
		if color[s.ID] == white {
			if cyc := visit(s.ID); cyc != "" {
				return cyc
			}
		}
	}
	return ""
}

// StepByID returns the step with the given id, if present.
func (p *PipelineConfig) StepByID(id string) (StepConfig, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return StepConfig{}, false
}

// ToMap renders the pipeline config into its dictionary wire form.
func (p *PipelineConfig) ToMap() map[string]any {
	steps := make([]map[string]any, 0, len(p.Steps))
	for _, s := range p.Steps {
		sm := map[string]any{
			"id":     s.ID,
			"type":   string(s.Kind),
			"name":   s.Name,
			"params": s.Params,
		}
		if s.InputStepID != nil {
			sm["input_step_id"] = *s.InputStepID
		}
		if len(s.DependsOn) > 0 {
			sm["depends_on"] = s.DependsOn
		}
		steps = append(steps, sm)
	}
	return map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"description":   p.Description,
		"steps":         steps,
		"schedule":      p.Schedule,
		"source_config": p.SourceConfig,
		"target_config": p.TargetConfig,
		"version":       p.Version,
	}
}
