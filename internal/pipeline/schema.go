package pipeline

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

// configSchema is the shape contract for a PipelineConfig's dictionary
// form: required top-level keys and enum membership for each step's
// kind. The graph contract (cycles, dangling ids, kind-specific
// required params) is domain.PipelineConfig.Validate's job; this schema
// only rejects malformed shapes before that runs.
var configSchema = &jsonschema.Schema{
	Type:     "object",
	Required: []string{"name", "steps"},
	Properties: map[string]*jsonschema.Schema{
		"name": {Type: "string"},
		"steps": {
			Type: "array",
			Items: &jsonschema.Schema{
				Type:     "object",
				Required: []string{"id", "type"},
				Properties: map[string]*jsonschema.Schema{
					"id": {Type: "string"},
					"type": {
						Type: "string",
						Enum: []any{
							string(domain.StepDocumentLoader),
							string(domain.StepLineSplitter),
							string(domain.StepDelimiterSplitter),
							string(domain.StepParagraphSplitter),
							string(domain.StepSentenceSplitter),
							string(domain.StepRegexExtractor),
							string(domain.StepUserScript),
							string(domain.StepMetadataPropagator),
							string(domain.StepDBExporter),
							string(domain.StepFileExporter),
							string(domain.StepJSONExporter),
						},
					},
				},
			},
		},
	},
}

var resolvedConfigSchema = mustResolveSchema(configSchema)

// mustResolveSchema mirrors regexp.MustCompile: configSchema is a fixed
// literal, so a resolve failure is a programming error, not a runtime
// condition callers should handle.
func mustResolveSchema(s *jsonschema.Schema) *jsonschema.Resolved {
	resolved, err := s.Resolve(nil)
	if err != nil {
		panic("pipeline: invalid config schema: " + err.Error())
	}
	return resolved
}

// validateShape runs cfg's dictionary form through the shape schema,
// the first of the two validation passes Create and Update require.
func validateShape(cfg *domain.PipelineConfig) error {
	if err := resolvedConfigSchema.Validate(cfg.ToMap()); err != nil {
		return errs.New(errs.KindConfigInvalid, "pipeline config failed shape validation: "+err.Error(), err)
	}
	return nil
}
