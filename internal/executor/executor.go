// Package executor runs one PipelineConfig against one document,
// dispatching each StepConfig to the concrete component bound to its
// kind and threading outputs between steps.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
	"github.com/docetl-project/docetl/internal/exporters"
	"github.com/docetl-project/docetl/internal/loaders"
	"github.com/docetl-project/docetl/internal/logging"
	"github.com/docetl-project/docetl/internal/processors"
	"github.com/docetl-project/docetl/internal/script"
)

// ScriptResolver looks up a stored script's decrypted source by id.
// internal/store's script repository is expected to implement this.
type ScriptResolver interface {
	Resolve(ctx context.Context, scriptID string) (source string, err error)
}

// ExporterFactory builds the Exporter a DB/FILE/JSON exporter step
// should write through, chosen by the step's own params (e.g. a
// "driver" param distinguishing sqlite/postgres/mysql/mongo).
type ExporterFactory interface {
	ForStep(step domain.StepConfig) (exporters.Exporter, error)
}

// ScriptRunner evaluates a validated script against an input context in
// an isolated environment. *script.Sandbox is the production
// implementation; the indirection lets tests substitute a fake that
// skips the self-re-exec child process.
type ScriptRunner interface {
	Run(ctx context.Context, source string, input map[string]any) (any, error)
}

// RecoveryHandler is consulted when a document's step sequence aborts.
// It may mutate run in place — e.g. recording a recovered outcome and
// marking it terminal itself — and returns an error only if recovery
// could not be attempted at all.
type RecoveryHandler interface {
	Recover(ctx context.Context, run *domain.PipelineRun, cause error) error
}

// stepResult is the uniform shape threaded between steps: either a
// Document (straight from a loader, or passed through a propagator
// step that only attached sections) or a flat slice of chunks.
type stepResult struct {
	Document *domain.Document
	Chunks   []*domain.Chunk
}

// DocumentExecutor runs a PipelineConfig against a single document
// path. Its collaborators are the same seams the rest of the engine
// is built from: a loader Factory, a script Sandbox plus resolver, and
// an exporter factory.
type DocumentExecutor struct {
	Loaders   *loaders.Factory
	Sandbox   ScriptRunner
	Scripts   ScriptResolver
	Exporters ExporterFactory
	Recovery  RecoveryHandler
	Logger    logging.Logger
}

// New builds a DocumentExecutor with a default Sandbox and no script
// resolver, exporter factory, or recovery handler configured; callers
// wire those in directly where they're needed.
func New(loaderFactory *loaders.Factory) *DocumentExecutor {
	return &DocumentExecutor{Loaders: loaderFactory, Sandbox: script.NewSandbox()}
}

func (e *DocumentExecutor) logger(ctx context.Context) logging.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return logging.FromContext(ctx)
}

// Execute runs pipeline against documentPath to completion, returning
// a terminal PipelineRun. It never returns an error itself: failures
// are recorded on the run.
func (e *DocumentExecutor) Execute(ctx context.Context, pipeline *domain.PipelineConfig, documentPath string) *domain.PipelineRun {
	run := &domain.PipelineRun{
		ID:            uuid.NewString(),
		PipelineID:    pipeline.ID,
		StartTime:     time.Now(),
		Status:        domain.RunRunning,
		DocumentPaths: []string{documentPath},
	}

	propagator := processors.NewMetadataPropagator(headerStyles(pipeline))

	outputs := make(map[string]stepResult, len(pipeline.Steps))
	var loadedDoc *domain.Document

	for _, step := range pipeline.Steps {
		// Cancellation is honoured only between steps: a step already
		// running is left to finish.
		if ctx.Err() != nil {
			run.Finish(domain.RunCancelled)
			return run
		}
		started := time.Now()
		input := resolveInput(step, outputs, loadedDoc)

		result, err := e.runStep(ctx, step, input, documentPath, propagator)
		if err != nil {
			kind := errs.KindOf(err)
			run.AppendError(step.ID, string(step.Kind), kind, err.Error())
			e.logger(ctx).Error("step failed",
				"pipeline_id", pipeline.ID, "run_id", run.ID, "document_path", documentPath,
				"kind", kind, "step_id", step.ID, "error", err)
			if isOptional(step) {
				continue
			}
			e.abort(ctx, run, err)
			return run
		}

		e.logger(ctx).Info("step finished",
			"pipeline_id", pipeline.ID, "run_id", run.ID, "step_id", step.ID, "kind", step.Kind, "elapsed", time.Since(started))

		outputs[step.ID] = result
		if result.Document != nil {
			loadedDoc = result.Document
		}
	}

	run.Counters.Processed++
	run.Counters.Success++
	run.Finish(domain.RunCompleted)
	return run
}

// abort hands the run to the configured RecoveryHandler, if any, and
// finalizes it FAILED unless recovery already left it terminal.
func (e *DocumentExecutor) abort(ctx context.Context, run *domain.PipelineRun, cause error) {
	documentPath := ""
	if len(run.DocumentPaths) > 0 {
		documentPath = run.DocumentPaths[0]
	}

	if e.Recovery != nil {
		if recErr := e.Recovery.Recover(ctx, run, cause); recErr != nil {
			run.AppendError("", "recovery", errs.KindOf(recErr), recErr.Error())
		}
	}
	run.Counters.Processed++
	if run.Status.IsTerminal() {
		return
	}
	run.Counters.Error++
	run.Finish(domain.RunFailed)
	e.logger(ctx).Error("document run failed",
		"pipeline_id", run.PipelineID, "run_id", run.ID, "document_path", documentPath,
		"kind", errs.KindOf(cause), "error", cause)
}

// resolveInput follows a step's input_step_id, falling back to the
// most recently loaded Document for steps with no explicit input (the
// document loader itself, or the first step consuming its output).
func resolveInput(step domain.StepConfig, outputs map[string]stepResult, loadedDoc *domain.Document) stepResult {
	if step.InputStepID != nil {
		if r, ok := outputs[*step.InputStepID]; ok {
			return r
		}
	}
	return stepResult{Document: loadedDoc}
}

// isOptional reports whether a step's params mark it skippable on
// failure.
func isOptional(step domain.StepConfig) bool {
	v, ok := step.Params["optional"]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// headerStyles extracts the header style definitions a pipeline's
// source_config carries for its METADATA_PROPAGATOR steps. Callers
// build PipelineConfig.SourceConfig in-process, so the typed slice is
// stored directly rather than round-tripped through a wire format.
func headerStyles(pipeline *domain.PipelineConfig) []domain.HeaderStyleDefinition {
	if pipeline.SourceConfig == nil {
		return nil
	}
	if defs, ok := pipeline.SourceConfig["header_styles"].([]domain.HeaderStyleDefinition); ok {
		return defs
	}
	return nil
}

// runStep dispatches a single StepConfig to the component bound to its
// kind.
func (e *DocumentExecutor) runStep(ctx context.Context, step domain.StepConfig, input stepResult, documentPath string, propagator *processors.MetadataPropagator) (stepResult, error) {
	switch step.Kind {
	case domain.StepDocumentLoader:
		return e.runLoader(ctx, documentPath)
	case domain.StepLineSplitter:
		return runTextProcessor(processors.LineSplitter{}, input, step.Params)
	case domain.StepParagraphSplitter:
		return runTextProcessor(processors.ParagraphSplitter{}, input, step.Params)
	case domain.StepSentenceSplitter:
		return runTextProcessor(processors.SentenceSplitter{}, input, step.Params)
	case domain.StepDelimiterSplitter:
		return runTextProcessor(processors.DelimiterSplitter{}, input, step.Params)
	case domain.StepRegexExtractor:
		return runTextProcessor(processors.RegexExtractor{}, input, step.Params)
	case domain.StepUserScript:
		return e.runUserScript(ctx, step, input)
	case domain.StepMetadataPropagator:
		return runPropagator(propagator, input)
	case domain.StepDBExporter, domain.StepFileExporter, domain.StepJSONExporter:
		return e.runExporter(ctx, step, input)
	default:
		return stepResult{}, errs.New(errs.KindConfigInvalid, fmt.Sprintf("step %q: unhandled kind %q", step.ID, step.Kind), nil)
	}
}

func (e *DocumentExecutor) runLoader(ctx context.Context, documentPath string) (stepResult, error) {
	doc, err := e.Loaders.Load(ctx, documentPath)
	if err != nil {
		return stepResult{}, err
	}
	return stepResult{Document: doc}, nil
}

// runTextProcessor invokes a TextProcessor over whichever shape input
// carries: a Document, iterated page by page with document_id/page_num
// seeded into each page's base Metadata before splitting, or an
// already-chunked input, split chunk by chunk.
func runTextProcessor(proc processors.TextProcessor, input stepResult, params map[string]any) (stepResult, error) {
	var merged []*domain.Chunk

	if input.Document != nil {
		for _, page := range input.Document.Pages {
			pageNum := page.Number
			base := domain.Metadata{
				DocumentID:   input.Document.ID,
				SectionID:    "root",
				SectionLevel: 1,
				PageNum:      &pageNum,
				ChunkType:    domain.ChunkTypeDocument,
			}
			children, err := proc.Process(page.RawText, base, params)
			if err != nil {
				return stepResult{}, err
			}
			merged = append(merged, children...)
		}
		return stepResult{Chunks: merged}, nil
	}

	for _, parent := range input.Chunks {
		children, err := proc.Process(parent.Text, parent.Meta, params)
		if err != nil {
			return stepResult{}, err
		}
		merged = append(merged, children...)
	}
	return stepResult{Chunks: merged}, nil
}

// runUserScript evaluates a stored script once per page (Document
// input) or once per chunk (chunk input), passing {"text": <text>} as
// the script's input context. A string result becomes the output
// chunk's text; any other result is left alongside the original text
// in extraction_results.
func (e *DocumentExecutor) runUserScript(ctx context.Context, step domain.StepConfig, input stepResult) (stepResult, error) {
	scriptID, _ := step.Params["script_id"].(string)
	if scriptID == "" {
		return stepResult{}, errs.New(errs.KindConfigInvalid, fmt.Sprintf("step %q: USER_SCRIPT requires script_id", step.ID), nil)
	}
	if e.Scripts == nil {
		return stepResult{}, errs.New(errs.KindConfigInvalid, fmt.Sprintf("step %q: no script resolver configured", step.ID), nil)
	}
	source, err := e.Scripts.Resolve(ctx, scriptID)
	if err != nil {
		return stepResult{}, err
	}

	runOne := func(text string, meta domain.Metadata) (*domain.Chunk, error) {
		result, runErr := e.Sandbox.Run(ctx, source, map[string]any{"text": text})
		if runErr != nil {
			return nil, runErr
		}
		c := &domain.Chunk{ID: uuid.NewString(), Meta: meta.Derive().WithChunkType(domain.ChunkTypeCustom)}
		if s, ok := result.(string); ok {
			c.Text = s
		} else {
			c.Text = text
			c.ExtractionResults = map[string]any{"script_result": result}
		}
		return c, nil
	}

	var out []*domain.Chunk
	if input.Document != nil {
		for _, page := range input.Document.Pages {
			pageNum := page.Number
			meta := domain.Metadata{
				DocumentID: input.Document.ID, SectionID: "root", SectionLevel: 1,
				PageNum: &pageNum, ChunkType: domain.ChunkTypeDocument,
			}
			c, err := runOne(page.RawText, meta)
			if err != nil {
				return stepResult{}, err
			}
			out = append(out, c)
		}
		return stepResult{Chunks: out}, nil
	}

	for _, parent := range input.Chunks {
		c, err := runOne(parent.Text, parent.Meta)
		if err != nil {
			return stepResult{}, err
		}
		out = append(out, c)
	}
	return stepResult{Chunks: out}, nil
}

// runPropagator implements both of MetadataPropagator's call shapes: a
// Document input gets its sections detected and attached; a chunk
// input is grouped by page, and each page's chunks are propagated from
// a synthetic per-page parent built from their own (already document-
// and page-stamped) metadata.
func runPropagator(p *processors.MetadataPropagator, input stepResult) (stepResult, error) {
	if input.Document != nil {
		p.DetectSections(input.Document)
		return stepResult{Document: input.Document}, nil
	}

	var order []int
	byPage := make(map[int][]*domain.Chunk)
	for _, c := range input.Chunks {
		n := 0
		if c.Meta.PageNum != nil {
			n = *c.Meta.PageNum
		}
		if _, seen := byPage[n]; !seen {
			order = append(order, n)
		}
		byPage[n] = append(byPage[n], c)
	}

	var out []*domain.Chunk
	for _, n := range order {
		children := byPage[n]
		parentMeta := children[0].Meta
		parentMeta.ChunkType = domain.ChunkTypeDocument
		parent := &domain.Chunk{ID: uuid.NewString(), Meta: parentMeta}
		if err := p.Propagate(parent, children); err != nil {
			return stepResult{}, errs.New(errs.KindConfigInvalid, "metadata propagation failed", err)
		}
		out = append(out, children...)
	}
	return stepResult{Chunks: out}, nil
}

// runExporter connects, writes, and closes an Exporter for one
// DB/FILE/JSON exporter step. The per-document procedure treats a
// connection as scoped to the step invocation rather than reused
// across documents — the dispatcher's worker pool runs one executor
// per document concurrently, so per-call connections avoid sharing a
// single exporter's state across goroutines.
func (e *DocumentExecutor) runExporter(ctx context.Context, step domain.StepConfig, input stepResult) (stepResult, error) {
	if e.Exporters == nil {
		return stepResult{}, errs.New(errs.KindConfigInvalid, fmt.Sprintf("step %q: no exporter factory configured", step.ID), nil)
	}
	exp, err := e.Exporters.ForStep(step)
	if err != nil {
		return stepResult{}, err
	}
	if err := exp.Connect(ctx, step.Params); err != nil {
		return stepResult{}, err
	}
	defer exp.Close(ctx)

	if err := exp.BatchInsert(ctx, input.Chunks); err != nil {
		return stepResult{}, err
	}
	return input, nil
}
