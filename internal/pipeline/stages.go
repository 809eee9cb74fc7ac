package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/cloo-solutions/docpipe/internal/chunker"
	"github.com/cloo-solutions/docpipe/internal/domain"
	"github.com/cloo-solutions/docpipe/internal/extract"
)

// DocumentStore defines the read-only document store boundary.
type DocumentStore interface {
	Fetch(ctx context.Context, documentID string) (*domain.Document, error)
}

// ArtifactStore defines the artifact store boundary. Put returns the artifact
// reference used to hand one stage's output to the next.
type ArtifactStore interface {
	Put(ctx context.Context, runID string, stage domain.Stage, contentType string, body []byte) (string, error)
	Get(ctx context.Context, ref string) ([]byte, error)
}

// Invoker defines the interface for the model client.
type Invoker interface {
	Invoke(ctx context.Context, prompt, modelID string) (string, error)
}

// StageInput carries a stage's run context and its predecessor's output
// reference.
type StageInput struct {
	Run            *domain.PipelineRun
	PredecessorRef string
}

// StageRunner is one unit of work in the pipeline's fixed sequence.
type StageRunner interface {
	Name() domain.Stage
	Run(ctx context.Context, in StageInput) (artifactRef string, err error)
}

// documentArtifact is the persisted output of the collect stage.
type documentArtifact struct {
	DocumentID string `json:"document_id"`
	Domain     string `json:"domain"`
	Content    string `json:"content"`
}

// recordsArtifact is the persisted output of the analyze stage.
type recordsArtifact struct {
	DocumentID string                   `json:"document_id"`
	Records    []domain.ExtractedRecord `json:"records"`
}

// CollectDocsStage fetches the raw document and snapshots it as the run's
// first artifact so later stages see a stable copy.
type CollectDocsStage struct {
	docs      DocumentStore
	artifacts ArtifactStore
}

func NewCollectDocsStage(docs DocumentStore, artifacts ArtifactStore) *CollectDocsStage {
	return &CollectDocsStage{docs: docs, artifacts: artifacts}
}

func (s *CollectDocsStage) Name() domain.Stage {
	return domain.StageCollectDocs
}

func (s *CollectDocsStage) Run(ctx context.Context, in StageInput) (string, error) {
	doc, err := s.docs.Fetch(ctx, in.Run.DocumentID)
	if err != nil {
		return "", fmt.Errorf("failed to fetch document %s: %w", in.Run.DocumentID, err)
	}
	if err := domain.ValidateDocument(doc); err != nil {
		return "", err
	}

	body, err := json.Marshal(documentArtifact{
		DocumentID: doc.ID,
		Domain:     in.Run.Domain,
		Content:    doc.Content,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal document artifact: %w", err)
	}

	return s.artifacts.Put(ctx, in.Run.ID, s.Name(), "application/json", body)
}

// AnalyzeStage splits the collected document into chunks, extracts structured
// records from each chunk in parallel, deduplicates across chunks, and
// persists the canonical record set.
type AnalyzeStage struct {
	artifacts   ArtifactStore
	extractor   *extract.Extractor
	chunkCfg    chunker.Config
	schema      string
	concurrency int
}

func NewAnalyzeStage(artifacts ArtifactStore, extractor *extract.Extractor, chunkCfg chunker.Config, schema string, concurrency int) *AnalyzeStage {
	return &AnalyzeStage{
		artifacts:   artifacts,
		extractor:   extractor,
		chunkCfg:    chunkCfg,
		schema:      schema,
		concurrency: concurrency,
	}
}

func (s *AnalyzeStage) Name() domain.Stage {
	return domain.StageAnalyze
}

func (s *AnalyzeStage) Run(ctx context.Context, in StageInput) (string, error) {
	raw, err := s.artifacts.Get(ctx, in.PredecessorRef)
	if err != nil {
		return "", fmt.Errorf("failed to load collected document: %w", err)
	}

	var docArt documentArtifact
	if err := json.Unmarshal(raw, &docArt); err != nil {
		return "", fmt.Errorf("failed to unmarshal document artifact: %w", err)
	}

	doc := &domain.Document{
		ID:      docArt.DocumentID,
		Domain:  docArt.Domain,
		Content: docArt.Content,
	}
	if err := domain.ValidateDocument(doc); err != nil {
		return "", err
	}

	chunks := chunker.Split(doc, s.chunkCfg)
	lists, err := s.extractor.ExtractAll(ctx, chunks, s.schema, s.concurrency)
	if err != nil {
		return "", err
	}

	canonical := extract.Merge(lists)

	body, err := json.Marshal(recordsArtifact{
		DocumentID: doc.ID,
		Records:    canonical,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal records artifact: %w", err)
	}

	return s.artifacts.Put(ctx, in.Run.ID, s.Name(), "application/json", body)
}

// GenerationStage turns the canonical record set into one generated artifact
// (controls, template, profile, or permission model). The four generation
// stages differ only in name, instruction, and content type, so they are a
// closed set of tagged variants over one implementation.
type GenerationStage struct {
	name        domain.Stage
	artifacts   ArtifactStore
	client      Invoker
	instruction string
	contentType string
}

func NewGenerationStage(name domain.Stage, artifacts ArtifactStore, client Invoker, instruction, contentType string) *GenerationStage {
	return &GenerationStage{
		name:        name,
		artifacts:   artifacts,
		client:      client,
		instruction: instruction,
		contentType: contentType,
	}
}

func (s *GenerationStage) Name() domain.Stage {
	return s.name
}

func (s *GenerationStage) Run(ctx context.Context, in StageInput) (string, error) {
	records, err := s.loadRecords(ctx, in)
	if err != nil {
		return "", err
	}

	prompt := fmt.Sprintf("%s\n\nOperation records:\n%s", s.instruction, records)
	out, err := s.client.Invoke(ctx, prompt, in.Run.ModelID)
	if err != nil {
		return "", fmt.Errorf("stage %s: model call failed: %w", s.name, err)
	}

	return s.artifacts.Put(ctx, in.Run.ID, s.name, s.contentType, []byte(out))
}

// loadRecords resolves the analyze stage's canonical record set. Generation
// stages after the first receive their immediate predecessor's reference, so
// the records artifact is re-read through the run's recorded outputs.
func (s *GenerationStage) loadRecords(ctx context.Context, in StageInput) (string, error) {
	ref := in.Run.StageOutputs[domain.StageAnalyze]
	if ref == "" {
		ref = in.PredecessorRef
	}

	raw, err := s.artifacts.Get(ctx, ref)
	if err != nil {
		return "", fmt.Errorf("stage %s: failed to load records artifact: %w", s.name, err)
	}

	var art recordsArtifact
	if err := json.Unmarshal(raw, &art); err != nil {
		return "", fmt.Errorf("stage %s: failed to unmarshal records artifact: %w", s.name, err)
	}

	body, err := json.Marshal(art.Records)
	if err != nil {
		return "", fmt.Errorf("stage %s: failed to marshal records: %w", s.name, err)
	}
	return string(body), nil
}

// RecordSchema is the default schema handed to the analyze stage's extractor.
const RecordSchema = `{"name": "<operation identifier, required>", "attributes": {"<attribute>": "<value>"}}`

// Generation instructions per artifact kind. Prompts stay terse: the record
// set carries the detail.
const (
	ControlsInstruction = "From these extracted operation records, produce a markdown document listing the operational controls required to expose each operation safely. One section per record."
	TemplateInstruction = "From these extracted operation records, produce an infrastructure-as-code template (YAML) declaring the resources each operation needs."
	ProfileInstruction  = "From these extracted operation records, produce a JSON integration profile describing endpoints, inputs, and outputs for each operation."
	IAMModelInstruction = "From these extracted operation records, produce a JSON permission model mapping each operation to the least-privilege actions it requires."
)
