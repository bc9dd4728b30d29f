package exporters

import (
	"context"
	"sync"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/docetl-project/docetl/internal/domain"
	"github.com/docetl-project/docetl/internal/errs"
)

// chunkDoc is the BSON shape a Chunk is written as.
type chunkDoc struct {
	ID   string          `bson:"_id"`
	Text string          `bson:"text"`
	Meta domain.Metadata `bson:"meta"`
}

// MongoExporter writes chunks to a MongoDB collection: an unordered
// bulk InsertMany first, falling back to per-document InsertOne calls
// that tolerate duplicate-key errors when the bulk op partially fails.
type MongoExporter struct {
	mu         sync.Mutex
	client     *mongo.Client
	collection *mongo.Collection
	connected  bool
	written    int64
	lastErr    string
}

func (e *MongoExporter) Connect(ctx context.Context, cfg map[string]any) error {
	uri, _ := cfg["uri"].(string)
	database, _ := cfg["database"].(string)
	collection, _ := cfg["collection"].(string)
	if uri == "" || database == "" || collection == "" {
		return errs.New(errs.KindConfigInvalid, "mongo exporter: cfg.uri, cfg.database, cfg.collection are required", nil)
	}

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return errs.New(errs.KindDatabaseError, "connecting to mongodb", err)
	}
	e.mu.Lock()
	e.client = client
	e.collection = client.Database(database).Collection(collection)
	e.connected = true
	e.mu.Unlock()
	return nil
}

func (e *MongoExporter) BatchInsert(ctx context.Context, chunks []*domain.Chunk) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.collection == nil {
		return errs.New(errs.KindConfigInvalid, "mongo exporter: not connected", nil)
	}

	docs := make([]interface{}, 0, len(chunks))
	for _, c := range chunks {
		docs = append(docs, chunkDoc{ID: c.ID, Text: c.Text, Meta: c.Meta})
	}

	_, err := e.collection.InsertMany(ctx, docs, options.InsertMany().SetOrdered(false))
	if err == nil {
		e.written += int64(len(chunks))
		return nil
	}

	bwe, isBulkErr := err.(mongo.BulkWriteException)
	if !isBulkErr {
		e.lastErr = err.Error()
		return errs.New(errs.KindDatabaseError, "bulk inserting chunks", err)
	}

	for _, c := range chunks {
		_, insertErr := e.collection.InsertOne(ctx, chunkDoc{ID: c.ID, Text: c.Text, Meta: c.Meta})
		if insertErr != nil && !mongo.IsDuplicateKeyError(insertErr) {
			e.lastErr = insertErr.Error()
			return errs.New(errs.KindDatabaseError, "inserting chunk after bulk failure", insertErr)
		}
	}
	_ = bwe
	e.written += int64(len(chunks))
	return nil
}

func (e *MongoExporter) ExportRunMetadata(ctx context.Context, run *domain.PipelineRun) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return errs.New(errs.KindConfigInvalid, "mongo exporter: not connected", nil)
	}
	runs := e.collection.Database().Collection("pipeline_runs")
	_, err := runs.ReplaceOne(ctx, bson.M{"_id": run.ID}, run.ToMap(), options.Replace().SetUpsert(true))
	if err != nil {
		e.lastErr = err.Error()
		return errs.New(errs.KindDatabaseError, "writing run metadata", err)
	}
	return nil
}

func (e *MongoExporter) Close(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Disconnect(ctx)
	e.connected = false
	return err
}

func (e *MongoExporter) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{Connected: e.connected, RowsWritten: e.written, LastError: e.lastErr}
}
