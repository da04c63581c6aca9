// Package events publishes library change notifications over NATS so a
// presentation layer can track counts and state without the retrieval
// core holding any observable UI state.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subjects for library change events.
const (
	SubjectLibraryCreated   = "alcove.library.created"
	SubjectLibraryDropped   = "alcove.library.dropped"
	SubjectDocumentIngested = "alcove.document.ingested"
	SubjectDocumentDeleted  = "alcove.document.deleted"
)

// LibraryEvent describes a change to a library or its documents.
type LibraryEvent struct {
	LibraryID  string    `json:"library_id"`
	DocumentID string    `json:"document_id,omitempty"`
	ChunkCount int       `json:"chunk_count,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Publisher emits library events to NATS. A Publisher with a nil
// connection drops every event, so callers never branch on whether
// eventing is configured.
type Publisher struct {
	nc     *nats.Conn
	logger *zap.Logger
}

// NewPublisher creates a publisher over the given connection. nc may be
// nil to disable eventing.
func NewPublisher(nc *nats.Conn, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{nc: nc, logger: logger}
}

// LibraryCreated publishes a library creation event.
func (p *Publisher) LibraryCreated(libraryID string) {
	p.publish(SubjectLibraryCreated, LibraryEvent{LibraryID: libraryID})
}

// LibraryDropped publishes a library drop event.
func (p *Publisher) LibraryDropped(libraryID string) {
	p.publish(SubjectLibraryDropped, LibraryEvent{LibraryID: libraryID})
}

// DocumentIngested publishes a document ingestion event with the number
// of chunks stored.
func (p *Publisher) DocumentIngested(libraryID, documentID string, chunkCount int) {
	p.publish(SubjectDocumentIngested, LibraryEvent{
		LibraryID:  libraryID,
		DocumentID: documentID,
		ChunkCount: chunkCount,
	})
}

// DocumentDeleted publishes a document deletion event.
func (p *Publisher) DocumentDeleted(libraryID, documentID string) {
	p.publish(SubjectDocumentDeleted, LibraryEvent{
		LibraryID:  libraryID,
		DocumentID: documentID,
	})
}

// publish marshals and sends one event. Publish failures are logged,
// never propagated; eventing is advisory and must not fail ingestion.
func (p *Publisher) publish(subject string, event LibraryEvent) {
	if p == nil || p.nc == nil {
		return
	}
	event.Timestamp = time.Now().UTC()

	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Warn("marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if err := p.nc.Publish(subject, data); err != nil {
		p.logger.Warn("publish event", zap.String("subject", subject), zap.Error(err))
		return
	}
	p.logger.Debug("event published",
		zap.String("subject", subject),
		zap.String("library_id", event.LibraryID),
	)
}

// Connect dials a NATS server and returns a publisher bound to it.
// An empty URL returns a disabled publisher.
func Connect(url string, logger *zap.Logger) (*Publisher, error) {
	if url == "" {
		return NewPublisher(nil, logger), nil
	}
	nc, err := nats.Connect(url,
		nats.Name("alcove"),
		nats.Timeout(5*time.Second),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return NewPublisher(nc, logger), nil
}

// Close drains the underlying connection so buffered publishes flush
// before it closes. A failed drain falls back to a hard close.
func (p *Publisher) Close() {
	if p == nil || p.nc == nil {
		return
	}
	if err := p.nc.Drain(); err != nil {
		p.logger.Warn("draining event connection failed", zap.Error(err))
		p.nc.Close()
	}
}
