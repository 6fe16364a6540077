package essink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esutil"
	"github.com/go-logr/logr"
	jsoniter "github.com/json-iterator/go"
	"github.com/zakharovvi/aws-lambda-elastic-telemetry/record"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrClosed = errors.New("sink is closed")

var (
	fieldDataStreamType      = record.Field{"data_stream", "type"}
	fieldDataStreamDataset   = record.Field{"data_stream", "dataset"}
	fieldDataStreamNamespace = record.Field{"data_stream", "namespace"}
)

// Stats are cumulative sink counters.
type Stats struct {
	Added   int64
	Indexed int64
	// Failed counts documents dropped after a non-retriable status or the last attempt.
	Failed  int64
	Retried int64
	// FlushErrors counts failed bulk requests. Their documents are lost.
	FlushErrors int64
}

type options struct {
	log logr.Logger
}

type Option interface {
	apply(*options)
}

type loggerOption struct {
	log logr.Logger
}

func (o loggerOption) apply(opts *options) {
	opts.log = o.log
}

func WithLogger(log logr.Logger) Option {
	return loggerOption{log}
}

type document struct {
	index   string
	action  string
	body    []byte
	attempt int
	retryAt time.Time
}

// Sink buffers records and writes them with the bulk API.
// Add may be called concurrently. Documents rejected with a retriable status are re-added
// after a backoff by the next Add, Flush or Close call.
type Sink struct {
	client *elasticsearch.Client
	cfg    Config
	log    logr.Logger

	// mu guards bi replacement: Add holds it for reading, Flush and Close for writing.
	mu     sync.RWMutex
	bi     esutil.BulkIndexer
	closed bool

	retryMu sync.Mutex
	retries []*document

	added       atomic.Int64
	indexed     atomic.Int64
	failed      atomic.Int64
	retried     atomic.Int64
	flushErrors atomic.Int64
}

func New(client *elasticsearch.Client, cfg Config, opts ...Option) (*Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := options{
		log: logr.Discard(),
	}
	for _, o := range opts {
		o.apply(&options)
	}

	s := &Sink{client: client, cfg: cfg, log: options.log}
	bi, err := s.newBulkIndexer()
	if err != nil {
		return nil, err
	}
	s.bi = bi

	return s, nil
}

func (s *Sink) newBulkIndexer() (esutil.BulkIndexer, error) {
	bi, err := esutil.NewBulkIndexer(esutil.BulkIndexerConfig{
		Client:        s.client,
		NumWorkers:    s.cfg.NumWorkers,
		FlushBytes:    s.cfg.FlushBytes,
		FlushInterval: s.cfg.FlushInterval,
		Decoder:       bulkResponseDecoder{},
		OnError: func(ctx context.Context, err error) {
			s.flushErrors.Add(1)
			s.log.Error(err, "bulk request failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("could not create bulk indexer: %w", err)
	}

	return bi, nil
}

// Add encodes the record and queues it for the data stream named by its data_stream fields.
func (s *Sink) Add(ctx context.Context, rec record.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("could not encode record: %w", err)
	}
	index, action := s.target(rec)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	for _, doc := range s.takeRetries(time.Now()) {
		if err := s.add(ctx, doc); err != nil {
			return err
		}
	}
	s.added.Add(1)

	return s.add(ctx, &document{index: index, action: action, body: body})
}

// target returns <type>-<dataset>-<namespace> with the create action, which data streams require.
// Records without complete data_stream fields go to the default index.
func (s *Sink) target(rec record.Record) (string, string) {
	typ, ok1 := rec.GetString(fieldDataStreamType)
	dataset, ok2 := rec.GetString(fieldDataStreamDataset)
	namespace, ok3 := rec.GetString(fieldDataStreamNamespace)
	if !ok1 || !ok2 || !ok3 || typ == "" || dataset == "" || namespace == "" {
		return s.cfg.Index, "index"
	}

	return typ + "-" + dataset + "-" + namespace, "create"
}

// add must be called with mu held.
func (s *Sink) add(ctx context.Context, doc *document) error {
	doc.attempt++
	err := s.bi.Add(ctx, esutil.BulkIndexerItem{
		Index:  doc.index,
		Action: doc.action,
		Body:   bytes.NewReader(doc.body),
		OnSuccess: func(context.Context, esutil.BulkIndexerItem, esutil.BulkIndexerResponseItem) {
			s.indexed.Add(1)
		},
		OnFailure: func(_ context.Context, _ esutil.BulkIndexerItem, res esutil.BulkIndexerResponseItem, err error) {
			s.onFailure(doc, res, err)
		},
	})
	if err != nil {
		return fmt.Errorf("could not add document to bulk indexer: %w", err)
	}

	return nil
}

func (s *Sink) onFailure(doc *document, res esutil.BulkIndexerResponseItem, err error) {
	if err == nil && s.cfg.Retry.retriable(res.Status) && doc.attempt < s.cfg.Retry.MaxRequests {
		s.retried.Add(1)
		doc.retryAt = time.Now().Add(retryBackoff(s.cfg.Retry)(doc.attempt))
		s.retryMu.Lock()
		s.retries = append(s.retries, doc)
		s.retryMu.Unlock()

		return
	}

	s.failed.Add(1)
	if err == nil {
		err = fmt.Errorf("%s: %s", res.Error.Type, res.Error.Reason)
	}
	s.log.Error(err, "dropping document", "index", doc.index, "status", res.Status, "attempt", doc.attempt)
}

// takeRetries removes and returns the documents due at now. Zero now takes all of them.
func (s *Sink) takeRetries(now time.Time) []*document {
	s.retryMu.Lock()
	defer s.retryMu.Unlock()

	var due []*document
	pending := s.retries[:0]
	for _, doc := range s.retries {
		if now.IsZero() || !doc.retryAt.After(now) {
			due = append(due, doc)
		} else {
			pending = append(pending, doc)
		}
	}
	s.retries = pending

	return due
}

// Flush writes all queued documents, including retries, and waits for the responses.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}

	drainErr := s.drain(ctx)
	bi, err := s.newBulkIndexer()
	if err != nil {
		return errors.Join(drainErr, err)
	}
	s.bi = bi

	return drainErr
}

// Close flushes like Flush and releases the bulk indexer. Add fails with ErrClosed afterwards.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	return s.drain(ctx)
}

// drain closes the bulk indexer until no retries are left. It must be called with mu held.
// On return s.bi is closed.
func (s *Sink) drain(ctx context.Context) error {
	for {
		if err := s.bi.Close(ctx); err != nil {
			return fmt.Errorf("could not flush bulk indexer: %w", err)
		}
		docs := s.takeRetries(time.Time{})
		if len(docs) == 0 {
			return nil
		}

		var retryAt time.Time
		for _, doc := range docs {
			if doc.retryAt.After(retryAt) {
				retryAt = doc.retryAt
			}
		}
		s.log.V(1).Info("retrying rejected documents", "count", len(docs), "in", time.Until(retryAt))
		timer := time.NewTimer(time.Until(retryAt))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.failed.Add(int64(len(docs)))

			return fmt.Errorf("%d documents were not retried: %w", len(docs), ctx.Err())
		case <-timer.C:
		}

		bi, err := s.newBulkIndexer()
		if err != nil {
			return err
		}
		s.bi = bi
		for _, doc := range docs {
			if err := s.add(ctx, doc); err != nil {
				s.failed.Add(1)
				s.log.Error(err, "dropping document", "index", doc.index, "attempt", doc.attempt)
			}
		}
	}
}

func (s *Sink) Stats() Stats {
	return Stats{
		Added:       s.added.Load(),
		Indexed:     s.indexed.Load(),
		Failed:      s.failed.Load(),
		Retried:     s.retried.Load(),
		FlushErrors: s.flushErrors.Load(),
	}
}

// bulkResponseDecoder implements esutil.BulkResponseJSONDecoder with jsoniter.
type bulkResponseDecoder struct{}

func (bulkResponseDecoder) UnmarshalFromReader(r io.Reader, resp *esutil.BulkIndexerResponse) error {
	return json.NewDecoder(r).Decode(resp)
}
