package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

const storageScopeName = "github.com/z3z1ma/lookervault-sub000/storage"

// InstrumentedStore wraps storage.Store with OTel tracing and metrics.
// Every method gets a span and is counted in lookervault.storage.*
// metrics. Use WrapStore to create one; it returns the original store
// unchanged when telemetry is disabled.
type InstrumentedStore struct {
	inner    storage.Store
	tracer   trace.Tracer
	ops      metric.Int64Counter
	dur      metric.Float64Histogram
	errs     metric.Int64Counter
	dlqGauge metric.Int64Gauge
}

// WrapStore returns s decorated with OTel instrumentation.
// When telemetry is disabled, s is returned as-is with zero overhead.
func WrapStore(s storage.Store) storage.Store {
	if !Enabled() {
		return s
	}
	m := Meter(storageScopeName)
	ops, _ := m.Int64Counter("lookervault.storage.operations",
		metric.WithDescription("Total storage operations executed"),
	)
	dur, _ := m.Float64Histogram("lookervault.storage.operation.duration",
		metric.WithDescription("Storage operation duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	errs, _ := m.Int64Counter("lookervault.storage.errors",
		metric.WithDescription("Total storage operation errors"),
	)
	dlqGauge, _ := m.Int64Gauge("lookervault.dlq.size",
		metric.WithDescription("Dead-letter items matching the last ListDLQ call"),
	)
	return &InstrumentedStore{
		inner:    s,
		tracer:   Tracer(storageScopeName),
		ops:      ops,
		dur:      dur,
		errs:     errs,
		dlqGauge: dlqGauge,
	}
}

// op starts a span and records a metric for the named storage operation.
func (s *InstrumentedStore) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	all := append([]attribute.KeyValue{attribute.String("db.operation", name)}, attrs...)
	ctx, span := s.tracer.Start(ctx, "storage."+name,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
	s.ops.Add(ctx, 1, metric.WithAttributes(all...))
	return ctx, span, time.Now()
}

// done ends the span, records duration and optional error.
func (s *InstrumentedStore) done(ctx context.Context, span trace.Span, start time.Time, err error, attrs ...attribute.KeyValue) {
	ms := float64(time.Since(start).Milliseconds())
	s.dur.Record(ctx, ms, metric.WithAttributes(attrs...))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.errs.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
	span.End()
}

func typeAttr(ct types.ContentType) attribute.KeyValue {
	return attribute.String("lookervault.content.type", string(ct))
}

func sessionAttr(id string) attribute.KeyValue {
	return attribute.String("lookervault.session.id", id)
}

// ── Content items ───────────────────────────────────────────────────────────

func (s *InstrumentedStore) SaveContent(ctx context.Context, item *types.ContentItem) error {
	attrs := []attribute.KeyValue{
		typeAttr(item.ContentType),
		attribute.String("lookervault.content.id", item.ID),
	}
	ctx, span, t := s.op(ctx, "SaveContent", attrs...)
	err := s.inner.SaveContent(ctx, item)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) SaveContentBatch(ctx context.Context, items []*types.ContentItem) error {
	attrs := []attribute.KeyValue{attribute.Int("lookervault.batch.size", len(items))}
	ctx, span, t := s.op(ctx, "SaveContentBatch", attrs...)
	err := s.inner.SaveContentBatch(ctx, items)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetContent(ctx context.Context, ct types.ContentType, id string) (*types.ContentItem, error) {
	attrs := []attribute.KeyValue{typeAttr(ct), attribute.String("lookervault.content.id", id)}
	ctx, span, t := s.op(ctx, "GetContent", attrs...)
	v, err := s.inner.GetContent(ctx, ct, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListContent(ctx context.Context, ct types.ContentType, filter types.ContentFilter) ([]*types.ContentItem, error) {
	attrs := []attribute.KeyValue{typeAttr(ct)}
	ctx, span, t := s.op(ctx, "ListContent", attrs...)
	items, err := s.inner.ListContent(ctx, ct, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("lookervault.result.count", len(items)))
	}
	s.done(ctx, span, t, err, attrs...)
	return items, err
}

func (s *InstrumentedStore) CountContent(ctx context.Context, ct types.ContentType, filter types.ContentFilter) (int, error) {
	attrs := []attribute.KeyValue{typeAttr(ct)}
	ctx, span, t := s.op(ctx, "CountContent", attrs...)
	v, err := s.inner.CountContent(ctx, ct, filter)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) MarkContentDeleted(ctx context.Context, ct types.ContentType, id string) error {
	attrs := []attribute.KeyValue{typeAttr(ct), attribute.String("lookervault.content.id", id)}
	ctx, span, t := s.op(ctx, "MarkContentDeleted", attrs...)
	err := s.inner.MarkContentDeleted(ctx, ct, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Extraction sessions ─────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateExtractionSession(ctx context.Context, session *types.ExtractionSession) error {
	attrs := []attribute.KeyValue{sessionAttr(session.ID)}
	ctx, span, t := s.op(ctx, "CreateExtractionSession", attrs...)
	err := s.inner.CreateExtractionSession(ctx, session)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) UpdateExtractionSession(ctx context.Context, session *types.ExtractionSession) error {
	attrs := []attribute.KeyValue{sessionAttr(session.ID), attribute.String("lookervault.session.status", string(session.Status))}
	ctx, span, t := s.op(ctx, "UpdateExtractionSession", attrs...)
	err := s.inner.UpdateExtractionSession(ctx, session)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetExtractionSession(ctx context.Context, id string) (*types.ExtractionSession, error) {
	attrs := []attribute.KeyValue{sessionAttr(id)}
	ctx, span, t := s.op(ctx, "GetExtractionSession", attrs...)
	v, err := s.inner.GetExtractionSession(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListExtractionSessions(ctx context.Context, limit int) ([]*types.ExtractionSession, error) {
	ctx, span, t := s.op(ctx, "ListExtractionSessions")
	v, err := s.inner.ListExtractionSessions(ctx, limit)
	s.done(ctx, span, t, err)
	return v, err
}

// ── Restoration sessions ────────────────────────────────────────────────────

func (s *InstrumentedStore) CreateRestorationSession(ctx context.Context, session *types.RestorationSession) error {
	attrs := []attribute.KeyValue{sessionAttr(session.ID)}
	ctx, span, t := s.op(ctx, "CreateRestorationSession", attrs...)
	err := s.inner.CreateRestorationSession(ctx, session)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) UpdateRestorationSession(ctx context.Context, session *types.RestorationSession) error {
	attrs := []attribute.KeyValue{sessionAttr(session.ID), attribute.String("lookervault.session.status", string(session.Status))}
	ctx, span, t := s.op(ctx, "UpdateRestorationSession", attrs...)
	err := s.inner.UpdateRestorationSession(ctx, session)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetRestorationSession(ctx context.Context, id string) (*types.RestorationSession, error) {
	attrs := []attribute.KeyValue{sessionAttr(id)}
	ctx, span, t := s.op(ctx, "GetRestorationSession", attrs...)
	v, err := s.inner.GetRestorationSession(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListRestorationSessions(ctx context.Context, limit int) ([]*types.RestorationSession, error) {
	ctx, span, t := s.op(ctx, "ListRestorationSessions")
	v, err := s.inner.ListRestorationSessions(ctx, limit)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) DeleteRestorationSession(ctx context.Context, id string) error {
	attrs := []attribute.KeyValue{sessionAttr(id)}
	ctx, span, t := s.op(ctx, "DeleteRestorationSession", attrs...)
	err := s.inner.DeleteRestorationSession(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

// ── Checkpoints ─────────────────────────────────────────────────────────────

func (s *InstrumentedStore) SaveExtractionCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	attrs := []attribute.KeyValue{sessionAttr(cp.SessionID), typeAttr(cp.ContentType)}
	ctx, span, t := s.op(ctx, "SaveExtractionCheckpoint", attrs...)
	err := s.inner.SaveExtractionCheckpoint(ctx, cp)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetLatestExtractionCheckpoint(ctx context.Context, ct types.ContentType, sessionID string) (*types.Checkpoint, error) {
	attrs := []attribute.KeyValue{typeAttr(ct)}
	ctx, span, t := s.op(ctx, "GetLatestExtractionCheckpoint", attrs...)
	v, err := s.inner.GetLatestExtractionCheckpoint(ctx, ct, sessionID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListExtractionCheckpoints(ctx context.Context, sessionID string) ([]*types.Checkpoint, error) {
	attrs := []attribute.KeyValue{sessionAttr(sessionID)}
	ctx, span, t := s.op(ctx, "ListExtractionCheckpoints", attrs...)
	v, err := s.inner.ListExtractionCheckpoints(ctx, sessionID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) SaveRestorationCheckpoint(ctx context.Context, cp *types.Checkpoint) error {
	attrs := []attribute.KeyValue{sessionAttr(cp.SessionID), typeAttr(cp.ContentType)}
	ctx, span, t := s.op(ctx, "SaveRestorationCheckpoint", attrs...)
	err := s.inner.SaveRestorationCheckpoint(ctx, cp)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetLatestRestorationCheckpoint(ctx context.Context, ct types.ContentType, sessionID string) (*types.Checkpoint, error) {
	attrs := []attribute.KeyValue{typeAttr(ct)}
	ctx, span, t := s.op(ctx, "GetLatestRestorationCheckpoint", attrs...)
	v, err := s.inner.GetLatestRestorationCheckpoint(ctx, ct, sessionID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) ListRestorationCheckpoints(ctx context.Context, sessionID string) ([]*types.Checkpoint, error) {
	attrs := []attribute.KeyValue{sessionAttr(sessionID)}
	ctx, span, t := s.op(ctx, "ListRestorationCheckpoints", attrs...)
	v, err := s.inner.ListRestorationCheckpoints(ctx, sessionID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── ID mappings ─────────────────────────────────────────────────────────────

func (s *InstrumentedStore) SaveIDMapping(ctx context.Context, mapping *types.IDMapping) error {
	attrs := []attribute.KeyValue{typeAttr(mapping.ContentType)}
	ctx, span, t := s.op(ctx, "SaveIDMapping", attrs...)
	err := s.inner.SaveIDMapping(ctx, mapping)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) GetDestinationID(ctx context.Context, sourceInstance string, ct types.ContentType, sourceID string) (string, error) {
	attrs := []attribute.KeyValue{typeAttr(ct)}
	ctx, span, t := s.op(ctx, "GetDestinationID", attrs...)
	v, err := s.inner.GetDestinationID(ctx, sourceInstance, ct, sourceID)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

// ── Dead-letter queue ───────────────────────────────────────────────────────

func (s *InstrumentedStore) SaveDLQItem(ctx context.Context, item *types.DeadLetterItem) error {
	attrs := []attribute.KeyValue{
		sessionAttr(item.SessionID),
		typeAttr(item.ContentType),
		attribute.String("lookervault.error.type", string(item.ErrorType)),
	}
	ctx, span, t := s.op(ctx, "SaveDLQItem", attrs...)
	err := s.inner.SaveDLQItem(ctx, item)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ListDLQ(ctx context.Context, filter types.DLQFilter) ([]*types.DeadLetterItem, error) {
	ctx, span, t := s.op(ctx, "ListDLQ")
	items, err := s.inner.ListDLQ(ctx, filter)
	if err == nil {
		span.SetAttributes(attribute.Int("lookervault.result.count", len(items)))
		s.dlqGauge.Record(ctx, int64(len(items)))
	}
	s.done(ctx, span, t, err)
	return items, err
}

func (s *InstrumentedStore) GetDLQItem(ctx context.Context, id int64) (*types.DeadLetterItem, error) {
	attrs := []attribute.KeyValue{attribute.Int64("lookervault.dlq.id", id)}
	ctx, span, t := s.op(ctx, "GetDLQItem", attrs...)
	v, err := s.inner.GetDLQItem(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return v, err
}

func (s *InstrumentedStore) DeleteDLQItem(ctx context.Context, id int64) error {
	attrs := []attribute.KeyValue{attribute.Int64("lookervault.dlq.id", id)}
	ctx, span, t := s.op(ctx, "DeleteDLQItem", attrs...)
	err := s.inner.DeleteDLQItem(ctx, id)
	s.done(ctx, span, t, err, attrs...)
	return err
}

func (s *InstrumentedStore) ClearDLQ(ctx context.Context, sessionID string) (int, error) {
	attrs := []attribute.KeyValue{sessionAttr(sessionID)}
	ctx, span, t := s.op(ctx, "ClearDLQ", attrs...)
	n, err := s.inner.ClearDLQ(ctx, sessionID)
	if err == nil {
		span.SetAttributes(attribute.Int("lookervault.result.count", n))
	}
	s.done(ctx, span, t, err, attrs...)
	return n, err
}

// ── Transactions ────────────────────────────────────────────────────────────

func (s *InstrumentedStore) RunInTransaction(ctx context.Context, fn func(tx storage.Tx) error) error {
	ctx, span, t := s.op(ctx, "RunInTransaction")
	err := s.inner.RunInTransaction(ctx, fn)
	s.done(ctx, span, t, err)
	return err
}

// ── Lifecycle ───────────────────────────────────────────────────────────────

func (s *InstrumentedStore) SchemaVersion(ctx context.Context) (int, error) {
	ctx, span, t := s.op(ctx, "SchemaVersion")
	v, err := s.inner.SchemaVersion(ctx)
	s.done(ctx, span, t, err)
	return v, err
}

func (s *InstrumentedStore) Close() error {
	return s.inner.Close()
}
