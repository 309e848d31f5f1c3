// Package otel instruments an attachment store with OpenTelemetry.
// Every operation runs under a client span, and a shared instrument
// set records latency, call and error counts, and bytes moved, split
// by an operation attribute.
package otel

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/full-stack-biz/mailboxer/store"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const scopeName = "github.com/full-stack-biz/mailboxer/store/attachment/otel"

// Store wraps an AttachmentFileStore with traces and metrics.
type Store struct {
	backend store.AttachmentFileStore
	tracer  trace.Tracer
	base    []attribute.KeyValue

	duration   metric.Float64Histogram
	operations metric.Int64Counter
	failures   metric.Int64Counter
	ioBytes    metric.Int64Counter
}

var _ store.AttachmentFileStore = (*Store)(nil)

// New wraps backend. Instrument creation can fail only when the meter
// provider rejects the instrument definitions.
func New(backend store.AttachmentFileStore, opts ...Option) (*Store, error) {
	o := newOptions(opts...)

	s := &Store{
		backend: backend,
		tracer:  o.tracerProvider.Tracer(scopeName),
		base:    []attribute.KeyValue{attribute.String("service.name", o.serviceName)},
	}

	meter := o.meterProvider.Meter(scopeName)
	var err error
	if s.duration, err = meter.Float64Histogram(
		"mailboxer.attachment.duration",
		metric.WithDescription("Attachment store operation latency"),
		metric.WithUnit("s"),
	); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	if s.operations, err = meter.Int64Counter(
		"mailboxer.attachment.operations",
		metric.WithDescription("Attachment store operations"),
	); err != nil {
		return nil, fmt.Errorf("create operation counter: %w", err)
	}
	if s.failures, err = meter.Int64Counter(
		"mailboxer.attachment.errors",
		metric.WithDescription("Failed attachment store operations"),
	); err != nil {
		return nil, fmt.Errorf("create error counter: %w", err)
	}
	if s.ioBytes, err = meter.Int64Counter(
		"mailboxer.attachment.io",
		metric.WithDescription("Bytes moved through the attachment store"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("create io counter: %w", err)
	}
	return s, nil
}

// Upload stores content in the backend, counting the bytes streamed
// through it.
func (s *Store) Upload(ctx context.Context, filename, contentType string, content io.Reader) (string, error) {
	ctx, span := s.span(ctx, "upload",
		attribute.String("attachment.filename", filename),
		attribute.String("attachment.content_type", contentType),
	)
	began := time.Now()

	body := &meteredReader{r: content}
	uri, err := s.backend.Upload(ctx, filename, contentType, body)

	s.record(ctx, "upload", began, err)
	s.ioBytes.Add(ctx, body.n, s.tagged("upload"))
	if err == nil {
		span.SetAttributes(
			attribute.String("attachment.uri", uri),
			attribute.Int64("attachment.bytes", body.n),
		)
	}
	endSpan(span, err)
	return uri, err
}

// Load opens the attachment body. The open is what the latency metric
// measures; the span stays live until the caller closes the body, so
// it also covers the transfer.
func (s *Store) Load(ctx context.Context, uri string) (io.ReadCloser, error) {
	ctx, span := s.span(ctx, "load", attribute.String("attachment.uri", uri))
	began := time.Now()

	rc, err := s.backend.Load(ctx, uri)
	s.record(ctx, "load", began, err)
	if err != nil {
		endSpan(span, err)
		return nil, err
	}
	return &tracedBody{rc: rc, span: span, store: s, ctx: ctx}, nil
}

// Delete removes the attachment from the backend.
func (s *Store) Delete(ctx context.Context, uri string) error {
	ctx, span := s.span(ctx, "delete", attribute.String("attachment.uri", uri))
	began := time.Now()

	err := s.backend.Delete(ctx, uri)

	s.record(ctx, "delete", began, err)
	endSpan(span, err)
	return err
}

func (s *Store) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	all := make([]attribute.KeyValue, 0, len(s.base)+len(attrs)+1)
	all = append(all, attribute.String("operation", op))
	all = append(all, s.base...)
	all = append(all, attrs...)
	return s.tracer.Start(ctx, "attachment."+op,
		trace.WithAttributes(all...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

func (s *Store) record(ctx context.Context, op string, began time.Time, err error) {
	set := s.tagged(op)
	s.duration.Record(ctx, time.Since(began).Seconds(), set)
	s.operations.Add(ctx, 1, set)
	if err != nil {
		s.failures.Add(ctx, 1, set)
	}
}

func (s *Store) tagged(op string) metric.MeasurementOption {
	attrs := make([]attribute.KeyValue, 0, len(s.base)+1)
	attrs = append(attrs, attribute.String("operation", op))
	attrs = append(attrs, s.base...)
	return metric.WithAttributes(attrs...)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// meteredReader counts bytes pulled through an upload.
type meteredReader struct {
	r io.Reader
	n int64
}

func (m *meteredReader) Read(p []byte) (int, error) {
	n, err := m.r.Read(p)
	m.n += int64(n)
	return n, err
}

// tracedBody keeps the load span open across the transfer and charges
// the bytes read when the caller closes it.
type tracedBody struct {
	rc    io.ReadCloser
	span  trace.Span
	store *Store
	ctx   context.Context
	n     int64
	done  bool
}

func (b *tracedBody) Read(p []byte) (int, error) {
	n, err := b.rc.Read(p)
	b.n += int64(n)
	return n, err
}

func (b *tracedBody) Close() error {
	if b.done {
		return nil
	}
	b.done = true

	err := b.rc.Close()
	b.store.ioBytes.Add(b.ctx, b.n, b.store.tagged("load"))
	b.span.SetAttributes(attribute.Int64("attachment.bytes", b.n))
	endSpan(b.span, err)
	return err
}
