// Package consolidation runs the format adapters and hands callers a
// complete, defaulted DataSet.
package consolidation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ehr/psnormalizer/internal/domain/canonical"
	"github.com/ehr/psnormalizer/internal/platform/ccda"
	"github.com/ehr/psnormalizer/internal/platform/fhir"
	"github.com/ehr/psnormalizer/internal/platform/telemetry"
)

// parser is what both format adapters provide.
type parser interface {
	Parse(data []byte, country string) (*canonical.DataSet, error)
}

// Service selects the adapter for a document and finishes its DataSet. It
// holds no per-document state and is safe for concurrent use.
type Service struct {
	adapters map[canonical.SourceFormat]parser
	metrics  *telemetry.Provider
	logger   zerolog.Logger
}

// NewService wires the CDA and FHIR adapters. metrics may be nil.
func NewService(logger zerolog.Logger, metrics *telemetry.Provider) *Service {
	return &Service{
		adapters: map[canonical.SourceFormat]parser{
			canonical.FormatCDA:  ccda.NewParser(logger),
			canonical.FormatFHIR: fhir.NewAdapter(logger),
		},
		metrics: metrics,
		logger:  logger,
	}
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Sniff guesses the format from the first significant byte: '<' is CDA,
// '{' is FHIR JSON.
func Sniff(doc []byte) (canonical.SourceFormat, bool) {
	b := bytes.TrimLeft(bytes.TrimPrefix(doc, utf8BOM), " \t\r\n")
	if len(b) == 0 {
		return canonical.FormatAuto, false
	}
	switch b[0] {
	case '<':
		return canonical.FormatCDA, true
	case '{':
		return canonical.FormatFHIR, true
	}
	return canonical.FormatAuto, false
}

// Process normalizes one document. The only error it returns is a
// *canonical.FatalParseError; the DataSet it returns has every section
// present and its demographic and administrative gaps filled with
// canonical.NotRecorded.
func (s *Service) Process(doc []byte, format canonical.SourceFormat, country string) (*canonical.DataSet, error) {
	start := time.Now()

	if format == canonical.FormatAuto {
		sniffed, ok := Sniff(doc)
		if !ok {
			reason := canonical.ReasonUnsupportedFormat
			if len(bytes.TrimSpace(bytes.TrimPrefix(doc, utf8BOM))) == 0 {
				reason = canonical.ReasonEmpty
			}
			return nil, s.fail(canonical.NewFatal(format, reason, nil), start)
		}
		format = sniffed
	}

	p, ok := s.adapters[format]
	if !ok {
		return nil, s.fail(canonical.NewFatal(format, canonical.ReasonUnsupportedFormat, nil), start)
	}

	ds, err := p.Parse(doc, country)
	if err != nil {
		var fe *canonical.FatalParseError
		if !errors.As(err, &fe) {
			fe = canonical.NewFatal(format, canonical.ReasonMalformed, err)
		}
		return nil, s.fail(fe, start)
	}

	ds.ApplyDefaults()
	s.observe(ds, start)
	return ds, nil
}

func (s *Service) fail(fe *canonical.FatalParseError, start time.Time) error {
	s.metrics.ObserveDocument(fe.Format.String(), telemetry.OutcomeFatal, time.Since(start))
	s.logger.Warn().
		Str("format", fe.Format.String()).
		Str("reason", fe.Reason.String()).
		Err(fe.Err).
		Msg("document rejected")
	return fe
}

func (s *Service) observe(ds *canonical.DataSet, start time.Time) {
	elapsed := time.Since(start)
	s.metrics.ObserveDocument(ds.SourceFormat.String(), telemetry.OutcomeSuccess, elapsed)

	partial := 0
	for _, kind := range canonical.AllSectionKinds() {
		n := ds.PartialCount(kind)
		s.metrics.ObserveRecords(kind.String(), len(ds.Records(kind)), n)
		if n > 0 {
			s.logger.Warn().
				Str("format", ds.SourceFormat.String()).
				Str("section", kind.String()).
				Int("partial", n).
				Msg("degraded extraction")
		}
		partial += n
	}

	s.logger.Info().
		Str("format", ds.SourceFormat.String()).
		Str("country", ds.Country).
		Int("records", ds.Len()).
		Int("partial", partial).
		Dur("elapsed", elapsed).
		Msg("document normalized")
}

// Document is one input of a batch.
type Document struct {
	Name    string
	Data    []byte
	Format  canonical.SourceFormat
	Country string
}

// Result pairs a batch input with its outcome. Exactly one of DataSet and
// Err is set.
type Result struct {
	Name    string
	DataSet *canonical.DataSet
	Err     error
}

// ProcessBatch normalizes independent documents on at most workers
// goroutines. Results keep input order. A failed document never affects its
// siblings; once ctx is cancelled no further documents start and the
// unstarted ones report ctx.Err(). The returned error is ctx.Err().
func (s *Service) ProcessBatch(ctx context.Context, docs []Document, workers int) ([]Result, error) {
	if workers < 1 {
		workers = 1
	}
	results := make([]Result, len(docs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range docs {
		results[i].Name = docs[i].Name
		if err := gctx.Err(); err != nil {
			results[i].Err = err
			continue
		}
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			results[i].DataSet, results[i].Err = s.processSafe(docs[i])
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

// processSafe keeps an adapter panic inside its own batch slot.
func (s *Service) processSafe(d Document) (ds *canonical.DataSet, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("document", d.Name).Str("panic", fmt.Sprintf("%v", r)).Msg("panic recovered")
			ds, err = nil, canonical.NewFatal(d.Format, canonical.ReasonMalformed, fmt.Errorf("panic: %v", r))
		}
	}()
	return s.Process(d.Data, d.Format, d.Country)
}
