// Package pipeline runs the end-to-end load: validate, stage, conform
// dimensions, transform, load facts, verify. Each phase is bracketed by an
// audit step row so a run can be reconstructed from the warehouse alone.
package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"ems_warehouse/internal/audit"
	"ems_warehouse/internal/config"
	"ems_warehouse/internal/dimension"
	"ems_warehouse/internal/extract"
	"ems_warehouse/internal/facts"
	"ems_warehouse/internal/staging"
	"ems_warehouse/internal/transform"
)

// Step names as they appear in ETL_STEP_LOG.
const (
	StepValidateSource = "validate_source"
	StepStageSource    = "stage_source"
	StepLoadDimensions = "load_dimensions"
	StepLoadFacts      = "load_facts"
	StepVerify         = "verify"
)

// Report is the outcome of one run.
type Report struct {
	RunID      int64
	Status     string
	SourceFile string

	SourceRows   int
	StagedRows   int
	ValidRows    int
	RejectedRows int
	FactsLoaded  int

	DimensionCounts map[string]int
	Facts           facts.Summary
}

// Pipeline wires the stores together for a single warehouse database.
type Pipeline struct {
	cfg     config.Config
	db      *sql.DB
	staging *staging.Store
	facts   *facts.Loader
	audit   *audit.Log
}

func New(cfg config.Config, db *sql.DB) *Pipeline {
	return &Pipeline{
		cfg:     cfg,
		db:      db,
		staging: staging.NewStore(db),
		facts:   facts.NewLoader(db),
		audit:   audit.New(db),
	}
}

// Run executes a load of sourceFile. fullRefresh truncates staging and
// facts before loading; otherwise rows append to what is already there.
// The returned report is valid even on error, as far as the run got.
func (p *Pipeline) Run(ctx context.Context, sourceFile string, fullRefresh bool) (Report, error) {
	loadType := "incremental"
	if fullRefresh {
		loadType = "full"
	}
	rep := Report{SourceFile: sourceFile, Status: audit.StatusFailed}

	if err := p.audit.InitTables(ctx); err != nil {
		return rep, err
	}
	if err := p.audit.StartRun(ctx, sourceFile, p.cfg.Environment, loadType); err != nil {
		return rep, err
	}
	rep.RunID = p.audit.RunID()

	err := p.run(ctx, sourceFile, fullRefresh, &rep)
	if err != nil {
		if endErr := p.audit.EndRun(ctx, audit.StatusFailed, rep.SourceRows, err.Error()); endErr != nil {
			log.Printf("run %d: closing failed run: %v", rep.RunID, endErr)
		}
		return rep, err
	}

	rep.Status = audit.StatusSuccess
	if rep.RejectedRows > 0 {
		rep.Status = audit.StatusPartial
	}
	if err := p.audit.EndRun(ctx, rep.Status, rep.SourceRows, ""); err != nil {
		return rep, err
	}
	return rep, nil
}

func (p *Pipeline) run(ctx context.Context, sourceFile string, fullRefresh bool, rep *Report) error {
	if err := p.audit.Step(ctx, StepValidateSource, func(m *audit.StepMetrics) error {
		info, err := os.Stat(sourceFile)
		if err != nil {
			return fmt.Errorf("source file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("source file %s is a directory", sourceFile)
		}
		n, err := extract.CountRows(sourceFile)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("source file %s has no data rows", sourceFile)
		}
		rep.SourceRows = n
		m.RowsRead = n
		return nil
	}); err != nil {
		return err
	}

	if err := p.audit.Step(ctx, StepStageSource, func(m *audit.StepMetrics) error {
		// Staging holds exactly one extract at a time; full vs incremental
		// only decides whether facts are truncated below.
		if err := p.staging.Initialize(ctx); err != nil {
			return err
		}
		err := extract.Chunks(sourceFile, p.cfg.ETL.BatchSize, func(c extract.Chunk) error {
			n, err := p.staging.Append(ctx, c.Records, sourceFile)
			if err != nil {
				return err
			}
			m.RowsRead += len(c.Records)
			m.RowsInserted += n
			return nil
		})
		if err != nil {
			return err
		}
		rep.StagedRows = m.RowsInserted
		if rep.StagedRows != rep.SourceRows {
			return fmt.Errorf("staged %d rows, source has %d", rep.StagedRows, rep.SourceRows)
		}
		return nil
	}); err != nil {
		return err
	}

	var dims *dimension.Resolver
	if err := p.audit.Step(ctx, StepLoadDimensions, func(m *audit.StepMetrics) error {
		var err error
		dims, err = dimension.New(ctx, p.db)
		if err != nil {
			return err
		}
		counts, err := dims.Counts(ctx)
		if err != nil {
			return err
		}
		for _, n := range counts {
			m.RowsInserted += n
		}
		return nil
	}); err != nil {
		return err
	}

	if err := p.audit.Step(ctx, StepLoadFacts, func(m *audit.StepMetrics) error {
		if err := p.facts.Initialize(ctx); err != nil {
			return err
		}
		if fullRefresh {
			if err := p.facts.Truncate(ctx); err != nil {
				return err
			}
		}
		offset := 0
		for {
			raws, err := p.staging.ReadBatch(ctx, p.cfg.ETL.BatchSize, offset)
			if err != nil {
				return err
			}
			if len(raws) == 0 {
				break
			}
			offset += len(raws)
			m.RowsRead += len(raws)

			results, valid, rejected := transform.Batch(raws)
			rep.ValidRows += valid
			rep.RejectedRows += rejected
			m.RowsRejected += rejected

			batch := make([]facts.FactRecord, 0, valid)
			for i, res := range results {
				// Rejected rows never reach the fact table, so their full
				// raw record goes into the audit trail.
				var srcData string
				if !res.IsValid && len(res.Errors) > 0 {
					b, err := json.Marshal(raws[i].Raw())
					if err != nil {
						return fmt.Errorf("row %d: %w", res.SourceRowNum, err)
					}
					srcData = string(b)
				}
				for _, fe := range res.Errors {
					if logErr := p.audit.LogError(ctx, audit.RecordError{
						StepName:     StepLoadFacts,
						SourceFile:   res.SourceFile,
						SourceRowNum: res.SourceRowNum,
						ColumnName:   fe.Column,
						ErrorType:    fe.Kind,
						ErrorMessage: fe.Message,
						RawValue:     raws[i].Value(fe.Column),
						SourceData:   srcData,
					}); logErr != nil {
						return logErr
					}
				}
				if !res.IsValid {
					continue
				}
				fact, err := facts.Assemble(ctx, res, dims)
				if err != nil {
					return fmt.Errorf("row %d: %w", res.SourceRowNum, err)
				}
				batch = append(batch, fact)
			}
			n, err := p.facts.LoadBatch(ctx, batch, sourceFile)
			if err != nil {
				return err
			}
			m.RowsInserted += n
			rep.FactsLoaded += n
		}
		return nil
	}); err != nil {
		return err
	}

	return p.audit.Step(ctx, StepVerify, func(m *audit.StepMetrics) error {
		if rep.FactsLoaded+rep.RejectedRows != rep.StagedRows {
			return fmt.Errorf("loaded %d + rejected %d != staged %d",
				rep.FactsLoaded, rep.RejectedRows, rep.StagedRows)
		}
		// Fact loading grows the conformed dimensions, so the report takes
		// its counts here, not from the pre-load snapshot.
		counts, err := dims.Counts(ctx)
		if err != nil {
			return err
		}
		rep.DimensionCounts = counts
		summary, err := p.facts.Summarize(ctx)
		if err != nil {
			return err
		}
		rep.Facts = summary
		m.RowsRead = summary.TotalIncidents
		return nil
	})
}

// Errors exposes the record-level errors of the most recent run.
func (p *Pipeline) Errors() []audit.RecordError {
	return p.audit.Errors()
}
