// Command ems-warehouse loads EMS incident extracts into the star-schema
// warehouse and reports on what it loaded.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/spf13/cobra"

	"ems_warehouse/internal/audit"
	"ems_warehouse/internal/config"
	"ems_warehouse/internal/dimension"
	"ems_warehouse/internal/extract"
	"ems_warehouse/internal/facts"
	"ems_warehouse/internal/pipeline"
	"ems_warehouse/internal/staging"
	"ems_warehouse/internal/warehouse"
	"ems_warehouse/internal/watch"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type rootFlags struct {
	configPath string
	env        string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	rootCmd := &cobra.Command{
		Use:           "ems-warehouse",
		Short:         "EMS incident warehouse loader",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.configPath, "config", "config/config.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&flags.env, "env", "", "environment overlay (dev, prod)")

	rootCmd.AddCommand(newRunCmd(flags))
	rootCmd.AddCommand(newWatchCmd(flags))
	rootCmd.AddCommand(newVerifyCmd(flags))
	return rootCmd
}

func loadConfig(flags *rootFlags) (config.Config, error) {
	cfg, err := config.Load(flags.configPath, flags.env)
	if err != nil {
		return cfg, err
	}
	return cfg, setupLogging(cfg.Logging)
}

// setupLogging routes the text log per config: file, console, or both.
// The audit trail in the warehouse is unaffected.
func setupLogging(lc config.LoggingConfig) error {
	if lc.File == "" {
		if !lc.Console {
			log.SetOutput(io.Discard)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(lc.File), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(lc.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if lc.Console {
		log.SetOutput(io.MultiWriter(os.Stderr, f))
	} else {
		log.SetOutput(f)
	}
	return nil
}

func newRunCmd(flags *rootFlags) *cobra.Command {
	var (
		file        string
		full        bool
		incremental bool
		every       time.Duration
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a source extract into the warehouse",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if full && incremental {
				return fmt.Errorf("--full and --incremental are mutually exclusive")
			}
			fullRefresh := cfg.ETL.LoadType == "full"
			if full {
				fullRefresh = true
			}
			if incremental {
				fullRefresh = false
			}

			db, err := warehouse.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			p := pipeline.New(cfg, db)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			runOnce := func() error {
				src := file
				if src == "" {
					files, err := extract.FindSourceFiles(cfg.ETL.SourcePath)
					if err != nil {
						return err
					}
					if len(files) == 0 {
						return fmt.Errorf("no source files in %s", cfg.ETL.SourcePath)
					}
					src = files[len(files)-1]
				}
				rep, err := p.Run(ctx, src, fullRefresh)
				if err != nil {
					return err
				}
				printReport(rep)
				return nil
			}

			interval := runInterval(every, cfg.ETL.RunInterval)
			if interval <= 0 {
				return runOnce()
			}

			s := gocron.NewScheduler(time.UTC)
			if _, err := s.Every(interval).Do(func() {
				if err := runOnce(); err != nil {
					log.Printf("scheduled run: %v", err)
				}
			}); err != nil {
				return err
			}
			s.StartAsync()
			log.Printf("scheduled load every %s", interval)
			<-ctx.Done()
			s.Stop()
			return nil
		},
	}
	cmd.Flags().StringVar(&file, "file", "", "source CSV (default: newest file in source_path)")
	cmd.Flags().BoolVar(&full, "full", false, "truncate facts before loading")
	cmd.Flags().BoolVar(&incremental, "incremental", false, "append to existing facts")
	cmd.Flags().DurationVar(&every, "every", 0, "rerun on a fixed interval (default: etl.run_interval from config)")
	return cmd
}

// runInterval picks the schedule interval: the --every flag when set,
// otherwise etl.run_interval from the config. Zero means run once.
func runInterval(flag, configured time.Duration) time.Duration {
	if flag > 0 {
		return flag
	}
	return configured
}

func newWatchCmd(flags *rootFlags) *cobra.Command {
	var backfill bool
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the source directory and load new extracts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			db, err := warehouse.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			p := pipeline.New(cfg, db)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			w := watch.New(cfg.ETL.SourcePath, func(ctx context.Context, src string) error {
				rep, err := p.Run(ctx, src, false)
				if err != nil {
					return err
				}
				printReport(rep)
				return nil
			})
			if backfill {
				if err := w.Backfill(ctx); err != nil {
					return err
				}
			}
			if err := w.Start(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&backfill, "backfill", false, "load extracts already present before watching")
	return cmd
}

func newVerifyCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Print warehouse row counts and fact summary",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			db, err := warehouse.Open(cfg.Database.Path)
			if err != nil {
				return err
			}
			defer db.Close()
			ctx := cmd.Context()
			if err := warehouse.Health(ctx, db); err != nil {
				return err
			}

			dims, err := dimension.New(ctx, db)
			if err != nil {
				return err
			}
			counts, err := dims.Counts(ctx)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(counts))
			for name := range counts {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%-28s %8d\n", name, counts[name])
			}

			stg := staging.NewStore(db)
			if n, err := stg.Count(ctx); err == nil {
				fmt.Printf("%-28s %8d\n", "STG_EMS_INCIDENT", n)
				sample, err := stg.Sample(ctx, 3)
				if err != nil {
					return err
				}
				for _, r := range sample {
					fmt.Printf("  row %d: %s | %s | %s\n", r.SourceRowNum, r.IncidentDT, r.IncidentCounty, r.SourceFile)
				}
			}

			loader := facts.NewLoader(db)
			if err := loader.Initialize(ctx); err != nil {
				return err
			}
			s, err := loader.Summarize(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%-28s %8d\n", "FACT_EMS_INCIDENT", s.TotalIncidents)
			if s.TotalIncidents > 0 {
				fmt.Printf("  injury incidents     %d\n", s.InjuryIncidents)
				fmt.Printf("  naloxone incidents   %d\n", s.NaloxoneIncidents)
				fmt.Printf("  avg response mins    %.2f\n", s.AvgResponseMins)
				fmt.Printf("  date range           %d .. %d\n", s.MinDateKey, s.MaxDateKey)
			}
			return nil
		},
	}
}

func printReport(rep pipeline.Report) {
	log.Printf("run %d %s: source=%d staged=%d valid=%d rejected=%d loaded=%d",
		rep.RunID, rep.Status, rep.SourceRows, rep.StagedRows,
		rep.ValidRows, rep.RejectedRows, rep.FactsLoaded)
	if rep.Status == audit.StatusPartial {
		log.Printf("run %d completed with %d rejected rows, see ETL_ERROR_LOG", rep.RunID, rep.RejectedRows)
	}
}
