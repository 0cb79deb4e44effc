package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/epartner/engine/internal/catalog"
	"github.com/epartner/engine/internal/config"
	"github.com/epartner/engine/internal/domain"
	"github.com/epartner/engine/internal/events"
	"github.com/epartner/engine/internal/pipeline"
	"github.com/epartner/engine/internal/promptctx"
	"github.com/epartner/engine/internal/schedule"
)

// subjectCategories is the closed category set per discovery subject.
var subjectCategories = map[string][]string{
	"risk":     {"technical", "schedule", "cost", "safety"},
	"resource": {"personnel", "equipment", "software", "facility"},
}

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default project config to .partner/config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := filepath.Join(".partner", "config.json")
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			if err := config.Save(config.DefaultConfig(), path); err != nil {
				return err
			}
			fmt.Println("wrote", path)
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var planPath, phaseID string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate a phase's documents in dependency order",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			var project domain.Project
			var phase *domain.Phase
			switch {
			case planPath != "":
				project, phase, err = loadPlan(planPath)
				if err != nil {
					return err
				}
				if phase == nil {
					return fmt.Errorf("plan %s has no phase section", planPath)
				}
				if err := store.SavePhase(ctx, phase); err != nil {
					return err
				}
			case phaseID != "":
				phase, err = store.LoadPhase(ctx, phaseID)
				if err != nil {
					return err
				}
			default:
				return errors.New("either --plan or --phase is required")
			}

			batch, err := schedule.NewBatch(phase.WorkItems)
			if err != nil {
				return err
			}

			bus := events.NewBus()
			notify := bus.Subscribe(events.TopicNotify, 0)
			client := newClient(bus)

			runner := schedule.NewRunner(schedule.RunnerConfig{
				Project: project,
				PhaseID: phase.ID,
				Pacing:  time.Duration(cfg.Schedule.PacingSeconds) * time.Second,
			}, batch, schedule.NewDocGenerator(client), store, bus)

			phase.Status = domain.PhaseInProgress
			if err := store.ApplyPhase(ctx, phase); err != nil {
				return err
			}

			var report schedule.Report
			g := new(errgroup.Group)
			g.Go(func() error {
				consumeNotifications(notify)
				return nil
			})
			g.Go(func() error {
				defer bus.Close()
				var runErr error
				report, runErr = runner.Run(ctx)
				return runErr
			})
			runErr := g.Wait()

			if runErr == nil && len(report.Failed) == 0 {
				phase.Status = domain.PhaseCompleted
				if err := store.ApplyPhase(ctx, phase); err != nil {
					return err
				}
			}

			printItemTable(phase.WorkItems)
			return runErr
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "plan file to import and run")
	cmd.Flags().StringVar(&phaseID, "phase", "", "existing phase to resume")
	return cmd
}

func newPhasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "phases",
		Short: "List stored phases",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			phases, err := store.ListPhases(ctx)
			if err != nil {
				return err
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Name", "Status"})
			for _, p := range phases {
				tw.AppendRow(table.Row{p.ID, p.Name, p.Status.String()})
			}
			tw.Render()
			return nil
		},
	}
}

func newChangeCmd() *cobra.Command {
	var planPath, phaseID, standards string
	cmd := &cobra.Command{
		Use:   "change <request>",
		Short: "Propagate a change request through impacted documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			project, err := loadProjectFacts(planPath)
			if err != nil {
				return err
			}
			phase, err := store.LoadPhase(ctx, phaseID)
			if err != nil {
				return err
			}

			bus := events.NewBus()
			notify := bus.Subscribe(events.TopicNotify, 0)
			client := newClient(bus)

			runner := pipeline.NewChangeRunner(pipeline.ChangeConfig{
				Project:     project,
				Request:     args[0],
				Standards:   standards,
				DoerRetries: cfg.Pipeline.DoerRetries,
			}, client, store, bus)

			var result pipeline.ChangeResult
			g := new(errgroup.Group)
			g.Go(func() error {
				consumeNotifications(notify)
				return nil
			})
			g.Go(func() error {
				defer bus.Close()
				var runErr error
				result, runErr = runner.Run(ctx, phase)
				return runErr
			})
			runErr := g.Wait()

			printDocumentTable(result.Documents)
			return runErr
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "plan file supplying project facts")
	cmd.Flags().StringVar(&phaseID, "phase", "", "phase to apply the change to")
	cmd.Flags().StringVar(&standards, "standards", "", "compliance rubric handed to QA")
	cmd.MarkFlagRequired("phase")
	return cmd
}

func newExportCmd() *cobra.Command {
	var planPath, tool, outDir string
	var phaseIDs []string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Produce a tool-specific artifact from phase content",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			targets, err := catalog.New(catalog.Defaults())
			if err != nil {
				return err
			}
			target, ok := targets.Get(tool)
			if !ok {
				return fmt.Errorf("unknown tool %q; run with --tool one of the catalog IDs", tool)
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			project, err := loadProjectFacts(planPath)
			if err != nil {
				return err
			}
			var phases []*domain.Phase
			for _, id := range phaseIDs {
				phase, err := store.LoadPhase(ctx, id)
				if err != nil {
					return err
				}
				phases = append(phases, phase)
			}

			bus := events.NewBus()
			notify := bus.Subscribe(events.TopicNotify, 0)
			client := newClient(bus)
			runner := pipeline.NewExportRunner(project, client, bus)

			var result pipeline.ExportResult
			g := new(errgroup.Group)
			g.Go(func() error {
				consumeNotifications(notify)
				return nil
			})
			g.Go(func() error {
				defer bus.Close()
				var runErr error
				result, runErr = runner.Run(ctx, target, phases)
				return runErr
			})
			if err := g.Wait(); err != nil {
				return err
			}

			outPath := filepath.Join(outDir, result.Artifact.Filename)
			if err := os.MkdirAll(outDir, 0755); err != nil {
				return err
			}
			if err := os.WriteFile(outPath, []byte(result.Artifact.Body), 0644); err != nil {
				return fmt.Errorf("writing artifact: %w", err)
			}
			fmt.Println("wrote", outPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "plan file supplying project facts")
	cmd.Flags().StringVar(&tool, "tool", "", "target tool ID (jira, doors, simulink, confluence)")
	cmd.Flags().StringSliceVar(&phaseIDs, "phase", nil, "phase ID to include (repeatable)")
	cmd.Flags().StringVar(&outDir, "out", ".", "output directory")
	cmd.MarkFlagRequired("tool")
	cmd.MarkFlagRequired("phase")
	return cmd
}

func newDiscoverCmd() *cobra.Command {
	var planPath, subject, logPath string
	var phaseIDs []string
	var maxIterations int
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Iteratively search for risks or resources",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			categories, ok := subjectCategories[subject]
			if !ok {
				return fmt.Errorf("unknown subject %q; want risk or resource", subject)
			}

			store, err := openStore(ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			project, err := loadProjectFacts(planPath)
			if err != nil {
				return err
			}
			content := promptctx.NewBuilder()
			for _, id := range phaseIDs {
				phase, err := store.LoadPhase(ctx, id)
				if err != nil {
					return err
				}
				content.AddPhase(phase)
			}

			if maxIterations <= 0 {
				maxIterations = cfg.Search.MaxIterations
			}

			bus := events.NewBus()
			notify := bus.Subscribe(events.TopicNotify, 0)
			client := newClient(bus)

			searcher := pipeline.NewSearcher(pipeline.SearchConfig{
				Project:       project,
				Context:       content.String(),
				Subject:       subject,
				Categories:    categories,
				MaxIterations: maxIterations,
			}, client, bus)

			var result pipeline.SearchResult
			g := new(errgroup.Group)
			g.Go(func() error {
				consumeNotifications(notify)
				return nil
			})
			g.Go(func() error {
				defer bus.Close()
				var runErr error
				result, runErr = searcher.Run(ctx)
				return runErr
			})
			if err := g.Wait(); err != nil {
				return err
			}

			printFindingsTable(result.Findings)
			fmt.Printf("%d finding(s) in %d iteration(s), stopped by %s\n",
				len(result.Findings), result.Iterations, result.Stopped)

			if logPath != "" {
				if err := os.WriteFile(logPath, []byte(result.RenderLog(subject)), 0644); err != nil {
					return fmt.Errorf("writing audit log: %w", err)
				}
				fmt.Println("wrote", logPath)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&planPath, "plan", "", "plan file supplying project facts")
	cmd.Flags().StringVar(&subject, "subject", "risk", "what to discover: risk or resource")
	cmd.Flags().StringSliceVar(&phaseIDs, "phase", nil, "phase ID providing context (repeatable)")
	cmd.Flags().IntVar(&maxIterations, "max", 0, "iteration budget (default from config)")
	cmd.Flags().StringVar(&logPath, "log", "", "write the markdown audit log to this file")
	return cmd
}
