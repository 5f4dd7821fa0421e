// Command subgen is the pipeline's CLI entrypoint: process,
// batch, resume, status, and cleanup, wired over the internal packages.
// Flag layout and exit-code dispatch follow the urfave/cli/v2 command
// pattern used across the retrieval pack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/config"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/domain"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/jobstore"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/logger"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/mediaport"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/orchestrator"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/retrycore"
)

// Exit codes.
const (
	exitSuccess       = 0
	exitConfiguration = 1
	exitValidation    = 2
	exitSystem        = 3
	exitJobFailed     = 4
	exitCancelled     = 130
)

func main() {
	app := &cli.App{
		Name:  "subgen",
		Usage: "generate multilingual subtitles for video files",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to config file"},
		},
		Commands: []*cli.Command{
			processCommand(),
			batchCommand(),
			resumeCommand(),
			statusCommand(),
			cleanupCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("error: %v", err))
		os.Exit(exitCodeFor(err))
	}
}

func exitCodeFor(err error) int {
	if exitErr, ok := err.(cli.ExitCoder); ok {
		return exitErr.ExitCode()
	}
	apiErr, ok := err.(*apierr.Error)
	if !ok {
		return exitSystem
	}
	switch apiErr.Kind {
	case apierr.KindConfiguration:
		return exitConfiguration
	case apierr.KindValidation, apierr.KindVideoFormat:
		return exitValidation
	case apierr.KindResource, apierr.KindNetwork:
		return exitSystem
	default:
		return exitJobFailed
	}
}

func languageFlag() cli.Flag {
	return &cli.StringSliceFlag{Name: "language", Aliases: []string{"l"}, Usage: "language code, repeatable (default eng)"}
}

func commonFlags() []cli.Flag {
	return []cli.Flag{
		languageFlag(),
		&cli.BoolFlag{Name: "extended", Usage: "also generate the descriptive/SDH variant"},
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "output directory"},
		&cli.BoolFlag{Name: "keep-temp", Usage: "do not delete the job's local temp directory"},
		&cli.BoolFlag{Name: "keep-cloud", Usage: "do not delete the job's remote blobs"},
		&cli.BoolFlag{Name: "strict", Usage: "treat a non-production-ready validation report as fatal"},
	}
}

func loadConfigOrExit(c *cli.Context) (config.Config, *logger.Logger, error) {
	cfg, err := config.Load(config.JoinConfigPath(c.String("config")), "")
	if err != nil {
		return config.Config{}, nil, err
	}
	log, err := logger.New(os.Getenv("LOG_MODE"))
	if err != nil {
		return config.Config{}, nil, apierr.Configuration("logger", nil, err)
	}
	return cfg, log, nil
}

func buildOrchestrator(cfg config.Config, log *logger.Logger) (*orchestrator.Orchestrator, *jobstore.Store, error) {
	jobs, err := jobstore.New(cfg.Directories.JobsDir)
	if err != nil {
		return nil, nil, err
	}
	media := mediaport.New()
	core := retrycore.New()
	return orchestrator.New(cfg, log, jobs, media, core), jobs, nil
}

func rootContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}

func languagesFrom(c *cli.Context, fallback []string) []string {
	langs := c.StringSlice("language")
	if len(langs) == 0 {
		return fallback
	}
	out := make([]string, 0, len(langs))
	for _, l := range langs {
		out = append(out, strings.ToLower(strings.TrimSpace(l)))
	}
	return out
}

func newJob(sourcePath string, c *cli.Context, cfg config.Config) (*domain.Job, error) {
	for _, l := range languagesFrom(c, cfg.Languages) {
		if !config.ValidateLanguageCode(l) {
			return nil, apierr.Configuration("language", config.AllowedLanguages(), fmt.Errorf("unsupported language %q", l))
		}
	}
	outputDir := c.String("output")
	if outputDir == "" {
		outputDir = cfg.Directories.OutputDir
	}
	return &domain.Job{
		ID:             fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102T150405"), uuid.NewString()),
		SourcePath:     sourcePath,
		Languages:      languagesFrom(c, cfg.Languages),
		ExtendedMode:   c.Bool("extended"),
		Stage:          domain.StageCreated,
		CreatedAt:      time.Now(),
		OutputDir:      outputDir,
		Metadata:       map[string]any{},
		KeepTemp:       c.Bool("keep-temp"),
		KeepCloud:      c.Bool("keep-cloud"),
		StrictValidate: c.Bool("strict"),
	}, nil
}

func processCommand() *cli.Command {
	return &cli.Command{
		Name:      "process",
		Usage:     "run the full pipeline against a single video",
		ArgsUsage: "<video>",
		Flags:     commonFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("process requires exactly one <video> argument", exitConfiguration)
			}
			cfg, log, err := loadConfigOrExit(c)
			if err != nil {
				return err
			}
			job, err := newJob(c.Args().First(), c, cfg)
			if err != nil {
				return err
			}
			return runJob(cfg, log, job)
		},
	}
}

func batchCommand() *cli.Command {
	return &cli.Command{
		Name:      "batch",
		Usage:     "run the pipeline for every video in a directory, one job per file",
		ArgsUsage: "<dir>",
		Flags:     commonFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("batch requires exactly one <dir> argument", exitConfiguration)
			}
			cfg, log, err := loadConfigOrExit(c)
			if err != nil {
				return err
			}

			entries, err := os.ReadDir(c.Args().First())
			if err != nil {
				return apierr.Validation(c.Args().First(), err)
			}

			var failures int
			for _, e := range entries {
				if e.IsDir() || !cfg.ExtensionAllowed(filepath.Ext(e.Name())) {
					continue
				}
				path := filepath.Join(c.Args().First(), e.Name())
				job, err := newJob(path, c, cfg)
				if err != nil {
					return err
				}
				if err := runJob(cfg, log, job); err != nil {
					log.Error("batch item failed", "file", path, "error", err)
					failures++
				}
			}
			if failures > 0 {
				return cli.Exit(fmt.Sprintf("%d batch item(s) failed", failures), exitJobFailed)
			}
			return nil
		},
	}
}

func resumeCommand() *cli.Command {
	return &cli.Command{
		Name:      "resume",
		Usage:     "continue a previously-saved job",
		ArgsUsage: "<jobId>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "stage", Usage: "force resume from a specific stage index (advanced)"},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("resume requires exactly one <jobId> argument", exitConfiguration)
			}
			cfg, log, err := loadConfigOrExit(c)
			if err != nil {
				return err
			}
			_, jobs, err := buildOrchestrator(cfg, log)
			if err != nil {
				return err
			}
			job, err := jobs.Load(c.Args().First())
			if err != nil {
				if err == jobstore.ErrNotFound {
					return cli.Exit(fmt.Sprintf("job %q not found", c.Args().First()), exitConfiguration)
				}
				return err
			}
			if c.IsSet("stage") {
				// job.Stage records the last *completed* stage, so forcing
				// the requested stage to run next means backing up by one.
				job.Stage = domain.Stage(c.Int("stage")) - 1
			}
			return runJob(cfg, log, job)
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:      "status",
		Usage:     "print a persisted job record",
		ArgsUsage: "<jobId>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return cli.Exit("status requires exactly one <jobId> argument", exitConfiguration)
			}
			cfg, _, err := loadConfigOrExit(c)
			if err != nil {
				return err
			}
			jobs, err := jobstore.New(cfg.Directories.JobsDir)
			if err != nil {
				return err
			}
			job, err := jobs.Load(c.Args().First())
			if err != nil {
				if err == jobstore.ErrNotFound {
					return cli.Exit(fmt.Sprintf("job %q not found", c.Args().First()), exitConfiguration)
				}
				return err
			}
			printJobStatus(job)
			return nil
		},
	}
}

func cleanupCommand() *cli.Command {
	return &cli.Command{
		Name:  "cleanup",
		Usage: "purge old job records and job temp directories",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "days", Value: 7, Usage: "retention window in days"},
		},
		Action: func(c *cli.Context) error {
			cfg, _, err := loadConfigOrExit(c)
			if err != nil {
				return err
			}
			jobs, err := jobstore.New(cfg.Directories.JobsDir)
			if err != nil {
				return err
			}
			retention := time.Duration(c.Int("days")) * 24 * time.Hour
			removed, err := jobs.Purge(retention)
			if err != nil {
				return err
			}
			cutoff := time.Now().Add(-retention)
			tempRemoved := 0
			tempEntries, _ := os.ReadDir(cfg.Directories.TempDir)
			for _, e := range tempEntries {
				info, err := e.Info()
				if err != nil || !e.IsDir() || !info.ModTime().Before(cutoff) {
					continue
				}
				if os.RemoveAll(filepath.Join(cfg.Directories.TempDir, e.Name())) == nil {
					tempRemoved++
				}
			}
			fmt.Printf("removed %d job record(s) and %d temp dir(s) older than %d day(s)\n", removed, tempRemoved, c.Int("days"))
			return nil
		},
	}
}

func runJob(cfg config.Config, log *logger.Logger, job *domain.Job) error {
	orch, jobs, err := buildOrchestrator(cfg, log)
	if err != nil {
		return err
	}
	if err := jobs.Save(job); err != nil {
		return err
	}

	ctx, cancel := rootContext()
	defer cancel()

	runErr := orch.Run(ctx, job)
	if ctx.Err() != nil && runErr != nil {
		return cli.Exit("cancelled", exitCancelled)
	}
	if runErr != nil {
		return cli.Exit(runErr.Error(), exitCodeFor(runErr))
	}

	printJobStatus(job)
	return nil
}

func printJobStatus(job *domain.Job) {
	stageColor := color.New(color.FgGreen)
	stageLabel := job.Stage.String()
	if job.Failed {
		stageColor = color.New(color.FgRed)
		stageLabel = "Failed (" + stageLabel + ")"
	}
	fmt.Printf("job:      %s\n", job.ID)
	fmt.Printf("source:   %s\n", job.SourcePath)
	fmt.Printf("stage:    %s\n", stageColor.Sprint(stageLabel))
	fmt.Printf("created:  %s\n", job.CreatedAt.Format(time.RFC3339))
	if job.CompletedAt != nil {
		fmt.Printf("done:     %s\n", job.CompletedAt.Format(time.RFC3339))
	}
	if job.ErrorRecord != nil {
		fmt.Printf("error:    [%s] %s (stage %s, retries %d)\n", job.ErrorRecord.Kind, job.ErrorRecord.Message, job.ErrorRecord.Stage, job.ErrorRecord.Retries)
	}
}
