package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/local/everything2pdf"
	"github.com/local/everything2pdf/internal/config"
	"github.com/local/everything2pdf/internal/logger"
	"github.com/local/everything2pdf/internal/metrics"
	"github.com/local/everything2pdf/internal/orchestrator"
	"github.com/local/everything2pdf/internal/store"
)

type rootOptions struct {
	envFile  string
	logLevel string
	cfg      config.Config
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "everything2pdf",
		Short:         "Merge images, office documents and PDFs into one PDF",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if opts.envFile != "" {
				config.LoadDotEnv(opts.envFile)
			} else {
				config.LoadDotEnv()
			}
			opts.cfg = config.FromEnv()
			if opts.logLevel != "" {
				opts.cfg.Logging.Level = opts.logLevel
			}
			return logger.Init(logger.OptionsFromConfig(opts.cfg))
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logger.Close()
		},
	}
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "env file to load (default .env)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override LOG_LEVEL")

	root.AddCommand(newConvertCmd(opts), newFormatsCmd(), newOfficeCmd())
	return root
}

type convertOptions struct {
	output     string
	dpi        int
	office     string
	noProgress bool
}

func newConvertCmd(root *rootOptions) *cobra.Command {
	opts := &convertOptions{}

	cmd := &cobra.Command{
		Use:   "convert -o OUTPUT FILE...",
		Short: "Convert files, in the given order, into a single PDF",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(cmd, root.cfg, opts, args)
		},
	}
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output PDF path")
	cmd.Flags().IntVar(&opts.dpi, "dpi", 0, "rasterization DPI (default CONVERT_DPI or 150)")
	cmd.Flags().StringVar(&opts.office, "office", "", "office suite executable (default OFFICE_PATH or discovery)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "disable the progress bar")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}

func runConvert(cmd *cobra.Command, cfg config.Config, opts *convertOptions, paths []string) error {
	dpi := opts.dpi
	if dpi <= 0 {
		dpi = cfg.Convert.DPI
	}
	office := opts.office
	if office == "" {
		office = cfg.Convert.OfficePath
	}
	output, err := filepath.Abs(opts.output)
	if err != nil {
		return err
	}

	metrics.Init()

	convOpts := everything2pdf.Options{
		OfficeTimeout:     cfg.Convert.OfficeTimeout,
		OfficeMaxWorkers:  cfg.Convert.OfficeMaxWorkers,
		FallbackFontPaths: cfg.Convert.FallbackFontPaths,
		ScratchDir:        cfg.Scratch.Dir,
		ScratchMaxAge:     cfg.Scratch.MaxAge,
	}
	if cfg.Progress.RedisURL != "" {
		rs, err := store.NewRedisStatus(cfg.Progress.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("progress store unavailable, continuing without it")
		} else {
			defer rs.Close()
			convOpts.Status = orchestrator.NewStatusAdapter(rs)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var progress everything2pdf.ProgressFunc
	var bar *progressBar
	if !opts.noProgress {
		bar = newProgressBar(cmd.ErrOrStderr(), len(paths))
		progress = bar.Update
	}

	res := everything2pdf.New(convOpts).Convert(ctx, paths, output, office, dpi, progress)
	if bar != nil {
		bar.Finish()
	}

	if cfg.Progress.MetricsTextfile != "" {
		if err := metrics.WriteTextfile(cfg.Progress.MetricsTextfile); err != nil {
			log.Warn().Err(err).Str("path", cfg.Progress.MetricsTextfile).Msg("failed to write metrics textfile")
		}
	}

	if !res.OK {
		return errors.New(res.Message)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (%d pages)\n", res.Message, res.OutputPath, res.Pages)
	return nil
}

func newFormatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "formats",
		Short: "List supported input extensions",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			for _, ext := range everything2pdf.SupportedExtensions() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-6s %s\n", ext, everything2pdf.Classify("x"+ext))
			}
		},
	}
}

func newOfficeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "office",
		Short: "Show which office suite would be used",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if ok, path := everything2pdf.DiscoverOfficeSuite(); ok {
				fmt.Fprintln(cmd.OutOrStdout(), path)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), "no office suite found; office files use the built-in text renderer")
		},
	}
}
