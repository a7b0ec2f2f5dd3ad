package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/d21d3q/meterbus/internal/config"
	"github.com/d21d3q/meterbus/internal/metrics"
	"github.com/d21d3q/meterbus/internal/mqtt"
	"github.com/d21d3q/meterbus/pkg/meterbus"
)

var (
	rootCmd = &cobra.Command{
		Use:   "meterbus",
		Short: "Decode Wireless M-Bus meter telegrams",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := logrus.ParseLevel(logLevel)
			if err != nil {
				return err
			}
			logrus.SetLevel(lvl)
			return nil
		},
	}

	analyzeCmd = &cobra.Command{
		Use:   "analyze [hex]",
		Short: "Decode a telegram and explain its records",
		Long:  "analyze decodes one telegram given as argument, or reads telegrams interactively from stdin.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := meterbus.AnalyzeOptions{
				Driver: driverName,
				Units:  unitNames,
				Log:    logrus.NewEntry(logrus.StandardLogger()),
			}
			ctx := cmd.Context()
			if len(args) == 0 {
				return runInteractive(ctx, opts)
			}
			return runAnalyze(ctx, opts, args[0])
		},
	}

	fieldsCmd = &cobra.Command{
		Use:   "fields [driver]",
		Short: "List drivers, or the fields a driver exposes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				for _, name := range meterbus.Drivers() {
					fmt.Fprintln(cmd.OutOrStdout(), name)
				}
				return nil
			}
			return printFields(cmd.OutOrStdout(), args[0])
		},
	}

	listenCmd = &cobra.Command{
		Use:   "listen",
		Short: "Decode hex telegrams, one per line, and publish the readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context())
		},
	}

	logLevel   string
	driverName string
	unitNames  []string
	configPath string
	inputPath  string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	analyzeCmd.Flags().StringVar(&driverName, "driver", "", "force a driver instead of detecting one")
	analyzeCmd.Flags().StringSliceVar(&unitNames, "unit", nil, "preferred display unit, e.g. mwh or f (repeatable)")
	listenCmd.Flags().StringVarP(&configPath, "config", "c", "meterbus.yaml", "configuration file")
	listenCmd.Flags().StringVar(&inputPath, "input", "-", "file with hex telegrams, - for stdin")
	rootCmd.AddCommand(analyzeCmd, fieldsCmd, listenCmd)
}

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logrus.Fatal(err)
	}
}

func runInteractive(ctx context.Context, opts meterbus.AnalyzeOptions) error {
	scanner := bufio.NewScanner(os.Stdin)
	logrus.Info("meterbus analyze mode. Paste a hex telegram and press Enter (Ctrl+D to exit).")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := runAnalyze(ctx, opts, line); err != nil {
			logrus.WithError(err).Error("failed to decode telegram")
		}
	}
	return scanner.Err()
}

func runAnalyze(ctx context.Context, opts meterbus.AnalyzeOptions, hex string) error {
	result, err := meterbus.AnalyzeHexWithOptions(ctx, hex, opts)
	if err != nil {
		return err
	}
	fmt.Println(result.String())
	return nil
}

func printFields(w io.Writer, name string) error {
	fields, err := meterbus.DriverFields(name)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "FIELD\tQUANTITY\tUNIT\tDESCRIPTION")
	for _, f := range fields {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Name, f.Quantity, f.Unit, f.Help)
	}
	return tw.Flush()
}

func runListen(ctx context.Context) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !rootCmd.PersistentFlags().Changed("log-level") {
		logrus.SetLevel(cfg.Level())
	}
	log := logrus.NewEntry(logrus.StandardLogger())

	prefer, err := cfg.PreferredUnits()
	if err != nil {
		return err
	}
	opts := meterbus.CollectorOptions{
		Meters:  cfg.Meters,
		Units:   prefer,
		Metrics: metrics.New(prometheus.DefaultRegisterer),
		Log:     log,
	}
	if cfg.MQTT.Enabled {
		pub, err := mqtt.Connect(cfg.MQTT, log)
		if err != nil {
			return err
		}
		defer pub.Close()
		opts.Publisher = pub
	}
	collector, err := meterbus.NewCollector(opts)
	if err != nil {
		return err
	}

	srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.WithField("addr", cfg.Metrics.Addr).Info("serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server stopped")
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	in := io.Reader(os.Stdin)
	if inputPath != "-" {
		f, err := os.Open(inputPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}
	err = collector.Run(ctx, in)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
