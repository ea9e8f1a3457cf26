package main

import (
	"github.com/spf13/cobra"

	"github.com/alirezaght/arazzo/internal/config"
	"github.com/alirezaght/arazzo/internal/telemetry"
)

var (
	cfgFile string
	cfg     config.Config
	tracer  telemetry.Tracer
)

// exitCodeErr wraps an error with the spec.md §6 exit-code convention:
// 0 success, 2 validation failed, 3 run failed, 4 runtime/infrastructure
// error.
type exitCodeErr struct {
	code int
	err  error
}

func (e *exitCodeErr) Error() string { return e.err.Error() }
func (e *exitCodeErr) Unwrap() error { return e.err }

func validationFailed(err error) error { return &exitCodeErr{code: 2, err: err} }
func runFailed(err error) error        { return &exitCodeErr{code: 3, err: err} }
func infraError(err error) error       { return &exitCodeErr{code: 4, err: err} }

func exitCodeFor(err error) int {
	if err == nil {
		return 0
	}
	if ec, ok := err.(*exitCodeErr); ok {
		return ec.code
	}
	return 4
}

var rootCmd = &cobra.Command{
	Use:   "arazzorun",
	Short: "Durable executor for Arazzo workflows",
	Long: "arazzorun validates, plans, and drives Arazzo workflow documents " +
		"to completion against live OpenAPI-described HTTP endpoints, " +
		"persisting every run so it survives process restarts.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		dbOverride := cfg.Database
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return infraError(err)
		}
		if dbOverride != "" {
			loaded.Database = dbOverride
		}
		cfg = loaded
		t, err := telemetry.New(cfg.Telemetry)
		if err != nil {
			return infraError(err)
		}
		tracer = t
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (yaml/json)")
	rootCmd.PersistentFlags().StringVar(&cfg.Database, "db", "", "sqlite database path (overrides config)")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(cancelCmd)
	rootCmd.AddCommand(serveCmd)
}
