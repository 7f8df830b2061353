package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/ffi-runtime/callback"
	"github.com/wippyai/ffi-runtime/handle"
	"github.com/wippyai/ffi-runtime/wasmlib"
)

var (
	verbose  bool
	typeExpr string
)

var rootCmd = &cobra.Command{
	Use:   "wirecat",
	Short: "Inspect values in the FFI wire format",
	Long: `wirecat converts between JSON and the big-endian FFI wire format.

Types are written as expressions such as u32, list<string>,
option<record<id: u64, name: string>> or variant<none, some: u8>.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if !verbose {
			return nil
		}
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		wasmlib.SetLogger(logger)
		handle.SetLogger(logger)
		callback.SetLogger(logger)
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log runtime activity to stderr")
	rootCmd.PersistentFlags().StringVarP(&typeExpr, "type", "t", "", "wire type expression")
}

func requireType() error {
	if typeExpr == "" {
		return fmt.Errorf("--type is required")
	}
	return nil
}
