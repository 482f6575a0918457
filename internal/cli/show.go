package cli

import (
	"encoding/json"

	"resumind/internal/common"
	"resumind/internal/errors"
	"resumind/internal/types"

	"github.com/spf13/cobra"
)

var showCmd = &cobra.Command{
	Use:   "show [record-id]",
	Short: "Show a stored resume analysis record",
	Args:  cobra.ExactArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := getConfigFromContext(cmd.Context())
		if err != nil {
			return err
		}
		if showConfig.OutputFormat == "" {
			showConfig.OutputFormat = cfg.App.DefaultFormat
		}
		return common.ValidateOutputFormat(showConfig.OutputFormat, cfg.App.SupportedFormats)
	},
	RunE: runShow,
}

var showConfig common.CommandConfig

func init() {
	showCmd.Flags().StringVarP(&showConfig.OutputFile, "output", "o", "", "Output file path (default: stdout)")
	showCmd.Flags().StringVar(&showConfig.OutputFormat, "format", "", "Output format: json, text, or markdown")
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(ctx)
	if err != nil {
		return err
	}

	ops, teardown, err := setupOperations(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer teardown()

	value, ok, err := ops.KvGet(ctx, types.RecordKey(args[0]))
	if err != nil {
		return err
	}
	if !ok {
		return errors.NewIOError(errors.ErrCodeRecordNotFound,
			"No record stored under this id", nil).
			WithContext("record_id", args[0])
	}

	var record types.ResumeRecord
	if err := json.Unmarshal([]byte(value), &record); err != nil {
		return errors.NewInternalError(errors.ErrCodeInvalidFormat,
			"Failed to decode stored record", err)
	}

	return common.NewOutputHandler(logger).HandleOutput(record, showConfig)
}
