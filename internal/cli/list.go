package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"resumind/internal/types"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored resume analysis records",
	RunE:  runList,
}

var listShowIDs bool

func init() {
	listCmd.Flags().BoolVar(&listShowIDs, "ids", false, "Print record ids only")
}

func runList(cmd *cobra.Command, args []string) error {
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

	entries, err := ops.KvList(ctx, types.RecordKeyPrefix+"*", !listShowIDs)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No records stored.")
		return nil
	}

	for _, entry := range entries {
		id := strings.TrimPrefix(entry.Key, types.RecordKeyPrefix)
		if listShowIDs {
			fmt.Println(id)
			continue
		}
		var record types.ResumeRecord
		if err := json.Unmarshal([]byte(entry.Value), &record); err != nil {
			logger.Warn("Skipping undecodable record", "key", entry.Key, "error", err)
			continue
		}
		status := "pending"
		if record.Feedback != nil {
			status = fmt.Sprintf("score %d/100", record.Feedback.OverallScore)
		}
		fmt.Printf("%s  %s at %s  (%s)\n", id, record.JobTitle, record.CompanyName, status)
	}
	return nil
}
