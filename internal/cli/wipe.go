package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete all stored files and analysis records",
	RunE:  runWipe,
}

var wipeForce bool

func init() {
	wipeCmd.Flags().BoolVarP(&wipeForce, "force", "f", false, "Skip the confirmation prompt")
}

func runWipe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(ctx)
	if err != nil {
		return err
	}

	if !wipeForce {
		fmt.Print("This deletes all stored files and records. Continue? [y/N] ")
		reader := bufio.NewReader(os.Stdin)
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	ops, teardown, err := setupOperations(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer teardown()

	files, err := ops.FsReadDir(ctx, "./")
	if err != nil {
		return err
	}
	for _, f := range files {
		if err := ops.FsDelete(ctx, f.Path); err != nil {
			return err
		}
		logger.Debug("Deleted stored file", "path", f.Path)
	}

	if err := ops.KvFlush(ctx); err != nil {
		return err
	}

	fmt.Printf("Removed %d files and flushed the record store.\n", len(files))
	return nil
}
