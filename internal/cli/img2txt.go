package cli

import (
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"resumind/internal/common"
	"resumind/internal/types"

	"github.com/spf13/cobra"
)

var img2txtCmd = &cobra.Command{
	Use:   "img2txt [image-file]",
	Short: "Extract text from an image using the AI service",
	Long: `Extract the visible text from an image. The image is stored through
the file system capability and handed to the AI service for transcription.
With --stored the argument is treated as an already stored file path instead
of a local file.`,
	Args: cobra.ExactArgs(1),
	RunE: runImg2Txt,
}

var img2txtStored bool

func init() {
	img2txtCmd.Flags().BoolVar(&img2txtStored, "stored", false, "Treat the argument as an already stored file path")
}

func runImg2Txt(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	logger, err := getLoggerFromContext(ctx)
	if err != nil {
		return err
	}

	om, stopObservability := setupObservability(cfg, logger)
	defer stopObservability()

	ops, teardown, err := setupOperations(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer teardown()

	path := args[0]
	if !img2txtStored {
		data, err := common.NewFileProcessor(logger).ReadFile(path)
		if err != nil {
			return err
		}
		blob := &types.FileBlob{
			FileName: filepath.Base(path),
			MIME:     http.DetectContentType(data),
			Data:     data,
		}
		desc, err := ops.FsWrite(ctx, blob)
		if err != nil {
			return err
		}
		path = desc.Path
		logger.Debug("Image stored for transcription", "path", path)
	}

	start := time.Now()
	text, err := ops.AiImg2Txt(ctx, path)
	if om != nil {
		om.GetMetrics().TrackAIRequest(ctx, "img2txt", time.Since(start).Seconds(), err, 0, 0, 0)
	}
	if err != nil {
		return err
	}
	fmt.Println(text)
	return nil
}
