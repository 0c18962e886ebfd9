package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/fpang/litter-report/internal/app"
	"github.com/fpang/litter-report/internal/capture"
	"github.com/fpang/litter-report/internal/classify"
	"github.com/fpang/litter-report/internal/media"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var checkKeyFlag bool

var classifyCmd = &cobra.Command{
	Use:   "classify [photo]",
	Short: "Classify the waste in a photo",
	Long: `Classify sends a photo to the configured classifier and prints the
labels. Without a path a file dialog opens. --check-key only validates the
Gemini API key.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runClassify,
}

func init() {
	classifyCmd.Flags().BoolVar(&checkKeyFlag, "check-key", false, "Validate the Gemini API key and exit")
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	b := app.NewBuilder(cfg, nil)

	if checkKeyFlag {
		return checkGeminiKey(ctx, cmd, b, cfg.Classifier.Model)
	}

	svc, err := b.Classifier(ctx)
	if err != nil {
		return err
	}
	if svc == nil {
		return errors.New("classification is disabled; set --classifier-provider")
	}

	path := ""
	if len(args) == 1 {
		path = args[0]
	} else {
		path, err = capture.ZenityPicker{}.Pick(ctx)
		if err != nil {
			return err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read photo: %w", err)
	}
	if len(data) > media.MaxImportSize {
		return fmt.Errorf("photo is larger than %d bytes", media.MaxImportSize)
	}
	mimeType, ok := media.Detect(data)
	if !ok {
		return fmt.Errorf("%s is not a supported image", path)
	}

	log.Info().Str("path", path).Str("mime", mimeType).Msg("Classifying photo")
	labels, err := svc.Classify(ctx, data, mimeType)
	if err != nil {
		return err
	}
	return printJSON(cmd, labels)
}

func checkGeminiKey(ctx context.Context, cmd *cobra.Command, b *app.Builder, model string) error {
	key, err := b.GeminiKey(ctx)
	if err != nil {
		return err
	}
	client, err := classify.NewGeminiClient(ctx, key)
	if err != nil {
		return err
	}
	if err := classify.ValidateKey(ctx, client.Models, model); err != nil {
		var keyErr *classify.KeyError
		if errors.As(err, &keyErr) {
			return fmt.Errorf("key check failed (%s): %s", keyErr.Type, keyErr.Message)
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Gemini API key is valid")
	return nil
}
