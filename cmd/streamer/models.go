package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lexiqai/speech-streamer/internal/config"
	"github.com/lexiqai/speech-streamer/internal/observability"
	"github.com/lexiqai/speech-streamer/internal/transport"
)

func newModelsCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "models",
		Short: "Print the transcription backend's model inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			return listModels(ctx, timeout, cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the model list")
	return cmd
}

// modelsObserver hands over the first model list received
type modelsObserver struct {
	transport.NopObserver
	models chan transport.ModelList
}

func (o *modelsObserver) OnModels(models transport.ModelList) {
	select {
	case o.models <- models:
	default:
	}
}

func listModels(ctx context.Context, timeout time.Duration, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	obs := &modelsObserver{models: make(chan transport.ModelList, 1)}
	uplink := newUplinkFactory(cfg, logger)(obs)
	defer uplink.Disconnect()

	// The connection handshake requests the model list
	if err := uplink.Connect(ctx); err != nil {
		return err
	}

	select {
	case models := <-obs.models:
		printModels(out, models)
		return nil
	case <-ctx.Done():
		return fmt.Errorf("timed out waiting for the model list")
	}
}

func printModels(out io.Writer, models transport.ModelList) {
	installed := make(map[string]bool, len(models.Installed))
	for _, name := range models.Installed {
		installed[name] = true
	}

	fmt.Fprintf(out, "current: %s\n", models.Current)
	fmt.Fprintf(out, "default: %s\n", models.Default)
	for _, name := range models.Supported {
		mark := " "
		if installed[name] {
			mark = "*"
		}
		fmt.Fprintf(out, "  %s %s\n", mark, name)
	}
}
