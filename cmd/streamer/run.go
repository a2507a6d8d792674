package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lexiqai/speech-streamer/internal/config"
	"github.com/lexiqai/speech-streamer/internal/observability"
	"github.com/lexiqai/speech-streamer/internal/session"
	"github.com/lexiqai/speech-streamer/internal/transport"
)

type runOptions struct {
	input string
	fast  bool
	drain time.Duration
}

func bindRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVarP(&opts.input, "input", "i", "", "WAV file to stream, or - for raw f32le mono on stdin")
	cmd.Flags().BoolVar(&opts.fast, "fast", false, "stream WAV input as fast as possible instead of in real time")
	cmd.Flags().DurationVar(&opts.drain, "drain", 2*time.Second, "how long to wait for final transcripts after the input ends")
}

func newRunCmd(opts *runOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream audio through detection and segmentation to the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreamer(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	bindRunFlags(cmd, opts)
	return cmd
}

func runStreamer(ctx context.Context, opts *runOptions, out io.Writer) error {
	if opts.input == "" {
		return errors.New("--input is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogPretty)
	logger := observability.GetLogger()

	logger.Info().
		Str("backend", cfg.UplinkBackend).
		Str("input", opts.input).
		Str("vad_profile", cfg.VADProfile).
		Dur("min_silence", cfg.MinSilence).
		Str("log_level", cfg.LogLevel).
		Bool("metrics_enabled", cfg.MetricsEnabled).
		Msg("Speech streamer starting")

	source := newSource(cfg, opts, logger)

	var grpcHealth *observability.GRPCHealth
	if cfg.GRPCHealthAddr != "" {
		grpcHealth = observability.NewGRPCHealth(cfg.GRPCHealthAddr, logger)
	}

	sess, err := session.New(sessionConfig(cfg), source, newUplinkFactory(cfg, logger),
		session.WithLogger(logger),
		session.WithConnectionStateHook(func(state transport.State) {
			if grpcHealth != nil {
				grpcHealth.SetServing(state == transport.Connected)
			}
		}),
		session.WithFinalHook(func(text string) {
			fmt.Fprintln(out, text)
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	server := newDiagnosticsServer(cfg, sess)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("Diagnostics server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("diagnostics server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if grpcHealth != nil {
		g.Go(func() error {
			return grpcHealth.Serve(gctx)
		})
	}

	g.Go(func() error {
		// Everything else winds down once the session is over
		defer cancel()

		runErr := sess.Run(gctx)
		if runErr == nil && gctx.Err() == nil && opts.drain > 0 {
			logger.Info().Dur("drain", opts.drain).Msg("Input finished, waiting for final transcripts")
			select {
			case <-time.After(opts.drain):
			case <-gctx.Done():
			}
		}
		return errors.Join(runErr, sess.Stop())
	})

	err = g.Wait()
	logger.Info().Int("finals", len(sess.Transcripts().Finals)).Msg("Speech streamer exited")
	return err
}

