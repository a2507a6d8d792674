package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/lexiqai/speech-streamer/internal/capture"
	"github.com/lexiqai/speech-streamer/internal/config"
	"github.com/lexiqai/speech-streamer/internal/observability"
	"github.com/lexiqai/speech-streamer/internal/segment"
	"github.com/lexiqai/speech-streamer/internal/session"
	"github.com/lexiqai/speech-streamer/internal/stt"
	"github.com/lexiqai/speech-streamer/internal/transport"
	"github.com/lexiqai/speech-streamer/internal/vad"
)

func newSource(cfg *config.Config, opts *runOptions, logger zerolog.Logger) capture.Source {
	if opts.input == "-" {
		return capture.NewReaderSource(os.Stdin, cfg.SampleRate, cfg.FrameSize, logger)
	}
	return capture.NewWAVSource(opts.input, cfg.SampleRate, cfg.FrameSize, !opts.fast, logger)
}

func sessionConfig(cfg *config.Config) session.Config {
	return session.Config{
		Detector: vad.Config{
			WindowSize: cfg.FFTSize,
			Scorer: vad.ScorerConfig{
				RMSThreshold:    cfg.VADRMSThreshold,
				SpeechThreshold: cfg.VADSpeechThreshold,
				Smoothing:       cfg.VADSmoothing,
			},
			Machine: vad.MachineConfig{
				MinSpeak:   cfg.MinSpeak(),
				MinSilence: cfg.MinSilence,
				Debounce:   cfg.Debounce(),
			},
			NoiseFloor:      cfg.VADNoiseFloor,
			NoiseAdaptation: cfg.VADNoiseAdaptation,
		},
		Segmenter: segment.Config{
			PreRoll:    cfg.PreRoll(),
			MaxSegment: cfg.MaxSegment(),
		},
		DumpDir: cfg.SegmentDumpDir,
	}
}

func streamConfig(cfg *config.Config) transport.Config {
	params := transport.StreamParams{
		Window:          cfg.ServerWindow,
		Interval:        cfg.ServerInterval,
		MinSeconds:      cfg.ServerMinSeconds,
		Language:        cfg.ServerLanguage,
		PartialInterval: cfg.ServerPartialInterval,
	}
	return transport.Config{
		URL:          cfg.ServerURL,
		Params:       params.Clamp(),
		Model:        cfg.ServerModel,
		DialTimeout:  cfg.DialTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
		BackoffFloor: cfg.BackoffFloor(),
		BackoffCap:   cfg.BackoffCap(),
	}
}

func newUplinkFactory(cfg *config.Config, logger zerolog.Logger) session.UplinkFactory {
	if cfg.UplinkBackend == config.BackendDeepgram {
		dgConfig := stt.DeepgramConfig{
			APIKey:              cfg.DeepgramAPIKey,
			Model:               cfg.DeepgramModel,
			Language:            cfg.DeepgramLanguage,
			SampleRate:          cfg.SampleRate,
			UtteranceEndMs:      cfg.DeepgramUtteranceEndMs,
			BreakerMaxFailures:  cfg.CircuitBreakerMaxFailures,
			BreakerResetTimeout: cfg.BreakerResetTimeout(),
			BackoffFloor:        cfg.BackoffFloor(),
			BackoffCap:          cfg.BackoffCap(),
		}
		return func(observer transport.Observer) session.Uplink {
			return stt.NewDeepgramUplink(dgConfig, observer, logger)
		}
	}

	streamCfg := streamConfig(cfg)
	return func(observer transport.Observer) session.Uplink {
		return transport.NewStreamTransport(streamCfg, observer, logger)
	}
}

func newDiagnosticsServer(cfg *config.Config, sess *session.Session) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", observability.HealthCheckHandler())
	mux.HandleFunc("/ready", observability.ReadinessHandler(map[string]observability.HealthCheckFunc{
		"uplink": func(ctx context.Context) (bool, error) {
			if state := sess.ConnectionState(); state != transport.Connected {
				return false, fmt.Errorf("uplink is %s", state)
			}
			return true, nil
		},
	}))

	if cfg.MetricsEnabled {
		mux.Handle("/metrics", promhttp.Handler())
	}

	mux.HandleFunc("/transcripts", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, sess.Transcripts())
	})

	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		models, ok := sess.Models()
		if !ok {
			http.Error(w, "model list not received yet", http.StatusNotFound)
			return
		}
		respondJSON(w, http.StatusOK, models)
	})

	mux.HandleFunc("/segments/last.wav", func(w http.ResponseWriter, r *http.Request) {
		data, ok, err := sess.LastSegmentWAV()
		switch {
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		case !ok:
			http.Error(w, "no segment recorded yet", http.StatusNotFound)
		default:
			w.Header().Set("Content-Type", "audio/wav")
			w.Write(data)
		}
	})

	return &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func respondJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
