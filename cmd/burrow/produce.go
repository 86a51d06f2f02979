package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/cuemby/burrow/pkg/blob"
	"github.com/cuemby/burrow/pkg/config"
	"github.com/cuemby/burrow/pkg/engine"
	"github.com/cuemby/burrow/pkg/events"
	"github.com/cuemby/burrow/pkg/log"
	"github.com/cuemby/burrow/pkg/metrics"
	"github.com/cuemby/burrow/pkg/producer"
)

var produceCmd = &cobra.Command{
	Use:   "produce",
	Short: "Run a producer over a dataset definition file",
	Long: `Run producer cycles from a YAML manifest. Each cycle re-reads the
dataset file and publishes a new version when its content changed.

Examples:
  # Produce every 30 seconds from manifest.yaml
  burrow produce -f manifest.yaml

  # Run exactly one cycle and exit
  burrow produce -f manifest.yaml --once`,
	RunE: runProduce,
}

func init() {
	produceCmd.Flags().StringP("file", "f", "", "Producer manifest (required)")
	produceCmd.Flags().Bool("once", false, "Run one cycle and exit")
	produceCmd.Flags().String("metrics-addr", "", "Serve Prometheus metrics on this address")
	_ = produceCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(produceCmd)
}

func runProduce(cmd *cobra.Command, args []string) error {
	manifest, _ := cmd.Flags().GetString("file")
	once, _ := cmd.Flags().GetBool("once")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")

	cfg, err := config.Load(manifest)
	if err != nil {
		return err
	}
	logger := log.Component("produce")

	store, err := blob.NewBoltStore(cfg.StorePath)
	if err != nil {
		return err
	}
	defer store.Close()

	ds, err := config.LoadDataset(cfg.Dataset)
	if err != nil {
		return err
	}
	schemas := make([]engine.Schema, 0, len(ds.Types))
	for _, t := range ds.Types {
		s, err := t.Schema()
		if err != nil {
			return err
		}
		schemas = append(schemas, s)
	}

	shardSize, err := cfg.ShardSizeBytes()
	if err != nil {
		return err
	}
	var comp blob.Compressor
	if cfg.Compression == "snappy" {
		comp = blob.SnappyCompressor{}
	}

	stream := events.NewStream(0)
	go tailEvents(logger, stream)

	p, err := producer.New(
		producer.WithStagingDir(cfg.StagingDir),
		producer.WithCompressor(comp),
		producer.WithPublisher(store),
		producer.WithAnnouncer(store),
		producer.WithSchemas(schemas...),
		producer.WithNumStatesBetweenSnapshots(cfg.NumStatesBetweenSnapshots),
		producer.WithTargetMaxTypeShardSize(shardSize),
		producer.WithSnapshotPublishExecutor(producer.GoroutineExecutor{}),
		producer.WithListeners(stream),
	)
	if err != nil {
		return err
	}

	// Resume the delta chain from whatever was announced last.
	if announced, err := store.AnnouncedVersion(); err != nil {
		return err
	} else if !announced.IsNone() {
		if _, err := p.Restore(announced, store); err != nil {
			return err
		}
	}

	if metricsAddr != "" {
		metrics.Register()
		go func() {
			http.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(metricsAddr, nil); err != nil {
				logger.Error().Err(err).Msg("Metrics server stopped")
			}
		}()
	}

	populate := datasetPopulator(cfg.Dataset)

	if once {
		_, err := p.RunCycle(populate)
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	ticker := time.NewTicker(cfg.CycleInterval)
	defer ticker.Stop()

	logger.Info().Dur("interval", cfg.CycleInterval).Msg("Producer running")
	for {
		if _, err := p.RunCycle(populate); err != nil {
			logger.Error().Err(err).Msg("Cycle rejected by validation")
		}
		select {
		case <-ticker.C:
		case <-sigCh:
			logger.Info().Msg("Shutting down")
			return nil
		}
	}
}

// tailEvents logs the producer's lifecycle stream: announcements and
// unsuccessful events at info, everything else at debug.
func tailEvents(logger zerolog.Logger, stream *events.Stream) {
	for ev := range stream.C() {
		entry := logger.Debug()
		if ev.Type == events.EventAnnounced || !ev.Success {
			entry = logger.Info()
		}
		entry.
			Str("event", string(ev.Type)).
			Stringer("version", ev.Version).
			Dur("elapsed", ev.Elapsed).
			Bool("success", ev.Success).
			Msg(ev.Message)
	}
}

// datasetPopulator re-reads the dataset file each cycle and stages its
// full content. Each type is emptied and refilled in file order; the
// write engine hands out the smallest freed ordinals first, so an
// unchanged file reproduces identical records at identical ordinals and
// the cycle ends with no delta.
func datasetPopulator(path string) producer.Populator {
	return func(ws *producer.WriteState) error {
		ds, err := config.LoadDataset(path)
		if err != nil {
			return err
		}
		for _, t := range ds.Types {
			s, err := t.Schema()
			if err != nil {
				return err
			}
			if err := ws.RemoveAll(t.Name); err != nil {
				return err
			}
			for _, rec := range t.Records {
				if _, err := ws.Add(t.Name, datasetValues(s, rec)); err != nil {
					return err
				}
			}
		}
		return nil
	}
}

// datasetValues adapts YAML-decoded records to engine values: YAML has
// no bytes literal, so bytes fields arrive as strings.
func datasetValues(s engine.Schema, rec map[string]any) engine.Values {
	vals := make(engine.Values, len(rec))
	for _, f := range s.Fields {
		raw, ok := rec[f.Name]
		if !ok {
			continue
		}
		if f.Type == engine.FieldBytes {
			if str, ok := raw.(string); ok {
				raw = []byte(str)
			}
		}
		vals[f.Name] = raw
	}
	return vals
}
