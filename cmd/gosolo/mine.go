package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mkrell/gosolo/internal/config"
	"github.com/mkrell/gosolo/internal/messaging"
	"github.com/mkrell/gosolo/internal/miner"
	"github.com/mkrell/gosolo/internal/stratum"
	"github.com/mkrell/gosolo/internal/telemetry"
	"github.com/mkrell/gosolo/pkg/log"
)

func newMineCmd() *cobra.Command {
	var (
		poolPreset   string
		poolHost     string
		poolPort     int
		worker       string
		password     string
		rangeSize    uint32
		useHints     bool
		maxRotations uint64
	)

	cmd := &cobra.Command{
		Use:   "mine",
		Short: "Connect to a pool and start mining",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			// Flags override environment configuration
			if cmd.Flags().Changed("pool") {
				preset, ok := stratum.Preset(poolPreset)
				if !ok {
					return fmt.Errorf("unknown pool preset %q (see 'gosolo pools')", poolPreset)
				}
				cfg.PoolPreset = preset.Name
				cfg.PoolHost = preset.Host
				cfg.PoolPort = preset.Port
			}
			if cmd.Flags().Changed("host") {
				cfg.PoolHost = poolHost
			}
			if cmd.Flags().Changed("port") {
				cfg.PoolPort = poolPort
			}
			if cmd.Flags().Changed("worker") {
				cfg.WorkerName = worker
			}
			if cmd.Flags().Changed("password") {
				cfg.WorkerPassword = password
			}
			if cmd.Flags().Changed("range") {
				cfg.NonceRangeSize = rangeSize
			}
			if cmd.Flags().Changed("hints") {
				cfg.UseHints = useHints
			}
			if cmd.Flags().Changed("max-rotations") {
				cfg.MaxRotations = maxRotations
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			return runMine(cfg)
		},
	}

	cmd.Flags().StringVar(&poolPreset, "pool", "", "named pool preset (see 'gosolo pools')")
	cmd.Flags().StringVar(&poolHost, "host", "", "pool host (overrides preset)")
	cmd.Flags().IntVar(&poolPort, "port", 0, "pool port (overrides preset)")
	cmd.Flags().StringVar(&worker, "worker", "", "worker name (defaults to the wallet address)")
	cmd.Flags().StringVar(&password, "password", "", "worker password")
	cmd.Flags().Uint32Var(&rangeSize, "range", 0, "nonce range size per sweep")
	cmd.Flags().BoolVar(&useHints, "hints", true, "run the hint phase before sequential sweeps")
	cmd.Flags().Uint64Var(&maxRotations, "max-rotations", 0, "stop after this many sweeps (0 = unlimited)")

	return cmd
}

func runMine(cfg *config.Config) error {
	logger := log.New(cfg.ServiceName, cfg.Version, cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting gosolo",
		"version", cfg.Version,
		"pool", fmt.Sprintf("%s:%d", cfg.PoolHost, cfg.PoolPort),
	)

	engine := miner.NewEngine(cfg, logger)

	sink, err := buildSink(cfg, logger)
	if err != nil {
		return err
	}
	if sink != nil {
		defer sink.Close()
		engine.SetSink(sink)
	}

	var bridge *messaging.EventBridge
	if len(cfg.KafkaBrokers) > 0 {
		kafkaClient := messaging.NewKafkaClient(cfg.KafkaBrokers, logger)
		bridge = messaging.NewEventBridge(kafkaClient, cfg.KafkaTopic, logger)
		defer bridge.Close()
	}

	if err := engine.Start(context.Background()); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, stopping", "signal", sig.String())
			stats := engine.Stop()
			printStats(stats)
			return nil

		case ev := <-engine.Events():
			printEvent(ev)
			if bridge != nil {
				bridge.Publish(ev)
			}
			switch ev.Type {
			case miner.EventStopped:
				if ev.Stats != nil {
					printStats(*ev.Stats)
				}
				return nil
			case miner.EventStateChanged:
				if ev.State == miner.StateError.String() {
					stats := engine.Stop()
					printStats(stats)
					return fmt.Errorf("mining session failed")
				}
			}

		case <-engine.Done():
			// Drain whatever the engine emitted on its way out
			for {
				select {
				case ev := <-engine.Events():
					printEvent(ev)
					if bridge != nil {
						bridge.Publish(ev)
					}
				default:
					printStats(engine.Snapshot())
					return nil
				}
			}
		}
	}
}

func buildSink(cfg *config.Config, logger *log.Logger) (*telemetry.Sink, error) {
	var (
		influx *telemetry.InfluxClient
		rds    *telemetry.RedisClient
		err    error
	)

	if cfg.InfluxURL != "" {
		influx, err = telemetry.NewInfluxClient(&telemetry.InfluxConfig{
			URL:    cfg.InfluxURL,
			Token:  cfg.InfluxToken,
			Org:    cfg.InfluxOrg,
			Bucket: cfg.InfluxBucket,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("influx setup failed: %w", err)
		}
	}

	if cfg.RedisAddr != "" {
		rds, err = telemetry.NewRedisClient(&telemetry.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			if influx != nil {
				influx.Close()
			}
			return nil, fmt.Errorf("redis setup failed: %w", err)
		}
	}

	if influx == nil && rds == nil {
		return nil, nil
	}
	return telemetry.NewSink(influx, rds, logger), nil
}

func printEvent(ev miner.Event) {
	switch ev.Type {
	case miner.EventStateChanged:
		fmt.Printf("[%s] state: %s\n", ev.Timestamp.Format("15:04:05"), ev.State)
	case miner.EventJobReceived:
		fmt.Printf("[%s] job %s received\n", ev.Timestamp.Format("15:04:05"), ev.JobID)
	case miner.EventDifficultyChanged:
		fmt.Printf("[%s] difficulty: %g\n", ev.Timestamp.Format("15:04:05"), ev.Difficulty)
	case miner.EventRotationComplete:
		fmt.Printf("[%s] rotation %d complete (job %s)\n", ev.Timestamp.Format("15:04:05"), ev.Rotation, ev.JobID)
	case miner.EventBlockFound:
		fmt.Printf("[%s] BLOCK FOUND: job=%s nonce=%s hash=%s zeros=%d\n",
			ev.Timestamp.Format("15:04:05"), ev.JobID, ev.Nonce, ev.BlockHash, ev.LeadingZeros)
	case miner.EventShareAccepted:
		fmt.Printf("[%s] share accepted (job %s, nonce %s)\n", ev.Timestamp.Format("15:04:05"), ev.JobID, ev.Nonce)
	case miner.EventShareRejected:
		fmt.Printf("[%s] share rejected (job %s, nonce %s)\n", ev.Timestamp.Format("15:04:05"), ev.JobID, ev.Nonce)
	case miner.EventSubmissionError:
		fmt.Printf("[%s] submission error: %s\n", ev.Timestamp.Format("15:04:05"), ev.Error)
	case miner.EventStopped:
		fmt.Printf("[%s] engine stopped\n", ev.Timestamp.Format("15:04:05"))
	}
}

func printStats(stats miner.Stats) {
	fmt.Println("--- final statistics ---")
	fmt.Printf("total hashes:      %d\n", stats.TotalHashes)
	fmt.Printf("hashrate:          %.2f H/s\n", stats.Hashrate)
	fmt.Printf("rotations:         %d\n", stats.Rotations)
	fmt.Printf("best leading zeros: %d\n", stats.BestLeadingZeros)
	fmt.Printf("shares accepted:   %d\n", stats.SharesAccepted)
	fmt.Printf("shares rejected:   %d\n", stats.SharesRejected)
	fmt.Printf("blocks found:      %d\n", stats.BlocksFound)
	fmt.Printf("submission errors: %d\n", stats.SubmissionErrors)
}
