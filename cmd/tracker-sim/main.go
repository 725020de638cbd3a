package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/langchou/fleetgazer/internal/models"
	"github.com/langchou/fleetgazer/internal/simulator"
)

func main() {
	server := pflag.StringP("server", "s", "http://localhost:4000", "fleetgazer server URL")
	vehicleIDs := pflag.StringSliceP("vehicles", "v", nil, "vehicle IDs to simulate (default: every vehicle on the server)")
	interval := pflag.DurationP("interval", "i", 5*time.Second, "time between transmissions")
	rounds := pflag.IntP("rounds", "n", 0, "stop after this many rounds (0 runs until interrupted)")
	debug := pflag.Bool("debug", false, "enable debug logging")
	pflag.Parse()

	logger := initLogger(*debug)
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := simulator.NewClient(*server)
	trackers, err := buildTrackers(ctx, client, *vehicleIDs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "tracker-sim: %v\n", err)
		os.Exit(1)
	}

	logger.Info("Starting vehicle trackers",
		zap.String("server", *server),
		zap.Int("trackers", len(trackers)),
		zap.Duration("interval", *interval))

	simulator.Run(ctx, client, trackers, *interval, *rounds, logger)

	logger.Info("Vehicle trackers stopped")
}

// buildTrackers 以服务端当前位置和油量为起点创建模拟设备
// 服务端不存在的 ID 仍会模拟，服务端会拒绝这些上报。
func buildTrackers(ctx context.Context, client *simulator.Client, ids []string) ([]*simulator.Tracker, error) {
	fleet, err := client.Fleet(ctx)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]models.Vehicle, len(fleet))
	for _, v := range fleet {
		byID[v.ID] = v
	}
	if len(ids) == 0 {
		for _, v := range fleet {
			ids = append(ids, v.ID)
		}
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("no vehicles to simulate")
	}

	seed := time.Now().UnixNano()
	trackers := make([]*simulator.Tracker, 0, len(ids))
	for i, id := range ids {
		v, ok := byID[id]
		var fuel *float64
		if ok {
			fuel = &v.FuelLevel
		}
		trackers = append(trackers, simulator.NewTracker(id, v.Position, fuel, seed+int64(i)))
	}
	return trackers, nil
}

// initLogger 初始化日志
func initLogger(debug bool) *zap.Logger {
	var config zap.Config
	if debug {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		config = zap.NewProductionConfig()
	}

	logger, _ := config.Build()
	return logger
}
