package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spooky-finn/kucoin-book-mirror/config"
	"github.com/spooky-finn/kucoin-book-mirror/domain"
	"github.com/spooky-finn/kucoin-book-mirror/httpapi"
	"github.com/spooky-finn/kucoin-book-mirror/infrastructure/kafka"
	"github.com/spooky-finn/kucoin-book-mirror/infrastructure/logger"
	promclient "github.com/spooky-finn/kucoin-book-mirror/infrastructure/prometheus"
	"github.com/spooky-finn/kucoin-book-mirror/provider"
	"github.com/spooky-finn/kucoin-book-mirror/provider/kucoin"
	"github.com/spooky-finn/kucoin-book-mirror/rpc"
	"github.com/spooky-finn/kucoin-book-mirror/usecase"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
)

func main() {
	os.Exit(mirror(os.Args[1:]))
}

// mirror runs the service and returns the process exit code once every
// deferred cleanup has run.
func mirror(args []string) int {
	flags := flag.NewFlagSet("mirror", flag.ContinueOnError)
	configPath := flags.String("config", "", "path to the YAML config file")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %s\n", err)
		return 1
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %s\n", err)
		return 1
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *configPath, log); err != nil {
		log.Error("mirror stopped with error", zap.Error(err))
		return 1
	}
	log.Info("mirror stopped")
	return 0
}

func run(ctx context.Context, cfg *config.Config, configPath string, log *zap.Logger) error {
	storage := domain.NewOrderBookStorage()
	metrics := promclient.NewMetrics(storage.OrderBookCount)
	observers := domain.SyncObservers{metrics}

	var publisher *kafka.SyncEventPublisher
	if cfg.Kafka.Enabled() {
		publisher = kafka.NewSyncEventPublisher(cfg.Kafka, log)
		observers = append(observers, publisher)
	}

	connManager := provider.NewConnectionManager(
		cfg.SyncAPIConfig(),
		kucoin.DefaultStreamClientConfig(),
		cfg.Symbols,
		log,
	)
	defer connManager.Close()

	sequencer := domain.NewUpdateSequencer(storage, connManager.Refresher, &kucoin.KucoinDepthUpdateValidator{},
		domain.WithSequencerConfig(cfg.SequencerConfig()),
		domain.WithSyncObserver(observers),
		domain.WithSequencerLogger(log),
	)

	snapshotUC := usecase.NewOrderBookSnapshotUseCase(storage, connManager.KucoinSyncAPI, observers, log)
	feedUC := usecase.NewFeedControlUseCase(connManager.KucoinWS, sequencer, sequencer, log)
	validation := rpc.NewValidationService(&rpc.ValidationServiceConfig{AvailableSymbols: cfg.Symbols})

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		feedUC.Consume(ctx, connManager.DepthUpdates(ctx))
		return nil
	})

	if err := connManager.Init(sequencer, feedUC.ResyncAll); err != nil {
		return err
	}

	if publisher != nil {
		g.Go(func() error {
			publisher.Run(ctx)
			return publisher.Close()
		})
	}

	g.Go(func() error {
		return httpapi.Serve(ctx, cfg.HTTP.Addr, httpapi.NewQueryHandler(snapshotUC, metrics.Handler(), log), log)
	})
	g.Go(func() error {
		return httpapi.Serve(ctx, cfg.HTTP.AdminAddr, httpapi.NewAdminHandler(feedUC, log), log)
	})

	if cfg.GRPC.Addr != "" {
		lis, err := net.Listen("tcp", cfg.GRPC.Addr)
		if err != nil {
			return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
		}

		grpcServer := grpc.NewServer()
		rpc.RegisterOrderBookServiceServer(grpcServer, rpc.NewServer(snapshotUC, feedUC, validation, log))

		g.Go(func() error {
			log.Info("grpc server listening", zap.String("addr", lis.Addr().String()))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			grpcServer.GracefulStop()
			return nil
		})
	}

	if configPath != "" {
		watcher, err := config.NewWatcher(configPath, cfg.Symbols, log)
		if err != nil {
			return err
		}
		defer watcher.Close()

		g.Go(func() error {
			watcher.Run(ctx, func(next *config.Config) {
				validation.SetSymbols(next.Symbols)
				feedUC.UpdateSymbols(next.Symbols)
			})
			return nil
		})
	}

	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Debug("sd_notify failed", zap.Error(err))
	}

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	return g.Wait()
}
