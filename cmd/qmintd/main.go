package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/quantummint/qmintd/internal/config"
	"github.com/quantummint/qmintd/internal/core/application"
	"github.com/quantummint/qmintd/internal/core/domain"
	"github.com/quantummint/qmintd/internal/telemetry"
)

func main() {
	app := cli.NewApp()
	app.Name = "qmintd"
	app.Usage = "unforgeable token issuance and verification over a simulated quantum network"
	app.Flags = config.Flags
	app.Action = rootAction

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func rootAction(c *cli.Context) error {
	cfg, err := config.LoadConfig(c)
	if err != nil {
		return err
	}

	log.SetLevel(log.Level(cfg.LogLevel))
	log.Infof("qmintd config: %s", cfg)

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGHUP,
	)
	defer stop()

	if cfg.OtelCollectorEndpoint != "" {
		pushInterval := time.Duration(cfg.OtelPushInterval) * time.Second
		otelShutdown, err := telemetry.InitOtelSDK(ctx, cfg.OtelCollectorEndpoint, pushInterval)
		if err != nil {
			return fmt.Errorf("failed to init otel sdk: %w", err)
		}
		defer func() {
			if err := otelShutdown(context.Background()); err != nil {
				log.Errorf("failed to shutdown otel: %s", err)
			}
		}()

		metrics, err := telemetry.NewMetrics()
		if err != nil {
			return fmt.Errorf("failed to init metrics: %w", err)
		}
		cfg.EventBus().RegisterHandler(metrics.Handler())
	}
	cfg.EventBus().RegisterHandler(func(event domain.Event) {
		log.WithField("type", event.GetType()).Trace("protocol event")
	})

	report, err := run(ctx, cfg)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"serial":        report.Serial,
		"outcome":       report.Outcome.String(),
		"mismatches":    report.Mismatches,
		"units_checked": report.UnitsChecked,
	}).Info("protocol run finished")
	return nil
}

// run drives one full protocol round: the issuer task mints, distributes and
// verifies; the holder task receives and redeems. Both run under one
// errgroup so a failure or signal cancels the peer.
func run(ctx context.Context, cfg *config.Config) (*domain.VerificationReport, error) {
	netw := cfg.Network()
	bus := cfg.EventBus()
	backend := cfg.Backend()
	defer func() {
		if err := netw.Close(); err != nil {
			log.WithError(err).Warn("failed to close network")
		}
		if err := bus.Close(); err != nil {
			log.WithError(err).Warn("failed to close event bus")
		}
		if err := backend.Close(); err != nil {
			log.WithError(err).Warn("failed to close backend")
		}
	}()

	if err := netw.Start(); err != nil {
		return nil, fmt.Errorf("failed to start network: %w", err)
	}

	issuer := application.NewIssuer(cfg.IssuerEndpoint(), backend, cfg.BitSource(), bus)
	holder := application.NewHolder(cfg.HolderEndpoint(), backend, bus)

	var report *domain.VerificationReport
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := issuer.MintAndDistribute(
			gctx, domain.PartyHolder, cfg.TokenCount, cfg.UnitsPerToken,
		); err != nil {
			return fmt.Errorf("issuer: %w", err)
		}
		r, err := issuer.VerifyRedemption(gctx, domain.PartyHolder, cfg.WaitTimeout)
		if err != nil {
			return fmt.Errorf("issuer: %w", err)
		}
		report = r
		return nil
	})
	g.Go(func() error {
		if err := holder.ReceiveTokens(
			gctx, domain.PartyIssuer, 0, cfg.TokenCount, cfg.UnitsPerToken, cfg.WaitTimeout,
		); err != nil {
			return fmt.Errorf("holder: %w", err)
		}
		if err := holder.Redeem(gctx, domain.PartyIssuer, cfg.RedeemSerial); err != nil {
			return fmt.Errorf("holder: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}
