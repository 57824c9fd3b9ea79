// Command rta-server runs the RTA token exchange and enforcement endpoints
// as two independent QUIC listeners sharing one process.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/empowerID/RealTimeAuth/internal/authzctx"
	"github.com/empowerID/RealTimeAuth/internal/config"
	"github.com/empowerID/RealTimeAuth/internal/enforcement"
	"github.com/empowerID/RealTimeAuth/internal/exchange"
	"github.com/empowerID/RealTimeAuth/internal/idp"
	"github.com/empowerID/RealTimeAuth/internal/logging"
	"github.com/empowerID/RealTimeAuth/internal/metrics"
	"github.com/empowerID/RealTimeAuth/internal/repository"
	"github.com/empowerID/RealTimeAuth/internal/revocation"
	"github.com/empowerID/RealTimeAuth/internal/rtatoken"
	"github.com/empowerID/RealTimeAuth/internal/transport"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// gracePeriod bounds how long in-flight streams get to finish after a
// shutdown signal before the process exits.
const gracePeriod = 5 * time.Second

func main() {
	settings, err := config.Load("config")
	if err != nil {
		logrus.WithError(err).Fatal("failed to load configuration")
	}

	log := logging.New(settings.LogLevel, "rta-server")

	signingKeyPath := os.Getenv("RTA_SIGNING_KEY_PATH")
	privateKey, publicKey, err := rtatoken.LoadSigningKey(signingKeyPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load signing key")
	}

	signer := rtatoken.NewSigner(privateKey)
	verifier := rtatoken.NewVerifier(publicKey)

	idpAdapter := idp.New(settings.Idp, logging.New(settings.LogLevel, "idp"))
	contexts := authzctx.NewStore()
	revoked := revocation.NewSet()
	reg := prometheus.NewRegistry()
	m := metrics.New("rta", reg)
	revoked.SetSizeGauge(m.RevocationSetSize)

	var repo *repository.TokenRepository
	if settings.Redis.URL != "" {
		repo, err = repository.New(settings.Redis.URL)
		if err != nil {
			log.WithError(err).Warn("token repository unavailable, continuing without persistence")
			repo = nil
		}
	}

	exchangeTLS, err := transport.ServerTLSConfig(settings.Server.CertPath, settings.Server.KeyPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load TLS material for exchange endpoint")
	}
	exchangeListener, err := transport.Listen(settings.Exchange.Addr(), exchangeTLS)
	if err != nil {
		log.WithError(err).Fatal("failed to bind exchange listener")
	}

	enforcementTLS, err := transport.ServerTLSConfig(settings.Server.CertPath, settings.Server.KeyPath)
	if err != nil {
		log.WithError(err).Fatal("failed to load TLS material for enforcement endpoint")
	}
	enforcementListener, err := transport.Listen(settings.Server.Addr(), enforcementTLS)
	if err != nil {
		log.WithError(err).Fatal("failed to bind enforcement listener")
	}

	exchangeSrv := exchange.New(exchangeListener, idpAdapter, signer, repo, m, logging.New(settings.LogLevel, "exchange"))
	enforcementSrv := enforcement.New(enforcementListener, verifier, contexts, revoked, settings.Token.MaxAge(), m, logging.New(settings.LogLevel, "enforcement"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscriber := revocation.NewSubscriber(revoked, logging.New(settings.LogLevel, "revocation"))
	go subscriber.Run(ctx, settings.Redis.URL)

	go func() {
		if err := exchangeSrv.Run(ctx); err != nil {
			log.WithError(err).Error("exchange endpoint stopped")
		}
	}()
	go func() {
		if err := enforcementSrv.Run(ctx); err != nil {
			log.WithError(err).Error("enforcement endpoint stopped")
		}
	}()

	log.WithField("exchange_addr", settings.Exchange.Addr()).WithField("enforcement_addr", settings.Server.Addr()).Info("rta-server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	cancel()

	_ = exchangeListener.Close()
	_ = enforcementListener.Close()
	if repo != nil {
		_ = repo.Close()
	}

	time.Sleep(gracePeriod)
	log.Info("rta-server exited")
}
