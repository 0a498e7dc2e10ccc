package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/careloop/careloop/internal/platform/timeouts"
	"github.com/careloop/careloop/internal/services/provisioning/dns"
	"github.com/careloop/careloop/internal/services/provisioning/domain/invite"
	"github.com/careloop/careloop/internal/services/provisioning/notify"
	"github.com/careloop/careloop/internal/services/provisioning/processor"
	provisioningsqlite "github.com/careloop/careloop/internal/services/provisioning/storage/sqlite"
)

// RuntimeConfig controls provisioning startup, dependencies, and loop
// behavior.
type RuntimeConfig struct {
	Port                 int
	DBPath               string
	RegistrarURL         string
	RegistrarToken       string
	InviteSigningSecret  string
	PollInterval         time.Duration
	BatchSize            int
	MaxAttempts          int
	RetryBackoff         time.Duration
	RetryMaxDelay        time.Duration
	SagaPollInterval     time.Duration
	SagaMaxAttempts      int
	InvitationTTL        time.Duration
	DNSVerifyInterval    time.Duration
	DNSVerifyMaxAttempts int
	DNSVerifyMaxDelay    time.Duration
}

const (
	defaultProvisioningPort = 8093
	defaultProvisioningDB   = "data/provisioning.db"
)

// Run starts provisioning runtime dependencies, the journal dispatch loop,
// and the saga runner.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.Port <= 0 {
		cfg.Port = defaultProvisioningPort
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		cfg.DBPath = defaultProvisioningDB
	}
	if strings.TrimSpace(cfg.InviteSigningSecret) == "" {
		return fmt.Errorf("invite signing secret is required")
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create provisioning storage dir: %w", err)
		}
	}

	store, err := provisioningsqlite.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open provisioning sqlite store: %w", err)
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.Printf("close provisioning sqlite store: %v", closeErr)
		}
	}()

	var registrar dns.Registrar
	if strings.TrimSpace(cfg.RegistrarURL) != "" {
		registrar, err = dns.NewHTTPRegistrar(cfg.RegistrarURL, cfg.RegistrarToken,
			&http.Client{Timeout: timeouts.RegistrarRequest})
		if err != nil {
			return fmt.Errorf("build registrar client: %w", err)
		}
	} else {
		log.Printf("no registrar url configured, using in-memory registrar")
		registrar = dns.NewFakeRegistrar()
	}

	dispatcher := processor.NewLoop(
		processor.New(store, nil, log.Printf),
		processor.LoopConfig{
			PollInterval:  cfg.PollInterval,
			BatchSize:     cfg.BatchSize,
			MaxAttempts:   cfg.MaxAttempts,
			RetryBackoff:  cfg.RetryBackoff,
			RetryMaxDelay: cfg.RetryMaxDelay,
		},
	)

	signer := invite.NewTokenSigner([]byte(cfg.InviteSigningSecret), nil)
	runner := NewRunner(store, registrar, notify.NewLogSender(log.Printf), signer, dispatcher, RunnerConfig{
		PollInterval:         cfg.SagaPollInterval,
		MaxAttempts:          cfg.SagaMaxAttempts,
		InvitationTTL:        cfg.InvitationTTL,
		DNSVerifyInterval:    cfg.DNSVerifyInterval,
		DNSVerifyMaxAttempts: cfg.DNSVerifyMaxAttempts,
		DNSVerifyMaxDelay:    cfg.DNSVerifyMaxDelay,
	})

	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Port))
	if err != nil {
		return fmt.Errorf("listen on provisioning port %d: %w", cfg.Port, err)
	}
	defer listener.Close()

	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus("provisioning.runtime", grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- grpcServer.Serve(listener)
	}()
	defer func() {
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		<-serveErr
	}()

	dispatchErr := make(chan error, 1)
	go func() {
		dispatchErr <- dispatcher.Run(ctx)
	}()

	log.Printf("provisioning server listening at %v", listener.Addr())
	runErr := runner.Run(ctx)
	<-dispatchErr
	return runErr
}
