// Package provisioning parses provisioning command flags and launches the
// provisioning runtime.
package provisioning

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/careloop/careloop/internal/platform/cmd"
	provisioningserver "github.com/careloop/careloop/internal/services/provisioning/app"
)

// Config holds provisioning command configuration.
type Config struct {
	Port                 int           `env:"CARELOOP_PROVISIONING_PORT" envDefault:"8093"`
	DBPath               string        `env:"CARELOOP_PROVISIONING_DB_PATH" envDefault:"data/provisioning.db"`
	RegistrarURL         string        `env:"CARELOOP_PROVISIONING_REGISTRAR_URL"`
	RegistrarToken       string        `env:"CARELOOP_PROVISIONING_REGISTRAR_TOKEN"`
	InviteSigningSecret  string        `env:"CARELOOP_PROVISIONING_INVITE_SECRET"`
	PollInterval         time.Duration `env:"CARELOOP_PROVISIONING_POLL_INTERVAL" envDefault:"500ms"`
	BatchSize            int           `env:"CARELOOP_PROVISIONING_BATCH_SIZE" envDefault:"64"`
	MaxAttempts          int           `env:"CARELOOP_PROVISIONING_MAX_ATTEMPTS" envDefault:"5"`
	RetryBackoff         time.Duration `env:"CARELOOP_PROVISIONING_RETRY_BACKOFF" envDefault:"1s"`
	RetryMaxDelay        time.Duration `env:"CARELOOP_PROVISIONING_RETRY_MAX_DELAY" envDefault:"30s"`
	SagaPollInterval     time.Duration `env:"CARELOOP_PROVISIONING_SAGA_POLL_INTERVAL" envDefault:"1s"`
	SagaMaxAttempts      int           `env:"CARELOOP_PROVISIONING_SAGA_MAX_ATTEMPTS" envDefault:"5"`
	InvitationTTL        time.Duration `env:"CARELOOP_PROVISIONING_INVITATION_TTL" envDefault:"168h"`
	DNSVerifyInterval    time.Duration `env:"CARELOOP_PROVISIONING_DNS_VERIFY_INTERVAL" envDefault:"2s"`
	DNSVerifyMaxAttempts int           `env:"CARELOOP_PROVISIONING_DNS_VERIFY_MAX_ATTEMPTS" envDefault:"8"`
	DNSVerifyMaxDelay    time.Duration `env:"CARELOOP_PROVISIONING_DNS_VERIFY_MAX_DELAY" envDefault:"1m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.IntVar(&cfg.Port, "port", cfg.Port, "The provisioning health gRPC server port")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "The provisioning SQLite database path")
	fs.StringVar(&cfg.RegistrarURL, "registrar-url", cfg.RegistrarURL, "DNS registrar API base URL (empty = in-memory registrar)")
	fs.StringVar(&cfg.RegistrarToken, "registrar-token", cfg.RegistrarToken, "DNS registrar API token")
	fs.StringVar(&cfg.InviteSigningSecret, "invite-secret", cfg.InviteSigningSecret, "HMAC secret for invitation tokens")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Journal dispatch poll interval")
	fs.IntVar(&cfg.BatchSize, "batch-size", cfg.BatchSize, "Journal dispatch batch size")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum processing attempts before an event is left for operators")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base dispatch retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum dispatch retry delay")
	fs.DurationVar(&cfg.SagaPollInterval, "saga-poll-interval", cfg.SagaPollInterval, "Saga runner poll interval")
	fs.IntVar(&cfg.SagaMaxAttempts, "saga-max-attempts", cfg.SagaMaxAttempts, "Maximum saga step attempts before compensation")
	fs.DurationVar(&cfg.InvitationTTL, "invitation-ttl", cfg.InvitationTTL, "Administrative invitation expiry window")
	fs.DurationVar(&cfg.DNSVerifyInterval, "dns-verify-interval", cfg.DNSVerifyInterval, "Initial DNS propagation poll delay")
	fs.IntVar(&cfg.DNSVerifyMaxAttempts, "dns-verify-max-attempts", cfg.DNSVerifyMaxAttempts, "Maximum DNS propagation checks before failing")
	fs.DurationVar(&cfg.DNSVerifyMaxDelay, "dns-verify-max-delay", cfg.DNSVerifyMaxDelay, "Maximum DNS propagation poll delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run starts the provisioning runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceProvisioning, func(context.Context) error {
		return provisioningserver.Run(ctx, provisioningserver.RuntimeConfig{
			Port:                 cfg.Port,
			DBPath:               cfg.DBPath,
			RegistrarURL:         cfg.RegistrarURL,
			RegistrarToken:       cfg.RegistrarToken,
			InviteSigningSecret:  cfg.InviteSigningSecret,
			PollInterval:         cfg.PollInterval,
			BatchSize:            cfg.BatchSize,
			MaxAttempts:          cfg.MaxAttempts,
			RetryBackoff:         cfg.RetryBackoff,
			RetryMaxDelay:        cfg.RetryMaxDelay,
			SagaPollInterval:     cfg.SagaPollInterval,
			SagaMaxAttempts:      cfg.SagaMaxAttempts,
			InvitationTTL:        cfg.InvitationTTL,
			DNSVerifyInterval:    cfg.DNSVerifyInterval,
			DNSVerifyMaxAttempts: cfg.DNSVerifyMaxAttempts,
			DNSVerifyMaxDelay:    cfg.DNSVerifyMaxDelay,
		})
	})
}
