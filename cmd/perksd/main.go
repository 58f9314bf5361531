package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/MarkoPoloResearchLab/perkledger/internal/catalog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	flagDatabaseURL    = "database-url"
	flagStoreDriver    = "store-driver"
	flagListenAddr     = "listen-addr"
	flagAllowedOrigins = "allowed-origins"
	flagJWTSigningKey  = "jwt-signing-key"
	flagJWTIssuer      = "jwt-issuer"
	flagRedisURL       = "redis-url"
	flagCatalogTTL     = "catalog-ttl"
	flagTimezone       = "timezone"
	flagRequestTimeout = "request-timeout"
	flagCatalogFile    = "file"

	configKeyDatabaseURL    = "database_url"
	configKeyStoreDriver    = "store_driver"
	configKeyListenAddr     = "listen_addr"
	configKeyAllowedOrigins = "allowed_origins"
	configKeyJWTSigningKey  = "jwt_signing_key"
	configKeyJWTIssuer      = "jwt_issuer"
	configKeyRedisURL       = "redis_url"
	configKeyCatalogTTL     = "catalog_ttl"
	configKeyTimezone       = "timezone"
	configKeyRequestTimeout = "request_timeout"

	defaultDatabaseURL    = "sqlite:///tmp/perks.db"
	defaultStoreDriver    = storeDriverGorm
	defaultListenAddr     = ":8080"
	defaultTimezone       = "UTC"
	defaultRequestTimeout = 3 * time.Second

	storeDriverGorm = "gorm"
	storeDriverPgx  = "pgx"
)

type runtimeConfig struct {
	DatabaseURL    string
	StoreDriver    string
	ListenAddr     string
	AllowedOrigins string
	JWTSigningKey  string
	JWTIssuer      string
	RedisURL       string
	CatalogTTL     time.Duration
	Timezone       string
	RequestTimeout time.Duration
}

type configBinding struct {
	key  string
	env  string
	flag string
}

var configBindings = []configBinding{
	{key: configKeyDatabaseURL, env: "DATABASE_URL", flag: flagDatabaseURL},
	{key: configKeyStoreDriver, env: "PERKS_STORE_DRIVER", flag: flagStoreDriver},
	{key: configKeyListenAddr, env: "PERKS_LISTEN_ADDR", flag: flagListenAddr},
	{key: configKeyAllowedOrigins, env: "PERKS_ALLOWED_ORIGINS", flag: flagAllowedOrigins},
	{key: configKeyJWTSigningKey, env: "PERKS_JWT_SIGNING_KEY", flag: flagJWTSigningKey},
	{key: configKeyJWTIssuer, env: "PERKS_JWT_ISSUER", flag: flagJWTIssuer},
	{key: configKeyRedisURL, env: "REDIS_URL", flag: flagRedisURL},
	{key: configKeyCatalogTTL, env: "PERKS_CATALOG_TTL", flag: flagCatalogTTL},
	{key: configKeyTimezone, env: "PERKS_TIMEZONE", flag: flagTimezone},
	{key: configKeyRequestTimeout, env: "PERKS_REQUEST_TIMEOUT", flag: flagRequestTimeout},
}

func main() {
	cmd := newRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "perksd: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cfg := &runtimeConfig{}
	serve := func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServer(ctx, cfg)
	}
	cmd := &cobra.Command{
		Use:           "perksd",
		Short:         "Credit card perk tracking API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(cmd.Root().PersistentFlags(), cfg)
		},
		RunE: serve,
	}

	flags := cmd.PersistentFlags()
	flags.String(flagDatabaseURL, defaultDatabaseURL, "PostgreSQL or sqlite connection string")
	flags.String(flagStoreDriver, defaultStoreDriver, "persistence driver: gorm or pgx (postgres only)")
	flags.String(flagListenAddr, defaultListenAddr, "HTTP listen address")
	flags.String(flagAllowedOrigins, "", "comma-separated CORS origins")
	flags.String(flagJWTSigningKey, "", "HS256 key used to verify bearer tokens")
	flags.String(flagJWTIssuer, "", "expected bearer token issuer")
	flags.String(flagRedisURL, "", "redis URL for the shared catalog cache; empty keeps it in memory")
	flags.Duration(flagCatalogTTL, catalog.DefaultTTL, "how long owned cards are served from cache")
	flags.String(flagTimezone, defaultTimezone, "IANA timezone used to place redemptions in cycles")
	flags.Duration(flagRequestTimeout, defaultRequestTimeout, "per-request storage timeout")

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		RunE:  serve,
	})
	cmd.AddCommand(newCatalogCommand(cfg))
	return cmd
}

func loadConfig(flags *pflag.FlagSet, cfg *runtimeConfig) error {
	_ = godotenv.Load()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, binding := range configBindings {
		if err := viper.BindEnv(binding.key, binding.env); err != nil {
			return err
		}
		if err := viper.BindPFlag(binding.key, flags.Lookup(binding.flag)); err != nil {
			return err
		}
	}

	cfg.DatabaseURL = defaultIfEmpty(viper.GetString(configKeyDatabaseURL), defaultDatabaseURL)
	cfg.StoreDriver = strings.ToLower(defaultIfEmpty(viper.GetString(configKeyStoreDriver), defaultStoreDriver))
	cfg.ListenAddr = defaultIfEmpty(viper.GetString(configKeyListenAddr), defaultListenAddr)
	cfg.AllowedOrigins = viper.GetString(configKeyAllowedOrigins)
	cfg.JWTSigningKey = viper.GetString(configKeyJWTSigningKey)
	cfg.JWTIssuer = viper.GetString(configKeyJWTIssuer)
	cfg.RedisURL = strings.TrimSpace(viper.GetString(configKeyRedisURL))
	cfg.CatalogTTL = viper.GetDuration(configKeyCatalogTTL)
	cfg.Timezone = defaultIfEmpty(viper.GetString(configKeyTimezone), defaultTimezone)
	cfg.RequestTimeout = viper.GetDuration(configKeyRequestTimeout)
	return cfg.validate()
}

func (cfg *runtimeConfig) validate() error {
	if cfg.CatalogTTL <= 0 {
		cfg.CatalogTTL = catalog.DefaultTTL
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	switch cfg.StoreDriver {
	case storeDriverGorm, storeDriverPgx:
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("timezone: %w", err)
	}
	return nil
}

func defaultIfEmpty(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
