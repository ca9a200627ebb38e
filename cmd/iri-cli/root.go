package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"iriclient/internal/auth"
	"iriclient/internal/catalog"
	"iriclient/internal/config"
	"iriclient/internal/dispatcher"
	"iriclient/internal/executor"
	"iriclient/pkg/circuitbreaker"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// app holds state shared by all subcommands of one invocation.
type app struct {
	v      *viper.Viper
	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{v: viper.New(), stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "iri-cli",
		Short: "Call IRI API operations and run compute jobs",
		Long: `iri-cli invokes operations of the IRI facility API by operation id,
binding path, query and body parameters from the command line, and can
submit a compute job and poll it until it finishes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (yaml, json or toml) with flag values")
	flags.String("base-url", "", "API base URL (env IRI_BASE_URL, default: catalog server)")
	flags.String("access-token", "", "bearer token (env IRI_ACCESS_TOKEN)")
	flags.String("catalog", "", "operation catalog YAML file (default: bundled catalog)")
	flags.Duration("timeout", 30*time.Second, "per-request timeout")
	flags.Float64("rate-limit", 0, "maximum requests per second, 0 for unlimited")
	flags.Bool("compact", false, "print compact JSON")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Bool("log-json", false, "write logs as JSON")
	flags.String("client-id-file", ".auth/clientid.txt", "client id file for private_key_jwt")
	flags.String("private-key-file", ".auth/priv_key.pem", "PEM private key for private_key_jwt")
	flags.String("token-url", auth.DefaultTokenURL, "OAuth2 token endpoint")
	flags.String("scope", "", "optional OAuth2 scope")

	if err := a.v.BindPFlags(flags); err != nil {
		// Only fails on a nil flag set.
		panic(err)
	}

	root.AddCommand(
		a.operationsCmd(),
		a.callCmd(),
		a.requestCmd(),
		a.submitCmd(),
		a.tokenCmd(),
		a.healthCmd(),
	)
	return root
}

// setup reads the optional config file and environment, and installs the
// logger.
func (a *app) setup() error {
	a.v.SetEnvPrefix("IRI")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if path := a.v.GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	level := slog.LevelInfo
	if a.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler = slog.NewTextHandler(a.stderr, opts)
	if a.v.GetBool("log-json") {
		handler = slog.NewJSONHandler(a.stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// clientConfig layers flags and the config file over the environment.
func (a *app) clientConfig() config.Client {
	cfg := config.LoadClient()
	if a.v.IsSet("base-url") {
		cfg.BaseURL = a.v.GetString("base-url")
	}
	if a.v.IsSet("access-token") {
		cfg.AccessToken = a.v.GetString("access-token")
	}
	if a.v.IsSet("catalog") {
		cfg.CatalogPath = a.v.GetString("catalog")
	}
	if a.v.IsSet("timeout") {
		cfg.Timeout = a.v.GetDuration("timeout")
	}
	if a.v.IsSet("rate-limit") {
		cfg.RateLimit = a.v.GetFloat64("rate-limit")
	}
	if a.v.IsSet("client-id-file") {
		cfg.ClientIDFile = a.v.GetString("client-id-file")
	}
	if a.v.IsSet("private-key-file") {
		cfg.PrivateKeyFile = a.v.GetString("private-key-file")
	}
	if a.v.IsSet("token-url") {
		cfg.TokenURL = a.v.GetString("token-url")
	}
	return cfg
}

func (a *app) loadCatalog(cfg config.Client) (*catalog.Catalog, error) {
	if cfg.CatalogPath == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(cfg.CatalogPath)
}

// credentials picks the token source. A configured token wins. Without one, a
// private_key_jwt exchange is used when the client id file exists; otherwise
// requests go out unauthenticated.
func (a *app) credentials(cfg config.Client) (auth.TokenSource, error) {
	if cfg.AccessToken != "" {
		return auth.Static(cfg.AccessToken), nil
	}
	if _, err := os.Stat(cfg.ClientIDFile); errors.Is(err, fs.ErrNotExist) {
		return auth.Static(""), nil
	}
	src, err := auth.LoadPrivateKeyJWT(a.authFiles(cfg))
	if err != nil {
		return nil, err
	}
	slog.Debug("Using private_key_jwt credentials", "token_url", src.TokenURL, "client_id", src.ClientID)
	return src, nil
}

func (a *app) authFiles(cfg config.Client) auth.Files {
	return auth.Files{
		ClientIDFile:   cfg.ClientIDFile,
		PrivateKeyFile: cfg.PrivateKeyFile,
		TokenURL:       cfg.TokenURL,
		Scope:          a.v.GetString("scope"),
	}
}

// newDispatcher wires catalog, executor and credentials. metrics may be nil.
func (a *app) newDispatcher(ctx context.Context, metrics executor.MetricsRecorder) (*dispatcher.Dispatcher, error) {
	cfg := a.clientConfig()
	cat, err := a.loadCatalog(cfg)
	if err != nil {
		return nil, err
	}
	src, err := a.credentials(cfg)
	if err != nil {
		return nil, err
	}
	token, err := src.Token(ctx)
	if err != nil {
		return nil, err
	}

	execCfg := executor.Config{
		Timeout:   cfg.Timeout,
		RateLimit: cfg.RateLimit,
		RateBurst: cfg.RateBurst,
	}
	if cfg.BreakerThreshold > 0 {
		execCfg.Breaker = &circuitbreaker.Config{
			Threshold: cfg.BreakerThreshold,
			Cooldown:  cfg.BreakerCooldown,
		}
	}
	return dispatcher.New(cat, executor.New(execCfg, metrics), executor.AuthContext{
		BaseURL: cfg.BaseURL,
		Token:   token,
	}), nil
}
