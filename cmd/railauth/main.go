package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/jrsteele09/go-rail-auth/client"
	"github.com/jrsteele09/go-rail-auth/internal/config"
	"github.com/jrsteele09/go-rail-auth/internal/logging"
	"github.com/jrsteele09/go-rail-auth/notify"
	"github.com/jrsteele09/go-rail-auth/session"
	"github.com/jrsteele09/go-rail-auth/store"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, pflag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		stop()
		os.Exit(1)
	}
}

type globalFlags struct {
	apiURL    string
	driver    string
	storePath string
	logLevel  string
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}

	var flags globalFlags
	flagSet := pflag.NewFlagSet("railauth", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.SetInterspersed(false)
	flagSet.StringVar(&flags.apiURL, "api-url", cfg.GetAPIBaseURL(), "railway API base URL")
	flagSet.StringVar(&flags.driver, "store", cfg.GetStoreDriver(), "credential store: memory, file or redis")
	flagSet.StringVar(&flags.storePath, "store-path", cfg.GetStorePath(), "credentials file for the file store")
	flagSet.StringVar(&flags.logLevel, "log-level", cfg.GetLogLevel(), "log level")
	flagSet.Usage = func() { printHelp(stderr, flagSet) }
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	logging.Setup(flags.logLevel, cfg.GetEnv() == "DEV", stderr)

	rest := flagSet.Args()
	if len(rest) == 0 {
		printHelp(stderr, flagSet)
		return pflag.ErrHelp
	}
	cmd, ok := commands[rest[0]]
	if !ok {
		return fmt.Errorf("unknown command %q", rest[0])
	}

	st, closeStore, err := openStore(flags, cfg)
	if err != nil {
		return err
	}
	defer closeStore()
	creds := store.NewCredentials(st)

	clientCfg := client.Config{
		BaseURL: flags.apiURL,
		Timeout: cfg.GetRequestTimeout(),
	}
	if cfg.GetBreakerEnabled() {
		breaker := client.DefaultBreakerConfig()
		breaker.Timeout = cfg.GetBreakerTimeout()
		breaker.MinRequests = cfg.GetBreakerMinRequests()
		breaker.FailureRatio = cfg.GetBreakerFailureRatio()
		clientCfg.Breaker = &breaker
	}

	apiClient, err := client.New(clientCfg, creds, client.WithNotifier(notify.Log{}))
	if err != nil {
		return err
	}
	manager, err := session.NewManager(apiClient, creds, session.WithNotifier(notify.Log{}))
	if err != nil {
		return err
	}
	defer manager.Close()

	if err := manager.Init(ctx); err != nil {
		log.Debug().Err(err).Msg("Starting signed out")
	}

	return cmd(ctx, &app{manager: manager, stdout: stdout, stderr: stderr}, rest[1:])
}

func openStore(flags globalFlags, cfg config.StoreConfig) (store.Store, func(), error) {
	switch flags.driver {
	case "memory":
		return store.NewMemory(), func() {}, nil
	case "file", "":
		return store.NewFile(flags.storePath), func() {}, nil
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cfg.GetRedisAddr()})
		return store.NewRedis(rdb, cfg.GetRedisKeyPrefix()), func() {
			if err := rdb.Close(); err != nil {
				log.Warn().Err(err).Msg("Error closing redis client")
			}
		}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", flags.driver)
	}
}

func printHelp(w io.Writer, flagSet *pflag.FlagSet) {
	fmt.Fprintf(w, `railauth signs in to the NextGen Rail API with an emailed one-time password.

Usage:
  railauth [flags] <command> [command flags]

Commands:
  request-otp   --email --first-name --last-name   email a one-time password
  verify        --email --otp                      exchange the password for a session
  status                                           show the current session
  profile       [--first-name --last-name --phone] show or update the profile
  refresh                                          rotate the session tokens
  logout                                           end the session

Flags:
%s`, flagSet.FlagUsages())
}
