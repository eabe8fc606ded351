// Structurewatch watches the Upwell structures of Eve Online corporations.
//
// It polls the notifications of registered characters, alerts a Discord channel
// about attacks on structures and keeps track of reinforcement timers.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gohugoio/httpcache"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/juju/mutex/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sony/gobreaker"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ErikKalkoken/structurewatch/internal/app/storage"
	"github.com/ErikKalkoken/structurewatch/internal/app/structureservice"
	"github.com/ErikKalkoken/structurewatch/internal/app/worker"
	"github.com/ErikKalkoken/structurewatch/internal/config"
	"github.com/ErikKalkoken/structurewatch/internal/discord"
	"github.com/ErikKalkoken/structurewatch/internal/memcache"
	"github.com/ErikKalkoken/structurewatch/internal/metrics"
	"github.com/ErikKalkoken/structurewatch/internal/xgoesi"
)

const (
	cacheTimeout         = 24 * time.Hour
	cacheCleanUpInterval = 10 * time.Minute
	shutdownTimeout      = 30 * time.Second
)

func main() {
	flag.Usage = usage
	flag.Parse()
	slog.SetLogLoggerLevel(levelFlag.value)
	ok, err := config.LoadEnvFile(*envFileFlag)
	if err != nil {
		log.Fatalf("Failed to load env file %s: %s", *envFileFlag, err)
	}
	if !ok {
		slog.Debug("No env file found", "path", *envFileFlag)
	}
	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatal(err)
	}
	ad := newAppDirs(cfg)
	if *showDirsFlag {
		ad.show(os.Stdout)
		return
	}
	if *uninstallFlag {
		fmt.Print("Are you sure you want to uninstall this app and delete all data and logs (y/N)?")
		var input string
		fmt.Scanln(&input)
		if strings.ToLower(input) == "y" {
			if err := ad.deleteAll(os.Stdout); err != nil {
				log.Fatal(err)
			}
			fmt.Println("App uninstalled")
		} else {
			fmt.Println("Aborted")
		}
		return
	}
	if *logFileFlag {
		fn, err := ad.initLogFile()
		if err != nil {
			log.Fatal(err)
		}
		log.SetOutput(&lumberjack.Logger{
			Filename:   fn,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
		})
	}
	dsn, err := ad.initDSN()
	if err != nil {
		log.Fatal(err)
	}
	dbRW, dbRO, err := storage.InitDB(dsn)
	if err != nil {
		log.Fatalf("Failed to initialize database %s: %s", dsn, err)
	}
	defer dbRW.Close()
	defer dbRO.Close()
	st := storage.New(dbRW, dbRO)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := flag.Args()
	var cmd string
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}
	switch cmd {
	case "", "run":
		if err := cfg.Validate(); err != nil {
			log.Fatalf("Invalid configuration: %s", err)
		}
		err = run(ctx, cfg, st)
	case "add-character":
		err = addCharacter(ctx, st, args, os.Stdout)
	case "add-timer":
		s := structureservice.New(structureservice.Params{Storage: st})
		err = addTimer(ctx, s, args, os.Stdin, os.Stdout)
	case "list-timers":
		err = listTimers(ctx, st, args, time.Now(), os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	w := flag.CommandLine.Output()
	fmt.Fprintf(w, "Usage: %s [flags] [command]\n\n", os.Args[0])
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  run             watch structures until stopped (default)")
	fmt.Fprintln(w, "  add-character   register a character with its ESI token")
	fmt.Fprintln(w, "  add-timer       create a timer from a selected item text read from stdin")
	fmt.Fprintln(w, "  list-timers     show open timers")
	fmt.Fprintln(w, "\nFlags:")
	flag.PrintDefaults()
}

// run starts the worker and the metrics server and blocks until ctx is canceled.
// With the once flag all tasks are run once instead.
func run(ctx context.Context, cfg config.Config, st *storage.Storage) error {
	releaser, err := acquireInstanceLock()
	if err != nil {
		return err
	}
	defer releaser.Release()

	cache := memcache.New()
	cache.StartCleanUp(ctx, cacheCleanUpInterval)
	esiClient := xgoesi.NewClient(xgoesi.ClientParams{
		HTTPClient: newESIHTTPClient(http.DefaultTransport, cache, cfg.ESI.MinErrorsRemain),
		Timeout:    cfg.ESI.Timeout,
		UserAgent:  cfg.ESI.UserAgent,
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.RecordCircuitBreakerState(name, to == gobreaker.StateOpen)
		},
	})
	alerts, err := newAlertChannel(cfg.Discord)
	if err != nil {
		return err
	}
	s := structureservice.New(structureservice.Params{
		AlertChannel:     alerts,
		ChannelID:        cfg.Discord.ChannelID,
		ESIClient:        esiClient,
		Storage:          st,
		ConcurrencyLimit: cfg.ConcurrencyLimit,
	})
	w, err := worker.New(worker.Params{
		ConcurrencyLimit: cfg.ConcurrencyLimit,
		PingRetention:    cfg.PingRetention,
		Schedules:        worker.Schedules(cfg.Schedules),
		Storage:          st,
		StructureService: s,
	})
	if err != nil {
		return err
	}
	if *onceFlag {
		return w.RunOnce(ctx)
	}

	var srv *http.Server
	if cfg.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv = &http.Server{
			Addr:              cfg.MetricsAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Metrics server started", "address", cfg.MetricsAddress)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	w.Start(ctx)
	<-ctx.Done()
	slog.Info("Shutting down")
	ctx2, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	w.Stop(ctx2)
	if srv != nil {
		if err := srv.Shutdown(ctx2); err != nil {
			slog.Warn("Failed to shut down metrics server", "error", err)
		}
	}
	return nil
}

// newRetryableClient returns a retryablehttp client which logs responses.
func newRetryableClient() *retryablehttp.Client {
	rhc := retryablehttp.NewClient()
	rhc.Logger = slog.Default()
	rhc.ResponseLogHook = logResponse
	rhc.RetryMax = 3
	return rhc
}

// newESIHTTPClient returns the HTTP client for ESI.
// Responses are cached and requests are rate limited before reaching transport.
func newESIHTTPClient(transport http.RoundTripper, cache *memcache.Cache, minErrorsRemain int) *http.Client {
	rhc := newRetryableClient()
	rhc.HTTPClient.Transport = &httpcache.Transport{
		Cache:               newResponseCache(cache, "esi-", cacheTimeout),
		MarkCachedResponses: true,
		Transport: &xgoesi.RateLimiter{
			MinErrorsRemain: minErrorsRemain,
			Transport:       transport,
		},
	}
	return rhc.StandardClient()
}

// newAlertChannel returns the Discord bot client or a webhook sender, depending on the configuration.
func newAlertChannel(cfg config.Discord) (structureservice.AlertChannel, error) {
	return newAlertChannelWithTransport(cfg, http.DefaultTransport)
}

func newAlertChannelWithTransport(cfg config.Discord, transport http.RoundTripper) (structureservice.AlertChannel, error) {
	if cfg.UsesWebhook() {
		slog.Info("Sending alerts to Discord webhook")
		return discord.NewWebhookSender(cfg.WebhookURL), nil
	}
	slog.Info("Sending alerts to Discord channel", "channelID", cfg.ChannelID)
	c, err := discord.NewClient(newDiscordHTTPClient(transport), cfg.BotToken)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// newDiscordHTTPClient returns the HTTP client for the Discord bot.
// Requests are logged but never retried, so an alert is not posted twice.
func newDiscordHTTPClient(transport http.RoundTripper) *http.Client {
	rhc := newRetryableClient()
	rhc.HTTPClient.Transport = transport
	rhc.CheckRetry = noRetry
	return rhc.StandardClient()
}

func noRetry(ctx context.Context, _ *http.Response, _ error) (bool, error) {
	return false, ctx.Err()
}

// acquireInstanceLock ensures that only one instance of the app is running.
func acquireInstanceLock() (mutex.Releaser, error) {
	r, err := mutex.Acquire(mutex.Spec{
		Name:    config.AppName,
		Clock:   realClock{},
		Delay:   100 * time.Millisecond,
		Timeout: time.Second,
	})
	if errors.Is(err, mutex.ErrTimeout) {
		return nil, fmt.Errorf("another instance is already running")
	}
	if err != nil {
		return nil, fmt.Errorf("acquire instance lock: %w", err)
	}
	return r, nil
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func (realClock) Now() time.Time {
	return time.Now()
}
