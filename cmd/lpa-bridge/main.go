// Command lpa-bridge exposes eSIM profile management on PC/SC eUICC readers
// over HTTP and WebSocket, driving the lpac command-line LPA.
package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/SimplyPrint/lpa-bridge/internal/api"
	"github.com/SimplyPrint/lpa-bridge/internal/bridge"
	"github.com/SimplyPrint/lpa-bridge/internal/config"
	"github.com/SimplyPrint/lpa-bridge/internal/core"
	"github.com/SimplyPrint/lpa-bridge/internal/logging"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa/lpac"
	"github.com/SimplyPrint/lpa-bridge/internal/settings"
	"github.com/SimplyPrint/lpa-bridge/internal/updater"
)

var (
	configFile string
	v          = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "lpa-bridge",
	Short: "Local eSIM profile management bridge",
	Long: `lpa-bridge manages eSIM profiles on eUICCs attached through PC/SC readers.

Requests are served on /v1/lpa/{endpoint} over HTTP and as "call" messages on
the /v1/ws WebSocket. Every card operation runs one at a time.

Environment variables:
  LPA_BRIDGE_HOST         Host to bind to (default: 127.0.0.1)
  LPA_BRIDGE_PORT         Port to listen on (default: 32146)
  LPA_BRIDGE_LPAC_PATH    lpac binary (default: lpac)
  LPA_BRIDGE_SENTRY       Set to 1 to enable crash reporting
  LPA_BRIDGE_SENTRY_DSN   Sentry DSN used for crash reporting`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (YAML, TOML or JSON)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	return config.Load(v, configFile)
}

// initLogging sets up the global logger. The verboseLogging preference
// overrides the configured level.
func initLogging(cfg config.Config, store *settings.Store) {
	level, ok := logging.ParseLevel(cfg.LogLevel)
	if !ok {
		level = logging.LevelInfo
	}
	if verbose, err := store.Bool(settings.KeyVerboseLogging); err == nil && verbose {
		level = logging.LevelDebug
	}
	logging.Init(cfg.LogBuffer, level)
}

// app holds the wired bridge components shared by serve and call.
type app struct {
	cfg      config.Config
	store    *settings.Store
	registry *prometheus.Registry
	metrics  *bridge.Metrics
	notifier *bridge.Notifier
	prefs    *bridge.Preferences
	manager  *core.Manager
	router   *bridge.Router
}

func newApp(cfg config.Config, store *settings.Store) *app {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := bridge.NewMetrics(registry)

	prefs := bridge.NewPreferences(store, cfg.Privileged)
	prefs.OnChange(func(name string, enabled bool) {
		if name != bridge.PrefVerboseLogging {
			return
		}
		if enabled {
			logging.Get().SetLevel(logging.LevelDebug)
		} else {
			logging.Get().SetLevel(logging.LevelInfo)
		}
	})

	manager := core.NewManager(nil, func(readerIndex int, readerName string) lpa.Channel {
		return lpac.New(lpac.Options{
			Path:        cfg.LPACPath,
			Driver:      cfg.LPACDriver,
			ReaderIndex: readerIndex,
			ReaderName:  readerName,
		})
	})

	notifier := bridge.NewNotifier(cfg.CallbackTimeout, metrics)
	router := bridge.NewRouter(bridge.Options{
		Manager:     manager,
		Preferences: prefs,
		Notifier:    notifier,
		Metrics:     metrics,
		ExemptSlot:  cfg.USBSlotID,
	})

	return &app{
		cfg:      cfg,
		store:    store,
		registry: registry,
		metrics:  metrics,
		notifier: notifier,
		prefs:    prefs,
		manager:  manager,
		router:   router,
	}
}

func (a *app) updateChecker() *updater.Checker {
	return updater.NewChecker(updater.Options{
		CurrentVersion: api.Version,
		ReleasesURL:    a.cfg.UpdateURL,
	})
}

// setup loads configuration and settings and initialises logging and crash
// reporting. The returned cleanup flushes pending reports.
func setup() (*app, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}

	store := settings.NewStore(cfg.SettingsPath)
	loadErr := store.Load()

	initLogging(cfg, store)
	if loadErr != nil {
		logging.Warn(logging.CatSystem, "Failed to load settings, using defaults", map[string]any{
			"path":  cfg.SettingsPath,
			"error": loadErr.Error(),
		})
	}

	sentryOn := logging.InitSentry(api.Version, store.IsCrashReportingEnabled())
	cleanup := func() {
		if sentryOn {
			logging.FlushSentry(2 * time.Second)
		}
	}
	return newApp(cfg, store), cleanup, nil
}

func printVersion() {
	fmt.Printf("lpa-bridge %s\n", api.Version)
	fmt.Printf("Build time: %s\n", api.BuildTime)
	fmt.Printf("Git commit: %s\n", api.GitCommit)
}

// splitPairs turns key=value words into alternating key, value strings. A
// bare key gets an empty value.
func splitPairs(words []string) []string {
	kv := make([]string, 0, len(words)*2)
	for _, w := range words {
		k, val, _ := strings.Cut(w, "=")
		kv = append(kv, k, val)
	}
	return kv
}
