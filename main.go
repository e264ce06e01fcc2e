package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"stakedash/pkg/actions"
	"stakedash/pkg/config"
	"stakedash/pkg/contracts"
	"stakedash/pkg/fetch"
	"stakedash/pkg/rpc"
	"stakedash/pkg/server"
	"stakedash/pkg/session"
	"stakedash/pkg/tui"
	"stakedash/pkg/wallet"
	"stakedash/pkg/watcher"

	"github.com/charmbracelet/log"
	flag "github.com/spf13/pflag"
)

// Version should be set during build
var Version = "dev"

const defaultLogFile = "stakedash.log"

func main() {
	testFlag := flag.BoolP("test", "t", false, "Test configuration and exit")
	jsonFlag := flag.Bool("json", false, "Output test results as JSON")
	dryRunFlag := flag.Bool("dry-run", false, "Perform a trial run with no changes made")
	configFlag := flag.String("config", "", "Path to configuration file")
	versionFlag := flag.Bool("version", false, "Print version and exit")
	serverFlag := flag.Bool("server", false, "Run in headless server mode")
	portFlag := flag.Int("port", 8080, "Port for API server")
	flag.Parse()

	if *versionFlag {
		fmt.Printf("stakedash version %s\n", Version)
		os.Exit(0)
	}

	path, err := config.GetConfigPath(configArg(*configFlag, flag.Args()))
	if err != nil {
		fmt.Printf("Error determining config path: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfigFromFile(path)
	if err != nil {
		fmt.Printf("Error loading config from %s: %v\n", path, err)
		os.Exit(1)
	}
	if err := config.ApplyEnv(&cfg, os.Getenv); err != nil {
		fmt.Printf("Error applying environment overrides: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *testFlag {
		os.Exit(runCheck(ctx, &cfg, path, *jsonFlag, *dryRunFlag))
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Invalid configuration at %s: %v\n", path, err)
		fmt.Println("Run with --test to check it.")
		os.Exit(1)
	}

	// The TUI owns the terminal, so it logs to a file.
	var logOut io.Writer = os.Stderr
	if !*serverFlag {
		f, err := openLogFile(cfg.Global.LogFile, path)
		if err != nil {
			fmt.Printf("Error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}
	logger := newLogger(logOut, cfg.Global.LogLevel)

	if err := run(ctx, cfg, logger, *serverFlag, *portFlag); err != nil {
		logger.Error("exiting", "err", err)
		fmt.Println(err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *log.Logger, headless bool, port int) error {
	addrs, err := contracts.AddressesFromConfig(cfg.Contracts)
	if err != nil {
		return err
	}

	// Reads go through the configured RPC so the dashboard works without a
	// wallet. The endpoint is dialed lazily; while it is down views show
	// defaults.
	reader := rpc.NewReader(cfg.Network.RPCURL, cfg.Network.ChainID, logger)
	defer reader.Close()
	dial := func(ctx context.Context) (contracts.Backend, error) {
		client, err := reader.Client(ctx)
		if err != nil {
			return nil, err
		}
		return client, nil
	}

	fetcher := fetch.New(fetch.DialSource(contracts.NewManager(addrs), dial), fetch.Options{
		DepositToken: addrs.DepositToken,
		RewardToken:  addrs.RewardToken,
		ExplorerURL:  cfg.Network.ExplorerURL,
		FromBlock:    cfg.Network.FromBlock,
		Logger:       logger,
	})

	sess := session.New(wallet.NewDetector(cfg, logger), cfg, logger)
	defer sess.Close()

	w := watcher.NewWatcher(fetcher, sess, cfg.RefreshInterval(), logger)
	dispatcher := actions.New(sess, actions.ManagerBinder(contracts.NewManager(addrs)), w, actions.Options{
		ConfirmTimeout: cfg.ConfirmTimeout(),
		TxLink:         fetcher.TxLink,
		Logger:         logger,
	})

	if cfg.Global.AutoConnect {
		if err := sess.Restore(ctx); err != nil {
			logger.Warn("session restore failed", "err", err)
		}
	}

	w.Start(ctx)
	defer w.Stop()

	srv := server.NewServer(w, sess, logger)
	if headless {
		logger.Info("running in server mode", "port", port)
		errCh := make(chan error, 1)
		go func() { errCh <- srv.Start(port) }()
		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
			return nil
		}
	}

	go func() {
		if err := srv.Start(port); err != nil {
			logger.Error("server error", "err", err)
		}
	}()
	return tui.Start(ctx, w, sess, dispatcher, cfg, Version)
}

func runCheck(ctx context.Context, cfg *config.Config, path string, asJSON, dryRun bool) int {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	report := rpc.Check(ctx, cfg, path, dryRun)
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(report)
	} else {
		rpc.PrintReport(os.Stdout, report)
	}
	if rpc.Failed(report) {
		return 1
	}
	return 0
}

// configArg prefers --config, then the first positional argument.
func configArg(flagValue string, args []string) string {
	if flagValue == "" && len(args) > 0 {
		return args[0]
	}
	return flagValue
}

// openLogFile opens the configured log file, defaulting to one next to the config.
func openLogFile(name, configPath string) (*os.File, error) {
	if name == "" {
		name = filepath.Join(filepath.Dir(configPath), defaultLogFile)
	}
	return os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
}

func newLogger(w io.Writer, level string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
		Prefix:          "stakedash",
	})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}
