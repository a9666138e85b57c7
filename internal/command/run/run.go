package run

import (
	"fmt"
	"github.com/cirruslabs/tensorcraft/internal/backend"
	cachepkg "github.com/cirruslabs/tensorcraft/internal/cache"
	configpkg "github.com/cirruslabs/tensorcraft/internal/config"
	"github.com/cirruslabs/tensorcraft/internal/loader/isolated"
	"github.com/cirruslabs/tensorcraft/internal/loader/strategy"
	serverpkg "github.com/cirruslabs/tensorcraft/internal/server"
	"github.com/cirruslabs/tensorcraft/internal/tlsconfig"
	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"os"
	"strconv"
	"strings"
)

var configPath string
var addr string
var dataRoot string
var strategyName string
var preload bool
var pidfile string

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Aliases: []string{"server"},
		Short:   "Run the Tensorcraft server",
		RunE:    run,
	}

	cmd.Flags().StringVarP(&configPath, "file", "f", "",
		"configuration file path (e.g. /etc/tensorcraft.yml)")
	cmd.Flags().StringVar(&addr, "addr", "",
		fmt.Sprintf("address to listen on (default %q)", configpkg.DefaultAddr))
	cmd.Flags().StringVar(&dataRoot, "data-root", "",
		"directory to store the models and their metadata in")
	cmd.Flags().StringVar(&strategyName, "strategy", "",
		fmt.Sprintf("model loading strategy, one of: %s", strings.Join(strategy.Names(), ", ")))
	cmd.Flags().BoolVar(&preload, "preload", false,
		"load all models on startup")
	cmd.Flags().StringVar(&pidfile, "pidfile", "",
		"path to the PID file that prevents running multiple servers on the same data root")

	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	config, err := configpkg.Load(configPath)
	if err != nil {
		return err
	}

	// Command-line flags take precedence over both
	// the configuration file and the environment
	if cmd.Flags().Changed("addr") {
		config.Addr = addr
	}
	if cmd.Flags().Changed("data-root") {
		config.DataRoot = dataRoot
	}
	if cmd.Flags().Changed("strategy") {
		config.Strategy = strategyName
	}
	if cmd.Flags().Changed("preload") {
		config.Preload = preload
	}

	if err := config.Validate(); err != nil {
		return err
	}

	if pidfile != "" {
		unlock, err := lockPidfile(pidfile)
		if err != nil {
			return err
		}
		defer unlock()
	}

	backend, err := backend.Open(cmd.Context(), config)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			zap.S().Errorf("failed to close the metadata store: %v", err)
		}
	}()

	loader, releaseLoader, err := strategy.New(strategy.Strategy(config.Strategy), isolatedOptions(config)...)
	if err != nil {
		return err
	}
	defer releaseLoader()

	cache, err := cachepkg.New(cmd.Context(), backend.Storage, backend.Metadata, loader,
		cachepkg.WithPreload(config.Preload),
		cachepkg.WithLogger(zap.S()),
	)
	if err != nil {
		return err
	}
	defer cache.Close()

	serverOpts := []serverpkg.Option{
		serverpkg.WithLogger(zap.S()),
	}

	if config.TLS != nil {
		tlsConfig, err := tlsconfig.Server(config.TLS.Cert, config.TLS.Key, config.TLS.ClientCA)
		if err != nil {
			return err
		}

		serverOpts = append(serverOpts, serverpkg.WithTLSConfig(tlsConfig))
	}

	server, err := serverpkg.New(config.Addr, cache, serverOpts...)
	if err != nil {
		return err
	}

	return server.Run(cmd.Context())
}

func isolatedOptions(config *configpkg.Config) []isolated.Option {
	opts := []isolated.Option{
		isolated.WithLogger(zap.S()),
	}

	if config.Isolated.Workers != 0 {
		opts = append(opts, isolated.WithWorkers(config.Isolated.Workers))
	}

	if config.Isolated.Queue != nil {
		opts = append(opts, isolated.WithQueue(*config.Isolated.Queue))
	}

	if config.Isolated.Timeout != 0 {
		opts = append(opts, isolated.WithTimeout(config.Isolated.Timeout))
	}

	return opts
}

func lockPidfile(path string) (func(), error) {
	lock := flock.New(path)

	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock PID file %s: %w", path, err)
	}

	if !locked {
		return nil, fmt.Errorf("failed to lock PID file %s: another server is running", path)
	}

	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0600); err != nil {
		_ = lock.Unlock()

		return nil, fmt.Errorf("failed to write PID file %s: %w", path, err)
	}

	return func() {
		_ = os.Remove(path)
		_ = lock.Unlock()
	}, nil
}
