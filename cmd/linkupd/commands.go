package main

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/renshaw/linkup/internal/api"
	"github.com/renshaw/linkup/internal/config"
	"github.com/renshaw/linkup/internal/conn"
	"github.com/renshaw/linkup/internal/credstore"
	"github.com/renshaw/linkup/internal/led"
	"github.com/renshaw/linkup/internal/logging"
	"github.com/renshaw/linkup/internal/softap"
	"github.com/renshaw/linkup/internal/wifi"
)

// Run command and flags
var (
	configPath string
	listenAddr string
	logLevel   string
	simulate   bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the connectivity daemon",
	Long: `Start the daemon: join the stored WiFi network (or broadcast the
provisioning network when no credentials are stored), and serve the
control API until interrupted.`,
	Example: `  # Start with the default configuration
  linkupd run

  # Start with a configuration file and verbose logging
  linkupd run --config /etc/linkup/linkupd.yaml --log-level debug

  # Start against the simulated radio (no hardware required)
  linkupd run --simulate --log-level debug`,
	RunE: runDaemon,
}

func init() {
	runCmd.Flags().StringVar(&configPath, "config", "/etc/linkup/linkupd.yaml", "Path to the daemon configuration file")
	runCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address override (e.g. :8080)")
	runCmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&simulate, "simulate", false, "Use the simulated radio backend")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if err := logging.Initialize(logLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer logging.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.ListenAddr = listenAddr
	}
	if simulate {
		cfg.Radio.Backend = config.BackendSim
	}

	radio, err := buildRadio(cfg)
	if err != nil {
		return err
	}
	defer radio.Close()

	indicator, err := buildIndicator(cfg)
	if err != nil {
		return err
	}

	store := credstore.New(cfg.StateDir)
	broadcast := softap.New(radio, cfg.AccessPoint(), listenPort(cfg.ListenAddr))
	machine := conn.New(radio, store, broadcast, conn.Config{
		MaxRetries:     cfg.Station.MaxRetries,
		RetryBackoff:   time.Duration(cfg.Station.RetryBackoff),
		ReconnectDelay: time.Duration(cfg.Station.ReconnectDelay),
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := machine.Start(ctx); err != nil {
		return fmt.Errorf("failed to start connectivity: %w", err)
	}

	server := api.New(api.Config{
		ListenAddr: cfg.ListenAddr,
		ContentDir: cfg.ContentDir,
	}, machine, radio, indicator)

	return server.Run(ctx)
}

func buildRadio(cfg *config.Config) (wifi.Radio, error) {
	switch cfg.Radio.Backend {
	case config.BackendSim:
		return wifi.NewSimRadio(), nil
	case config.BackendNMCLI:
		return wifi.NewNMCLIRadio(cfg.Radio.Interface), nil
	default:
		return nil, fmt.Errorf("unknown radio backend %q", cfg.Radio.Backend)
	}
}

func buildIndicator(cfg *config.Config) (led.Indicator, error) {
	if cfg.LEDPath == "" {
		return led.NewMemory(), nil
	}
	indicator, err := led.NewFile(cfg.LEDPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open status indicator: %w", err)
	}
	return indicator, nil
}

// listenPort extracts the numeric port from a listen address for the
// mDNS announcement. Unparseable addresses disable the announcement.
func listenPort(addr string) int {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return 0
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return 0
	}
	return port
}

var credentialsCmd = &cobra.Command{
	Use:   "credentials",
	Short: "Manage the stored network credentials",
	Long: `Inspect or replace the WiFi credentials the daemon reads at boot.

This is the local provisioning path: it writes the same credential store
the daemon loads, so a record set here takes effect on the next start.`,
}

var credentialsConfigPath string

func init() {
	credentialsCmd.PersistentFlags().StringVar(&credentialsConfigPath, "config", "/etc/linkup/linkupd.yaml", "Path to the daemon configuration file")
	credentialsCmd.AddCommand(credentialsSetCmd)
	credentialsCmd.AddCommand(credentialsShowCmd)
}

var credentialsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Store network credentials",
	Long: `Prompt for an SSID and passphrase and write them to the credential
store. The passphrase is read without echo.`,
	RunE: runCredentialsSet,
}

func runCredentialsSet(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(credentialsConfigPath)
	if err != nil {
		return err
	}

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Network SSID: ")
	ssid, err := reader.ReadString('\n')
	if err != nil {
		return fmt.Errorf("failed to read SSID: %w", err)
	}
	ssid = strings.TrimSpace(ssid)

	fmt.Print("Passphrase: ")
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return fmt.Errorf("failed to read passphrase: %w", err)
	}

	creds := wifi.Credentials{SSID: ssid, Password: string(password)}
	if err := creds.Validate(); err != nil {
		return err
	}

	store := credstore.New(cfg.StateDir)
	if err := store.Save(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("Credentials for %q stored in %s\n", creds.SSID, store.Path())
	return nil
}

var credentialsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored network credentials",
	Long:  `Print the stored SSID. The passphrase is never printed.`,
	RunE:  runCredentialsShow,
}

func runCredentialsShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(credentialsConfigPath)
	if err != nil {
		return err
	}

	store := credstore.New(cfg.StateDir)
	creds, ok, err := store.Load()
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if !ok {
		fmt.Println("No credentials stored.")
		return nil
	}

	fmt.Printf("SSID:       %s\n", creds.SSID)
	fmt.Printf("Passphrase: %s\n", strings.Repeat("*", len(creds.Password)))
	return nil
}
