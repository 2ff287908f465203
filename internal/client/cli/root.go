// Package cli implements the command-line surface that makes a Session
// runnable: flag parsing, environment variable overrides, logger
// bootstrap, and the persisted configuration subcommands.
package cli

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"localrun/internal/client/session"
	"localrun/internal/shared/utils"
	pkgconfig "localrun/pkg/config"
)

var (
	// Version information, overwritten at build time via -ldflags.
	Version   = "dev"
	GitCommit = "unknown"
	BuildTime = "unknown"
)

var (
	flagPort             int
	flagHost             string
	flagSubdomain        string
	flagLocalHost        string
	flagLocalHTTPS       bool
	flagLocalCert        string
	flagLocalKey         string
	flagLocalCA          string
	flagAllowInvalidCert bool
	flagTimeoutMillis    int
	flagMaxRetries       int
	flagOpen             bool
	flagPrintRequests    bool
	flagVerbose          bool
)

var rootCmd = &cobra.Command{
	Use:   "localrun",
	Short: "Expose a local HTTP server through a public tunnel",
	Long: `localrun - reverse tunnel client

Registers with a broker, opens a persistent WebSocket, and forwards every
inbound request to a local origin.

Configuration:
  First time: run 'localrun config init' to save a broker URL/subdomain
  Subsequent: just run 'localrun --port <port>'

Examples:
  localrun --port 3000
  localrun -p 8080 --subdomain myapp12345
  localrun -p 8080 --local-https --allow-invalid-cert`,
	RunE: runTunnel,
}

func init() {
	rootCmd.Flags().IntVarP(&flagPort, "port", "p", 0, "local port to forward to (required)")
	rootCmd.Flags().StringVarP(&flagHost, "host", "h", "", "broker URL (overrides saved config)")
	rootCmd.Flags().StringVarP(&flagSubdomain, "subdomain", "s", "", "request a specific 10-character subdomain")
	rootCmd.Flags().StringVarP(&flagLocalHost, "local-host", "l", pkgconfig.DefaultLocalHost, "local origin host")
	rootCmd.Flags().BoolVar(&flagLocalHTTPS, "local-https", false, "connect to the local origin over HTTPS")
	rootCmd.Flags().StringVar(&flagLocalCert, "local-cert", "", "client certificate for the local origin")
	rootCmd.Flags().StringVar(&flagLocalKey, "local-key", "", "client key for the local origin")
	rootCmd.Flags().StringVar(&flagLocalCA, "local-ca", "", "CA bundle to verify the local origin")
	rootCmd.Flags().BoolVar(&flagAllowInvalidCert, "allow-invalid-cert", false, "skip local origin certificate verification")
	rootCmd.Flags().IntVar(&flagTimeoutMillis, "timeout", pkgconfig.DefaultRequestTimeoutMillis, "baseline request timeout in milliseconds")
	rootCmd.Flags().IntVar(&flagMaxRetries, "max-retries", pkgconfig.DefaultMaxRetries, "forwarder retry budget per request")
	rootCmd.Flags().BoolVarP(&flagOpen, "open", "o", false, "open the public URL in the system browser once assigned")
	rootCmd.Flags().BoolVar(&flagPrintRequests, "print-requests", false, "log method and path for every forwarded request")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug-level logging")

	bindEnvOverrides()

	rootCmd.AddCommand(versionCmd)
}

// bindEnvOverrides applies LR_PORT/LR_HOST/LR_SUBDOMAIN (and the matching
// env var for every other flag) onto the flag defaults before cobra parses
// argv, so an explicit flag still wins over the environment.
func bindEnvOverrides() {
	rootCmd.Flags().VisitAll(func(f *pflag.Flag) {
		envName := "LR_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		if v, ok := os.LookupEnv(envName); ok {
			f.DefValue = v
			f.Value.Set(v)
		}
	})
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("localrun %s (%s, %s)\n", Version, GitCommit, BuildTime)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion records build-time version metadata for the version subcommand
// and enables cobra's built-in --version flag.
func SetVersion(version, commit, buildTime string) {
	Version = version
	GitCommit = commit
	BuildTime = buildTime
	rootCmd.Version = version
}

func runTunnel(cmd *cobra.Command, args []string) error {
	if flagPort <= 0 {
		return fmt.Errorf("--port is required")
	}

	verbose := flagVerbose || os.Getenv("DEBUG") != ""
	if err := utils.InitLogger(verbose); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer utils.Sync()
	log := utils.GetLogger()

	tcfg := buildTunnelConfig()

	cliCfg, err := pkgconfig.LoadCLIConfig("")
	if err == nil {
		cliCfg.ApplyTo(tcfg)
	}

	if err := tcfg.Validate(); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	opts := []session.Option{
		session.WithLogger(log),
		session.OnURL(func(url string) { onURLAssigned(url) }),
		session.OnError(func(err error) { log.Warn("tunnel error", zap.Error(err)) }),
		session.OnCircuitBreakerOpen(func(consecutive, cooldownMs int) {
			log.Warn("origin circuit breaker opened", zap.Int("consecutiveErrors", consecutive), zap.Int("cooldownMs", cooldownMs))
		}),
		session.OnCircuitBreakerClose(func() { log.Info("origin circuit breaker closed") }),
	}
	if flagPrintRequests {
		opts = append(opts, session.OnRequest(func(method, path string, headers map[string]string) {
			fmt.Printf("%s %s\n", method, path)
		}))
	}

	fmt.Printf("connecting to %s...\n", tcfg.BrokerURL)
	sess, err := session.Open(ctx, tcfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to open tunnel: %w", err)
	}

	printBanner(sess, tcfg)
	if flagOpen {
		openBrowser(sess.URL())
	}

	go printTrafficPanel(ctx, sess)

	<-quit
	fmt.Println("\nshutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	sess.GracefulShutdown(shutdownCtx)
	fmt.Println("tunnel closed")
	return nil
}

func buildTunnelConfig() *pkgconfig.TunnelConfig {
	opts := []pkgconfig.Option{
		pkgconfig.WithLocalHost(flagLocalHost),
		pkgconfig.WithSubdomain(flagSubdomain),
		pkgconfig.WithRequestTimeoutMillis(flagTimeoutMillis),
		pkgconfig.WithMaxRetries(flagMaxRetries),
		pkgconfig.WithTLS(pkgconfig.TLSOptions{
			UseTLS:           flagLocalHTTPS,
			CertPath:         flagLocalCert,
			KeyPath:          flagLocalKey,
			CAPath:           flagLocalCA,
			AllowInvalidCert: flagAllowInvalidCert,
		}),
	}
	if flagHost != "" {
		opts = append(opts, pkgconfig.WithBrokerURL(flagHost))
	}
	return pkgconfig.New(flagPort, opts...)
}

func onURLAssigned(publicURL string) {
	fmt.Printf("\ntunnel URL: %s\n\n", publicURL)
}

func printBanner(sess *session.Session, tcfg *pkgconfig.TunnelConfig) {
	fmt.Println()
	fmt.Println("localrun tunnel connected")
	fmt.Printf("  forwarding %s -> %s:%d\n", sess.URL(), tcfg.LocalHost, tcfg.Port)
	fmt.Println("  press Ctrl+C to stop")
	fmt.Println()
}

func printTrafficPanel(ctx context.Context, sess *session.Session) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sess.Stats.UpdateSpeed()
		}
	}
}

func openBrowser(rawURL string) {
	if rawURL == "" {
		return
	}
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", rawURL)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", rawURL)
	default:
		cmd = exec.Command("xdg-open", rawURL)
	}
	_ = cmd.Start()
}
