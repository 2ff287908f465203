package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	pkgconfig "localrun/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "manage the saved broker URL, subdomain, and TLS defaults",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "initialize configuration interactively",
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "show the current configuration",
	RunE:  runConfigShow,
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "set configuration values",
	RunE:  runConfigSet,
}

var configResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "delete the configuration file",
	RunE:  runConfigReset,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "validate the configuration file",
	RunE:  runConfigValidate,
}

var (
	configForce     bool
	configSetBroker string
	configSetSub    string
)

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configResetCmd)
	configCmd.AddCommand(configValidateCmd)

	configSetCmd.Flags().StringVar(&configSetBroker, "broker-url", "", "broker URL to save")
	configSetCmd.Flags().StringVar(&configSetSub, "subdomain", "", "subdomain to save")

	configResetCmd.Flags().BoolVar(&configForce, "force", false, "reset without confirmation")

	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	fmt.Println("localrun configuration setup")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("Broker URL (e.g. https://tunnel.example.com): ")
	broker, _ := reader.ReadString('\n')
	broker = strings.TrimSpace(broker)
	if broker == "" {
		return fmt.Errorf("broker URL is required")
	}

	fmt.Print("Default subdomain (leave empty to skip): ")
	subdomain, _ := reader.ReadString('\n')
	subdomain = strings.TrimSpace(subdomain)

	cfg := &pkgconfig.CLIConfig{BrokerURL: broker, Subdomain: subdomain}
	if err := pkgconfig.SaveCLIConfig(cfg, ""); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Println("saved to", pkgconfig.DefaultCLIConfigPath())
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := pkgconfig.LoadCLIConfig("")
	if err != nil {
		return err
	}

	fmt.Println("current configuration")
	fmt.Printf("  broker_url: %s\n", cfg.BrokerURL)
	if cfg.Subdomain != "" {
		fmt.Printf("  subdomain:  %s\n", cfg.Subdomain)
	} else {
		fmt.Println("  subdomain:  (not set)")
	}
	fmt.Printf("  tls:        %s\n", enabledDisabled(cfg.TLS.UseTLS))
	fmt.Printf("  config:     %s\n", pkgconfig.DefaultCLIConfigPath())
	return nil
}

func runConfigSet(cmd *cobra.Command, args []string) error {
	cfg, err := pkgconfig.LoadCLIConfig("")
	if err != nil {
		cfg = &pkgconfig.CLIConfig{}
	}

	modified := false
	if configSetBroker != "" {
		cfg.BrokerURL = configSetBroker
		modified = true
		fmt.Printf("broker_url updated: %s\n", configSetBroker)
	}
	if configSetSub != "" {
		cfg.Subdomain = configSetSub
		modified = true
		fmt.Println("subdomain updated")
	}
	if !modified {
		return fmt.Errorf("no changes specified; use --broker-url or --subdomain")
	}

	if err := pkgconfig.SaveCLIConfig(cfg, ""); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}
	fmt.Println("configuration saved")
	return nil
}

func runConfigReset(cmd *cobra.Command, args []string) error {
	if !pkgconfig.ConfigExists("") {
		fmt.Println("no configuration file found")
		return nil
	}

	if !configForce {
		fmt.Print("delete the configuration file? (y/N): ")
		reader := bufio.NewReader(os.Stdin)
		response, _ := reader.ReadString('\n')
		response = strings.ToLower(strings.TrimSpace(response))
		if response != "y" && response != "yes" {
			fmt.Println("cancelled")
			return nil
		}
	}

	if err := pkgconfig.DeleteCLIConfig(""); err != nil {
		return fmt.Errorf("failed to delete configuration: %w", err)
	}
	fmt.Println("configuration file deleted")
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := pkgconfig.LoadCLIConfig("")
	if err != nil {
		return err
	}

	if cfg.BrokerURL == "" {
		return fmt.Errorf("broker URL is not set")
	}
	fmt.Println("broker URL is valid")

	if cfg.Subdomain != "" {
		fmt.Println("subdomain is set")
	}
	fmt.Println("configuration is valid")
	return nil
}

func enabledDisabled(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}
