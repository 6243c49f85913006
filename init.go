package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/shibukawa/authrelay/internal/config"
	"github.com/shibukawa/authrelay/internal/relay"
)

// InitCmd represents the command to initialize configuration
type InitCmd struct {
	Config        string `arg:"" help:"Configuration file path" default:"authrelay.yaml"`
	Interactive   bool   `short:"i" help:"Ask for the relay settings interactively"`
	BaseURL       string `help:"Public URL of the relay (display only)"`
	DefaultScheme string `help:"App URL scheme used when source_app is absent"`
	DevTunnelURL  string `help:"Expo Go address used when dev_mode=true"`
	Presentation  string `help:"How callbacks are answered" enum:"interstitial,redirect," default:""`
	// ACME/Autocert settings
	Autocert   bool   `help:"Enable autocert for automatic HTTPS certificates"`
	ACMEServer string `help:"ACME server URL for autocert" env:"AUTHRELAY_ACME_DIRECTORY_URL"`
	Domains    string `help:"Comma-separated list of domains for autocert certificates"`
	Email      string `help:"Email address for ACME registration" env:"AUTHRELAY_ACME_EMAIL"`
	Overwrite  bool   `short:"w" help:"Overwrite existing files without confirmation"`

	stdin io.Reader `kong:"-"`
}

// Run executes the initialization command with the provided configuration.
func (cmd *InitCmd) Run() error {
	if cmd.Interactive {
		in := cmd.stdin
		if in == nil {
			in = os.Stdin
		}
		if err := cmd.runWizard(in); err != nil {
			return fmt.Errorf("wizard failed: %w", err)
		}
	}

	if !cmd.Overwrite {
		if err := cmd.checkExistingFiles(); err != nil {
			return err
		}
	}

	cfg := config.Default()
	opts := &config.InitOptions{
		BaseURL:       cmd.BaseURL,
		DefaultScheme: cmd.DefaultScheme,
		DevTunnelURL:  cmd.DevTunnelURL,
		Presentation:  cmd.Presentation,
		Autocert:      cmd.Autocert,
		ACMEServer:    cmd.ACMEServer,
		Email:         cmd.Email,
	}
	if cmd.Domains != "" {
		ds := strings.Split(cmd.Domains, ",")
		for i := range ds {
			ds[i] = strings.TrimSpace(ds[i])
		}
		opts.Domains = ds
	}
	cfg.ApplyInitOptions(opts)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if err := config.SaveConfig(cmd.Config, cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("\n✅ Configuration initialized successfully!")
	fmt.Printf("  File: %s\n", cmd.Config)
	fmt.Printf("  Callback Path: %s\n", cfg.Relay.RedirectPath)
	fmt.Printf("  Default Scheme: %s\n", cfg.Relay.DefaultScheme)
	fmt.Printf("  Dev Tunnel: %s\n", cfg.Relay.DevTunnelURL)
	fmt.Printf("  Presentation: %s\n", cfg.Relay.Presentation)
	if cfg.Relay.BaseURL != "" {
		color.Cyan("  Register this redirect URI with your OAuth provider: %s%s", strings.TrimRight(cfg.Relay.BaseURL, "/"), cfg.Relay.RedirectPath)
	}
	if cfg.Autocert != nil && cfg.Autocert.Enabled {
		fmt.Printf("  Autocert: enabled\n")
		fmt.Printf("  ACME Server: %s\n", cfg.Autocert.ACMEServer)
		fmt.Printf("  Domains: %s\n", strings.Join(cfg.Autocert.Domains, ","))
		fmt.Printf("  Email: %s\n", cfg.Autocert.Email)
	}

	return nil
}

// runWizard asks for the relay settings, keeping flag values as defaults
func (cmd *InitCmd) runWizard(in io.Reader) error {
	reader := bufio.NewReader(in)

	color.Cyan("Auth Relay Configuration Wizard")
	color.Cyan("===============================")
	color.Cyan("")

	ask := func(prompt, fallback string) (string, error) {
		color.Yellow("%s [%s]: ", prompt, fallback)
		answer, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return "", fmt.Errorf("failed to read answer: %w", err)
		}
		if answer = strings.TrimSpace(answer); answer == "" {
			return fallback, nil
		}
		return answer, nil
	}

	var err error
	if cmd.DefaultScheme, err = ask("App URL scheme", valueOr(cmd.DefaultScheme, relay.DefaultScheme)); err != nil {
		return err
	}
	if cmd.DevTunnelURL, err = ask("Expo dev tunnel URL", valueOr(cmd.DevTunnelURL, relay.DefaultDevTunnelURL)); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("How should callbacks be answered?")
	fmt.Println("1. Interstitial page with a Return to App button (default)")
	fmt.Println("2. Immediate redirect")
	choice, err := ask("Enter choice [1-2]", "1")
	if err != nil {
		return err
	}
	switch choice {
	case "1":
		cmd.Presentation = string(relay.PresentationInterstitial)
	case "2":
		cmd.Presentation = string(relay.PresentationRedirect)
	default:
		return fmt.Errorf("%w: %s", ErrInvalidPresentationChoice, choice)
	}

	cmd.BaseURL, err = ask("Public base URL (optional)", cmd.BaseURL)
	return err
}

func valueOr(value, fallback string) string {
	if value != "" {
		return value
	}
	return fallback
}

func (cmd *InitCmd) checkExistingFiles() error {
	if _, err := os.Stat(cmd.Config); err == nil {
		color.Red("❌ The following files already exist and would be overwritten:")
		fmt.Printf("  - %s\n", cmd.Config)
		fmt.Println("Please remove them or use different file names")
		return fmt.Errorf("%w:\n  %s", ErrFilesExist, cmd.Config)
	}
	return nil
}
