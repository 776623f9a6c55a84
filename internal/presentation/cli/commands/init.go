package commands

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jbctechsolutions/focusvault/internal/infrastructure/config"
	"github.com/jbctechsolutions/focusvault/internal/infrastructure/crypto"
	"github.com/jbctechsolutions/focusvault/internal/presentation/cli/output"
)

// InitResult holds the result of the init command for JSON output.
type InitResult struct {
	ConfigFile  string `json:"config_file"`
	BaseURL     string `json:"base_url"`
	TokenSet    bool   `json:"token_set"`
	Initialized bool   `json:"initialized"`
}

type initFlags struct {
	force   bool
	baseURL string
	token   string
}

// NewInitCmd creates the init command.
func NewInitCmd() *cobra.Command {
	var flags initFlags

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize focusvault configuration",
		Long: `Create ~/.focusvault/config.yaml with the session service URL and API
token. The token is stored encrypted with a key derived from this machine.

Values not given as flags are prompted for.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), flags)
		},
	}

	cmd.Flags().BoolVarP(&flags.force, "force", "f", false, "overwrite existing configuration")
	cmd.Flags().StringVar(&flags.baseURL, "url", "", "session service base URL")
	cmd.Flags().StringVar(&flags.token, "token", "", "session service API token")

	return cmd
}

// prompter handles interactive user input.
type prompter struct {
	reader    *bufio.Reader
	formatter *output.Formatter
}

func newPrompter(in io.Reader, formatter *output.Formatter) *prompter {
	return &prompter{reader: bufio.NewReader(in), formatter: formatter}
}

// prompt asks a question and returns the answer (or default if empty).
func (p *prompter) prompt(question, defaultValue string) (string, error) {
	if defaultValue != "" {
		_, _ = fmt.Fprintf(p.formatter, "%s [%s]: ", question, defaultValue)
	} else {
		_, _ = fmt.Fprintf(p.formatter, "%s: ", question)
	}

	answer, err := p.reader.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" {
		return defaultValue, nil
	}
	return answer, nil
}

func runInit(in io.Reader, out io.Writer, flags initFlags) error {
	formatter, err := newFormatter(out)
	if err != nil {
		return err
	}

	loader, err := config.NewLoader("")
	if err != nil {
		return err
	}
	configFile := globalFlags.ConfigFile
	if configFile == "" {
		configFile = loader.DefaultConfigPath()
	}

	if _, err := os.Stat(configFile); err == nil && !flags.force {
		if formatter.IsJSON() {
			return formatter.JSON(InitResult{ConfigFile: configFile})
		}
		return fmt.Errorf("config already exists at %s (use --force to overwrite)", configFile)
	}

	cfg := config.NewDefaultConfig()
	p := newPrompter(in, formatter)

	baseURL := flags.baseURL
	if baseURL == "" {
		if baseURL, err = p.prompt("Session service URL", config.DefaultRemoteURL); err != nil {
			return err
		}
	}
	cfg.Remote.BaseURL = strings.TrimRight(baseURL, "/")

	token := flags.token
	if token == "" {
		if token, err = p.prompt("API token (leave empty for none)", ""); err != nil {
			return err
		}
	}
	if token != "" {
		enc, err := crypto.NewEncryptor()
		if err != nil {
			return fmt.Errorf("creating encryptor: %w", err)
		}
		if cfg.Remote.TokenEncrypted, err = enc.Encrypt(token); err != nil {
			return fmt.Errorf("encrypting token: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := loader.Save(cfg, configFile); err != nil {
		return err
	}

	result := InitResult{
		ConfigFile:  configFile,
		BaseURL:     cfg.Remote.BaseURL,
		TokenSet:    token != "",
		Initialized: true,
	}
	if formatter.IsJSON() {
		return formatter.JSON(result)
	}
	_ = formatter.Success("Configuration written to %s", configFile)
	_ = formatter.Item("Service", result.BaseURL)
	if result.TokenSet {
		_ = formatter.Item("Token", "stored encrypted")
	}
	return nil
}
