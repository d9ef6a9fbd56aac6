package main

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/config"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Interactive setup wizard: API key storage, AI mode, and model selection",
	Long: `Walks through gitmem's per-workspace settings step by step:

1. Anthropic API key storage (OS keychain or environment variable)
2. AI mode (enabled, disabled, or enabled from a cutoff date)
3. Index and check model selection`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func runConfigure(cmd *cobra.Command, args []string) error {
	rc, err := resolveExisting()
	if err != nil {
		return err
	}
	defer rc.store.Close()

	pterm.DefaultHeader.Println("gitmem configuration wizard")
	reader := bufio.NewReader(os.Stdin)
	km := config.NewKeyringManager()

	if err := configureAPIKey(reader, km); err != nil {
		pterm.Warning.Printf("API key step: %v\n", err)
	}

	if err := configureAIMode(reader, rc.cfg); err != nil {
		return err
	}

	if err := configureModels(reader, rc.cfg); err != nil {
		return err
	}

	if err := config.Save(rc.dir, rc.cfg); err != nil {
		return fmt.Errorf("save config.json: %w", err)
	}
	pterm.Success.Println("Configuration saved.")
	return nil
}

func configureAPIKey(reader *bufio.Reader, km *config.KeyringManager) error {
	pterm.DefaultSection.Println("Step 1/3: Anthropic API key")

	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		pterm.Info.Println("ANTHROPIC_API_KEY is set in the environment; that takes precedence over the keychain.")
		return nil
	}

	if !km.IsAvailable() {
		pterm.Warning.Println("OS keychain is not available on this system; set ANTHROPIC_API_KEY in the environment instead.")
		return nil
	}

	existing, err := km.GetAPIKey()
	if err != nil {
		return err
	}
	if existing != "" {
		fmt.Printf("Current: %s\n", config.MaskAPIKey(existing))
		fmt.Print("Keep existing key? (Y/n): ")
		response := readLine(reader)
		if response == "" || strings.EqualFold(response, "y") {
			return nil
		}
	}

	fmt.Print("Enter your Anthropic API key (blank to skip): ")
	key := readLine(reader)
	if key == "" {
		pterm.Info.Println("Skipped; set ANTHROPIC_API_KEY in the environment before running 'gitmem index' or 'gitmem check'.")
		return nil
	}

	if err := km.SaveAPIKey(key); err != nil {
		return err
	}
	pterm.Success.Printf("API key saved to the OS keychain (%s).\n", keychainLocation())
	return nil
}

func configureAIMode(reader *bufio.Reader, cfg *config.Config) error {
	pterm.DefaultSection.Println("Step 2/3: AI mode")
	fmt.Printf("Current: enabled=%v", cfg.AI.Enabled)
	if cfg.AI.Since != nil {
		fmt.Printf(", since=%s", cfg.AI.Since.Format("2006-01-02"))
	}
	fmt.Println()
	fmt.Println("  1. Enabled for all commits")
	fmt.Println("  2. Disabled")
	fmt.Println("  3. Enabled only from a cutoff date forward")
	fmt.Print("Choose (1-3) or press Enter to keep current: ")

	switch readLine(reader) {
	case "1":
		cfg.AI = config.AIMode{Enabled: true}
	case "2":
		cfg.AI = config.AIMode{Enabled: false}
	case "3":
		fmt.Print("Cutoff date (YYYY-MM-DD): ")
		dateStr := readLine(reader)
		t, err := parseISODate(dateStr)
		if err != nil {
			return fmt.Errorf("invalid cutoff date: %w", err)
		}
		cfg.AI = config.AIMode{Enabled: true, Since: &t}
	}
	return nil
}

func configureModels(reader *bufio.Reader, cfg *config.Config) error {
	pterm.DefaultSection.Println("Step 3/3: Models")

	fmt.Printf("Index model [%s]: ", cfg.IndexModel)
	if m := readLine(reader); m != "" {
		cfg.IndexModel = m
	}

	fmt.Printf("Check model [%s]: ", cfg.CheckModel)
	if m := readLine(reader); m != "" {
		cfg.CheckModel = m
	}
	return nil
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func parseISODate(s string) (time.Time, error) {
	return time.Parse("2006-01-02", s)
}

func keychainLocation() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain Access.app, service \"gitmem\""
	case "windows":
		return "Windows Credential Manager, service \"gitmem\""
	case "linux":
		return "Linux Secret Service (libsecret)"
	default:
		return "OS keychain"
	}
}
