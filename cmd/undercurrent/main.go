package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ameliahart/undercurrent"
	"github.com/ameliahart/undercurrent/internal/output"
	"github.com/ameliahart/undercurrent/internal/storage"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	configPath   string
	cfg          *storage.Config
	outputFormat string
	userName     string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "undercurrent",
		Short: "A private journal that surfaces the themes running underneath your entries",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path (default: ./config/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "format", "f", "human", "output format: json, text, human")
	rootCmd.PersistentFlags().StringVarP(&userName, "user", "u", "", "user name (defaults to the only user, or $UNDERCURRENT_USER)")

	rootCmd.AddCommand(initConfigCmd())
	rootCmd.AddCommand(userCmd())
	rootCmd.AddCommand(addCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(listCmd())
	rootCmd.AddCommand(showCmd())
	rootCmd.AddCommand(deleteCmd())
	rootCmd.AddCommand(insightsCmd())
	rootCmd.AddCommand(themesCmd())
	rootCmd.AddCommand(themeCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(daemonCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	if configPath == "" {
		configPath = "./config/config.yaml"
	}

	// Check if config exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Use default config
		cfg = storage.DefaultConfig()
		return nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}

	cfg = storage.DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}

	return nil
}

// openEngine builds an engine from the loaded config. Read-only commands
// skip provider setup so they work without Ollama or an API key.
func openEngine(readOnly bool) (*undercurrent.Engine, error) {
	engineCfg := undercurrent.EngineConfig{
		DBPath:            cfg.Database.Path,
		Provider:          cfg.Provider,
		OllamaBaseURL:     cfg.Ollama.BaseURL,
		OpenAIAPIKey:      openAIKey(),
		MinEntries:        cfg.Insights.MinEntries,
		CorpusEntries:     cfg.Insights.CorpusEntries,
		ExtractionTimeout: time.Duration(cfg.Insights.ExtractionTimeout) * time.Second,
		ReadOnly:          readOnly,
	}
	switch cfg.Provider {
	case "openai":
		engineCfg.Model = cfg.OpenAI.Model
	default:
		engineCfg.Model = cfg.Ollama.Model
	}
	return undercurrent.NewEngine(engineCfg)
}

// openAIKey prefers the environment over the config file.
func openAIKey() string {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return key
	}
	return cfg.OpenAI.APIKey
}

// resolveUser picks the acting user: the --user flag, then
// $UNDERCURRENT_USER, then the only registered user.
func resolveUser(engine *undercurrent.Engine) (*undercurrent.User, error) {
	name := userName
	if name == "" {
		name = os.Getenv("UNDERCURRENT_USER")
	}
	if name != "" {
		return engine.ResolveUser(name)
	}

	users, err := engine.ListUsers()
	if err != nil {
		return nil, err
	}
	switch len(users) {
	case 0:
		return nil, fmt.Errorf("no users yet; run `undercurrent user add <name>` first")
	case 1:
		return &users[0], nil
	default:
		return nil, fmt.Errorf("multiple users exist; pick one with --user")
	}
}

func initConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init-config",
		Short: "Create a default config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = "./config/config.yaml"
			}

			dir := filepath.Dir(configPath)
			if err := os.MkdirAll(dir, 0755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}

			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("config file already exists: %s", configPath)
			}

			data, err := yaml.Marshal(storage.DefaultConfig())
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}

			if err := os.WriteFile(configPath, data, 0644); err != nil {
				return fmt.Errorf("failed to write config: %w", err)
			}

			fmt.Printf("Created default config at %s\n", configPath)
			return nil
		},
	}
}

func userCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage journal users",
	}

	var timezone string
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Register a new user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := engine.CreateUser(args[0], timezone)
			if err != nil {
				return err
			}
			fmt.Printf("Created user %s (timezone %s)\n", user.Name, user.Timezone)
			return nil
		},
	}
	addCmd.Flags().StringVarP(&timezone, "timezone", "z", "", "IANA timezone for the weekly insight boundary (default UTC)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered users",
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			users, err := engine.ListUsers()
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Printf("%s\t%s\n", u.Name, u.Timezone)
			}
			return nil
		},
	}

	cmd.AddCommand(addCmd, listCmd)
	return cmd
}

func addCmd() *cobra.Command {
	var title, date string
	cmd := &cobra.Command{
		Use:   "add <text...>",
		Short: "Write a journal entry",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := resolveUser(engine)
			if err != nil {
				return err
			}

			var entryDate time.Time
			if date != "" {
				entryDate, err = time.Parse("2006-01-02", date)
				if err != nil {
					return fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", date, err)
				}
			}

			body := args[0]
			for _, a := range args[1:] {
				body += " " + a
			}

			entry, err := engine.AddEntry(user.ID, title, body, entryDate)
			if err != nil {
				return err
			}
			fmt.Printf("Saved entry %d (%s)\n", entry.ID, entry.EntryDate.Format("2006-01-02"))
			return nil
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "", "optional entry title")
	cmd.Flags().StringVarP(&date, "date", "d", "", "entry date as YYYY-MM-DD (default today)")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file-or-dir>",
		Short: "Import Markdown journal files (optional TOML front matter)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := resolveUser(engine)
			if err != nil {
				return err
			}

			imported, errs := engine.ImportEntries(user.ID, args[0])
			for _, e := range errs {
				fmt.Fprintf(os.Stderr, "Warning: %v\n", e)
			}
			fmt.Printf("Imported %d entries for %s\n", imported, user.Name)
			if imported == 0 && len(errs) > 0 {
				return fmt.Errorf("nothing imported")
			}
			return nil
		},
	}
}

func listCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List journal entries, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := resolveUser(engine)
			if err != nil {
				return err
			}

			entries, err := engine.ListEntries(user.ID, limit, offset)
			if err != nil {
				return err
			}
			return formatter.OutputEntryList(entries)
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of entries to show")
	cmd.Flags().IntVarP(&offset, "offset", "o", 0, "number of entries to skip")
	return cmd
}

func showCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <entry-id>",
		Short: "Show a single entry in full",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry ID: %w", err)
			}

			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := resolveUser(engine)
			if err != nil {
				return err
			}

			entry, err := engine.GetEntry(user.ID, entryID)
			if err != nil {
				return err
			}
			return formatter.OutputEntry(entry)
		},
	}
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <entry-id>",
		Short: "Delete a journal entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryID, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid entry ID: %w", err)
			}

			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := resolveUser(engine)
			if err != nil {
				return err
			}

			if err := engine.DeleteEntry(user.ID, entryID); err != nil {
				return err
			}
			fmt.Printf("Deleted entry %d\n", entryID)
			return nil
		},
	}
}

func insightsCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Generate insight themes from recent entries",
		Long: `Sends your most recent entries to the configured AI provider, merges the
extracted themes into your retained top themes, and prints what changed.
Runs at most once per week unless --force is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine(false)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := resolveUser(engine)
			if err != nil {
				return err
			}

			report, err := engine.GenerateInsights(context.Background(), user.ID, force)
			if errors.Is(err, undercurrent.ErrAlreadyRanThisWeek) {
				formatter.Warning("insights already generated this week; use --force to rerun")
				return nil
			}
			if err != nil {
				return err
			}
			return formatter.OutputInsightReport(report)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "bypass the once-a-week limit")
	return cmd
}

func themesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "themes",
		Short: "Show your retained insight themes",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := resolveUser(engine)
			if err != nil {
				return err
			}

			themes, err := engine.Themes(user.ID)
			if err != nil {
				return err
			}
			return formatter.OutputThemes(themes)
		},
	}
}

func themeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Manage individual themes",
	}

	removeCmd := &cobra.Command{
		Use:   "remove <theme-id>",
		Short: "Remove a retained theme",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := resolveUser(engine)
			if err != nil {
				return err
			}

			if err := engine.RemoveTheme(user.ID, args[0]); err != nil {
				return err
			}
			fmt.Printf("Removed theme %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(removeCmd)
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show insight eligibility and last run",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(output.Format(outputFormat))

			engine, err := openEngine(true)
			if err != nil {
				return err
			}
			defer engine.Close()

			user, err := resolveUser(engine)
			if err != nil {
				return err
			}

			status, err := engine.InsightStatus(user.ID)
			if err != nil {
				return err
			}
			return formatter.OutputRunStatus(status)
		},
	}
}
