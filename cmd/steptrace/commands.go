package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kalambet/steptrace/internal/config"
	"github.com/kalambet/steptrace/internal/export"
	"github.com/kalambet/steptrace/internal/model"
)

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server and recording status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func showStatus(ctx context.Context) error {
	client, err := newAPIClient()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running at %s", client.baseURL)

	st, err := fetchSettings(ctx, client)
	if err != nil {
		return err
	}
	printSettings(st)
	return nil
}

func fetchSettings(ctx context.Context, client *apiClient) (model.Settings, error) {
	resp, err := client.get(ctx, "/status")
	if err != nil {
		return model.Settings{}, err
	}
	var st model.Settings
	if err := decodeJSON(resp, &st); err != nil {
		return model.Settings{}, err
	}
	return st, nil
}

// postSettings sends a recorder command and decodes the resulting settings.
func postSettings(ctx context.Context, client *apiClient, path string, body any) (model.Settings, error) {
	resp, err := client.post(ctx, path, body)
	if err != nil {
		return model.Settings{}, err
	}
	var st model.Settings
	if err := decodeJSON(resp, &st); err != nil {
		return model.Settings{}, err
	}
	return st, nil
}

// optionsFromFlags collects the capture switches the user set explicitly.
func optionsFromFlags(cmd *cobra.Command) *model.OptionsPatch {
	var patch model.OptionsPatch
	set := false
	if cmd.Flags().Changed("screenshots") {
		v, _ := cmd.Flags().GetBool("screenshots")
		patch.CaptureScreenshots = &v
		set = true
	}
	if cmd.Flags().Changed("dom-state") {
		v, _ := cmd.Flags().GetBool("dom-state")
		patch.CaptureDOMState = &v
		set = true
	}
	if !set {
		return nil
	}
	return &patch
}

func addOptionFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("screenshots", true, "capture a screenshot with every observation")
	cmd.Flags().Bool("dom-state", true, "include element and scroll state in observations")
}

// --- start / stop / clear ---

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start recording a new episode",
	Long: `Start recording a new episode in the attached tab.

Examples:
  steptrace start
  steptrace start --screenshots=false
  steptrace start --dom-state=false`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		var body any
		if patch := optionsFromFlags(cmd); patch != nil {
			body = patch
		}
		st, err := postSettings(cmd.Context(), client, "/recording/start", body)
		if err != nil {
			return err
		}
		printSuccess("%s", st.LastMessage)
		printSettings(st)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop recording; steps are kept for export",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := postSettings(cmd.Context(), client, "/recording/stop", nil)
		if err != nil {
			return err
		}
		if st.IsRecording {
			printWarning("%s", st.LastMessage)
		} else {
			printSuccess("%s", st.LastMessage)
		}
		printStatus("Steps", "%d", st.StepCount)
		return nil
	},
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete the current episode and reset the recorder",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")
		if !confirm {
			printWarning("This deletes the current episode and all its steps. Use --confirm to proceed.")
			return nil
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := postSettings(cmd.Context(), client, "/recording/clear", nil)
		if err != nil {
			return err
		}
		printSuccess("%s", st.LastMessage)
		return nil
	},
}

func init() {
	addOptionFlags(startCmd)
	clearCmd.Flags().Bool("confirm", false, "confirm deleting the episode")
}

// --- options ---

var optionsCmd = &cobra.Command{
	Use:   "options",
	Short: "Show or change capture options",
}

var optionsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the current capture options",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newAPIClient()
		if err != nil {
			return err
		}
		st, err := fetchSettings(cmd.Context(), client)
		if err != nil {
			return err
		}
		printStatus("Screenshots", "%s", onOff(st.Options.CaptureScreenshots))
		printStatus("DOM state", "%s", onOff(st.Options.CaptureDOMState))
		return nil
	},
}

var optionsSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Change capture options",
	Long: `Change capture options. Only the flags given are changed; a running
recording picks the new values up from its next step.

Examples:
  steptrace options set --screenshots=false
  steptrace options set --dom-state=true`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		patch := optionsFromFlags(cmd)
		if patch == nil {
			return fmt.Errorf("one of --screenshots or --dom-state is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.patch(cmd.Context(), "/options", patch)
		if err != nil {
			return err
		}
		var st model.Settings
		if err := decodeJSON(resp, &st); err != nil {
			return err
		}
		printSuccess("%s", st.LastMessage)
		printStatus("Screenshots", "%s", onOff(st.Options.CaptureScreenshots))
		printStatus("DOM state", "%s", onOff(st.Options.CaptureDOMState))
		return nil
	},
}

func init() {
	addOptionFlags(optionsSetCmd)
	optionsCmd.AddCommand(optionsShowCmd, optionsSetCmd)
}

// --- export ---

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the current episode as JSON",
	Long: `Export the current episode as JSON.

Examples:
  steptrace export                 # writes ./episode_<id>.json
  steptrace export --dir ./out
  steptrace export --stdout > episode.json`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		dir, _ := cmd.Flags().GetString("dir")
		toStdout, _ := cmd.Flags().GetBool("stdout")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ep, err := fetchEpisode(cmd.Context(), client)
		if err != nil {
			return err
		}
		if err := ep.Validate(); err != nil {
			printWarning("episode is inconsistent: %v", err)
		}

		if toStdout {
			return export.Encode(os.Stdout, ep)
		}
		path, err := export.WriteFile(dir, ep)
		if err != nil {
			return err
		}
		printSuccess("Exported %d steps to %s", len(ep.Steps), path)
		return nil
	},
}

func fetchEpisode(ctx context.Context, client *apiClient) (*export.Episode, error) {
	resp, err := client.get(ctx, "/export?download=1")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if err := checkStatus(resp); err != nil {
		return nil, err
	}
	return export.Read(resp.Body)
}

func init() {
	exportCmd.Flags().String("dir", ".", "directory to write the episode file into")
	exportCmd.Flags().Bool("stdout", false, "write the episode to stdout instead of a file")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or update configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}

		keys := config.ShowAll(cfg)
		for _, k := range keys {
			fmt.Printf("  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		printStatus("API token", "stored in %s", config.TokenHint())
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value. Valid keys:\n  " + strings.Join(config.ValidKeys(), "\n  "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		printStep("Restart steptrace serve for the change to take effect")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd, configSetCmd)
}

func init() {
	rootCmd.AddCommand(statusCmd, startCmd, stopCmd, clearCmd, optionsCmd, exportCmd, scanCmd, configCmd)
}
