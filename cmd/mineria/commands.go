package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/DaewiLF/MinerIA/internal/api"
	"github.com/DaewiLF/MinerIA/internal/config"
	"github.com/DaewiLF/MinerIA/internal/guard"
	"github.com/DaewiLF/MinerIA/internal/mcpserver"
	"github.com/DaewiLF/MinerIA/internal/report"
	"github.com/DaewiLF/MinerIA/internal/session"
	"github.com/DaewiLF/MinerIA/internal/workflow"
)

// --- login / logout / whoami ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in to the MinerIA backend",
	Long: `Log in to the MinerIA backend and remember the session.

Examples:
  mineria login --email ana@mineria.cl --password secret --role admin
  MINERIA_PASSWORD=secret mineria login --email ana@mineria.cl`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		role, _ := cmd.Flags().GetString("role")

		if password == "" {
			password = os.Getenv("MINERIA_PASSWORD")
		}
		if email == "" || password == "" {
			return fmt.Errorf("--email and --password (or MINERIA_PASSWORD) are required")
		}
		if !session.Role(role).Valid() {
			return fmt.Errorf("invalid --role %q: want admin or analyst", role)
		}

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		resp, err := a.client.Login(cmd.Context(), api.LoginRequest{
			Email:    email,
			Password: password,
			Role:     session.Role(role),
		})
		if err != nil {
			return err
		}

		if err := a.session.Login(resp.Token, resp.User); err != nil {
			if errors.Is(err, session.ErrInvalidCredential) {
				return err
			}
			printWarning("Logged in, but the session could not be saved: %v", err)
		}

		printSuccess("Logged in as %s (%s)", displayName(resp.User), resp.User.Role)
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")
	loginCmd.Flags().String("role", string(session.RoleAnalyst), "role to log in as (admin or analyst)")
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the current session",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.session.Logout(); err != nil {
			return err
		}
		printSuccess("Logged out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the logged-in operator",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		cur, ok := a.session.Current()
		if !ok {
			printWarning("Not logged in")
			return nil
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s <%s>\n", displayName(cur.Identity), cur.Identity.Email)
		fmt.Fprintf(out, "  Role: %s\n", cur.Identity.Role)
		fmt.Fprintf(out, "  ID:   %d\n", cur.Identity.ID)
		return nil
	},
}

func displayName(id session.Identity) string {
	if id.Name != "" {
		return id.Name
	}
	return id.Email
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Submit a site photograph for analysis",
	Long: `Submit a site photograph for analysis.

Examples:
  mineria analyze --file ./frente-3.jpg --category "Clasificación Mineral" --risk-level Bajo
  mineria analyze --file ./talud.png --location "Rajo Sur" --personnel 4 --retry 2 --report`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("file")
		retries, _ := cmd.Flags().GetInt("retry")
		withReport, _ := cmd.Flags().GetBool("report")
		asJSON, _ := cmd.Flags().GetBool("json")

		if path == "" {
			return fmt.Errorf("--file is required")
		}
		if retries < 0 {
			return fmt.Errorf("--retry must not be negative")
		}
		meta := metadataFromFlags(cmd)

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.require(guard.PathDashboard); err != nil {
			return err
		}

		f, err := workflow.FileFromPath(path)
		if err != nil {
			return err
		}

		wf := workflow.New(a.client, a.logger)
		defer wf.Close()

		done, err := wf.SelectFile(f)
		if err != nil {
			return err
		}
		<-done
		if !asJSON {
			printStep("Uploading %s (%s, %d bytes)", f.Name, f.ContentType, f.Size)
		}

		var detail api.AnalysisDetail
		for attempt := 0; ; attempt++ {
			detail, err = wf.Submit(cmd.Context(), meta)
			if err == nil {
				break
			}
			if attempt >= retries || cmd.Context().Err() != nil {
				return err
			}
			printWarning("Attempt %d failed: %v. Retrying...", attempt+1, err)
		}

		if asJSON {
			if err := writeJSON(cmd.OutOrStdout(), detail); err != nil {
				return err
			}
		} else {
			printSuccess("Analysis %d complete", detail.ID)
			printAnalysis(cmd.OutOrStdout(), detail, a.client.ImageURL(detail.ImageURL))
		}

		if withReport {
			rep, err := a.reports.Download(cmd.Context(), fmt.Sprint(detail.ID))
			if err != nil {
				return err
			}
			printSuccess("Report saved to %s", rep.Path)
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().String("file", "", "photograph to analyze")
	analyzeCmd.Flags().String("category", "", "analysis category")
	analyzeCmd.Flags().String("risk-level", "", "operator-assessed risk level")
	analyzeCmd.Flags().String("location", "", "site or zone name")
	analyzeCmd.Flags().String("coordinates", "", "GPS coordinates")
	analyzeCmd.Flags().String("responsible", "", "person responsible for the site")
	analyzeCmd.Flags().Int("personnel", 1, "number of personnel on site")
	analyzeCmd.Flags().Int("retry", 0, "resubmit the same file up to N more times on failure")
	analyzeCmd.Flags().Bool("report", false, "download the PDF report after a successful analysis")
	analyzeCmd.Flags().Bool("json", false, "print the analysis as JSON")
}

// metadataFromFlags collects the form as typed. The backend validates it.
func metadataFromFlags(cmd *cobra.Command) api.Metadata {
	var m api.Metadata
	m.Category, _ = cmd.Flags().GetString("category")
	m.RiskLevel, _ = cmd.Flags().GetString("risk-level")
	m.Location, _ = cmd.Flags().GetString("location")
	m.Coordinates, _ = cmd.Flags().GetString("coordinates")
	m.Responsible, _ = cmd.Flags().GetString("responsible")
	m.Personnel, _ = cmd.Flags().GetInt("personnel")
	return m
}

// --- history / show ---

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		asJSON, _ := cmd.Flags().GetBool("json")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.require(guard.PathHistory); err != nil {
			return err
		}

		rows, err := a.client.History(cmd.Context())
		if err != nil {
			return err
		}
		if limit > 0 && limit < len(rows) {
			rows = rows[:limit]
		}

		if asJSON {
			return writeJSON(cmd.OutOrStdout(), rows)
		}
		if len(rows) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No analyses found.")
			return nil
		}
		printHistory(cmd.OutOrStdout(), rows)
		return nil
	},
}

func init() {
	historyCmd.Flags().Int("limit", 0, "maximum number of rows (0 for all)")
	historyCmd.Flags().Bool("json", false, "print rows as JSON")
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a single analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")
		id := args[0]

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.require(guard.AnalysisPath(id)); err != nil {
			return err
		}

		d, err := a.client.Analysis(cmd.Context(), id)
		if err != nil {
			return err
		}
		if asJSON {
			return writeJSON(cmd.OutOrStdout(), d)
		}
		printAnalysis(cmd.OutOrStdout(), d, a.client.ImageURL(d.ImageURL))
		return nil
	},
}

func init() {
	showCmd.Flags().Bool("json", false, "print the analysis as JSON")
}

// --- report ---

var reportCmd = &cobra.Command{
	Use:   "report <id>...",
	Short: "Download analysis reports as PDF",
	Long: `Download analysis reports as PDF.

Each report is saved as reporte_<id>.pdf in the output directory
(report.output_dir, or --output).`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		noVerify, _ := cmd.Flags().GetBool("no-verify")

		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		for _, id := range args {
			if err := a.require(guard.AnalysisPath(id)); err != nil {
				return err
			}
		}

		dl := a.reports
		if output != "" || noVerify {
			opts := report.Options{
				OutputDir:   a.cfg.Report.OutputDir,
				VerifyPDF:   a.cfg.Report.VerifyPDF && !noVerify,
				Concurrency: a.cfg.Report.Concurrency,
				Timeout:     a.cfg.API.Timeout,
				Logger:      a.logger,
			}
			if output != "" {
				opts.OutputDir = output
			}
			dl = report.New(a.cfg.API.BaseURL, a.session, opts)
		}

		reps, err := dl.DownloadAll(cmd.Context(), args)
		for _, r := range reps {
			if r.Pages > 0 {
				printSuccess("Saved %s (%d pages)", r.Path, r.Pages)
			} else {
				printSuccess("Saved %s", r.Path)
			}
		}
		return err
	},
}

func init() {
	reportCmd.Flags().String("output", "", "directory to save reports in (default: report.output_dir)")
	reportCmd.Flags().Bool("no-verify", false, "skip PDF validation")
}

// --- open ---

var openCmd = &cobra.Command{
	Use:   "open <path>",
	Short: "Show where a dashboard destination leads for the current session",
	Long: `Resolve a dashboard destination through the route guard.

Examples:
  mineria open /history
  mineria open /analysis/42`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		path := args[0]
		// A redirect chain is at most unknown -> dashboard -> login.
		for hop := 0; hop < 3; hop++ {
			d := a.guard.Resolve(path)
			if d.Action == guard.Permit {
				fmt.Fprintf(out, "%s %s\n", colorize(colorGreen, d.Action.String()), d.Target)
				return nil
			}
			fmt.Fprintf(out, "%s %s -> %s\n", colorize(colorYellow, d.Action.String()), path, d.Target)
			path = d.Target
		}
		return fmt.Errorf("redirect loop resolving %s", args[0])
	},
}

// --- mcp ---

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MinerIA tools to MCP clients over stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.Close()

		srv := mcpserver.New(mcpserver.Deps{
			Session: a.session,
			Backend: a.client,
			Reports: a.reports,
			Version: version,
		})
		a.logger.Info("MCP server started (stdio transport)")
		stdio := server.NewStdioServer(srv)
		if err := stdio.Listen(cmd.Context(), os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("MCP stdio server: %w", err)
		}
		return nil
	},
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

		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s = %s  (%s)\n", colorize(colorBold, k.Key), k.Value, k.EnvVar)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long:  "Set a configuration value.\n\nValid keys: " + strings.Join(config.ValidKeys(), ", "),
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]

		if err := config.SetKey(key, value); err != nil {
			return err
		}

		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

var configUnsetCmd = &cobra.Command{
	Use:   "unset <key>",
	Short: "Restore a configuration value to its default",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.UnsetKey(args[0]); err != nil {
			return err
		}
		printSuccess("Unset %s", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configCmd.AddCommand(configUnsetCmd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
