// Package cli implements geonapctl, the operator tool for running the ranking and
// decision engines over fixture files and inspecting service configuration.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/apperr"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/config"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/decision"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/models"
	"github.com/singhmohit14072002/Geo-Nap-Project-sub001/internal/ranking"
)

// Execute runs the root command against the process arguments.
func Execute() {
	if err := NewRootCommand(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func NewRootCommand(out io.Writer) *cobra.Command {
	var format string
	root := &cobra.Command{
		Use:          "geonapctl",
		Short:        "Operator tooling for the Geo-NAP recommendation pipeline",
		SilenceUsage: true,
	}
	root.SetOut(out)
	root.PersistentFlags().StringVarP(&format, "output", "o", "json", "Output format (json, yaml)")

	root.AddCommand(
		newRankCommand(&format),
		newDecideCommand(&format),
		newConfigCommand(),
	)
	return root
}

// rankInput is a completed batch as it would arrive on simulation.completed.
type rankInput struct {
	Results      []models.ProviderSimulationResult `json:"results"`
	Availability []models.AvailabilityScore        `json:"availability"`
	ResultLimit  int                               `json:"resultLimit"`
}

func newRankCommand(format *string) *cobra.Command {
	var (
		file  string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Rank a batch of simulation results",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readDocument(file)
			if err != nil {
				return err
			}
			var in rankInput
			if err := json.Unmarshal(body, &in); err != nil {
				return fmt.Errorf("decode %s: %w", file, err)
			}
			if cmd.Flags().Changed("limit") {
				in.ResultLimit = limit
			}
			bundle := ranking.Rank(in.Results, in.Availability, models.ClampResultLimit(in.ResultLimit, models.DefaultResultLimit))
			return write(cmd.OutOrStdout(), *format, bundle)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON file with results and availability")
	cmd.Flags().IntVar(&limit, "limit", models.DefaultResultLimit, "Result limit (overrides the file)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newDecideCommand(format *string) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "decide",
		Short: "Score provider cost estimates and explain the recommendation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := readDocument(file)
			if err != nil {
				return err
			}
			req, err := decision.ParseRequest(body)
			if err != nil {
				var appErr *apperr.Error
				if errors.As(err, &appErr) && appErr.Details != nil {
					_ = write(cmd.ErrOrStderr(), *format, map[string]interface{}{"details": appErr.Details})
				}
				return err
			}
			return write(cmd.OutOrStdout(), *format, decision.Analyze(req))
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML or JSON decision request")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newConfigCommand() *cobra.Command {
	loaders := map[string]func() (interface{}, error){
		"planner": func() (interface{}, error) {
			cfg, err := config.LoadPlanner()
			cfg.DatabaseURL = redactURL(cfg.DatabaseURL)
			return cfg, err
		},
		"intelligence": func() (interface{}, error) {
			cfg, err := config.LoadIntelligence()
			cfg.DatabaseURL = redactURL(cfg.DatabaseURL)
			return cfg, err
		},
		"simulation": func() (interface{}, error) { return config.LoadSimulation() },
		"recommendation": func() (interface{}, error) {
			cfg, err := config.LoadRecommendation()
			cfg.DatabaseURL = redactURL(cfg.DatabaseURL)
			return cfg, err
		},
		"decision": func() (interface{}, error) { return config.LoadDecision() },
	}
	return &cobra.Command{
		Use:       "config <service>",
		Short:     "Print the resolved configuration of a service",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"planner", "intelligence", "simulation", "recommendation", "decision"},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loaders[args[0]]()
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), cfg)
		},
	}
}

// redactURL masks the password of a connection URL.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}

// readDocument loads a YAML or JSON file and returns it as JSON. JSON is valid YAML,
// so both go through the YAML decoder.
func readDocument(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("convert %s: %w", path, err)
	}
	return body, nil
}

// write renders v in the requested format. YAML output goes through the JSON encoding
// so field names match the wire contracts.
func write(w io.Writer, format string, v interface{}) error {
	switch format {
	case "yaml", "yml":
		body, err := json.Marshal(v)
		if err != nil {
			return err
		}
		var doc interface{}
		if err := yaml.Unmarshal(body, &doc); err != nil {
			return err
		}
		return writeYAML(w, doc)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func writeYAML(w io.Writer, v interface{}) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}
