package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/tjfontaine/polyglot-chat-core/internal/adapters/storage/memory"
	"github.com/tjfontaine/polyglot-chat-core/internal/adapters/storage/sqlite"
	"github.com/tjfontaine/polyglot-chat-core/internal/capability"
	"github.com/tjfontaine/polyglot-chat-core/internal/core/ports"
	"github.com/tjfontaine/polyglot-chat-core/internal/pkg/config"
)

var capsJSON bool

var capsCmd = &cobra.Command{
	Use:   "caps",
	Short: "Inspect or reset learned provider capabilities",
	Long: `Learned capabilities record, per provider and model, whether sampling
and reasoning parameters are accepted and the largest max-tokens value
known to work.

Available subcommands:
  list  - Print every learned entry
  reset - Forget everything so the next requests re-learn`,
}

var capsListCmd = &cobra.Command{
	Use:   "list",
	Short: "Print learned capabilities",
	RunE:  runCapsList,
}

var capsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Forget learned capabilities",
	RunE:  runCapsReset,
}

func init() {
	capsListCmd.Flags().BoolVar(&capsJSON, "json", false, "Print JSON instead of a table")
	capsCmd.AddCommand(capsListCmd)
	capsCmd.AddCommand(capsResetCmd)
}

func openCapabilities() (*capability.Cache, ports.CapabilityStore, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(os.Stderr, cfg.Log.Level, false)

	var store ports.CapabilityStore
	switch cfg.Storage.Type {
	case "memory":
		store = memory.New()
	default:
		s, err := sqlite.New(cfg.Storage.SQLite.Path)
		if err != nil {
			return nil, nil, err
		}
		store = s
	}

	cache := capability.New(capability.WithStore(store), capability.WithLogger(logger))
	return cache, store, nil
}

func runCapsList(cmd *cobra.Command, args []string) error {
	cache, store, err := openCapabilities()
	if err != nil {
		return err
	}
	defer store.Close()

	cache.Load(cmd.Context())
	records := cache.Snapshot()

	if capsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PROVIDER\tSUBMODEL\tSAMPLING\tREASONING\tSAFE MAX TOKENS\tUPDATED")
	for _, r := range records {
		safe := "-"
		if r.SafeMaxTokens > 0 {
			safe = fmt.Sprint(r.SafeMaxTokens)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.Provider, r.Submodel, r.SupportsTemperature, r.SupportsReasoning, safe,
			r.UpdatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

func runCapsReset(cmd *cobra.Command, args []string) error {
	cache, store, err := openCapabilities()
	if err != nil {
		return err
	}
	defer store.Close()

	cache.Reset(cmd.Context())
	fmt.Fprintln(cmd.OutOrStdout(), "learned capabilities cleared")
	return nil
}
