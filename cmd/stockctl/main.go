package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	apiFlag     string
	tokenFlag   string
	timeoutFlag time.Duration
	rootCmd     = &cobra.Command{
		Use:          "stockctl",
		Short:        "Inspect and drive a running stocksyncd",
		SilenceUsage: true,
	}
)

func client() *apiClient {
	return newAPIClient(apiFlag, tokenFlag, timeoutFlag)
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&apiFlag, "api", "a", envOr("STOCKCTL_API", "http://127.0.0.1:8787"), "stocksyncd base URL")
	rootCmd.PersistentFlags().StringVarP(&tokenFlag, "token", "t", os.Getenv("STOCKCTL_TOKEN"), "bearer token for the local API")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 2*time.Minute, "request timeout")

	rootCmd.AddCommand(
		infoCmd(), enqueueCmd(), eventsCmd(), statusCmd(), conflictsCmd(),
		resolveCmd(), retryCmd(), syncCmd(), exportCmd(), importCmd(), tokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func infoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show engine capabilities and connectivity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().getJSON("/v1/info", cmd.OutOrStdout())
		},
	}
}

func enqueueCmd() *cobra.Command {
	var a enqueueArgs
	cmd := &cobra.Command{
		Use:   "enqueue",
		Short: "Record a local mutation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnqueue(client(), a, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&a.Type, "type", "", "CREATE, UPDATE, DELETE or MOVE (required)")
	cmd.Flags().StringVarP(&a.Entity, "entity", "e", "", "item, container, category or location (required)")
	cmd.Flags().StringVar(&a.ID, "id", "", "entity id; generated for CREATE when empty")
	cmd.Flags().StringVar(&a.Data, "data", "", "JSON object of changed fields")
	cmd.Flags().StringVar(&a.Original, "original", "", "JSON object of the fields before the change")
	cmd.Flags().BoolVar(&a.SnapshotMissing, "snapshot-missing", false, "no before-state is available")
	cmd.Flags().BoolVar(&a.Skip, "skip-duplicate-check", false, "create even when a duplicate exists remotely")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("entity")
	return cmd
}

func eventsCmd() *cobra.Command {
	var a eventsArgs
	cmd := &cobra.Command{
		Use:   "events",
		Short: "List queued events in creation order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEvents(client(), a, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&a.Status, "status", "s", "", "pending, syncing, conflict, synced or failed")
	cmd.Flags().StringVarP(&a.Entity, "entity", "e", "", "entity kind")
	cmd.Flags().StringVar(&a.EntityID, "entity-id", "", "entity id")
	cmd.Flags().StringVar(&a.Cursor, "cursor", "", "nextCursor of the previous page")
	cmd.Flags().IntVarP(&a.Limit, "limit", "n", 0, "page size")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <entity> <id>",
		Short: "Show the sync status of one entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(client(), args[0], args[1], cmd.OutOrStdout())
		},
	}
}

func conflictsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "conflicts [id]",
		Short: "List unresolved conflicts, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return client().getJSON("/v1/conflicts/"+args[0], cmd.OutOrStdout())
			}
			return client().getJSON("/v1/conflicts", cmd.OutOrStdout())
		},
	}
}

func resolveCmd() *cobra.Command {
	var choice, data, by string
	cmd := &cobra.Command{
		Use:   "resolve <conflict-id>",
		Short: "Resolve a conflict",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runResolve(client(), args[0], choice, data, by, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&choice, "choice", "c", "", "local, server, merge or manual (required)")
	cmd.Flags().StringVar(&data, "data", "", "resolved JSON object for merge and manual")
	cmd.Flags().StringVar(&by, "by", "", "who resolved it; defaults to the token subject")
	_ = cmd.MarkFlagRequired("choice")
	return cmd
}

func retryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "retry [event-id]",
		Short: "Requeue one failed event, or all of them",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 1 {
				id = args[0]
			}
			return runRetry(client(), id, cmd.OutOrStdout())
		},
	}
}

func syncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a sync pass now and print its result",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return client().postJSON("/v1/sync", nil, cmd.OutOrStdout())
		},
	}
}

func exportCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Save unsynced events and open conflicts to a file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(client(), out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "stocksync-queue.bin", "output file")
	return cmd
}

func importCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Load a queue export; existing events are skipped",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(client(), args[0], cmd.OutOrStdout())
		},
	}
}

func tokenCmd() *cobra.Command {
	var secret, subject, issuer string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an HS256 token for the local API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(secret, subject, issuer, ttl, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("STOCKSYNC_AUTH_SECRET"), "auth.hs256Secret of the daemon")
	cmd.Flags().StringVar(&subject, "sub", "stockctl", "token subject")
	cmd.Flags().StringVar(&issuer, "iss", "", "token issuer")
	cmd.Flags().DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	return cmd
}
