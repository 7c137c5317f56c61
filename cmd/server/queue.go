package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/models"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/repository"
	"github.com/tufonoayuda-pixel/Mifonoconsulta1-sub000/internal/services"
)

// newQueueCmd groups the offline queue maintenance commands.
// They must not run while a server is using the same store.
func newQueueCmd(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or repair the persisted offline queue",
	}
	cmd.AddCommand(newQueueListCmd(configPath), newQueueDropCmd(configPath), newQueueClearCmd(configPath))
	return cmd
}

func newQueueListCmd(configPath *string) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued operations, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueueStore(cmd.Context(), *configPath, func(store *repository.QueueStoreRepository) error {
				ops, err := store.Load(cmd.Context())
				if err != nil {
					return err
				}
				return printOperations(cmd.OutOrStdout(), ops, output)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "table", "output format: table, json or yaml")
	return cmd
}

func newQueueDropCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "drop <id>",
		Short: "Remove one queued operation without replaying it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueueStore(cmd.Context(), *configPath, func(store *repository.QueueStoreRepository) error {
				queue, err := services.LoadOfflineQueue(cmd.Context(), store, services.NopNotifier{}, nil)
				if err != nil {
					return err
				}
				removed, err := queue.Remove(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no queued operation with id %s", args[0])
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dropped %s, %d operations left\n", args[0], queue.Len())
				return nil
			})
		},
	}
}

func newQueueClearCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Discard every queued operation, including an unreadable queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueueStore(cmd.Context(), *configPath, func(store *repository.QueueStoreRepository) error {
				// A corrupt queue cannot be loaded, so count what is readable and overwrite it
				discarded := 0
				if ops, err := store.Load(cmd.Context()); err == nil {
					discarded = len(ops)
				}
				if err := store.Save(cmd.Context(), nil); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Discarded %d operations\n", discarded)
				return nil
			})
		},
	}
}

func withQueueStore(ctx context.Context, configPath string, fn func(*repository.QueueStoreRepository) error) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	db, err := openDB(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func(db *sql.DB) { _ = db.Close() }(db)

	kv := repository.NewKVStoreRepository(db, cfg.Sync.StoreName)
	return fn(repository.NewQueueStoreRepository(kv, cfg.Sync.QueueKey))
}

func printOperations(w io.Writer, ops []models.QueuedOperation, format string) error {
	if ops == nil {
		ops = []models.QueuedOperation{}
	}

	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ops)
	case "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(ops)
	case "table":
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTABLE\tKIND\tQUEUED AT\tRETRIES\tLAST ERROR")
		for _, op := range ops {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
				op.ID, op.TableName, op.Kind, op.Timestamp.Local().Format(time.DateTime), op.RetryCount, op.LastError)
		}
		return tw.Flush()
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}
