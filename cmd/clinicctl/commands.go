package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"clinic-admin-api/internal/auth"
	"clinic-admin-api/internal/config"
	"clinic-admin-api/internal/store"
)

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Write the initial admin user and settings into an empty store",
		Long: `Seed writes the default admin account (admin / admin123) and the clinic
settings, overlaid with SEED_FILE when set. A store that is already
initialized is left untouched.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			seed, err := auth.DefaultSeed()
			if err != nil {
				return err
			}
			if seed, err = config.LoadSeed(a.cfg.SeedFile, seed); err != nil {
				return err
			}
			done, err := a.store.Init(ctx, seed)
			if err != nil {
				return err
			}
			if done {
				fmt.Fprintln(cmd.OutOrStdout(), "store initialized")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "store already initialized")
			}
			return nil
		},
	}
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "Snapshot every table into the backup store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			dst, err := a.cfg.Backups(ctx)
			if err != nil {
				return err
			}
			key, err := a.store.WriteBackup(ctx, dst)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func newRestoreCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "restore KEY",
		Short: "Overwrite the store with a backup document",
		Long: `Restore reads KEY from the backup store and replaces every table the
backup contains. Tables missing from the backup are left as they are.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			src, err := a.cfg.Backups(ctx)
			if err != nil {
				return err
			}
			b, err := store.ReadBackup(ctx, src, args[0])
			if err != nil {
				return err
			}
			if err := a.store.Restore(ctx, b); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "restored %d tables from %s\n", len(b.Tables), b.Timestamp)
			return nil
		},
	}
}

func newBackupsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backups",
		Short: "List backup documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			src, err := cfg.Backups(ctx)
			if err != nil {
				return err
			}
			keys, err := src.List(ctx, "clinic_backup_")
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintln(cmd.OutOrStdout(), k)
			}
			return nil
		},
	}
}

func newExportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export COLLECTION",
		Short: "Write a collection as JSON or CSV",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			data, err := a.store.Export(ctx, args[0], store.Format(strings.ToLower(format)))
			if err != nil {
				return err
			}
			if out == "" || out == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			return os.WriteFile(out, data, 0o600)
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "json", "json or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	return cmd
}

func newCleanupCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Drop appointments and notifications older than --days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if days < 0 {
				return fmt.Errorf("--days must not be negative")
			}
			ctx := cmd.Context()
			a, err := open(ctx, cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			n, err := a.store.Cleanup(ctx, days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d records\n", n)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "days", 30, "keep records newer than this many days")
	return cmd
}
