//go:build linux

package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tiagocoutinho/linuxgo/internal/logging"
	"github.com/tiagocoutinho/linuxgo/internal/updater"
)

// CreateUpdateCmd creates the update command.
func CreateUpdateCmd() *cobra.Command {
	var repository string
	var prerelease bool
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the binary from GitHub releases",
		Run: func(_ *cobra.Command, _ []string) {
			logging.Initialize(logging.Config{Level: "info", Format: "text"})

			svc, err := updater.NewService(&updater.Options{
				Repository: repository,
				Prerelease: prerelease,
			})
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			if !svc.IsEnabled() {
				fmt.Fprintln(os.Stderr, "Updates disabled:", svc.DisabledReason())
				os.Exit(1)
			}

			ctx := context.Background()
			info, err := svc.CheckForUpdate(ctx)
			if err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			if !info.UpdateAvailable {
				fmt.Printf("%s is up to date\n", info.CurrentVersion)
				return
			}
			fmt.Printf("%s -> %s (%s)\n", info.CurrentVersion, info.LatestVersion, info.ReleaseURL)
			if checkOnly {
				return
			}

			if err := svc.ApplyUpdate(ctx); err != nil {
				fmt.Fprintln(os.Stderr, "Error:", err)
				os.Exit(1)
			}
			fmt.Println("Update applied")
		},
	}

	cmd.Flags().StringVar(&repository, "repository", "tiagocoutinho/linuxgo", "GitHub repository slug")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Include prereleases")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only check, do not apply")

	return cmd
}
