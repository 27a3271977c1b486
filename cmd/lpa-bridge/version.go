package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var checkUpdates bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		printVersion()
		if !checkUpdates {
			return nil
		}

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		info := (&app{cfg: cfg}).updateChecker().Check(cmd.Context(), true)
		switch {
		case info.Error != "":
			return fmt.Errorf("update check failed: %s", info.Error)
		case info.Available:
			fmt.Printf("Update available: %s\n%s\n", info.LatestVersion, info.ReleaseURL)
			if info.DownloadURL != "" {
				fmt.Printf("Download: %s\n", info.DownloadURL)
			}
		case info.IsDev:
			fmt.Printf("Development build; latest release is %s\n", info.LatestVersion)
		default:
			fmt.Println("Up to date")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVar(&checkUpdates, "check", false, "check GitHub for a newer release")
}
