package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/SimplyPrint/lpa-bridge/internal/service"
)

var serviceCmd = &cobra.Command{
	Use:   "service",
	Short: "Manage the per-user background service",
}

var serviceInstallCmd = &cobra.Command{
	Use:   "install",
	Short: "Install and start lpa-bridge as a user service",
	RunE: func(cmd *cobra.Command, args []string) error {
		svcArgs, err := serviceArgs()
		if err != nil {
			return err
		}
		svc, err := service.New(service.Options{Args: svcArgs})
		if err != nil {
			return err
		}
		if err := svc.Install(); err != nil {
			if errors.Is(err, service.ErrAlreadyInstalled) {
				fmt.Println("Service is already installed")
				return nil
			}
			return err
		}
		fmt.Println("Service installed; lpa-bridge will start on login")
		return nil
	},
}

var serviceUninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Stop and remove the user service",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(service.Options{})
		if err != nil {
			return err
		}
		if err := svc.Uninstall(); err != nil {
			if errors.Is(err, service.ErrNotInstalled) {
				fmt.Println("Service is not installed")
				return nil
			}
			return err
		}
		fmt.Println("Service removed")
		return nil
	},
}

var serviceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the user service is installed and running",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := service.New(service.Options{})
		if err != nil {
			return err
		}
		status, err := svc.Status()
		if err != nil {
			return err
		}
		fmt.Println(status)
		return nil
	},
}

func init() {
	serviceCmd.AddCommand(serviceInstallCmd, serviceUninstallCmd, serviceStatusCmd)
	rootCmd.AddCommand(serviceCmd)
}

// serviceArgs is the command line the service runs: serve, plus the
// --config file given to install, made absolute.
func serviceArgs() ([]string, error) {
	args := []string{"serve"}
	if configFile == "" {
		return args, nil
	}
	abs, err := filepath.Abs(configFile)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	return append(args, "--config", abs), nil
}
