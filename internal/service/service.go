// Package service installs lpa-bridge as a per-user background service:
// a systemd user unit on Linux and a launchd agent on macOS.
package service

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
)

const appName = "lpa-bridge"

var (
	ErrAlreadyInstalled = errors.New("service already installed")
	ErrNotInstalled     = errors.New("service not installed")
	ErrUnsupported      = errors.New("service management not supported on this platform")
)

// Service manages the platform service definition.
type Service interface {
	Install() error
	Uninstall() error
	IsInstalled() bool
	// Status is a short human-readable state such as "running".
	Status() (string, error)
}

// Runner executes a service manager command and returns its combined output.
type Runner func(name string, args ...string) ([]byte, error)

// Options configures New. Zero values are filled in from the running
// executable and the user's home directory.
type Options struct {
	ExecutablePath string
	// Args follow the executable in the service definition. Defaults to
	// "serve".
	Args []string
	// BaseDir replaces the per-user configuration root, $XDG_CONFIG_HOME
	// on Linux and $HOME on macOS.
	BaseDir string
	Run     Runner
}

func (o Options) withDefaults() (Options, error) {
	if o.ExecutablePath == "" {
		execPath, err := os.Executable()
		if err != nil {
			return o, fmt.Errorf("failed to get executable path: %w", err)
		}
		if execPath, err = filepath.EvalSymlinks(execPath); err != nil {
			return o, fmt.Errorf("failed to resolve executable path: %w", err)
		}
		o.ExecutablePath = execPath
	}
	if len(o.Args) == 0 {
		o.Args = []string{"serve"}
	}
	if o.Run == nil {
		o.Run = func(name string, args ...string) ([]byte, error) {
			return exec.Command(name, args...).CombinedOutput()
		}
	}
	return o, nil
}

// writeFile creates path and its parent directories and fills it with render.
func writeFile(path string, render func(f *os.File) error) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := render(f); err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
