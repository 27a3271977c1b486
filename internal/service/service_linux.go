//go:build linux

package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const unitTemplate = `[Unit]
Description=LPA Bridge - eSIM profile management for PC/SC readers
Wants=pcscd.socket
After=pcscd.socket pcscd.service

[Service]
Type=simple
ExecStart={{.ExecutablePath}}{{range .Args}} {{.}}{{end}}
Restart=on-failure
RestartSec=5

[Install]
WantedBy=default.target
`

var unitTmpl = template.Must(template.New("unit").Parse(unitTemplate))

type linuxService struct {
	opts Options
}

// New returns the systemd user unit manager.
func New(opts Options) (Service, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if opts.BaseDir == "" {
		opts.BaseDir = os.Getenv("XDG_CONFIG_HOME")
	}
	if opts.BaseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		opts.BaseDir = filepath.Join(home, ".config")
	}
	return &linuxService{opts: opts}, nil
}

func (s *linuxService) unitName() string { return appName + ".service" }

func (s *linuxService) unitPath() string {
	return filepath.Join(s.opts.BaseDir, "systemd", "user", s.unitName())
}

func (s *linuxService) systemctl(args ...string) ([]byte, error) {
	return s.opts.Run("systemctl", append([]string{"--user"}, args...)...)
}

func (s *linuxService) Install() error {
	if s.IsInstalled() {
		return ErrAlreadyInstalled
	}

	err := writeFile(s.unitPath(), func(f *os.File) error {
		return unitTmpl.Execute(f, s.opts)
	})
	if err != nil {
		return err
	}

	if out, err := s.systemctl("daemon-reload"); err != nil {
		return fmt.Errorf("systemctl daemon-reload: %s: %w", strings.TrimSpace(string(out)), err)
	}
	if out, err := s.systemctl("enable", "--now", s.unitName()); err != nil {
		return fmt.Errorf("failed to enable %s: %s: %w", s.unitName(), strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (s *linuxService) Uninstall() error {
	if !s.IsInstalled() {
		return ErrNotInstalled
	}

	s.systemctl("disable", "--now", s.unitName()) // fails harmlessly when not loaded

	if err := os.Remove(s.unitPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	s.systemctl("daemon-reload")
	return nil
}

func (s *linuxService) IsInstalled() bool {
	return exists(s.unitPath())
}

func (s *linuxService) Status() (string, error) {
	if !s.IsInstalled() {
		return "not installed", nil
	}

	// is-active exits non-zero for anything but "active" and still prints
	// the state
	out, _ := s.systemctl("is-active", s.unitName())
	switch state := strings.TrimSpace(string(out)); state {
	case "active":
		return "running (systemd)", nil
	case "":
		return "installed (systemd state unknown)", nil
	default:
		return fmt.Sprintf("installed but %s", state), nil
	}
}
