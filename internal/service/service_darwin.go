//go:build darwin

package service

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

const (
	launchAgentLabel = "com.simplyprint.lpa-bridge"
	plistTemplate    = `<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
    <key>Label</key>
    <string>{{.Label}}</string>
    <key>ProgramArguments</key>
    <array>
        <string>{{.ExecutablePath}}</string>
{{- range .Args}}
        <string>{{.}}</string>
{{- end}}
    </array>
    <key>RunAtLoad</key>
    <true/>
    <key>KeepAlive</key>
    <dict>
        <key>SuccessfulExit</key>
        <false/>
    </dict>
    <key>StandardOutPath</key>
    <string>{{.LogPath}}/lpa-bridge.log</string>
    <key>StandardErrorPath</key>
    <string>{{.LogPath}}/lpa-bridge.err</string>
    <key>WorkingDirectory</key>
    <string>{{.WorkingDir}}</string>
</dict>
</plist>
`
)

var plistTmpl = template.Must(template.New("plist").Parse(plistTemplate))

type darwinService struct {
	opts Options
}

// New returns the launchd agent manager.
func New(opts Options) (Service, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if opts.BaseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		opts.BaseDir = home
	}
	return &darwinService{opts: opts}, nil
}

func (s *darwinService) plistPath() string {
	return filepath.Join(s.opts.BaseDir, "Library", "LaunchAgents", launchAgentLabel+".plist")
}

func (s *darwinService) logPath() string {
	return filepath.Join(s.opts.BaseDir, "Library", "Logs", "LPA-Bridge")
}

func (s *darwinService) Install() error {
	if s.IsInstalled() {
		return ErrAlreadyInstalled
	}
	if err := os.MkdirAll(s.logPath(), 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	data := struct {
		Label          string
		ExecutablePath string
		Args           []string
		LogPath        string
		WorkingDir     string
	}{
		Label:          launchAgentLabel,
		ExecutablePath: s.opts.ExecutablePath,
		Args:           s.opts.Args,
		LogPath:        s.logPath(),
		WorkingDir:     filepath.Dir(s.opts.ExecutablePath),
	}
	err := writeFile(s.plistPath(), func(f *os.File) error {
		return plistTmpl.Execute(f, data)
	})
	if err != nil {
		return err
	}

	if out, err := s.opts.Run("launchctl", "load", "-w", s.plistPath()); err != nil {
		return fmt.Errorf("failed to load launch agent: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func (s *darwinService) Uninstall() error {
	if !s.IsInstalled() {
		return ErrNotInstalled
	}

	s.opts.Run("launchctl", "unload", "-w", s.plistPath()) // ignore errors if not loaded

	if err := os.Remove(s.plistPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove plist file: %w", err)
	}
	return nil
}

func (s *darwinService) IsInstalled() bool {
	return exists(s.plistPath())
}

func (s *darwinService) Status() (string, error) {
	if !s.IsInstalled() {
		return "not installed", nil
	}
	out, err := s.opts.Run("launchctl", "list", launchAgentLabel)
	if err != nil {
		return "installed but not running", nil
	}
	if len(out) > 0 {
		return "running", nil
	}
	return "installed", nil
}
