// Package lpac drives the lpac command-line LPA to implement lpa.Channel.
//
// Every call spawns one lpac process. lpac writes one JSON object per line to
// stdout: zero or more {"type":"progress"} lines followed by a single
// {"type":"lpa"} line carrying the result code, message and data.
package lpac

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/SimplyPrint/lpa-bridge/internal/logging"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
)

const maxLineSize = 1 << 20

// ErrNoResult is returned when lpac exits without printing a result line.
var ErrNoResult = errors.New("lpac produced no result")

// Options configures how lpac is invoked.
type Options struct {
	// Path is the lpac binary, looked up in PATH when not absolute.
	Path string
	// Driver is the APDU backend passed as LPAC_APDU.
	Driver string
	// ReaderIndex selects the PC/SC reader (LPAC_APDU_PCSC_DRV_IFID).
	ReaderIndex int
	// ReaderName is only used in log fields.
	ReaderName string
	// Env is appended to the process environment.
	Env []string
}

// Channel runs lpac against a single reader.
type Channel struct {
	opts Options
}

var _ lpa.Channel = (*Channel)(nil)

// New returns a Channel for the given options.
func New(opts Options) *Channel {
	if opts.Path == "" {
		opts.Path = "lpac"
	}
	if opts.Driver == "" {
		opts.Driver = "pcsc"
	}
	return &Channel{opts: opts}
}

type message struct {
	Type    string  `json:"type"`
	Payload payload `json:"payload"`
}

type payload struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// resultError carries lpac's own failure text verbatim.
type resultError struct {
	code    int
	message string
	detail  string
}

func (e *resultError) Error() string {
	if e.detail != "" {
		return e.message + ": " + e.detail
	}
	return e.message
}

func (c *Channel) run(ctx context.Context, onProgress func(string), args ...string) (json.RawMessage, error) {
	cmd := exec.CommandContext(ctx, c.opts.Path, args...)
	cmd.Env = append(os.Environ(),
		"LPAC_APDU="+c.opts.Driver,
		"LPAC_APDU_PCSC_DRV_IFID="+strconv.Itoa(c.opts.ReaderIndex),
	)
	cmd.Env = append(cmd.Env, c.opts.Env...)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("lpac stdout pipe: %w", err)
	}

	logging.Debug(logging.CatLPA, "Running lpac", map[string]any{
		"args":   strings.Join(args, " "),
		"reader": c.opts.ReaderName,
		"index":  c.opts.ReaderIndex,
	})

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start lpac: %w", err)
	}

	result, decodeErr := decodeOutput(stdout, onProgress)
	// Drain whatever is left so Wait does not block on a full pipe.
	_, _ = io.Copy(io.Discard, stdout)
	waitErr := cmd.Wait()

	if decodeErr != nil {
		if errors.Is(decodeErr, ErrNoResult) && waitErr != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg == "" {
				msg = waitErr.Error()
			}
			return nil, fmt.Errorf("lpac: %s", msg)
		}
		return nil, decodeErr
	}

	if result.Code != 0 {
		rerr := &resultError{code: result.Code, message: result.Message, detail: dataString(result.Data)}
		logging.Warn(logging.CatLPA, "lpac reported failure", map[string]any{
			"args":  strings.Join(args, " "),
			"code":  result.Code,
			"error": rerr.Error(),
		})
		return nil, rerr
	}
	return result.Data, nil
}

// decodeOutput reads lpac's JSON lines, forwarding progress messages and
// returning the final result payload.
func decodeOutput(r io.Reader, onProgress func(string)) (payload, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var msg message
		if err := json.Unmarshal(line, &msg); err != nil {
			logging.Debug(logging.CatLPA, "Skipping undecodable lpac line", map[string]any{
				"error": err.Error(),
			})
			continue
		}
		switch msg.Type {
		case "progress":
			if onProgress != nil {
				onProgress(msg.Payload.Message)
			}
		case "lpa":
			return msg.Payload, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return payload{}, fmt.Errorf("read lpac output: %w", err)
	}
	return payload{}, ErrNoResult
}

func dataString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// progressStates maps lpac progress step names onto download states.
var progressStates = map[string]lpa.DownloadState{
	"es10b_get_euicc_challenge_and_info": lpa.StatePreparing,
	"es10b_get_euicc_info":               lpa.StatePreparing,
	"es9p_initiate_authentication":       lpa.StateConnecting,
	"es10b_authenticate_server":          lpa.StateAuthenticating,
	"es9p_authenticate_client":           lpa.StateAuthenticating,
	"es10b_prepare_download":             lpa.StateDownloading,
	"es9p_get_bound_profile_package":     lpa.StateDownloading,
	"es10b_load_bound_profile_package":   lpa.StateFinalizing,
}

// ProgressState returns the download state for an lpac progress step.
func ProgressState(step string) (lpa.DownloadState, bool) {
	s, ok := progressStates[step]
	return s, ok
}

type profileInfo struct {
	ICCID               string  `json:"iccid"`
	ProfileState        string  `json:"profileState"`
	ProfileNickname     *string `json:"profileNickname"`
	ProfileName         string  `json:"profileName"`
	ServiceProviderName string  `json:"serviceProviderName"`
	ProfileClass        string  `json:"profileClass"`
}

func (p profileInfo) toProfile() lpa.Profile {
	name := p.ProfileName
	if name == "" {
		name = p.ServiceProviderName
	}
	class := lpa.ProfileClass(strings.ToLower(p.ProfileClass))
	if class == "" {
		class = lpa.ClassOperational
	}
	var nick *string
	if p.ProfileNickname != nil && *p.ProfileNickname != "" {
		n := *p.ProfileNickname
		nick = &n
	}
	return lpa.Profile{
		ICCID:    p.ICCID,
		Enabled:  strings.EqualFold(p.ProfileState, "enabled"),
		Name:     name,
		Nickname: nick,
		Class:    class,
	}
}

func parseProfiles(raw json.RawMessage) ([]lpa.Profile, error) {
	var infos []profileInfo
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &infos); err != nil {
			return nil, fmt.Errorf("decode profile list: %w", err)
		}
	}
	profiles := make([]lpa.Profile, 0, len(infos))
	for _, info := range infos {
		profiles = append(profiles, info.toProfile())
	}
	return profiles, nil
}

func (c *Channel) Profiles(ctx context.Context) ([]lpa.Profile, error) {
	data, err := c.run(ctx, nil, "profile", "list")
	if err != nil {
		return nil, err
	}
	return parseProfiles(data)
}

func (c *Channel) DownloadProfile(ctx context.Context, req lpa.DownloadRequest, progress lpa.ProgressFunc) error {
	args := []string{"profile", "download", "-s", req.Address}
	if req.MatchingID != nil {
		args = append(args, "-m", *req.MatchingID)
	}
	if req.ConfirmationCode != nil {
		args = append(args, "-c", *req.ConfirmationCode)
	}
	if req.IMEI != nil {
		args = append(args, "-i", *req.IMEI)
	}

	var last lpa.DownloadState
	onStep := func(step string) {
		state, ok := ProgressState(step)
		if !ok || state == last || progress == nil {
			return
		}
		last = state
		progress(state)
	}
	if progress != nil {
		last = lpa.StatePreparing
		progress(lpa.StatePreparing)
	}
	_, err := c.run(ctx, onStep, args...)
	return err
}

func refreshFlag(refresh bool) string {
	if refresh {
		return "1"
	}
	return "0"
}

func (c *Channel) EnableProfile(ctx context.Context, iccid string, refresh bool) (bool, error) {
	if _, err := c.run(ctx, nil, "profile", "enable", iccid, refreshFlag(refresh)); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Channel) DisableProfile(ctx context.Context, iccid string, refresh bool) (bool, error) {
	if _, err := c.run(ctx, nil, "profile", "disable", iccid, refreshFlag(refresh)); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Channel) DeleteProfile(ctx context.Context, iccid string) (bool, error) {
	if _, err := c.run(ctx, nil, "profile", "delete", iccid); err != nil {
		return false, err
	}
	return true, nil
}

func (c *Channel) SetNickname(ctx context.Context, iccid, nickname string) error {
	_, err := c.run(ctx, nil, "profile", "nickname", iccid, nickname)
	return err
}

func (c *Channel) ProcessNotifications(ctx context.Context) error {
	_, err := c.run(ctx, nil, "notification", "process", "-a", "-r")
	return err
}
