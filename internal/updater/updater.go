// Package updater checks GitHub releases for newer lpa-bridge builds.
package updater

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"

	"github.com/SimplyPrint/lpa-bridge/internal/logging"
)

const (
	// DefaultReleasesURL lists the newest releases first.
	DefaultReleasesURL = "https://api.github.com/repos/SimplyPrint/lpa-bridge/releases?per_page=20"
	CacheDuration      = 30 * time.Minute
	RequestTimeout     = 10 * time.Second
	UserAgent          = "lpa-bridge-updater"
	// MaxReleaseNotesLength caps the notes returned to clients.
	MaxReleaseNotesLength = 500
)

// releaseTagPattern matches bridge release tags (v1.2.3) and skips other
// artifacts published from the same repository, such as lpac-v2.1.0.
var releaseTagPattern = regexp.MustCompile(`^v\d+\.\d+\.\d+`)

// GitHubRelease is the subset of the GitHub release payload in use.
type GitHubRelease struct {
	TagName     string        `json:"tag_name"`
	Name        string        `json:"name"`
	Body        string        `json:"body"`
	HTMLURL     string        `json:"html_url"`
	Draft       bool          `json:"draft"`
	Prerelease  bool          `json:"prerelease"`
	PublishedAt time.Time     `json:"published_at"`
	Assets      []GitHubAsset `json:"assets"`
}

type GitHubAsset struct {
	Name               string `json:"name"`
	BrowserDownloadURL string `json:"browser_download_url"`
	Size               int64  `json:"size"`
}

// UpdateInfo is served on /v1/updates and printed by "version --check".
type UpdateInfo struct {
	Available      bool       `json:"available"`
	CurrentVersion string     `json:"currentVersion"`
	LatestVersion  string     `json:"latestVersion,omitempty"`
	ReleaseURL     string     `json:"releaseUrl,omitempty"`
	ReleaseNotes   string     `json:"releaseNotes,omitempty"`
	PublishedAt    *time.Time `json:"publishedAt,omitempty"`
	DownloadURL    string     `json:"downloadUrl,omitempty"`
	Platform       string     `json:"platform"`
	CheckedAt      time.Time  `json:"checkedAt"`
	Error          string     `json:"error,omitempty"`
	IsDev          bool       `json:"isDev"`
}

// Options configures a Checker. Zero values fall back to the defaults above.
type Options struct {
	CurrentVersion string
	ReleasesURL    string
	HTTPClient     *http.Client
	// GOOS and GOARCH select the download asset; they default to the
	// running platform.
	GOOS, GOARCH string
}

// Checker fetches release info with a time-based cache.
type Checker struct {
	currentVersion string
	releasesURL    string
	httpClient     *http.Client
	goos, goarch   string

	mu           sync.RWMutex
	cachedResult *UpdateInfo
	cacheExpiry  time.Time
}

func NewChecker(opts Options) *Checker {
	c := &Checker{
		currentVersion: opts.CurrentVersion,
		releasesURL:    opts.ReleasesURL,
		httpClient:     opts.HTTPClient,
		goos:           opts.GOOS,
		goarch:         opts.GOARCH,
	}
	if c.releasesURL == "" {
		c.releasesURL = DefaultReleasesURL
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: RequestTimeout}
	}
	if c.goos == "" {
		c.goos = runtime.GOOS
	}
	if c.goarch == "" {
		c.goarch = runtime.GOARCH
	}
	return c
}

// Check returns the cached result unless it expired or forceRefresh is set.
// Failures are reported in UpdateInfo.Error and cached like successes,
// except when ctx ended first.
func (c *Checker) Check(ctx context.Context, forceRefresh bool) *UpdateInfo {
	c.mu.RLock()
	if !forceRefresh && c.cachedResult != nil && time.Now().Before(c.cacheExpiry) {
		result := *c.cachedResult
		c.mu.RUnlock()
		return &result
	}
	c.mu.RUnlock()

	result := c.fetch(ctx)
	if result.Error != "" {
		logging.Debug(logging.CatSystem, "Update check failed", map[string]any{
			"error": result.Error,
		})
	}
	if ctx.Err() != nil {
		// the caller gave up; the next caller should retry
		return result
	}

	c.mu.Lock()
	c.cachedResult = result
	c.cacheExpiry = time.Now().Add(CacheDuration)
	c.mu.Unlock()

	copied := *result
	return &copied
}

// ClearCache drops the cached result.
func (c *Checker) ClearCache() {
	c.mu.Lock()
	c.cachedResult = nil
	c.cacheExpiry = time.Time{}
	c.mu.Unlock()
}

func (c *Checker) fetch(ctx context.Context) *UpdateInfo {
	current := ParseVersion(c.currentVersion)
	info := &UpdateInfo{
		CurrentVersion: c.currentVersion,
		Platform:       c.goos + "/" + c.goarch,
		CheckedAt:      time.Now(),
		IsDev:          current.IsDev(),
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.releasesURL, nil)
	if err != nil {
		info.Error = fmt.Sprintf("failed to create request: %v", err)
		return info
	}
	req.Header.Set("User-Agent", UserAgent)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		info.Error = fmt.Sprintf("failed to fetch release info: %v", err)
		return info
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusTooManyRequests:
		info.Error = "rate limited by GitHub API, try again later"
		return info
	case http.StatusNotFound:
		info.Error = "no releases found"
		return info
	default:
		info.Error = fmt.Sprintf("GitHub API returned status %d", resp.StatusCode)
		return info
	}

	var releases []GitHubRelease
	if err := json.NewDecoder(resp.Body).Decode(&releases); err != nil {
		info.Error = fmt.Sprintf("failed to parse release info: %v", err)
		return info
	}

	release := latestRelease(releases)
	if release == nil {
		info.Error = "no lpa-bridge releases found"
		return info
	}

	info.LatestVersion = release.TagName
	info.ReleaseURL = release.HTMLURL
	info.ReleaseNotes = truncateReleaseNotes(release.Body, MaxReleaseNotesLength)
	published := release.PublishedAt
	info.PublishedAt = &published
	info.DownloadURL = findDownloadURL(release.Assets, c.goos, c.goarch)

	// dev builds are usually ahead of the last tag
	if !current.IsDev() {
		info.Available = current.IsOlderThan(ParseVersion(release.TagName))
	}
	return info
}

// latestRelease picks the first published, non-prerelease bridge tag. The
// API lists releases newest first.
func latestRelease(releases []GitHubRelease) *GitHubRelease {
	for i := range releases {
		r := &releases[i]
		if r.Draft || r.Prerelease || !releaseTagPattern.MatchString(r.TagName) {
			continue
		}
		return r
	}
	return nil
}

var archAliases = map[string][]string{
	"amd64": {"amd64", "x86_64", "x64"},
	"arm64": {"arm64", "aarch64"},
	"386":   {"386", "i386", "x86"},
	"arm":   {"armv7", "armhf"},
}

var preferredExtensions = map[string][]string{
	"darwin":  {".pkg", ".tar.gz", ".zip"},
	"windows": {".msi", ".zip", ".exe"},
	"linux":   {".deb", ".rpm", ".tar.gz"},
}

// findDownloadURL returns the asset for goos/goarch with the most preferred
// extension, or "".
func findDownloadURL(assets []GitHubAsset, goos, goarch string) string {
	arches := archAliases[goarch]
	if arches == nil {
		arches = []string{goarch}
	}
	extensions := preferredExtensions[goos]
	if extensions == nil {
		extensions = []string{".tar.gz", ".zip"}
	}

	best, bestScore := "", len(extensions)+1
	for _, asset := range assets {
		name := strings.ToLower(asset.Name)
		if !matchesOS(name, goos) {
			continue
		}
		archMatch := goos == "darwin" && strings.Contains(name, "universal")
		for _, a := range arches {
			if strings.Contains(name, a) {
				archMatch = true
				break
			}
		}
		if !archMatch {
			continue
		}

		score := len(extensions)
		for i, ext := range extensions {
			if strings.HasSuffix(name, ext) {
				score = i
				break
			}
		}
		if score < bestScore {
			best, bestScore = asset.BrowserDownloadURL, score
		}
	}
	return best
}

func matchesOS(name, goos string) bool {
	switch goos {
	case "darwin":
		return strings.Contains(name, "darwin") || strings.Contains(name, "macos")
	case "windows":
		return strings.Contains(name, "windows")
	default:
		return strings.Contains(name, goos)
	}
}

func truncateReleaseNotes(notes string, maxLen int) string {
	notes = strings.TrimSpace(notes)
	if len(notes) <= maxLen {
		return notes
	}
	return notes[:maxLen] + "..."
}
