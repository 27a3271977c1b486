package updater

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func releasesServer(t *testing.T, releases []GitHubRelease, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if ua := r.Header.Get("User-Agent"); ua != UserAgent {
			t.Errorf("User-Agent = %q, want %q", ua, UserAgent)
		}
		json.NewEncoder(w).Encode(releases)
	}))
	t.Cleanup(server.Close)
	return server
}

func sampleReleases() []GitHubRelease {
	return []GitHubRelease{
		{TagName: "v2.0.0-rc.1", Prerelease: true},
		{TagName: "lpac-v2.1.0"},
		{
			TagName:     "v1.1.0",
			Body:        "## What's New\n- Faster downloads",
			HTMLURL:     "https://github.com/SimplyPrint/lpa-bridge/releases/v1.1.0",
			PublishedAt: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
			Assets: []GitHubAsset{
				{Name: "lpa-bridge-linux-amd64.tar.gz", BrowserDownloadURL: "https://example.com/linux-amd64.tar.gz"},
				{Name: "lpa-bridge-linux-amd64.deb", BrowserDownloadURL: "https://example.com/linux-amd64.deb"},
				{Name: "lpa-bridge-darwin-universal.pkg", BrowserDownloadURL: "https://example.com/darwin.pkg"},
			},
		},
		{TagName: "v1.0.0"},
	}
}

func TestCheckReportsNewerRelease(t *testing.T) {
	server := releasesServer(t, sampleReleases(), nil)
	checker := NewChecker(Options{
		CurrentVersion: "v1.0.0",
		ReleasesURL:    server.URL,
		GOOS:           "linux",
		GOARCH:         "amd64",
	})

	info := checker.Check(context.Background(), false)
	if info.Error != "" {
		t.Fatalf("unexpected error: %s", info.Error)
	}
	if !info.Available {
		t.Error("update should be available")
	}
	if info.LatestVersion != "v1.1.0" {
		t.Errorf("LatestVersion = %q, want v1.1.0 (prereleases and other tags skipped)", info.LatestVersion)
	}
	if info.DownloadURL != "https://example.com/linux-amd64.deb" {
		t.Errorf("DownloadURL = %q, want the .deb asset", info.DownloadURL)
	}
	if info.Platform != "linux/amd64" {
		t.Errorf("Platform = %q", info.Platform)
	}
	if info.PublishedAt == nil || info.PublishedAt.Year() != 2026 {
		t.Errorf("PublishedAt = %v", info.PublishedAt)
	}
}

func TestCheckUpToDateAndDev(t *testing.T) {
	server := releasesServer(t, sampleReleases(), nil)

	current := NewChecker(Options{CurrentVersion: "1.1.0", ReleasesURL: server.URL})
	if info := current.Check(context.Background(), false); info.Available {
		t.Error("same version should not report an update")
	}

	dev := NewChecker(Options{CurrentVersion: "dev-abc1234-dirty", ReleasesURL: server.URL})
	info := dev.Check(context.Background(), false)
	if info.Available || !info.IsDev {
		t.Errorf("dev build: Available=%v IsDev=%v", info.Available, info.IsDev)
	}
	if info.LatestVersion != "v1.1.0" {
		t.Errorf("dev build should still see the latest release, got %q", info.LatestVersion)
	}
}

func TestCheckCaching(t *testing.T) {
	var hits atomic.Int32
	server := releasesServer(t, sampleReleases(), &hits)
	checker := NewChecker(Options{CurrentVersion: "1.0.0", ReleasesURL: server.URL})

	first := checker.Check(context.Background(), false)
	second := checker.Check(context.Background(), false)
	if hits.Load() != 1 {
		t.Errorf("expected 1 request, got %d", hits.Load())
	}
	if !first.CheckedAt.Equal(second.CheckedAt) {
		t.Error("second call should have used the cached result")
	}

	second.LatestVersion = "mutated"
	if third := checker.Check(context.Background(), false); third.LatestVersion != "v1.1.0" {
		t.Error("callers must not be able to mutate the cache")
	}

	checker.Check(context.Background(), true)
	if hits.Load() != 2 {
		t.Errorf("force refresh should refetch, got %d requests", hits.Load())
	}

	checker.ClearCache()
	checker.mu.RLock()
	cleared := checker.cachedResult == nil && checker.cacheExpiry.IsZero()
	checker.mu.RUnlock()
	if !cleared {
		t.Error("ClearCache should drop the cached result")
	}
}

func TestCheckErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"rate limited", http.StatusForbidden, "", "rate limited"},
		{"not found", http.StatusNotFound, "", "no releases found"},
		{"server error", http.StatusBadGateway, "", "status 502"},
		{"bad json", http.StatusOK, "{", "failed to parse"},
		{"no bridge tags", http.StatusOK, `[{"tag_name":"lpac-v1.0.0"}]`, "no lpa-bridge releases"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			info := NewChecker(Options{CurrentVersion: "1.0.0", ReleasesURL: server.URL}).Check(context.Background(), false)
			if !strings.Contains(info.Error, tt.want) {
				t.Errorf("Error = %q, want it to contain %q", info.Error, tt.want)
			}
			if info.Available {
				t.Error("failed check must not report an update")
			}
		})
	}
}

func TestCheckHonoursContext(t *testing.T) {
	server := releasesServer(t, sampleReleases(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	checker := NewChecker(Options{CurrentVersion: "1.0.0", ReleasesURL: server.URL})
	info := checker.Check(ctx, false)
	if !strings.Contains(info.Error, "failed to fetch") {
		t.Errorf("Error = %q, want fetch failure", info.Error)
	}

	if info := checker.Check(context.Background(), false); info.Error != "" || info.LatestVersion != "v1.1.0" {
		t.Errorf("cancelled check must not be cached, got %+v", info)
	}
}

func TestFindDownloadURL(t *testing.T) {
	assets := sampleReleases()[2].Assets
	tests := []struct {
		goos, goarch string
		want         string
	}{
		{"linux", "amd64", "https://example.com/linux-amd64.deb"},
		{"darwin", "arm64", "https://example.com/darwin.pkg"},
		{"linux", "arm64", ""},
		{"windows", "amd64", ""},
	}
	for _, tt := range tests {
		t.Run(tt.goos+"/"+tt.goarch, func(t *testing.T) {
			if got := findDownloadURL(assets, tt.goos, tt.goarch); got != tt.want {
				t.Errorf("findDownloadURL = %q, want %q", got, tt.want)
			}
		})
	}

	if got := findDownloadURL(nil, "linux", "amd64"); got != "" {
		t.Errorf("expected empty string for no assets, got %q", got)
	}
}

func TestTruncateReleaseNotes(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"short", 100, "short"},
		{"this is a longer string that exceeds the limit", 20, "this is a longer str..."},
		{"", 10, ""},
		{"exactly10!", 10, "exactly10!"},
		{"  whitespace  ", 100, "whitespace"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := truncateReleaseNotes(tt.input, tt.maxLen)
			if result != tt.expected {
				t.Errorf("truncateReleaseNotes(%q, %d) = %q, want %q", tt.input, tt.maxLen, result, tt.expected)
			}
		})
	}
}

func TestReleaseTagPattern(t *testing.T) {
	tests := []struct {
		tag     string
		matches bool
	}{
		{"v0.2.3", true},
		{"v10.20.30", true},
		{"lpac-v2.1.0", false},
		{"", false},
		{"1.0.0", false},
		{"v1.2", false},
	}

	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			if got := releaseTagPattern.MatchString(tt.tag); got != tt.matches {
				t.Errorf("releaseTagPattern.MatchString(%q) = %v, want %v", tt.tag, got, tt.matches)
			}
		})
	}
}

func TestParseVersion(t *testing.T) {
	tests := []struct {
		input string
		want  string
		dev   bool
	}{
		{"v1.2.3", "v1.2.3", false},
		{"1.2.3", "v1.2.3", false},
		{"v1.2.3-rc.1", "v1.2.3-rc.1", false},
		{"v1.2.3+build.5", "v1.2.3", false},
		{"dev", "dev", true},
		{"dev-abc1234", "dev", true},
		{"v1.2", "dev", true},
		{"v1.x.3", "dev", true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			v := ParseVersion(tt.input)
			if v.String() != tt.want || v.IsDev() != tt.dev {
				t.Errorf("ParseVersion(%q) = %s (dev=%v), want %s (dev=%v)", tt.input, v, v.IsDev(), tt.want, tt.dev)
			}
		})
	}
}

func TestVersionIsOlderThan(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"1.0.0", "1.0.1", true},
		{"1.0.9", "1.1.0", true},
		{"1.9.9", "2.0.0", true},
		{"1.1.0", "1.0.0", false},
		{"1.0.0", "1.0.0", false},
		{"1.0.0-rc.1", "1.0.0", true},
		{"1.0.0", "1.0.0-rc.1", false},
		{"1.0.0-rc.1", "1.0.0-rc.2", true},
	}
	for _, tt := range tests {
		t.Run(tt.a+"<"+tt.b, func(t *testing.T) {
			if got := ParseVersion(tt.a).IsOlderThan(ParseVersion(tt.b)); got != tt.want {
				t.Errorf("%s.IsOlderThan(%s) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestUpdateInfoJSON(t *testing.T) {
	info := UpdateInfo{
		Available:      true,
		CurrentVersion: "1.0.0",
		LatestVersion:  "v1.1.0",
		Platform:       "linux/amd64",
		CheckedAt:      time.Now(),
	}

	data, err := json.Marshal(info)
	if err != nil {
		t.Fatalf("failed to marshal UpdateInfo: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal UpdateInfo: %v", err)
	}
	if decoded["available"] != true || decoded["latestVersion"] != "v1.1.0" {
		t.Errorf("unexpected JSON %s", data)
	}
	if _, ok := decoded["error"]; ok {
		t.Error("empty error should be omitted")
	}
}
