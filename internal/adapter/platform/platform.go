package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"am/internal/domain"
)

// vendorOS maps GOOS to the release naming used by the Prometheus project.
var vendorOS = map[string]string{
	"linux":     "linux",
	"darwin":    "darwin",
	"windows":   "windows",
	"freebsd":   "freebsd",
	"netbsd":    "netbsd",
	"openbsd":   "openbsd",
	"dragonfly": "dragonfly",
}

// vendorArch maps GOARCH to the release naming used by the Prometheus project.
var vendorArch = map[string]string{
	"386":   "386",
	"amd64": "amd64",
	"arm64": "arm64",
	"s390x": "s390x",
	"ppc64": "powerpc64",
}

// Platform resolves host naming and filesystem paths.
type Platform struct {
	homeDir string
	goos    string
	goarch  string
}

// New creates a Platform for the running host.
func New() (*Platform, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve home directory: %w", err)
	}
	return &Platform{homeDir: home, goos: runtime.GOOS, goarch: runtime.GOARCH}, nil
}

// VendorOSArch returns the vendor OS and arch strings for the host. An
// unmapped value is a ConfigurationError.
func (p *Platform) VendorOSArch() (string, string, error) {
	return VendorOSArch(p.goos, p.goarch)
}

// VendorOSArch translates a GOOS/GOARCH pair.
func VendorOSArch(goos, goarch string) (string, string, error) {
	vos, ok := vendorOS[goos]
	if !ok {
		return "", "", &domain.ConfigurationError{Field: "platform", Err: fmt.Errorf("unsupported operating system: %s", goos)}
	}
	arch, ok := vendorArch[goarch]
	if !ok {
		return "", "", &domain.ConfigurationError{Field: "platform", Err: fmt.Errorf("unsupported architecture: %s", goarch)}
	}
	return vos, arch, nil
}

// ResolveDataDir returns the data directory, checking flag, env, the
// config file value, then the per-user default.
func (p *Platform) ResolveDataDir(flagValue, fileValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("AM_DATA_DIR"); v != "" {
		return v
	}
	if fileValue != "" {
		return fileValue
	}
	return p.DefaultDataDir()
}

// DefaultDataDir returns $XDG_DATA_HOME/am, ~/Library/Application Support/am
// on macOS, or ~/.local/share/am.
func (p *Platform) DefaultDataDir() string {
	if v := os.Getenv("XDG_DATA_HOME"); v != "" {
		return filepath.Join(v, "am")
	}
	switch p.goos {
	case "darwin":
		return filepath.Join(p.homeDir, "Library", "Application Support", "am")
	case "windows":
		if v := os.Getenv("LOCALAPPDATA"); v != "" {
			return filepath.Join(v, "am")
		}
	}
	return filepath.Join(p.homeDir, ".local", "share", "am")
}

// ResolveConfigFile returns the am.toml path from flag, env, or ./am.toml
// when it exists. Empty means no config file.
func (p *Platform) ResolveConfigFile(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if v := os.Getenv("AM_CONFIG_FILE"); v != "" {
		return v
	}
	if info, err := os.Stat("am.toml"); err == nil && !info.IsDir() {
		return "am.toml"
	}
	return ""
}
