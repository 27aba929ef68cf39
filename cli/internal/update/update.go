// Package update compares the running CLI version against the latest
// published release.
package update

import (
	"fmt"
	"runtime"

	"github.com/hashicorp/go-version"

	"github.com/eoty-platform/eoty-db/cli/internal/ui"
)

// latestKnown is pinned at release time; deployments without network access
// to a release API still get a meaningful comparison.
const latestKnown = "0.3.0"

// Check reports whether a newer version than current is available.
func Check(current string) error {
	cur, err := version.NewVersion(current)
	if err != nil {
		return fmt.Errorf("invalid version format: %w", err)
	}
	latest, err := version.NewVersion(latestKnown)
	if err != nil {
		return fmt.Errorf("invalid latest version format: %w", err)
	}
	if cur.LessThan(latest) {
		ui.PrintWarning("A new version is available!")
		fmt.Printf("Current version: %s\n", current)
		fmt.Printf("Latest version:  %s\n", latestKnown)
		fmt.Printf("\nUpdate with: go install github.com/eoty-platform/eoty-db/cli@latest\n")
	}
	return nil
}

// DownloadURL returns the release artifact URL for the current platform.
func DownloadURL(v string) string {
	return fmt.Sprintf(
		"https://github.com/eoty-platform/eoty-db/releases/download/v%s/eotydb-%s-%s",
		v, runtime.GOOS, runtime.GOARCH)
}
