package buildcache

import (
	"log/slog"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/sitegen/internal/atomicio"
)

// legacyFileName is where versions before the cache-directory split kept
// the root cache: a single dotfile next to the project root.
const legacyFileName = ".sitegen-build.json"

func cachePath(cacheDir string) string {
	return filepath.Join(cacheDir, FileName)
}

// migrateLegacy copies a legacy cache file into the new location exactly
// once: only when the legacy file exists and the new one does not. A copy
// failure falls back silently to an empty cache rather than failing the
// build; the legacy file is left in place for manual cleanup.
func migrateLegacy(cacheDir string) {
	newPath := cachePath(cacheDir)
	if _, err := os.Stat(newPath); err == nil {
		return
	}

	legacyPath := filepath.Join(filepath.Dir(filepath.Clean(cacheDir)), legacyFileName)
	data, err := os.ReadFile(legacyPath)
	if err != nil {
		return
	}

	if err := atomicio.WriteFile(newPath, data, 0o644); err != nil {
		slog.Debug("Legacy cache migration failed, starting empty",
			"legacy", legacyPath, "error", err)
		return
	}
	slog.Info("Migrated legacy build cache", "from", legacyPath, "to", newPath)
}
