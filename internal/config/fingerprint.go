package config

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Fingerprint computes a stable hash of the build-affecting configuration
// fields. It is intentionally narrower than full serialization so that
// changing fields with no bearing on generated output (worker counts,
// logging knobs) does not discard every cache. Callers load through Load,
// so fields are already normalized when hashed.
func (c *Config) Fingerprint() string {
	if c == nil {
		return ""
	}
	h := sha256.New()
	w := func(parts ...string) {
		h.Write([]byte(strings.Join(parts, "=")))
		h.Write([]byte{0})
	}

	w("site.title", c.Title)
	w("site.base_url", c.BaseURL)
	w("output.directory", c.OutputDir)
	w("build.drafts", strconv.FormatBool(c.BuildDrafts))
	w("minify.html", strconv.FormatBool(c.Minify.HTML))
	w("minify.css", strconv.FormatBool(c.Minify.CSS))
	w("minify.js", strconv.FormatBool(c.Minify.JS))

	return hex.EncodeToString(h.Sum(nil))
}
