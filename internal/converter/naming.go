package converter

import (
	"path/filepath"
	"strconv"
	"strings"
)

// diskName prefixes a user-facing filename with a unique job id so that
// concurrent jobs never share an output path.
func (c *Converter) diskName(filename string) string {
	return c.newID() + "-" + filename
}

// ensureExt appends ext unless name already ends with it (case-insensitive).
func ensureExt(name, ext string) string {
	if strings.HasSuffix(strings.ToLower(name), ext) {
		return name
	}
	return name + ext
}

// baseName strips directories and the extension from path.
func baseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// SanitizeFilename strips directory components and limits length.
func SanitizeFilename(name string) string {
	// Normalize Windows-style backslashes before filepath.Base,
	// which is platform-specific.
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))

	if len(name) > 255 {
		ext := filepath.Ext(name)
		name = name[:255-len(ext)] + ext
	}

	if name == "" || name == "." || name == "/" || name == ".." {
		name = "output"
	}

	return name
}

// uniqueName returns name, or name with a numeric suffix if it was
// already handed out.
func uniqueName(seen map[string]bool, name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)

	candidate := name
	for i := 2; seen[candidate]; i++ {
		candidate = stem + "-" + strconv.Itoa(i) + ext
	}
	seen[candidate] = true
	return candidate
}
