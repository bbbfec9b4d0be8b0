package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/hakim/bughunter/internal/models"
)

var unsafePathChars = regexp.MustCompile(`[^a-zA-Z0-9.\-]+`)

// SanitizeTarget replaces characters unsafe for filesystem paths
// Allows alphanumeric, dots, and hyphens. Replaces everything else with underscore.
func SanitizeTarget(target string) string {
	return unsafePathChars.ReplaceAllString(target, "_")
}

// SessionDirPath generates a consistent directory path for a session
// Format: {baseDir}/{domain}_{YYYYMMDD}_{HHMMSS}
func SessionDirPath(baseDir string, domain string, startedAt time.Time) string {
	sanitized := SanitizeTarget(domain)
	timestamp := startedAt.Format("20060102_150405")
	return filepath.Join(baseDir, fmt.Sprintf("%s_%s", sanitized, timestamp))
}

// WriteSessionDir writes session.json and subdomains.txt into a fresh session
// directory under baseDir and returns its path
func WriteSessionDir(baseDir string, session *models.ScanSession) (string, error) {
	dir := SessionDirPath(baseDir, session.Domain, session.StartedAt)
	if err := EnsureDir(dir); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal session: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "session.json"), data, 0644); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, hit := range session.LiveResults {
		b.WriteString(hit.Subdomain)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(filepath.Join(dir, "subdomains.txt"), []byte(b.String()), 0644); err != nil {
		return "", err
	}

	return dir, nil
}

// EnsureDir creates a directory and all parent directories if they don't exist
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
