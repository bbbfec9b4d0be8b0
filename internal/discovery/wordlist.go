package discovery

import (
	"bufio"
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

//go:embed wordlists/*.txt
var embedded embed.FS

const defaultWordlist = "wordlists/subdomains.txt"

// ErrEmptyWordlist is returned when a wordlist yields no usable labels
var ErrEmptyWordlist = errors.New("wordlist is empty")

// DefaultWordlist returns the built-in subdomain labels
func DefaultWordlist() []string {
	data, err := embedded.ReadFile(defaultWordlist)
	if err != nil {
		// The file is compiled in; failing here means a broken build
		panic(fmt.Sprintf("embedded wordlist missing: %v", err))
	}
	return parseLines(strings.NewReader(string(data)))
}

// LoadWordlist reads labels from path, or returns the built-in list when
// path is empty. Blank lines and lines starting with # are skipped.
func LoadWordlist(path string) ([]string, error) {
	if path == "" {
		return DefaultWordlist(), nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wordlist: %w", err)
	}
	defer f.Close()

	words := parseLines(f)
	if len(words) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyWordlist)
	}
	return words, nil
}

func parseLines(r io.Reader) []string {
	var words []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.ToLower(strings.TrimSpace(scanner.Text()))
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.Trim(line, ".")
		if line == "" || seen[line] || !validWord(line) {
			continue
		}
		seen[line] = true
		words = append(words, line)
	}
	return words
}

// validWord reports whether every dot-separated label of word is a valid
// DNS label, so entries like "foo bar" never become candidates
func validWord(word string) bool {
	for _, label := range strings.Split(word, ".") {
		if validateLabel(label) != "" {
			return false
		}
	}
	return true
}
