// Package input reads the URLs, parameter wordlists and payloads a run is
// built from.
package input

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// ErrNoPayloads is returned when neither flags nor a file supplied a value.
var ErrNoPayloads = errors.New("at least one payload value is required")

// LoadWordlist reads parameter names from a file, or splits source on commas
// when it is not a readable file. Names are trimmed and deduplicated in order.
func LoadWordlist(source string) ([]string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, nil
	}

	if info, err := os.Stat(source); err == nil && !info.IsDir() {
		file, err := os.Open(source)
		if err != nil {
			return nil, fmt.Errorf("failed to open wordlist: %w", err)
		}
		defer file.Close()

		words, err := readWords(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read wordlist %s: %w", source, err)
		}
		return Dedup(words), nil
	}

	var words []string
	for _, w := range strings.Split(source, ",") {
		if w = strings.TrimSpace(w); w != "" {
			words = append(words, w)
		}
	}
	return Dedup(words), nil
}

// readWords returns trimmed non-empty lines, skipping '#' comments.
func readWords(r io.Reader) ([]string, error) {
	var words []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		word := strings.TrimSpace(scanner.Text())
		if word != "" && !strings.HasPrefix(word, "#") {
			words = append(words, word)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return words, nil
}

// LoadPayloads combines the payload file with values given on the command
// line, file entries first. Payload lines are taken verbatim apart from the
// line ending, since leading spaces or '#' can be part of a payload.
func LoadPayloads(values []string, file string) ([]string, error) {
	var payloads []string

	if file != "" {
		f, err := os.Open(file)
		if err != nil {
			return nil, fmt.Errorf("failed to open value file: %w", err)
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := strings.TrimRight(scanner.Text(), "\r")
			if line != "" {
				payloads = append(payloads, line)
			}
		}
		if err := scanner.Err(); err != nil {
			return nil, fmt.Errorf("failed to read value file %s: %w", file, err)
		}
	}

	for _, v := range values {
		if v != "" {
			payloads = append(payloads, v)
		}
	}

	payloads = Dedup(payloads)
	if len(payloads) == 0 {
		return nil, ErrNoPayloads
	}
	return payloads, nil
}

// LoadURLs collects raw target URLs from a single URL and a list file,
// in that order. Stdin is read only when neither is given. A lone stdin
// line is cut at its first comma so CSV exports can be piped in directly.
func LoadURLs(single, listFile string, stdin io.Reader) ([]string, error) {
	var urls []string
	if single = strings.TrimSpace(single); single != "" {
		urls = append(urls, single)
	}

	if listFile != "" {
		f, err := os.Open(listFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open url list: %w", err)
		}
		defer f.Close()

		listed, err := readLines(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read url list %s: %w", listFile, err)
		}
		urls = append(urls, listed...)
	}

	if single != "" || listFile != "" {
		return urls, nil
	}

	if stdin == nil {
		return nil, nil
	}

	urls, err := readLines(stdin)
	if err != nil {
		return nil, fmt.Errorf("failed to read urls from stdin: %w", err)
	}
	if len(urls) == 1 {
		first, _, _ := strings.Cut(urls[0], ",")
		urls[0] = strings.TrimSpace(first)
	}
	return urls, nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

// Dedup removes repeated entries, keeping the first occurrence.
func Dedup(items []string) []string {
	if len(items) == 0 {
		return items
	}
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}
