package directory

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"callreport-server/pkg/errors"
)

// LoadFile reads a JSON object of "number": "name" pairs. Key order in the
// file is preserved.
func LoadFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open directory file", map[string]interface{}{
			"path": path,
		})
	}
	defer f.Close()

	entries, err := Decode(f)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse directory file", map[string]interface{}{
			"path": path,
		})
	}
	return entries, nil
}

// Decode parses a JSON object of "number": "name" pairs from r, keeping
// the order in which the keys appear.
func Decode(r io.Reader) ([]Entry, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, errors.NewInvalidDirectory(fmt.Sprintf("reading opening token: %v", err))
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.NewInvalidDirectory("expected a JSON object")
	}

	var entries []Entry
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.NewInvalidDirectory(fmt.Sprintf("reading key: %v", err))
		}
		number, _ := tok.(string)

		var name string
		if err := dec.Decode(&name); err != nil {
			return nil, errors.NewInvalidDirectory(fmt.Sprintf("value for %q must be a string", number))
		}
		entries = append(entries, Entry{Number: number, Name: name})
	}

	if _, err := dec.Token(); err != nil {
		return nil, errors.NewInvalidDirectory(fmt.Sprintf("reading closing token: %v", err))
	}

	return entries, nil
}

// ParseInline parses "number=Name;number=Name" lists as used in environment
// variables. Blank items are ignored.
func ParseInline(s string) ([]Entry, error) {
	var entries []Entry
	for _, item := range strings.Split(s, ";") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		number, name, found := strings.Cut(item, "=")
		if !found {
			return nil, errors.NewInvalidDirectory(fmt.Sprintf("entry %q is missing '='", item))
		}
		entries = append(entries, Entry{
			Number: strings.TrimSpace(number),
			Name:   strings.TrimSpace(name),
		})
	}
	return entries, nil
}
