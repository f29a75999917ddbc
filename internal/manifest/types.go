package manifest

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/opencontainers/go-digest"
)

// Document is a dependency manifest: flat dotted keys mapped to string
// values, with the key order of the source text preserved.
type Document struct {
	keys   []string
	values map[string]string
}

// Get returns the raw value for key and whether the key is present.
func (d *Document) Get(key string) (string, bool) {
	v, ok := d.values[key]
	return v, ok
}

// Names returns entry names in the order each first appears. An entry
// name is the part of a dotted key before the first dot; keys without
// a dot do not name entries, and repeats of a name are folded into its
// first occurrence.
func (d *Document) Names() []string {
	seen := make(map[string]bool)
	var names []string
	for _, k := range d.keys {
		i := strings.Index(k, ".")
		if i <= 0 {
			continue
		}
		name := k[:i]
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names
}

// Entry is one dependency declared by a manifest.
type Entry struct {
	Name     string
	Version  string
	Filename string
	Digest   digest.Digest
	Size     int64

	// Locator is where the artifact can be fetched from. Nil when the
	// manifest omits the key field or its value does not parse.
	Locator *url.URL

	// Pattern recognizes alternate copies of the artifact by basename.
	// It is anchored to the whole name. Nil when the manifest omits
	// filename-regex or its value does not compile.
	Pattern *regexp.Regexp
}
