package manifest

import (
	"fmt"
	"os"

	"github.com/magiconair/properties"
)

// Load reads a manifest from a properties file on disk.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return doc, nil
}

// Parse parses manifest text in properties format. Key order is
// preserved and values are taken verbatim, with no ${...} expansion.
func Parse(data []byte) (*Document, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadBytes(data)
	if err != nil {
		return nil, err
	}

	d := &Document{values: make(map[string]string, p.Len())}
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		d.keys = append(d.keys, k)
		d.values[k] = v
	}
	return d, nil
}
