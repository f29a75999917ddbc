package manifest

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

// ParseEntry reads the manifest fields for the named entry.
//
// version, filename, sha256 and size are required; an error means the
// entry is unusable. key and filename-regex are optional: a value that
// is absent or does not parse is logged and leaves the corresponding
// field nil.
func ParseEntry(doc *Document, name string) (*Entry, error) {
	log := zap.L().Sugar()

	version, _ := doc.Get(name + ".version")
	if version == "" {
		return nil, fmt.Errorf("dependency %s: missing version", name)
	}

	filename, _ := doc.Get(name + ".filename")
	if filename == "" {
		return nil, fmt.Errorf("dependency %s: missing filename", name)
	}

	e := &Entry{Name: name, Version: version, Filename: filename}

	if raw, _ := doc.Get(name + ".key"); raw == "" {
		log.Warnf("dependency %s has no fetch key, it cannot be downloaded if needed", name)
	} else if loc, err := url.Parse(raw); err != nil || loc.Scheme == "" {
		log.Warnf("dependency %s has an unusable fetch key %q", name, raw)
	} else {
		e.Locator = loc
	}

	if raw, _ := doc.Get(name + ".filename-regex"); raw == "" {
		log.Warnf("dependency %s has no filename-regex, older copies cannot be recognized", name)
	} else if re, err := regexp.Compile("^(?:" + raw + ")$"); err != nil {
		log.Warnf("dependency %s has an invalid filename-regex %q: %v", name, raw, err)
	} else {
		e.Pattern = re
	}

	raw, _ := doc.Get(name + ".sha256")
	if raw == "" {
		return nil, fmt.Errorf("dependency %s: missing sha256", name)
	}
	dgst := digest.NewDigestFromEncoded(digest.SHA256, strings.ToLower(raw))
	if err := dgst.Validate(); err != nil {
		return nil, fmt.Errorf("dependency %s: invalid sha256 %q: %w", name, raw, err)
	}
	e.Digest = dgst

	raw, _ = doc.Get(name + ".size")
	if raw == "" {
		return nil, fmt.Errorf("dependency %s: missing size", name)
	}
	size, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || size < 0 {
		return nil, fmt.Errorf("dependency %s: invalid size %q", name, raw)
	}
	e.Size = size

	return e, nil
}
