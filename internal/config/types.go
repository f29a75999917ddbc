package config

// Config represents the update-gate.yaml configuration file.
type Config struct {
	Version int `yaml:"version"`

	// Workdir holds the active archives, staged downloads and the
	// launcher conf.
	Workdir string `yaml:"workdir"`

	// LauncherConf lists the active archives. A relative path resolves
	// under Workdir.
	LauncherConf string `yaml:"launcher_conf,omitempty"`

	ArchiveExt string `yaml:"archive_ext,omitempty"`

	// Reserved names are never treated as dependency candidates (the
	// agent core archives, typically).
	Reserved []string `yaml:"reserved,omitempty"`

	Fetch Fetch `yaml:"fetch,omitempty"`
}

// Fetch tunes the download pool.
type Fetch struct {
	Workers int    `yaml:"workers,omitempty"`
	Timeout string `yaml:"timeout,omitempty"` // e.g. "2m", empty for none
	MaxSize int64  `yaml:"max_size,omitempty"`
}
