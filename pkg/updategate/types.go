package updategate

import (
	"github.com/bianoble/update-gate/internal/config"
	"github.com/bianoble/update-gate/internal/gate"
	"github.com/bianoble/update-gate/internal/manifest"
)

// Type aliases re-export the internal types as the public API.
// Users import "github.com/bianoble/update-gate/pkg/updategate" and use
// updategate.Snapshot, updategate.Dependency, etc.

type Dependency = gate.Dependency
type Snapshot = gate.Snapshot
type Document = manifest.Document
type Entry = manifest.Entry
type Config = config.Config
type ValidationError = config.ValidationError
