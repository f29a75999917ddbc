package integrity

import (
	"io"
	"os"

	"github.com/opencontainers/go-digest"
	"go.uber.org/zap"
)

// Verify reports whether the file at path is a regular file with
// exactly the expected size and digest.
//
// A size mismatch leaves the file alone; a digest mismatch deletes the
// file so a corrupt artifact is not picked up again. Any I/O failure
// reports false.
func Verify(path string, want digest.Digest, size int64) bool {
	log := zap.L().Sugar()

	if err := want.Validate(); err != nil {
		log.Errorf("no usable digest to verify %s against: %v", path, err)
		return false
	}

	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if !info.Mode().IsRegular() {
		return false
	}
	if info.Size() != size {
		log.Infof("%s length is wrong: %d, should be %d", path, info.Size(), size)
		return false
	}

	f, err := os.Open(path)
	if err != nil {
		log.Warnf("unable to read %s to verify it: %v", path, err)
		return false
	}
	defer f.Close()

	verifier := want.Verifier()
	if _, err := io.Copy(verifier, f); err != nil {
		log.Warnf("reading %s: %v", path, err)
		return false
	}
	if !verifier.Verified() {
		log.Warnf("%s has the wrong digest, deleting it", path)
		if err := os.Remove(path); err != nil {
			log.Warnf("unable to delete corrupt %s: %v", path, err)
		}
		return false
	}
	return true
}
