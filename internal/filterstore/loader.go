package filterstore

import (
	"log"
	"os"

	"github.com/SimonWaldherr/bloomd/internal/bloomfilter"
)

// loadInitialVersion scans dataDir at startup and materializes any
// existing on-disk filters into the initial DirectoryVersion. A filter
// that fails to load is logged and skipped rather than aborting startup;
// the rest continue loading.
func loadInitialVersion(dataDir string, def bloomfilter.Config) (*DirectoryVersion, int64, error) {
	v := newVersion(nil, 1)
	if dataDir == "" {
		return v, 1, nil
	}

	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return v, 1, nil
		}
		return nil, 0, err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name, ok := bloomfilter.NameFromDir(entry.Name())
		if !ok {
			continue
		}
		f, err := bloomfilter.Open(dataDir, name, def, false)
		if err != nil {
			log.Printf("filterstore: skipping %q on load: %v", name, err)
			continue
		}
		// Loaded filters start cold: isHot is false until a lookup
		// touches them.
		v.entries[name] = newFilterHandle(name, f, nil)
	}
	return v, 1, nil
}
