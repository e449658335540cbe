// Package details implements the Detail Registry (spec §4.1): a
// content-addressed blob cache mirrored from data/details/ on boot, backed
// by the Store for persistence.
package details

import (
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
)

// CID computes the content identifier for a blob: base58-over-sha256, in
// the same family of content-addressing schemes the example pack's
// storage-marketplace repos use for detail/content identifiers (go.mod
// already carries mr-tron/base58 for exactly this shape of ID).
func CID(content []byte) string {
	sum := sha256.Sum256(content)
	return base58.Encode(sum[:])
}

// Sync is the interface the Store exposes for the startup-sync law (spec
// §4.1, §8): a single transaction that makes the detail_files table agree
// exactly with the CIDs found on disk.
type Sync interface {
	SyncDetailFiles(contents map[string][]byte) error
}

// SyncFromDisk walks root recursively (files only, per spec §6), computes
// each file's CID, and calls store.SyncDetailFiles with the full set. It
// returns the cid->path map so callers can resolve which file backs which
// CID if needed for diagnostics.
func SyncFromDisk(root string, store Sync) (map[string]string, error) {
	contents := map[string][]byte{}
	cidToPath := map[string]string{}

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return nil // no details directory yet is not fatal at boot
			}
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		cid := CID(content)
		contents[cid] = content
		cidToPath[cid] = path
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	if err := store.SyncDetailFiles(contents); err != nil {
		return nil, fmt.Errorf("sync detail files: %w", err)
	}
	return cidToPath, nil
}

// WriteBack persists a detail blob to disk under the naming conventions of
// spec §6, for runtime writes (virtual-provider registration) that must
// survive the next boot's SyncFromDisk.
func WriteBack(root, name string, content []byte) error {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(root, name), content, 0o644)
}

// VProvDetailsFilename is the naming convention for a gateway-submitted
// virtual-provider detail file (spec §6).
func VProvDetailsFilename(ownerLower, cid string) string {
	return fmt.Sprintf("vprov.%s.details.%s.json", ownerLower, cid)
}

// VProvOfferFilename is the naming convention for a gateway-submitted
// virtual-provider offer detail file (spec §6).
func VProvOfferFilename(ownerLower string, offerID int64, protocolAddr, cid string) string {
	return fmt.Sprintf("vprov.%s.offer.%d.%s.details.%s.json", ownerLower, offerID, protocolAddr, cid)
}
