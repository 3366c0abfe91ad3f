package storage

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// sqliteSidecars are the files SQLite keeps next to the database in WAL mode.
var sqliteSidecars = []string{"", "-wal", "-shm"}

// DiskUsageBytes returns the bytes used by the SQLite database at dbPath, including its
// WAL and shared-memory files, plus every file under indexDirs. Missing paths count as 0.
func DiskUsageBytes(dbPath string, indexDirs ...string) (int64, error) {
	var total int64
	if dbPath != "" {
		for _, suffix := range sqliteSidecars {
			n, err := fileSize(dbPath + suffix)
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	for _, dir := range indexDirs {
		if dir == "" {
			continue
		}
		n, err := treeSize(dir)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// treeSize sums regular files under root. root may itself be a file.
func treeSize(root string) (int64, error) {
	var total int64
	err := filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
