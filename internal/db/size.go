package db

import "os"

// DBTotalSize returns the combined size in bytes of the database file and
// its WAL/SHM side files. Missing side files are skipped.
func DBTotalSize(dbPath string) (int64, error) {
	var total int64

	for _, path := range []string{dbPath, dbPath + "-wal", dbPath + "-shm"} {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}

	return total, nil
}
