package localstore

import (
	"fmt"

	"github.com/shirou/gopsutil/disk"
	"github.com/sirupsen/logrus"
)

const bytesPerGB = 1024 * 1024 * 1024

// checkFreeSpace logs the disk usage of the volume holding path and fails
// when less than minimumFreeGB is available.
func checkFreeSpace(path string, minimumFreeGB uint) error {
	usage, err := disk.Usage(path)
	if err != nil {
		// Exotic filesystems can fail the statfs; the store still works.
		log.WithFields(logrus.Fields{
			"path": path,
		}).Warnf("could not read disk usage: %v", err)
		return nil
	}

	log.WithFields(logrus.Fields{
		"path":   path,
		"freeGB": usage.Free / bytesPerGB,
		"total":  usage.Total / bytesPerGB,
	}).Info("local store disk usage")

	if minimumFreeGB > 0 && usage.Free < uint64(minimumFreeGB)*bytesPerGB {
		return fmt.Errorf("localstore: only %d GB free on %s, %d GB required",
			usage.Free/bytesPerGB, path, minimumFreeGB)
	}
	return nil
}
