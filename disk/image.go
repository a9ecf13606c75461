package disk

import (
	"fmt"

	diskfs "github.com/diskfs/go-diskfs"

	"idedisk/ata"
)

// CreateImage creates a raw, zero filled disk image file of the given
// number of sectors. The file must not exist yet.
func CreateImage(path string, sectors uint32) error {
	d, err := diskfs.Create(path, int64(sectors)*ata.SectorSize, diskfs.Raw, diskfs.SectorSize512)
	if err != nil {
		return fmt.Errorf("disk: creating %s: %w", path, err)
	}
	return d.File.Close()
}

// OpenImage attaches an existing raw image file as a drive.
func OpenImage(path string) (*Drive, error) {
	d, err := diskfs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("disk: opening %s: %w", path, err)
	}
	drive, err := NewDrive(d.File, d.Size)
	if err != nil {
		d.File.Close()
		return nil, err
	}
	return drive, nil
}
