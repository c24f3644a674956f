package flasher

import (
	"strconv"
	"time"

	"github.com/waltr/flashstation/pkg/db"
)

// Config describes the esptool invocation
type Config struct {
	// Command is the esptool entry point, e.g. ["python3", "-m", "esptool"]
	Command []string

	Port        string
	Baud        int
	Chip        string
	FlashMode   string
	FlashFreq   string
	FlashSize   string
	BeforeReset string
	AfterReset  string

	BootloaderOffset string
	PartitionsOffset string
	AppOffset        string

	// Bootloader/partition table pairs, selected by the variant's IDF flag
	Bootloader    string
	Partitions    string
	IDFBootloader string
	IDFPartitions string

	Timeout time.Duration
	Marker  string
}

// DefaultMarker is the line esptool prints once a write has been read back
const DefaultMarker = "Hash of data verified."

// pair returns the bootloader and partition table for v
func (c Config) pair(v db.Variant) (string, string) {
	if v.IsIDF {
		return c.IDFBootloader, c.IDFPartitions
	}
	return c.Bootloader, c.Partitions
}

// Args returns the esptool arguments that write v, not including Command
func (c Config) Args(v db.Variant) []string {
	bootloader, partitions := c.pair(v)
	return []string{
		"-p", c.Port,
		"-b", strconv.Itoa(c.Baud),
		"--before", c.BeforeReset,
		"--after", c.AfterReset,
		"--chip", c.Chip,
		"write_flash",
		"--flash_mode", c.FlashMode,
		"--flash_size", c.FlashSize,
		"--flash_freq", c.FlashFreq,
		c.BootloaderOffset, bootloader,
		c.PartitionsOffset, partitions,
		c.AppOffset, v.Path,
	}
}
