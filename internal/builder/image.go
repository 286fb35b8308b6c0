package builder

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"

	"github.com/robinei/darch/internal/runner"
)

// ImageLayout describes the two partitions and three subvolumes CreateImage
// lays down on a freshly-created disk image.
type ImageLayout struct {
	ESPPartition  string // e.g. /dev/loop0p1
	RootPartition string // e.g. /dev/loop0p2
	LoopDevice    string
	// RootUUID is the btrfs filesystem UUID CreateImage assigned to
	// RootPartition (via mkfs.btrfs -U), so the caller can feed it
	// straight to the boot menu generator without a separate blkid
	// lookup. Empty when CreateImage attached an image that already
	// existed, since the UUID wasn't (re)assigned this run.
	RootUUID string
}

// CreateImage creates a blank disk image at imagePath (if it does not
// already exist), partitions it with an EFI System Partition and a btrfs
// root partition, and creates the @images/@var/@home subvolumes expected
// by the rest of the build pipeline. If imagePath already exists it is
// neither partitioned nor formatted: it is only attached to a new loop
// device, and the returned layout has an empty RootUUID.
//
// Grounded on original_source/darch.py's image_file/loop_device context
// managers: sgdisk for partitioning (one ESP at 512M, one btrfs taking the
// rest), mkfs.fat/mkfs.btrfs for formatting, and a one-time mount to create
// the three subvolumes and their fixed directories.
func CreateImage(ctx context.Context, imagePath, size string) (*ImageLayout, error) {
	if size == "" {
		size = "10G"
	}
	if _, err := os.Stat(imagePath); err == nil {
		return attachLoop(ctx, imagePath)
	}

	if _, err := runner.Run(ctx, []string{"truncate", "-s", size, imagePath}, runner.Options{Check: true, Capture: true}); err != nil {
		return nil, fmt.Errorf("builder: truncate %s: %w", imagePath, err)
	}
	if _, err := runner.Run(ctx, []string{"sgdisk", "-Z", imagePath}, runner.Options{Check: true, Capture: true}); err != nil {
		return nil, fmt.Errorf("builder: sgdisk zap: %w", err)
	}
	if _, err := runner.Run(ctx, []string{"sgdisk", "-n", "1:0:+512M", "-t", "1:ef00", imagePath}, runner.Options{Check: true, Capture: true}); err != nil {
		return nil, fmt.Errorf("builder: sgdisk esp partition: %w", err)
	}
	if _, err := runner.Run(ctx, []string{"sgdisk", "-n", "2:0:0", "-t", "2:8300", imagePath}, runner.Options{Check: true, Capture: true}); err != nil {
		return nil, fmt.Errorf("builder: sgdisk root partition: %w", err)
	}

	layout, err := attachLoop(ctx, imagePath)
	if err != nil {
		return nil, err
	}

	if _, err := runner.Run(ctx, []string{"mkfs.fat", "-F32", layout.ESPPartition}, runner.Options{Check: true, Capture: true}); err != nil {
		return nil, fmt.Errorf("builder: mkfs.fat: %w", err)
	}
	rootUUID := uuid.NewString()
	if _, err := runner.Run(ctx, []string{"mkfs.btrfs", "-f", "-U", rootUUID, layout.RootPartition}, runner.Options{Check: true, Capture: true}); err != nil {
		return nil, fmt.Errorf("builder: mkfs.btrfs: %w", err)
	}
	layout.RootUUID = rootUUID

	mountPoint := "/mnt/darch-setup"
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return nil, fmt.Errorf("builder: mkdir %s: %w", mountPoint, err)
	}
	if _, err := runner.Run(ctx, []string{"mount", layout.RootPartition, mountPoint}, runner.Options{Check: true, Capture: true}); err != nil {
		return nil, fmt.Errorf("builder: mount %s: %w", layout.RootPartition, err)
	}
	defer runner.Run(ctx, []string{"umount", mountPoint}, runner.Options{Check: false})

	for _, sub := range []string{"@images", "@var", "@home"} {
		if _, err := runner.Run(ctx, []string{"btrfs", "subvol", "create", mountPoint + "/" + sub}, runner.Options{Check: true, Capture: true}); err != nil {
			return nil, fmt.Errorf("builder: create subvolume %s: %w", sub, err)
		}
	}
	if err := os.MkdirAll(mountPoint+"/@home/root", 0700); err != nil {
		return nil, fmt.Errorf("builder: mkdir @home/root: %w", err)
	}
	if err := os.MkdirAll(mountPoint+"/@var/lib/machines", 0755); err != nil {
		return nil, fmt.Errorf("builder: mkdir @var/lib/machines: %w", err)
	}

	return layout, nil
}

func attachLoop(ctx context.Context, imagePath string) (*ImageLayout, error) {
	out, err := runner.Run(ctx, []string{"losetup", "-Pf", "--show", imagePath}, runner.Options{Check: true, Capture: true})
	if err != nil {
		return nil, fmt.Errorf("builder: losetup %s: %w", imagePath, err)
	}
	loop := strings.TrimSpace(out)
	if _, err := runner.Run(ctx, []string{"udevadm", "settle"}, runner.Options{Check: false}); err != nil {
		return nil, err
	}
	return &ImageLayout{
		LoopDevice:    loop,
		ESPPartition:  loop + "p1",
		RootPartition: loop + "p2",
	}, nil
}

// DetachImage tears down a loop-device attachment made by CreateImage,
// syncing first so mounted writes are flushed before detach.
func DetachImage(ctx context.Context, layout *ImageLayout) error {
	if layout == nil || layout.LoopDevice == "" {
		return nil
	}
	_, _ = runner.Run(ctx, []string{"sync"}, runner.Options{Check: false})
	_, err := runner.Run(ctx, []string{"losetup", "-d", layout.LoopDevice}, runner.Options{Check: false})
	return err
}
