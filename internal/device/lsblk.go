package device

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// lsblkColumns are the columns the Linux backend asks for.
const lsblkColumns = "NAME,SIZE,TYPE,RM,HOTPLUG,TRAN,MODEL"

// linuxDevicePattern accepts whole-disk device paths only.
var linuxDevicePattern = regexp.MustCompile(`^/dev/[a-z][a-z0-9]*$`)

// lsblkFlag decodes RM and HOTPLUG, printed as booleans by recent lsblk and as "0"/"1" by older releases.
type lsblkFlag bool

// UnmarshalJSON accepts true, false, "1", "0", 1 and 0.
func (f *lsblkFlag) UnmarshalJSON(data []byte) error {
	switch string(bytes.Trim(data, `"`)) {
	case "true", "1":
		*f = true
	case "false", "0", "null":
		*f = false
	default:
		return fmt.Errorf("%w: flag %s", ErrUnexpectedOutput, data)
	}

	return nil
}

// lsblkSize decodes SIZE, a number or a numeric string depending on the lsblk release.
type lsblkSize int64

// UnmarshalJSON accepts 123 and "123".
func (s *lsblkSize) UnmarshalJSON(data []byte) error {
	v, err := strconv.ParseInt(string(bytes.Trim(data, `"`)), 10, 64)
	if err != nil {
		return fmt.Errorf("%w: size %s", ErrUnexpectedOutput, data)
	}

	*s = lsblkSize(v)

	return nil
}

// lsblkDevice is one entry of `lsblk --json`.
type lsblkDevice struct {
	Name      string    `json:"name"`
	Size      lsblkSize `json:"size"`
	Type      string    `json:"type"`
	Removable lsblkFlag `json:"rm"`
	Hotplug   lsblkFlag `json:"hotplug"`
	Transport *string   `json:"tran"`
	Model     *string   `json:"model"`
}

// lsblkOutput is the top-level `lsblk --json` document.
type lsblkOutput struct {
	BlockDevices *[]lsblkDevice `json:"blockdevices"`
}

// parseLsblk returns the removable whole disks of an `lsblk --json --bytes --paths --nodeps` listing.
func parseLsblk(output []byte) ([]Drive, error) {
	var doc lsblkOutput

	decoder := json.NewDecoder(bytes.NewReader(output))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: lsblk: %w", ErrUnexpectedOutput, err)
	}

	if doc.BlockDevices == nil {
		return nil, fmt.Errorf("%w: lsblk: no blockdevices key", ErrUnexpectedOutput)
	}

	var drives []Drive

	for _, dev := range *doc.BlockDevices {
		if !linuxDevicePattern.MatchString(dev.Name) {
			return nil, fmt.Errorf("%w: lsblk: device name %q", ErrUnexpectedOutput, dev.Name)
		}

		if dev.Type != "disk" || !(bool(dev.Removable) || bool(dev.Hotplug)) || dev.Size <= 0 {
			continue
		}

		drives = append(drives, Drive{
			Path:      dev.Name,
			Size:      int64(dev.Size),
			Model:     strings.TrimSpace(deref(dev.Model)),
			Transport: strings.TrimSpace(deref(dev.Transport)),
		})
	}

	return drives, nil
}

// listLsblk runs lsblk and parses its listing.
func listLsblk(ctx context.Context, run runFunc) ([]Drive, error) {
	output, err := run(ctx, "lsblk", "--json", "--bytes", "--paths", "--nodeps", "--output", lsblkColumns)
	if err != nil {
		return nil, err
	}

	return parseLsblk([]byte(output))
}

// deref returns the string behind p, or "" for nil.
func deref(p *string) string {
	if p == nil {
		return ""
	}

	return *p
}
