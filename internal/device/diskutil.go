package device

import (
	"bufio"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	// diskutilHeaderPattern matches a disk header of `diskutil list external physical`.
	diskutilHeaderPattern = regexp.MustCompile(`^(/dev/disk[0-9]+) \(external, physical\):$`)
	// diskutilInfoPattern matches a "Key: Value" line of `diskutil info`.
	diskutilInfoPattern = regexp.MustCompile(`^\s*([A-Za-z][A-Za-z0-9 /()-]*?):\s+(.*)$`)
	// diskutilBytesPattern extracts the exact byte count of a size field.
	diskutilBytesPattern = regexp.MustCompile(`\(([0-9]+) Bytes\)`)
)

// parseDiskutilList returns the disk nodes of a `diskutil list external physical` listing.
func parseDiskutilList(output string) ([]string, error) {
	var nodes []string

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), " ")
		if !strings.HasPrefix(line, "/dev/") {
			continue
		}

		match := diskutilHeaderPattern.FindStringSubmatch(line)
		if match == nil {
			return nil, fmt.Errorf("%w: diskutil list: %q", ErrUnexpectedOutput, line)
		}

		nodes = append(nodes, match[1])
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	return nodes, nil
}

// parseDiskutilInfo parses `diskutil info <node>` into a drive.
// ok is false for disks that are neither removable nor external.
func parseDiskutilInfo(node, output string) (Drive, bool, error) {
	fields := make(map[string]string)

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		if match := diskutilInfoPattern.FindStringSubmatch(scanner.Text()); match != nil {
			fields[match[1]] = strings.TrimSpace(match[2])
		}
	}

	if err := scanner.Err(); err != nil {
		return Drive{}, false, err
	}

	if fields["Device Node"] != node {
		return Drive{}, false, fmt.Errorf("%w: diskutil info %s: device node %q", ErrUnexpectedOutput, node, fields["Device Node"])
	}

	sizeField, ok := fields["Disk Size"]
	if !ok {
		sizeField = fields["Total Size"]
	}

	match := diskutilBytesPattern.FindStringSubmatch(sizeField)
	if match == nil {
		return Drive{}, false, fmt.Errorf("%w: diskutil info %s: size %q", ErrUnexpectedOutput, node, sizeField)
	}

	size, err := strconv.ParseInt(match[1], 10, 64)
	if err != nil {
		return Drive{}, false, fmt.Errorf("%w: diskutil info %s: %w", ErrUnexpectedOutput, node, err)
	}

	removable := fields["Removable Media"] == "Removable" || fields["Removable Media"] == "Yes" ||
		fields["Device Location"] == "External" || fields["Internal"] == "No"

	return Drive{
		Path:      node,
		Size:      size,
		Model:     fields["Device / Media Name"],
		Transport: strings.ToLower(fields["Protocol"]),
	}, removable && size > 0, nil
}

// rawDiskPath returns the unbuffered character device of a macOS disk node.
func rawDiskPath(node string) string {
	return strings.Replace(node, "/dev/disk", "/dev/rdisk", 1)
}
