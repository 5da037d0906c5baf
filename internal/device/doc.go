// Package device lists removable drives and writes images onto them.
//
// Each supported platform has a Backend that shells out to the native
// block-device tool (lsblk on Linux, diskutil on macOS) and parses its
// output strictly: output that does not match the expected layout is an
// error, never a guess.
package device
