package common

import "strings"

const bytesInMB = 1024 * 1024

// MBToBytes and BytesToMB convert between the megabyte figures used in
// configuration and the byte counts the runtime works with. BytesToMB
// truncates.
func MBToBytes(mb uint64) uint64 { return mb * bytesInMB }

func BytesToMB(bytes uint64) uint64 { return bytes / bytesInMB }

// ToLowerWithTrim normalizes user-supplied identifiers such as contract
// method names and configuration keys.
func ToLowerWithTrim(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
