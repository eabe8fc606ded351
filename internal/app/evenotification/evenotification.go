// Package evenotification parses the bodies of Eve Online structure notifications.
//
// Notification bodies from ESI are YAML-like documents.
// Their format differs between notification types and changes over time,
// so the parsers in this package work line by line and skip anything they do not understand
// instead of decoding the whole document.
package evenotification

import (
	"strconv"
	"strings"
)

// lastInt returns the last whitespace separated token of s as integer of the given bit size.
func lastInt(s string, bitSize int) (int64, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(fields[len(fields)-1], 10, bitSize)
	if err != nil {
		return 0, false
	}
	return v, true
}
