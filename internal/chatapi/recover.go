package chatapi

import (
	"regexp"
	"strconv"
)

var updateIDPattern = regexp.MustCompile(`"update_id"\s*:\s*(-?\d+)`)

// extractMaxUpdateID scans a truncated JSON body for every
// "update_id": N occurrence and returns the largest one found, or 0 if
// none parse. This is the Go equivalent of the original firmware's
// manual cJSON-free string scan used to recover from a body that
// overflowed the bounded response buffer.
func extractMaxUpdateID(partial []byte) int64 {
	matches := updateIDPattern.FindAllSubmatch(partial, -1)
	var max int64
	for _, m := range matches {
		v, err := strconv.ParseInt(string(m[1]), 10, 64)
		if err != nil {
			continue
		}
		if v > max {
			max = v
		}
	}
	return max
}
