package events

import (
	"strconv"
	"strings"
)

func normalizeAsset(asset string) string {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return ""
	}
	return strings.ToUpper(trimmed)
}

func formatUint(v uint64) string {
	return strconv.FormatUint(v, 10)
}
