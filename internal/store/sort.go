package store

import "github.com/netpulse/netpulse/pkg/common"

// Dynamic sort inputs are accepted only from these closed sets. Raw
// strings never reach the query builder.

type SortKey string

const (
	SortTotalBytes SortKey = "totalBytes"
	SortBytesIn    SortKey = "bytesIn"
	SortBytesOut   SortKey = "bytesOut"
	SortLastSeen   SortKey = "lastSeen"
	SortFirstSeen  SortKey = "firstSeen"
)

type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

// ParseSortKey validates a caller-supplied sort key. The empty string
// defaults to totalBytes.
func ParseSortKey(s string) (SortKey, error) {
	switch SortKey(s) {
	case "":
		return SortTotalBytes, nil
	case SortTotalBytes, SortBytesIn, SortBytesOut, SortLastSeen, SortFirstSeen:
		return SortKey(s), nil
	}
	return "", common.ValidationError("unknown sort key %q", s)
}

// ParseSortOrder validates a caller-supplied sort order. The empty
// string defaults to descending.
func ParseSortOrder(s string) (SortOrder, error) {
	switch SortOrder(s) {
	case "":
		return OrderDesc, nil
	case OrderAsc, OrderDesc:
		return SortOrder(s), nil
	}
	return "", common.ValidationError("unknown sort order %q", s)
}
