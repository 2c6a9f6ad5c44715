package fingerprint

import (
	"errors"
	"fmt"
)

const (
	// MinSlot and MaxSlot bound the sensor's template slot numbering.
	MinSlot = 1
	MaxSlot = 200
)

// ErrBadBitmap is returned when the sensor's list reply is not an occupancy bitmap.
var ErrBadBitmap = errors.New("malformed occupancy bitmap")

// parseOccupancy decodes the sensor's list reply. Character i describes slot i,
// '1' meaning used; position 0 and characters past MaxSlot carry no slot. Slots
// beyond the end of a short reply are free.
func parseOccupancy(reply string) (map[int]bool, error) {
	if reply == "" {
		return nil, fmt.Errorf("%w: empty reply", ErrBadBitmap)
	}
	used := make(map[int]bool)
	for i := 0; i < len(reply) && i <= MaxSlot; i++ {
		switch reply[i] {
		case '1':
			if i >= MinSlot {
				used[i] = true
			}
		case '0':
		default:
			return nil, fmt.Errorf("%w: unexpected %q at position %d", ErrBadBitmap, reply[i], i)
		}
	}
	return used, nil
}

// freeSlots returns the complement of used over MinSlot..MaxSlot, in ascending order.
func freeSlots(used map[int]bool) []int {
	free := make([]int, 0, MaxSlot-len(used))
	for id := MinSlot; id <= MaxSlot; id++ {
		if !used[id] {
			free = append(free, id)
		}
	}
	return free
}
