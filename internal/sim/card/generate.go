package card

import "math/bits"

const (
	minDuration  = 60
	durationSpan = 120
	maxMagnitude = 60
)

// Generate derives a new card from one randomness word and the player's
// context. The card consumes the resource the player holds most of and
// produces a different one; magnitudes grow with level. The balance slot
// (last) is never touched.
func Generate(level uint16, local []int64, seed uint64) Card {
	var c Card
	c.Duration = minDuration + seed%durationSpan

	pools := len(c.Attributes) - 1
	if len(local) > 0 && len(local)-1 < pools {
		pools = len(local) - 1
	}
	if pools < 2 {
		return c
	}

	consume := -1
	var best int64
	for i := 0; i < pools; i++ {
		if local[i] > best {
			best, consume = local[i], i
		}
	}
	if consume < 0 {
		consume = int((seed >> 8) % uint64(pools))
	}
	produce := int((seed >> 16) % uint64(pools))
	if produce == consume {
		produce = (produce + 1) % pools
	}

	mag := 2 + int(level)/2
	if mag > maxMagnitude {
		mag = maxMagnitude
	}
	bonus := int(bits.OnesCount64(seed>>24) % 3)
	c.Attributes[consume] = -int8(mag)
	c.Attributes[produce] = int8(min(mag+bonus, maxMagnitude))
	return c
}
