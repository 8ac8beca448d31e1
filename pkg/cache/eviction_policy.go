package cache

// EvictionPolicy selects which entry to drop when the cache is full.
type EvictionPolicy interface {
	SelectVictim(entries []EntryMeta) int
}

// NewPolicy returns the policy for a config name; unknown names fall back
// to LRU.
func NewPolicy(name string) EvictionPolicy {
	switch name {
	case "fifo":
		return &FIFOPolicy{}
	case "lfu":
		return &LFUPolicy{}
	default:
		return &LRUPolicy{}
	}
}

type FIFOPolicy struct{}

func (p *FIFOPolicy) SelectVictim(entries []EntryMeta) int {
	if len(entries) == 0 {
		return -1
	}
	oldestIdx := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].StoredAt.Before(entries[oldestIdx].StoredAt) {
			oldestIdx = i
		}
	}
	return oldestIdx
}

type LRUPolicy struct{}

func (p *LRUPolicy) SelectVictim(entries []EntryMeta) int {
	if len(entries) == 0 {
		return -1
	}
	oldestIdx := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].LastAccessAt.Before(entries[oldestIdx].LastAccessAt) {
			oldestIdx = i
		}
	}
	return oldestIdx
}

type LFUPolicy struct{}

func (p *LFUPolicy) SelectVictim(entries []EntryMeta) int {
	if len(entries) == 0 {
		return -1
	}
	victimIdx := 0
	for i := 1; i < len(entries); i++ {
		if entries[i].HitCount < entries[victimIdx].HitCount {
			victimIdx = i
		} else if entries[i].HitCount == entries[victimIdx].HitCount {
			// LRU tiebreaker avoids arbitrary selection.
			if entries[i].LastAccessAt.Before(entries[victimIdx].LastAccessAt) {
				victimIdx = i
			}
		}
	}
	return victimIdx
}
