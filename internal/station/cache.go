package station

import (
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"parcel-locker-backend/internal/parse"
)

// Locker is the last observed hardware state of one compartment.
type Locker struct {
	Nickname int         `json:"nickname"`
	Sizes    parse.Sizes `json:"sizes"`
	IsOpen   bool        `json:"is_open"`
	IsEmpty  bool        `json:"is_empty"`
	State    Status      `json:"hardware_state"`
}

// Snapshot is a point-in-time view of a station's lockers, ordered by nickname.
type Snapshot struct {
	Name       string    `json:"station_name"`
	Address    string    `json:"address"`
	Lockers    []Locker  `json:"lockers"`
	// ObservedAt is when the latest report was received. It is receive
	// metadata and advances on every replay; the locker state does not.
	ObservedAt time.Time `json:"observed_at"`
}

// Locker returns the locker with the given nickname.
func (s Snapshot) Locker(nickname int) (Locker, bool) {
	for _, l := range s.Lockers {
		if l.Nickname == nickname {
			return l, true
		}
	}
	return Locker{}, false
}

func (s Snapshot) clone() Snapshot {
	out := s
	out.Lockers = make([]Locker, len(s.Lockers))
	copy(out.Lockers, s.Lockers)
	return out
}

// Reader is the read-only view handed to components that never write hardware state.
type Reader interface {
	Station(name string) (Snapshot, bool)
	Stations() []Snapshot
}

// Cache holds the latest hardware snapshot per station. Entries never expire;
// a station that goes quiet keeps its last known state.
type Cache struct {
	items *cache.Cache
	// serializes read-merge-write in Upsert; readers never take it
	mu sync.Mutex
}

// NewCache creates an empty station cache.
func NewCache() *Cache {
	return &Cache{items: cache.New(cache.NoExpiration, 0)}
}

// Upsert stores a decoded hardware report. A station seen for the first time is
// inserted as-is; otherwise the report is merged locker by locker. Sizes and
// nicknames are kept from the first observation, open/empty/state are last-writer-wins.
func (c *Cache) Upsert(report Snapshot) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.get(report.Name)
	if !ok {
		existing = Snapshot{Name: report.Name}
	}
	merged := merge(existing, report)

	stored := merged
	c.items.Set(report.Name, &stored, cache.NoExpiration)
	return merged.clone()
}

// Station returns a copy of the snapshot for the named station.
func (c *Cache) Station(name string) (Snapshot, bool) {
	s, ok := c.get(name)
	if !ok {
		return Snapshot{}, false
	}
	return s.clone(), true
}

// Stations returns copies of every known station, ordered by name.
func (c *Cache) Stations() []Snapshot {
	items := c.items.Items()
	out := make([]Snapshot, 0, len(items))
	for _, item := range items {
		if s, ok := item.Object.(*Snapshot); ok {
			out = append(out, s.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *Cache) get(name string) (Snapshot, bool) {
	v, found := c.items.Get(name)
	if !found {
		return Snapshot{}, false
	}
	s, ok := v.(*Snapshot)
	if !ok {
		return Snapshot{}, false
	}
	return *s, true
}

func merge(existing, report Snapshot) Snapshot {
	out := existing.clone()
	if report.Address != "" {
		out.Address = report.Address
	}
	if report.ObservedAt.After(out.ObservedAt) {
		out.ObservedAt = report.ObservedAt
	}

	index := make(map[int]int, len(out.Lockers))
	for i, l := range out.Lockers {
		index[l.Nickname] = i
	}
	for _, l := range report.Lockers {
		if i, ok := index[l.Nickname]; ok {
			out.Lockers[i].IsOpen = l.IsOpen
			out.Lockers[i].IsEmpty = l.IsEmpty
			out.Lockers[i].State = l.State
			continue
		}
		index[l.Nickname] = len(out.Lockers)
		out.Lockers = append(out.Lockers, l)
	}
	sortLockers(out.Lockers)
	return out
}

func sortLockers(lockers []Locker) {
	sort.SliceStable(lockers, func(i, j int) bool { return lockers[i].Nickname < lockers[j].Nickname })
}
