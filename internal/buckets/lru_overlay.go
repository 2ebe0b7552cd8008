package buckets

import (
	"github.com/cernan/cernan/internal/event"
	lru "github.com/hashicorp/golang-lru/v2"
)

// lruOverlay bounds the persistent-gauge overlay to a fixed cardinality.
// Unbounded cardinality under the default "never expire" gauge TTL can leak
// memory; opting into a limit trades the "sustain forever" guarantee for a
// bounded memory footprint, evicting the least-recently-updated gauge
// first.
type lruOverlay struct {
	cache *lru.Cache[event.GaugeKey, *gaugeEntry]
}

func newLRUOverlay(size int) *lruOverlay {
	c, _ := lru.New[event.GaugeKey, *gaugeEntry](size)
	return &lruOverlay{cache: c}
}

func (o *lruOverlay) set(k event.GaugeKey, v *gaugeEntry) {
	o.cache.Add(k, v)
}

func (o *lruOverlay) get(k event.GaugeKey) (*gaugeEntry, bool) {
	return o.cache.Get(k)
}

func (o *lruOverlay) rangeAll(f func(event.GaugeKey, *gaugeEntry)) {
	for _, k := range o.cache.Keys() {
		if v, ok := o.cache.Peek(k); ok {
			f(k, v)
		}
	}
}

func (o *lruOverlay) expireBefore(threshold int64) {
	for _, k := range o.cache.Keys() {
		if v, ok := o.cache.Peek(k); ok && v.lastUpdate < threshold {
			o.cache.Remove(k)
		}
	}
}
