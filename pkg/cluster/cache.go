package cluster

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// DefaultCacheTTL is how long a remote resolution stays valid before the
// next lookup goes back over the wire.
const DefaultCacheTTL = 30 * time.Second

// cachedResolution pairs a remote handler proxy with the node it came
// from, so node departures can evict everything that node answered for.
type cachedResolution struct {
	Handler *remoteHandler
	Source  string
}

// remoteCache holds recent remote resolutions. Any-node resolutions are
// keyed by entry name; targeted resolutions by "name@node", so a targeted
// lookup never satisfies an any-node one or vice versa.
type remoteCache struct {
	c *gocache.Cache
}

func newRemoteCache(ttl time.Duration) *remoteCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &remoteCache{c: gocache.New(ttl, 2*ttl)}
}

func targetedKey(name, node string) string {
	return name + "@" + node
}

func (rc *remoteCache) get(key string) (*cachedResolution, bool) {
	v, ok := rc.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*cachedResolution), true
}

func (rc *remoteCache) put(key string, res *cachedResolution) {
	rc.c.SetDefault(key, res)
}

// dropNode evicts every resolution sourced from node. Called when the
// node leaves the cluster; the entries would otherwise serve stale
// proxies until the TTL caught up.
func (rc *remoteCache) dropNode(node string) {
	for key, item := range rc.c.Items() {
		res, ok := item.Object.(*cachedResolution)
		if ok && res.Source == node {
			rc.c.Delete(key)
		}
	}
}

func (rc *remoteCache) flush() {
	rc.c.Flush()
}
