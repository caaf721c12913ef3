// Package registry provides a generic concurrent map used for the bus's
// lookup caches: discovered handler methods per subscriber type, interface
// match results per event type, and the latest sticky event per type.
//
// Registry is read-mostly and guarded by a sync.RWMutex. Keys may be any
// comparable type; reflect.Type and identity-key strings are the common ones.
//
//	methods := registry.New[reflect.Type, []*subscriber.Method]()
//
//	found := methods.GetOrCreate(t, func() []*subscriber.Method {
//	    return discover(t)
//	})
//
// GetOrCreate runs the factory at most once per key even when many
// goroutines race on the same key, so expensive reflection happens once.
//
// RegisterIfAbsent is the deduplication primitive: it stores the value only
// when the key is new and reports which value won.
//
//	winner, added := seen.RegisterIfAbsent(m.IdentityKey(), m)
//	if !added {
//	    // m duplicates winner
//	}
//
// Range iterates over a snapshot, so callbacks may mutate the registry.
package registry
