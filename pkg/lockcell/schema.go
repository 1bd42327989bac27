package lockcell

import "fmt"

// Redis key pattern helpers
//
// Keys are namespaced by repository so one Redis server can coordinate bots
// for several content repositories.
//
// Key pattern: wikibot:{owner}/{name}:{entity}

// LockKey returns the Redis key holding the lock value.
// Pattern: wikibot:{owner}/{name}:lock
func LockKey(owner, name string) string {
	return fmt.Sprintf("wikibot:%s/%s:lock", owner, name)
}

// LockEventsChannel returns the Pub/Sub channel carrying claim and release events.
// Pattern: wikibot:{owner}/{name}:lock_events
func LockEventsChannel(owner, name string) string {
	return fmt.Sprintf("wikibot:%s/%s:lock_events", owner, name)
}
