// Package metrics tracks process-wide counters for the message pipeline.
package metrics

import "sync/atomic"

var (
	messagesHandled   int64
	reportsCreated    int64
	persistFailures   int64
	geocodeCacheHits  int64
	geocodeCacheMiss  int64
	visionFallbacks   int64
	notificationsSent int64
)

func IncMessagesHandled()  { atomic.AddInt64(&messagesHandled, 1) }
func IncReportsCreated()   { atomic.AddInt64(&reportsCreated, 1) }
func IncPersistFailures()  { atomic.AddInt64(&persistFailures, 1) }
func IncGeocodeCacheHit()  { atomic.AddInt64(&geocodeCacheHits, 1) }
func IncGeocodeCacheMiss() { atomic.AddInt64(&geocodeCacheMiss, 1) }
func IncVisionFallback()   { atomic.AddInt64(&visionFallbacks, 1) }
func IncNotificationSent() { atomic.AddInt64(&notificationsSent, 1) }

// Snapshot returns the current counter values keyed for the ops endpoint.
func Snapshot() map[string]int64 {
	return map[string]int64{
		"messages_handled":   atomic.LoadInt64(&messagesHandled),
		"reports_created":    atomic.LoadInt64(&reportsCreated),
		"persist_failures":   atomic.LoadInt64(&persistFailures),
		"geocode_cache_hits": atomic.LoadInt64(&geocodeCacheHits),
		"geocode_cache_miss": atomic.LoadInt64(&geocodeCacheMiss),
		"vision_fallbacks":   atomic.LoadInt64(&visionFallbacks),
		"notifications_sent": atomic.LoadInt64(&notificationsSent),
	}
}
