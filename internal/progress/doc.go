// Package progress carries crawl-session milestones from the engine to
// pluggable sinks. Events are buffered by a Hub and flushed in batches on a
// background goroutine so emitting never stalls the crawl.
package progress
