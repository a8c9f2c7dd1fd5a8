// Package crawler implements the autoplay crawl: the ad-aware playback
// watcher, the advancer, and the engine that sequences advance, readiness,
// enrichment, persistence and snapshots for a bounded number of items.
package crawler
