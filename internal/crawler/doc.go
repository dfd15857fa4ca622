// Package crawler implements the resumable breadth-first crawl engine:
// frontier management, link filtering, load-more expansion, and the
// checkpointed crawl state.
package crawler
