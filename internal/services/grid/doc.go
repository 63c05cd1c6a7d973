// Package grid contains the windowed pagination boundary used by pricedesk
// tables.
//
// A grid controller keeps one visible window of a large remote result set,
// fetches pages on demand through a data gateway, caches recent pages and
// discards responses that arrive after the user has moved on.
package grid
