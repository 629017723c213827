// Package overlay maps configured overlays and their pages onto chatlog
// buffers.
//
// Each page gets its own buffer, registered with the shared registry so the
// distributor reaches it. Removing a page from config disposes its buffer;
// editing its channel map swaps the filter in place.
package overlay
