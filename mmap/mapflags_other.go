//go:build unix && !linux

package mmap

// MAP_POPULATE is Linux-only; elsewhere the Prefault option is a no-op.
const MAP_POPULATE = 0
