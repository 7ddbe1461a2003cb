//go:build linux

package mmap

import "syscall"

const MAP_POPULATE = syscall.MAP_POPULATE
