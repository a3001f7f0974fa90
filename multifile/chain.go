// Copyright (c) 2025 NWPlayer123
// SPDX-License-Identifier: MIT

package multifile

import (
	"github.com/pkg/errors"
)

// Chain is an ordered stack of mounted archives. Archives mounted later
// shadow earlier ones, which is how the engine layers patch and mod
// archives over the base game assets.
type Chain struct {
	archives []*Multifile
	// byName caches which archive currently provides each subfile, so
	// repeated lookups skip the mount scan.
	byName map[string]*Multifile
}

// NewChain returns an empty chain.
func NewChain() *Chain {
	return &Chain{byName: make(map[string]*Multifile)}
}

// Mount appends an archive to the chain, shadowing any same-named subfiles
// in archives mounted earlier.
func (ch *Chain) Mount(m *Multifile) {
	ch.archives = append(ch.archives, m)
	for _, sub := range m.Entries() {
		ch.byName[sub.Name] = m
	}
}

// Unmount removes an archive from the chain and rebuilds the lookup cache.
func (ch *Chain) Unmount(m *Multifile) {
	for i, mounted := range ch.archives {
		if mounted == m {
			ch.archives = append(ch.archives[:i], ch.archives[i+1:]...)
			break
		}
	}
	ch.byName = make(map[string]*Multifile)
	for _, mounted := range ch.archives {
		for _, sub := range mounted.Entries() {
			ch.byName[sub.Name] = mounted
		}
	}
}

// Mounts returns the mounted archives, oldest first.
func (ch *Chain) Mounts() []*Multifile {
	return ch.archives
}

// Has reports whether any mounted archive provides the named subfile.
func (ch *Chain) Has(name string) bool {
	_, ok := ch.byName[name]
	return ok
}

// Extract returns the named subfile from the newest archive that provides
// it.
func (ch *Chain) Extract(name string) ([]byte, error) {
	m, ok := ch.byName[name]
	if !ok {
		return nil, errors.Wrap(ErrNotFound, name)
	}
	return m.Extract(name)
}

// Names returns every subfile name available across the chain, in no
// particular order.
func (ch *Chain) Names() []string {
	names := make([]string, 0, len(ch.byName))
	for name := range ch.byName {
		names = append(names, name)
	}
	return names
}
