package proc

import (
	lru "github.com/hashicorp/golang-lru"
)

const instructionCacheSize = 8

// imageKey identifies one on-disk version of a program image loaded at a
// given base address.
type imageKey struct {
	path    string
	size    int64
	modTime int64
	base    uint64
}

// tableCache keeps the most recently decoded instruction tables so that
// reloading an unchanged program does not disassemble it again.
type tableCache struct {
	c *lru.Cache
}

func newTableCache(size int) *tableCache {
	c, err := lru.New(size)
	if err != nil {
		panic(err)
	}
	return &tableCache{c: c}
}

func (tc *tableCache) get(key imageKey) (*InstructionTable, bool) {
	v, ok := tc.c.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*InstructionTable), true
}

func (tc *tableCache) add(key imageKey, t *InstructionTable) {
	tc.c.Add(key, t)
}

func (tc *tableCache) len() int {
	return tc.c.Len()
}

var instructionCache = newTableCache(instructionCacheSize)
