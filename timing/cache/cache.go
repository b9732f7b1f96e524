// Package cache profiles data accesses against an Akita cache directory.
//
// The profile is tag-only: it never holds data and never changes pipeline
// timing. It answers how a given geometry would have behaved on the run's
// load and store stream.
package cache

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/ipsim/timing/config"
)

// WordBytes is the byte width of one memory cell. Word address a maps to
// byte address a*WordBytes.
const WordBytes = 4

// AccessResult contains the result of a profiled access.
type AccessResult struct {
	// Hit indicates whether the access was a cache hit.
	Hit bool
	// Evicted is true if a valid block was replaced.
	Evicted bool
	// EvictedAddr is the byte address of the evicted block (if Evicted is true).
	EvictedAddr uint64
}

// Statistics holds cache performance statistics.
type Statistics struct {
	Reads      uint64
	Writes     uint64
	Hits       uint64
	Misses     uint64
	Evictions  uint64
	Writebacks uint64
}

// HitRate returns the fraction of accesses that hit, as a percentage.
func (s Statistics) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Profile is a write-allocate, write-back data cache model using LRU
// replacement.
type Profile struct {
	config    config.CacheConfig
	directory *akitacache.DirectoryImpl
	stats     Statistics
}

// NewProfile creates a profile with the given geometry. The geometry is
// expected to have passed config.SimConfig.Validate.
func NewProfile(cfg config.CacheConfig) *Profile {
	return &Profile{
		config: cfg,
		directory: akitacache.NewDirectory(
			cfg.NumSets(),
			cfg.Associativity,
			cfg.BlockSize,
			akitacache.NewLRUVictimFinder(),
		),
	}
}

// Config returns the cache geometry.
func (p *Profile) Config() config.CacheConfig {
	return p.config
}

// Stats returns cache statistics.
func (p *Profile) Stats() Statistics {
	return p.stats
}

// Access records a read or write of the memory cell at word address addr.
func (p *Profile) Access(addr int64, write bool) AccessResult {
	if write {
		p.stats.Writes++
	} else {
		p.stats.Reads++
	}

	blockAddr := p.blockAddr(addr)

	block := p.directory.Lookup(0, blockAddr)
	if block != nil && block.IsValid {
		p.stats.Hits++
		p.directory.Visit(block)
		if write {
			block.IsDirty = true
		}
		return AccessResult{Hit: true}
	}

	p.stats.Misses++
	return p.allocate(blockAddr, write)
}

func (p *Profile) allocate(blockAddr uint64, write bool) AccessResult {
	result := AccessResult{}

	victim := p.directory.FindVictim(blockAddr)
	if victim == nil {
		return result
	}

	if victim.IsValid {
		p.stats.Evictions++
		result.Evicted = true
		result.EvictedAddr = victim.Tag
		if victim.IsDirty {
			p.stats.Writebacks++
		}
	}

	victim.Tag = blockAddr
	victim.IsValid = true
	victim.IsDirty = write
	p.directory.Visit(victim)

	return result
}

func (p *Profile) blockAddr(addr int64) uint64 {
	byteAddr := uint64(addr) * WordBytes
	size := uint64(p.config.BlockSize)
	return byteAddr / size * size
}

// Contains reports whether the block holding word address addr is resident.
func (p *Profile) Contains(addr int64) bool {
	block := p.directory.Lookup(0, p.blockAddr(addr))
	return block != nil && block.IsValid
}

// Flush counts a writeback for every dirty block and invalidates all blocks.
func (p *Profile) Flush() {
	for _, set := range p.directory.GetSets() {
		for _, block := range set.Blocks {
			if block.IsValid && block.IsDirty {
				p.stats.Writebacks++
			}
			block.IsValid = false
			block.IsDirty = false
		}
	}
}

// Reset invalidates all cache lines and clears statistics.
func (p *Profile) Reset() {
	p.directory.Reset()
	p.stats = Statistics{}
}
