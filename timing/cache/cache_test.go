package cache_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/ipsim/timing/cache"
	"github.com/sarchlab/ipsim/timing/config"
)

var _ = Describe("Profile", func() {
	var p *cache.Profile

	BeforeEach(func() {
		// 1KB, 2-way, 64B lines: 8 sets, 16 words per line
		p = cache.NewProfile(config.CacheConfig{
			Enabled:       true,
			Size:          1024,
			Associativity: 2,
			BlockSize:     64,
		})
	})

	Describe("Read operations", func() {
		It("should miss on cold cache", func() {
			result := p.Access(100, false)
			Expect(result.Hit).To(BeFalse())

			stats := p.Stats()
			Expect(stats.Reads).To(Equal(uint64(1)))
			Expect(stats.Misses).To(Equal(uint64(1)))
			Expect(stats.Hits).To(Equal(uint64(0)))
		})

		It("should hit on a resident line", func() {
			p.Access(100, false)
			Expect(p.Access(100, false).Hit).To(BeTrue())
			Expect(p.Stats().HitRate()).To(BeNumerically("~", 50.0))
		})

		It("should hit on other words of the same line", func() {
			p.Access(16, false)
			Expect(p.Access(31, false).Hit).To(BeTrue())
			Expect(p.Access(32, false).Hit).To(BeFalse())
		})
	})

	Describe("Write operations", func() {
		It("should allocate on a write miss", func() {
			Expect(p.Access(8, true).Hit).To(BeFalse())
			Expect(p.Contains(8)).To(BeTrue())
			Expect(p.Stats().Writes).To(Equal(uint64(1)))
		})
	})

	Describe("Replacement", func() {
		// Word addresses 0, 128 and 256 all map to set 0.
		It("should evict the least recently used way", func() {
			p.Access(0, true)
			p.Access(128, false)
			p.Access(0, false)

			result := p.Access(256, false)
			Expect(result.Evicted).To(BeTrue())
			Expect(result.EvictedAddr).To(Equal(uint64(128 * cache.WordBytes)))
			Expect(p.Contains(0)).To(BeTrue())
			Expect(p.Contains(128)).To(BeFalse())
		})

		It("should count a writeback for a dirty victim", func() {
			p.Access(0, true)
			p.Access(128, false)
			p.Access(256, false)

			stats := p.Stats()
			Expect(stats.Evictions).To(Equal(uint64(1)))
			Expect(stats.Writebacks).To(Equal(uint64(1)))
		})
	})

	Describe("Flush and Reset", func() {
		It("should write back dirty lines on flush", func() {
			p.Access(0, true)
			p.Access(16, false)
			p.Flush()

			Expect(p.Stats().Writebacks).To(Equal(uint64(1)))
			Expect(p.Contains(0)).To(BeFalse())
		})

		It("should clear state on reset", func() {
			p.Access(0, true)
			p.Reset()

			Expect(p.Stats()).To(Equal(cache.Statistics{}))
			Expect(p.Contains(0)).To(BeFalse())
		})
	})
})
