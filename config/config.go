// Package config holds the tunables used throughout this subsystem as the
// fields of BlockInputConfig, structured as a BeaconConfig-style singleton-with-override,
// but scoped to the block-input subsystem instead of the whole chain config.
package config

import "time"

// BlockInputConfig collects every tunable the block-input subsystem reads.
type BlockInputConfig struct {
	// BlobAvailabilityTimeout bounds how long the availability gate waits
	// for a single BlockInput to report hasAllData. 12s covers the
	// worst case of a secondary by-root pull starting 500ms after first
	// sighting.
	BlobAvailabilityTimeout time.Duration

	// UnavailablePullDelay is the delay after first sighting before a
	// secondary by-root pull of an incomplete BlockInput. No code in this
	// module reads it: the sync driver schedules a pull on its next cycle
	// after the entry is registered.
	UnavailablePullDelay time.Duration

	// MaxPendingBlocks bounds the driver's pendingBlocks map; entries
	// beyond this are evicted LRU with a metrics counter.
	MaxPendingBlocks int

	// MaxKnownBadBlocks bounds the driver's knownBadBlocks set the same way.
	MaxKnownBadBlocks int

	// MaxConcurrentRequestsPerPeer bounds in-flight requests a single peer
	// may have outstanding before the balancer stops offering it.
	MaxConcurrentRequestsPerPeer int

	// EngineBlobCacheSize bounds the RootSync engine-local blob cache
	// ~512 entries covers one epoch at ~16 blobs/block.
	EngineBlobCacheSize int

	// MaxDownloadAttemptsPreFulu is the constant retry budget for pre-Fulu
	// by-root downloads.
	MaxDownloadAttemptsPreFulu int

	// MaxDownloadAttemptsPostFuluCap is the hard cap applied to the
	// computed post-Fulu attempt budget min(20, 5*sampleGroups/samplesPerSlot).
	MaxDownloadAttemptsPostFuluCap int

	// SampleGroups and SamplesPerSlot feed the post-Fulu download-attempts
	// formula.
	SampleGroups int
	SamplesPerSlot int

	// SecondsPerSlot and DataCutoffSlack describe the dynamic gossip
	// data-cutoff (genesis + slot*secondsPerSlot + slack, clamped to zero).
	// No code in this module computes that cutoff or reads DataCutoffSlack;
	// SecondsPerSlot is read only by the sync driver's anti-unbundling guard.
	SecondsPerSlot time.Duration
	DataCutoffSlack time.Duration

	// DARetentionEpochs is the window (in epochs) within which a block's
	// sidecars must remain available; older slots set daOutOfRange.
	DARetentionEpochs uint64

	// EventChannelBufferSize sizes the channel the sync driver subscribes to
	// the emitter with. The Feed doc comment asks for "ample buffer space to
	// avoid blocking other subscribers"; gossip/networking callers emit one
	// event per sighting, so this only needs to absorb a short burst between
	// driver dispatch-loop iterations.
	EventChannelBufferSize int
}

// DefaultConfig returns the values used in production.
func DefaultConfig() *BlockInputConfig {
	return &BlockInputConfig{
		BlobAvailabilityTimeout: 12 * time.Second,
		UnavailablePullDelay: 500 * time.Millisecond,
		MaxPendingBlocks: 100,
		MaxKnownBadBlocks: 100,
		MaxConcurrentRequestsPerPeer: 2,
		EngineBlobCacheSize: 512,
		MaxDownloadAttemptsPreFulu: 5,
		MaxDownloadAttemptsPostFuluCap: 20,
		SampleGroups: 64,
		SamplesPerSlot: 16,
		SecondsPerSlot: 12 * time.Second,
		DataCutoffSlack: 3 * time.Second,
		DARetentionEpochs: 4096,
		EventChannelBufferSize: 256,
	}
}

// MaxDownloadAttempts returns the attempt budget for the given fork, per the
// formula in the design: a constant pre-Fulu, and min(cap, 5*sampleGroups/samplesPerSlot)
// post-Fulu, reflecting that DAS requires many more small fetches per block.
func (c *BlockInputConfig) MaxDownloadAttempts(postFulu bool) int {
	if !postFulu {
		return c.MaxDownloadAttemptsPreFulu
	}
	if c.SamplesPerSlot == 0 {
		return c.MaxDownloadAttemptsPostFuluCap
	}
	computed := 5 * c.SampleGroups / c.SamplesPerSlot
	if computed > c.MaxDownloadAttemptsPostFuluCap {
		return c.MaxDownloadAttemptsPostFuluCap
	}
	if computed < 1 {
		return 1
	}
	return computed
}
