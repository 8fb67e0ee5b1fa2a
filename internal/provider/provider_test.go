package provider

import (
	"testing"
	"time"

	"github.com/tockloth/region-elevation-engine/internal/planner"
)

func descriptorFor(id string, res int) Descriptor {
	return Descriptor{
		ID:                id,
		ResolutionsServed: map[int]bool{res: true},
		LatBand:           planner.LatBand{MinLat: -60, MaxLat: 60},
		LonMin:            -180,
		LonMax:            180,
	}
}

func TestCandidatesForFiltersByResolutionAndLatBand(t *testing.T) {
	reg := NewRegistry([]Descriptor{descriptorFor("a", 30), descriptorFor("b", 90)})

	at30 := reg.CandidatesFor(10, 10, 30, nil)
	if len(at30) != 1 || at30[0].ID != "a" {
		t.Errorf("got %+v, want only provider a", at30)
	}

	outOfBand := reg.CandidatesFor(80, 10, 30, nil)
	if len(outOfBand) != 0 {
		t.Errorf("expected no candidates above lat band, got %+v", outOfBand)
	}
}

func TestCandidatesForHonorsPriorityOrder(t *testing.T) {
	reg := NewRegistry([]Descriptor{descriptorFor("a", 30), descriptorFor("b", 30)})

	ordered := reg.CandidatesFor(10, 10, 30, []string{"b", "a"})
	if len(ordered) != 2 || ordered[0].ID != "b" || ordered[1].ID != "a" {
		t.Errorf("priority order not honored: %+v", ordered)
	}
}

func TestMarkRateLimitedBacksOffExponentially(t *testing.T) {
	reg := NewRegistry([]Descriptor{descriptorFor("a", 30)})
	now := time.Unix(0, 0)

	reg.MarkRateLimited("a", now, 0)
	if !reg.IsRateLimited("a", now.Add(30*time.Second)) {
		t.Error("expected still rate-limited shortly after first 429")
	}
	firstCooldownEnd := now.Add(minCooldown)
	if reg.IsRateLimited("a", firstCooldownEnd.Add(time.Second)) {
		t.Error("expected cooldown to have expired")
	}

	reg.MarkRateLimited("a", now, 0)
	reg.MarkRateLimited("a", now, 0)
	// Third consecutive 429: backoff should be >= 4x the minimum.
	if !reg.IsRateLimited("a", now.Add(minCooldown*3)) {
		t.Error("expected longer cooldown after repeated 429s")
	}
}

func TestMarkRateLimitedHonorsRetryAfterFloor(t *testing.T) {
	reg := NewRegistry([]Descriptor{descriptorFor("a", 30)})
	now := time.Unix(0, 0)

	reg.MarkRateLimited("a", now, 45*time.Minute)
	if !reg.IsRateLimited("a", now.Add(40*time.Minute)) {
		t.Error("expected Retry-After hint to extend cooldown past the default backoff")
	}
}

func TestClearRateLimitRemovesCooldown(t *testing.T) {
	reg := NewRegistry([]Descriptor{descriptorFor("a", 30)})
	now := time.Unix(0, 0)

	reg.MarkRateLimited("a", now, 0)
	reg.ClearRateLimit("a")

	if reg.IsRateLimited("a", now) {
		t.Error("expected cooldown cleared after a successful response")
	}
}
