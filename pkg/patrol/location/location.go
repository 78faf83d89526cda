// Package location defines coordinate types, the patrol site catalog, and
// the contract for an external location feed.
//
// The feed itself (GPS hardware, platform location services) is outside this
// library: callers supply any implementation of Feed. The catalog is
// read-only reference data describing which checkpoints belong to a site.
package location

import (
	"context"
	"errors"
	"time"

	"github.com/guardline/patrolkit/pkg/patrol/event"
)

// Sentinel errors for location acquisition.
var (
	// ErrPermissionDenied indicates the device refused access to location data.
	ErrPermissionDenied = errors.New("location permission denied")

	// ErrTimeout indicates a location fix could not be acquired in time.
	ErrTimeout = errors.New("location acquisition timed out")

	// ErrSiteNotFound indicates the catalog has no site with the given ID.
	ErrSiteNotFound = errors.New("site not found")
)

// Coordinate is a WGS84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Sample is a timestamped coordinate produced by a Feed.
type Sample struct {
	Coordinate
	Timestamp time.Time `json:"timestamp"`
}

// Checkpoint is a fixed physical point a guard must visit during a patrol.
// Checkpoints are immutable once loaded for a patrol session.
type Checkpoint struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Coordinate `json:"coordinate"`
}

// Site is a patrol location with its checkpoint set.
type Site struct {
	ID          int          `json:"id"`
	Name        string       `json:"name"`
	Checkpoints []Checkpoint `json:"checkpoints"`
}

// Feed produces device location samples.
// Implementations must fail Current with ErrPermissionDenied when location
// access is refused and ErrTimeout when no fix arrives in time; both may be
// wrapped.
type Feed interface {
	// StartTracking begins continuous location updates.
	StartTracking(ctx context.Context) error

	// StopTracking stops continuous updates. Idempotent.
	StopTracking()

	// Current returns the device's current location, blocking until a fix
	// is available, the feed's internal timeout elapses, or ctx is done.
	Current(ctx context.Context) (Sample, error)

	// Subscribe registers fn for location-changed notifications.
	// Samples are delivered in arrival order.
	Subscribe(fn func(Sample)) event.Subscription
}

// Catalog resolves site reference data. Implementations are read-only from
// the library's perspective.
type Catalog interface {
	// Site returns the site with the given ID, or ErrSiteNotFound.
	Site(ctx context.Context, id int) (*Site, error)
}

// StaticCatalog is an in-memory Catalog backed by a fixed site list.
// Useful for tests, examples, and deployments with a bundled site file.
type StaticCatalog struct {
	sites map[int]Site
}

// NewStaticCatalog creates a catalog from the given sites.
// Sites are copied; later mutation of the arguments has no effect.
func NewStaticCatalog(sites ...Site) *StaticCatalog {
	c := &StaticCatalog{sites: make(map[int]Site, len(sites))}
	for _, s := range sites {
		cps := make([]Checkpoint, len(s.Checkpoints))
		copy(cps, s.Checkpoints)
		s.Checkpoints = cps
		c.sites[s.ID] = s
	}
	return c
}

// Site implements Catalog.
func (c *StaticCatalog) Site(_ context.Context, id int) (*Site, error) {
	s, ok := c.sites[id]
	if !ok {
		return nil, ErrSiteNotFound
	}
	// Return a copy so callers cannot mutate catalog data.
	out := s
	out.Checkpoints = make([]Checkpoint, len(s.Checkpoints))
	copy(out.Checkpoints, s.Checkpoints)
	return &out, nil
}
