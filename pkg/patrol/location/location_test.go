package location_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guardline/patrolkit/pkg/patrol/location"
)

func TestStaticCatalog_Site(t *testing.T) {
	catalog := location.NewStaticCatalog(location.Site{
		ID:   7,
		Name: "Warehouse",
		Checkpoints: []location.Checkpoint{
			{ID: 1, Name: "Gate", Coordinate: location.Coordinate{Latitude: 0, Longitude: 0}},
			{ID: 2, Name: "Dock", Coordinate: location.Coordinate{Latitude: 0, Longitude: 0.001}},
		},
	})

	site, err := catalog.Site(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, "Warehouse", site.Name)
	assert.Len(t, site.Checkpoints, 2)
}

func TestStaticCatalog_SiteNotFound(t *testing.T) {
	catalog := location.NewStaticCatalog()

	_, err := catalog.Site(context.Background(), 99)
	assert.ErrorIs(t, err, location.ErrSiteNotFound)
}

func TestStaticCatalog_ReturnsCopies(t *testing.T) {
	catalog := location.NewStaticCatalog(location.Site{
		ID:          1,
		Checkpoints: []location.Checkpoint{{ID: 1, Name: "Gate"}},
	})

	first, err := catalog.Site(context.Background(), 1)
	require.NoError(t, err)
	first.Checkpoints[0].Name = "mutated"

	second, err := catalog.Site(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Gate", second.Checkpoints[0].Name)
}
