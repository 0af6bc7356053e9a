package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellForLatLng(t *testing.T) {
	t.Parallel()

	cell, err := CellForLatLng(14.5995, 120.9842, DefaultResolution)
	require.NoError(t, err)
	assert.Equal(t, DefaultResolution, cell.Resolution())
	assert.True(t, cell.Valid())

	// Same point, same cell.
	again, err := CellForLatLng(14.5995, 120.9842, DefaultResolution)
	require.NoError(t, err)
	assert.Equal(t, cell, again)

	// Antipodal point lands elsewhere.
	far, err := CellForLatLng(-14.5995, -59.0158, DefaultResolution)
	require.NoError(t, err)
	assert.NotEqual(t, cell, far)
}

func TestCellForLatLng_Invalid(t *testing.T) {
	t.Parallel()

	_, err := CellForLatLng(91, 0, DefaultResolution)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	_, err = CellForLatLng(0, 181, DefaultResolution)
	assert.ErrorIs(t, err, ErrInvalidCoordinates)

	_, err = CellForLatLng(0, 0, 0)
	assert.ErrorIs(t, err, ErrInvalidResolution)

	_, err = CellForLatLng(0, 0, MaxResolution+1)
	assert.ErrorIs(t, err, ErrInvalidResolution)
}

func TestCellHierarchy(t *testing.T) {
	t.Parallel()

	cell, err := CellForLatLng(14.5995, 120.9842, DefaultResolution)
	require.NoError(t, err)

	parent := cell.Parent(8)
	assert.Equal(t, 8, parent.Resolution())
	assert.True(t, parent.Contains(cell))
	assert.False(t, cell.Contains(parent))
	assert.True(t, cell.Contains(cell))

	// The parent at any resolution is a string prefix.
	coarse, err := CellForLatLng(14.5995, 120.9842, 5)
	require.NoError(t, err)
	assert.Equal(t, cell.Parent(5), coarse)
}

func TestCellCenter_RoundTrips(t *testing.T) {
	t.Parallel()

	cell, err := CellForLatLng(14.5995, 120.9842, DefaultResolution)
	require.NoError(t, err)

	lat, lng := cell.Center()
	back, err := CellForLatLng(lat, lng, DefaultResolution)
	require.NoError(t, err)
	assert.Equal(t, cell, back)

	// The center stays within the cell's radius of the original point.
	assert.Less(t, HaversineKm(14.5995, 120.9842, lat, lng), cell.RadiusKm())
}

func TestCellValid(t *testing.T) {
	t.Parallel()

	assert.True(t, CellID("0123").Valid())
	assert.False(t, CellID("").Valid())
	assert.False(t, CellID("0142").Valid())
	assert.False(t, CellID("012301230123012301").Valid())
}

func TestHaversineKm(t *testing.T) {
	t.Parallel()

	// Manila to Quezon City is roughly 11km.
	d := HaversineKm(14.5995, 120.9842, 14.6760, 121.0437)
	assert.InDelta(t, 10.7, d, 1.5)

	assert.Zero(t, HaversineKm(14.6, 121.0, 14.6, 121.0))
}
