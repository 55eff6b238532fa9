package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vesaa/netgraph/internal/models"
)

func TestResolveNeighborNameAndIPAgree(t *testing.T) {
	b, s := newTestBuilder(t)
	seedDevice(t, s, "b", "B", "10.0.0.2")

	res, err := b.ResolveNeighbor("B.example.com", "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "b", res.DeviceID)
	assert.Equal(t, "both", res.MatchedBy)
	assert.Equal(t, "high", res.Confidence)
}

func TestResolveNeighborNameOnly(t *testing.T) {
	b, s := newTestBuilder(t)
	seedDevice(t, s, "b", "B", "10.0.0.2")

	res, err := b.ResolveNeighbor("B.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "b", res.DeviceID)
	assert.Equal(t, "name", res.MatchedBy)
	assert.Equal(t, "high", res.Confidence)
}

func TestResolveNeighborNamePrefix(t *testing.T) {
	b, s := newTestBuilder(t)
	seedDevice(t, s, "core", "core-switch-01", "10.0.0.5")

	res, err := b.ResolveNeighbor("core-switch.example.com", "")
	require.NoError(t, err)
	assert.Equal(t, "core", res.DeviceID)
	assert.Equal(t, "name", res.MatchedBy)
}

func TestResolveNeighborIPOnlyIsMedium(t *testing.T) {
	b, s := newTestBuilder(t)
	seedDevice(t, s, "b", "B", "10.0.0.2")

	res, err := b.ResolveNeighbor("something-else", "10.0.0.2")
	require.NoError(t, err)
	assert.Equal(t, "b", res.DeviceID)
	assert.Equal(t, "ip", res.MatchedBy)
	assert.Equal(t, "medium", res.Confidence)
}

func TestResolveNeighborInterfaceIPFallback(t *testing.T) {
	b, s := newTestBuilder(t)
	seedDevice(t, s, "b", "B", "10.0.0.2")
	require.NoError(t, s.ReplaceIPAddresses("b", []models.IPAddressRecord{
		{DeviceID: "b", Interface: "Gi0/3", Address: "10.9.9.9"},
	}))

	res, err := b.ResolveNeighbor("nobody", "10.9.9.9")
	require.NoError(t, err)
	assert.Equal(t, "b", res.DeviceID)
	assert.Equal(t, "ip", res.MatchedBy)
}

func TestResolveNeighborNoMatch(t *testing.T) {
	b, s := newTestBuilder(t)
	seedDevice(t, s, "b", "B", "10.0.0.2")

	res, err := b.ResolveNeighbor("ghost.example.com", "203.0.113.9")
	require.NoError(t, err)
	assert.Empty(t, res.DeviceID)
	assert.Equal(t, "none", res.MatchedBy)
	assert.Equal(t, "low", res.Confidence)
}

func TestResolveNeighborNameWinsOverConflictingIP(t *testing.T) {
	b, s := newTestBuilder(t)
	seedDevice(t, s, "b", "B", "10.0.0.2")
	seedDevice(t, s, "c", "C", "10.0.0.3")

	// Name says B, IP says C: the name match wins, matched_by stays "name".
	res, err := b.ResolveNeighbor("B.example.com", "10.0.0.3")
	require.NoError(t, err)
	assert.Equal(t, "b", res.DeviceID)
	assert.Equal(t, "name", res.MatchedBy)
	assert.Equal(t, "high", res.Confidence)
}
