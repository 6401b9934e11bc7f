package domain

import (
	"testing"

	"sigenbridge/pkg/sigenergy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func plantRef() DeviceRef {
	return DeviceRef{Kind: sigenergy.KindPlant, Name: "plant", Host: "10.0.0.2", Port: 502, SlaveID: 247}
}

func inverterRef(name string, id uint8) DeviceRef {
	return DeviceRef{Kind: sigenergy.KindInverter, Name: name, Host: "10.0.0.2", Port: 502, SlaveID: id}
}

func TestTopologyAdmitsFleet(t *testing.T) {
	topo := NewTopology()
	require.NoError(t, topo.Add(plantRef()))
	require.NoError(t, topo.Add(inverterRef("inv1", 1)))
	require.NoError(t, topo.Add(DeviceRef{Kind: sigenergy.KindACCharger, Name: "ac1", Host: "10.0.0.2", Port: 502, SlaveID: 2}))
	require.NoError(t, topo.Add(DeviceRef{Kind: sigenergy.KindDCCharger, Name: "dc1", Parent: "inv1"}))

	assert.Equal(t, 4, topo.Len())

	// dc charger inherits the parent's modbus identity
	dc, ok := topo.Get("dc1")
	require.True(t, ok)
	assert.Equal(t, "10.0.0.2:502", dc.Endpoint())
	assert.Equal(t, uint8(1), dc.SlaveID)
}

func TestTopologySlaveIDBounds(t *testing.T) {
	topo := NewTopology()
	err := topo.Add(inverterRef("inv0", 0))
	assert.ErrorIs(t, err, ErrSlaveIDOutOfRange)

	err = topo.Add(inverterRef("inv247", 247))
	assert.ErrorIs(t, err, ErrSlaveIDOutOfRange)

	// 247 is valid for the plant unit
	assert.NoError(t, topo.Add(plantRef()))
}

func TestTopologyRejectsDuplicates(t *testing.T) {
	topo := NewTopology()
	require.NoError(t, topo.Add(inverterRef("inv1", 1)))

	err := topo.Add(inverterRef("inv1", 3))
	assert.ErrorIs(t, err, ErrDuplicateID)

	err = topo.Add(inverterRef("inv2", 1))
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestTopologyIDConflictAcrossKinds(t *testing.T) {
	topo := NewTopology()
	require.NoError(t, topo.Add(inverterRef("inv1", 1)))

	err := topo.Add(DeviceRef{Kind: sigenergy.KindACCharger, Name: "ac1", Host: "10.0.0.2", Port: 502, SlaveID: 1})
	assert.ErrorIs(t, err, ErrIDConflict)

	// same unit id on a different endpoint is fine
	assert.NoError(t, topo.Add(DeviceRef{Kind: sigenergy.KindACCharger, Name: "ac2", Host: "10.0.0.3", Port: 502, SlaveID: 1}))
}

func TestTopologyDanglingParent(t *testing.T) {
	topo := NewTopology()
	err := topo.Add(DeviceRef{Kind: sigenergy.KindDCCharger, Name: "dc1", Parent: "ghost"})
	assert.ErrorIs(t, err, ErrDanglingParent)

	// parenting on a non inverter is also rejected
	require.NoError(t, topo.Add(plantRef()))
	err = topo.Add(DeviceRef{Kind: sigenergy.KindDCCharger, Name: "dc1", Parent: "plant"})
	assert.ErrorIs(t, err, ErrDanglingParent)
}

func TestTopologyRemoveCascades(t *testing.T) {
	topo := NewTopology()
	require.NoError(t, topo.Add(inverterRef("inv1", 1)))
	require.NoError(t, topo.Add(inverterRef("inv2", 2)))
	require.NoError(t, topo.Add(DeviceRef{Kind: sigenergy.KindDCCharger, Name: "dc1", Parent: "inv1"}))

	removed := topo.Remove("inv1")
	assert.Equal(t, []string{"dc1", "inv1"}, removed)
	assert.Equal(t, 1, topo.Len())

	_, ok := topo.Get("dc1")
	assert.False(t, ok)

	assert.Nil(t, topo.Remove("inv1"))
}

func TestTopologyEndpoints(t *testing.T) {
	topo := NewTopology()
	require.NoError(t, topo.Add(plantRef()))
	require.NoError(t, topo.Add(inverterRef("inv1", 1)))
	require.NoError(t, topo.Add(DeviceRef{Kind: sigenergy.KindInverter, Name: "inv2", Host: "10.0.0.3", Port: 502, SlaveID: 1}))

	assert.Equal(t, []string{"10.0.0.2:502", "10.0.0.3:502"}, topo.Endpoints())
}
