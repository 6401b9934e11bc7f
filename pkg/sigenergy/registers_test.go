package sigenergy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistersForOrderingIsStable(t *testing.T) {
	for _, kind := range []DeviceKind{KindPlant, KindInverter, KindACCharger, KindDCCharger} {
		specs := RegistersFor(kind)
		require.NotEmpty(t, specs, "catalog for %s", kind)
		for i := 1; i < len(specs); i++ {
			prev, cur := specs[i-1], specs[i]
			if prev.Table == cur.Table {
				assert.Less(t, prev.Address, cur.Address,
					"%s: %s must come before %s", kind, prev.Name, cur.Name)
			} else {
				assert.Less(t, prev.Table, cur.Table)
			}
		}
	}
}

func TestRegistersForUnknownKindIsEmpty(t *testing.T) {
	assert.Empty(t, RegistersFor(DeviceKind(99)))
}

func TestLookupRegister(t *testing.T) {
	spec, ok := LookupRegister(KindPlant, "plant_ess_soc")
	require.True(t, ok)
	assert.Equal(t, uint16(30014), spec.Address)
	assert.Equal(t, "%", spec.Unit)

	_, ok = LookupRegister(KindPlant, "no_such_register")
	assert.False(t, ok)
}

func TestDCChargerCatalogReadsThroughInverterTables(t *testing.T) {
	for _, spec := range RegistersFor(KindDCCharger) {
		if spec.Table == InputTable {
			assert.GreaterOrEqual(t, spec.Address, uint16(31500), spec.Name)
			assert.Less(t, spec.Address, uint16(32000), spec.Name)
		}
	}
}

func TestPlanReadsBatchesContiguousRuns(t *testing.T) {
	specs := []RegisterSpec{
		reg("a", 100, 2, U32, 1, "", InputTable, ReadOnly),
		reg("b", 102, 1, U16, 1, "", InputTable, ReadOnly),
		reg("c", 110, 1, U16, 1, "", InputTable, ReadOnly),
		reg("d", 110, 1, U16, 1, "", HoldingTable, ReadWrite),
		reg("e", 111, 1, U16, 1, "", HoldingTable, WriteOnly),
	}
	plan := PlanReads(specs)
	require.Len(t, plan, 3)

	assert.Equal(t, uint16(100), plan[0].Address)
	assert.Equal(t, uint16(3), plan[0].Words)
	assert.Len(t, plan[0].Specs, 2)

	assert.Equal(t, uint16(110), plan[1].Address)
	assert.Equal(t, InputTable, plan[1].Table)

	// write-only e is not readable and must not extend the holding batch
	assert.Equal(t, HoldingTable, plan[2].Table)
	assert.Equal(t, uint16(1), plan[2].Words)
}

func TestPlanReadsRespectsWordLimit(t *testing.T) {
	var specs []RegisterSpec
	for addr := uint16(0); addr < 200; addr += 2 {
		specs = append(specs, reg("r", addr, 2, U32, 1, "", InputTable, ReadOnly))
	}
	for _, batch := range PlanReads(specs) {
		assert.LessOrEqual(t, batch.Words, uint16(maxBatchWords))
	}
}

func TestPlanReadsCoversWholeCatalog(t *testing.T) {
	specs := RegistersFor(KindPlant)
	plan := PlanReads(specs)
	var readable int
	for _, spec := range specs {
		if spec.Readable() {
			readable++
		}
	}
	var planned int
	for _, batch := range plan {
		planned += len(batch.Specs)
		for _, spec := range batch.Specs {
			assert.Equal(t, batch.Table, spec.Table)
			assert.GreaterOrEqual(t, spec.Address, batch.Address)
			assert.LessOrEqual(t, spec.Address+spec.Words, batch.Address+batch.Words)
		}
	}
	assert.Equal(t, readable, planned)
}

func TestDecodeBatch(t *testing.T) {
	batch := ReadBatch{
		Table:   InputTable,
		Address: 100,
		Words:   3,
		Specs: []RegisterSpec{
			reg("power", 100, 2, S32, 1000, "kW", InputTable, ReadOnly),
			reg("soc", 102, 1, U16, 10, "%", InputTable, ReadOnly),
		},
	}
	values, err := DecodeBatch(batch, []uint16{0x0000, 0x1388, 755})
	require.NoError(t, err)
	assert.InDelta(t, 5.0, values["power"].Float, 1e-9)
	assert.InDelta(t, 75.5, values["soc"].Float, 1e-9)

	_, err = DecodeBatch(batch, []uint16{1, 2})
	assert.ErrorIs(t, err, ErrMalformed)
}
