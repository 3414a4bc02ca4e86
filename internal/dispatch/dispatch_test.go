package dispatch_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/makerpnp/planner/internal/dispatch"
	"github.com/makerpnp/planner/internal/eda"
	"github.com/makerpnp/planner/internal/history"
	"github.com/makerpnp/planner/internal/loadout"
	"github.com/makerpnp/planner/internal/objectpath"
	"github.com/makerpnp/planner/internal/partmapper"
	"github.com/makerpnp/planner/internal/planning"
	"github.com/makerpnp/planner/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const placementsCSV = "RefDes,Manufacturer,Mpn,Place,PcbSide,X,Y,Rotation\n" +
	"R1,RES_MFR,RES1,true,Top,1.0,2.0,0\n" +
	"R2,RES_MFR,RES1,true,Top,3.0,4.0,0\n"

const mappingsCSV = "Manufacturer,Mpn,TargetManufacturer,TargetMpn\n" +
	"RES_MFR,RES1,RES_MFR,RES1\n"

func newDispatcher(t *testing.T) (*dispatch.Dispatcher, string) {
	dir := t.TempDir()
	return dispatch.New(dir, zap.NewNop()), dir
}

func writePlacements(t *testing.T, dir, design, variant, csv string) {
	path := filepath.Join(dir, eda.PlacementsFileName(design, variant))
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))
}

func writeMappings(t *testing.T, dir, design, variant, csv string) {
	path := filepath.Join(dir, partmapper.MappingsFileName(design, variant))
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))
}

func TestCreateProjectWritesSeededProject(t *testing.T) {
	d, dir := newDispatcher(t)

	require.NoError(t, d.CreateProject("job1"))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)
	assert.Equal(t, "job1", loaded.Name)
	assert.Len(t, loaded.Processes, 2)
}

func TestAddPcbAppendsToProject(t *testing.T) {
	d, dir := newDispatcher(t)
	require.NoError(t, d.CreateProject("job1"))

	require.NoError(t, d.AddPcb("job1", planning.PCBKindPanel, "panel_a"))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)
	assert.Equal(t, []planning.PCB{{Kind: planning.PCBKindPanel, Name: "panel_a"}}, loaded.PCBs)
}

func TestAssignVariantToUnitIngestsAndResolvesPlacements(t *testing.T) {
	d, dir := newDispatcher(t)
	require.NoError(t, d.CreateProject("job1"))
	writePlacements(t, dir, "design_a", "variant_a", placementsCSV)
	writeMappings(t, dir, "design_a", "variant_a", mappingsCSV)

	unit := objectpath.MustParse("panel=1::unit=1")
	require.NoError(t, d.AssignVariantToUnit("job1", "design_a", "variant_a", unit))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)
	assert.Len(t, loaded.Placements, 2)
	for _, state := range loaded.Placements {
		assert.Equal(t, planning.Part{Manufacturer: "RES_MFR", MPN: "RES1"}, state.Placement.Part)
		assert.Equal(t, planning.StatusKnown, state.Status)
	}
	_, ok := loaded.PartStates[planning.Part{Manufacturer: "RES_MFR", MPN: "RES1"}]
	assert.True(t, ok)
}

func TestAssignVariantToUnitFailsOnMissingPlacementsFile(t *testing.T) {
	d, _ := newDispatcher(t)
	require.NoError(t, d.CreateProject("job1"))

	unit := objectpath.MustParse("panel=1::unit=1")
	err := d.AssignVariantToUnit("job1", "design_a", "variant_a", unit)
	assert.Error(t, err)
}

func buildAssignedProject(t *testing.T, d *dispatch.Dispatcher, dir string) {
	require.NoError(t, d.CreateProject("job1"))
	writePlacements(t, dir, "design_a", "variant_a", placementsCSV)
	writeMappings(t, dir, "design_a", "variant_a", mappingsCSV)
	unit := objectpath.MustParse("panel=1::unit=1")
	require.NoError(t, d.AssignVariantToUnit("job1", "design_a", "variant_a", unit))
}

func TestCreatePhaseEnsuresLoadOutAndAppendsOrdering(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)

	require.NoError(t, d.CreatePhase("job1", "pnp", "top_1", "top_1_load_out.csv", planning.PCBSideTop))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)
	assert.Equal(t, []planning.Reference{"top_1"}, loaded.PhaseOrderings)
	phase := loaded.Phases["top_1"]
	require.NotNil(t, phase)
	assert.FileExists(t, phase.LoadOutSource)
}

func TestCreatePhaseRejectsUnknownProcess(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)

	err := d.CreatePhase("job1", "no_such_process", "top_1", "top_1_load_out.csv", planning.PCBSideTop)
	assert.Error(t, err)
}

func TestAssignPlacementsToPhaseSeedsLoadOutAndApplicableProcesses(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)
	require.NoError(t, d.CreatePhase("job1", "pnp", "top_1", "top_1_load_out.csv", planning.PCBSideTop))

	require.NoError(t, d.AssignPlacementsToPhase("job1", "top_1", ".*"))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)

	for _, state := range loaded.Placements {
		require.NotNil(t, state.Phase)
		assert.Equal(t, planning.Reference("top_1"), *state.Phase)
	}

	part := planning.Part{Manufacturer: "RES_MFR", MPN: "RES1"}
	partState, ok := loaded.PartStates[part]
	require.True(t, ok)
	assert.True(t, partState.HasProcess("pnp"))

	items, err := loadout.Load(loaded.Phases["top_1"].LoadOutSource)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "RES_MFR", items[0].Manufacturer)
}

func TestAssignFeederToLoadOutItemDoesNotPersistProject(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)
	require.NoError(t, d.CreatePhase("job1", "pnp", "top_1", "top_1_load_out.csv", planning.PCBSideTop))
	require.NoError(t, d.AssignPlacementsToPhase("job1", "top_1", ".*"))

	before, err := store.Load(dir, "job1")
	require.NoError(t, err)

	require.NoError(t, d.AssignFeederToLoadOutItem("job1", "top_1", "FEEDER_1", "RES_MFR", "RES1"))

	after, err := store.Load(dir, "job1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	items, err := loadout.Load(after.Phases["top_1"].LoadOutSource)
	require.NoError(t, err)
	assert.Equal(t, "FEEDER_1", items[0].FeederReference)
}

func TestGenerateArtifactsDoesNotPersistProject(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)
	require.NoError(t, d.CreatePhase("job1", "pnp", "top_1", "top_1_load_out.csv", planning.PCBSideTop))
	require.NoError(t, d.AssignPlacementsToPhase("job1", "top_1", ".*"))

	before, err := store.Load(dir, "job1")
	require.NoError(t, err)

	require.NoError(t, d.GenerateArtifacts("job1"))

	after, err := store.Load(dir, "job1")
	require.NoError(t, err)
	assert.Equal(t, before, after)

	assert.FileExists(t, filepath.Join(dir, "top_1_placements.csv"))
	assert.FileExists(t, filepath.Join(dir, "job1_report.json"))
}

func TestRecordPlacementsOperationSetsPlacedAndAppendsHistory(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)
	require.NoError(t, d.CreatePhase("job1", "pnp", "top_1", "top_1_load_out.csv", planning.PCBSideTop))
	require.NoError(t, d.AssignPlacementsToPhase("job1", "top_1", ".*"))

	require.NoError(t, d.RecordPlacementsOperation("job1", []string{"panel=1::unit=1::ref_des=R1"}, history.PlacementOperationPlaced))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)
	assert.True(t, loaded.Placements["panel=1::unit=1::ref_des=R1"].Placed)
	assert.False(t, loaded.Placements["panel=1::unit=1::ref_des=R2"].Placed)

	entries, err := history.ReadOrDefault(filepath.Join(dir, "top_1_log.json"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.KindPlacementOperation, entries[0].Kind)
}

func TestRecordPlacementsOperationNoopWhenNothingMatches(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)
	require.NoError(t, d.CreatePhase("job1", "pnp", "top_1", "top_1_load_out.csv", planning.PCBSideTop))
	require.NoError(t, d.AssignPlacementsToPhase("job1", "top_1", ".*"))

	before, err := os.Stat(store.ProjectFilePath(dir, "job1"))
	require.NoError(t, err)

	require.NoError(t, d.RecordPlacementsOperation("job1", []string{"does-not-exist"}, history.PlacementOperationPlaced))

	after, err := os.Stat(store.ProjectFilePath(dir, "job1"))
	require.NoError(t, err)
	assert.Equal(t, before.ModTime(), after.ModTime())
}

func TestRecordPhaseOperationSetsCompleteWithManualOverride(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)
	require.NoError(t, d.CreatePhase("job1", "pnp", "top_1", "top_1_load_out.csv", planning.PCBSideTop))
	require.NoError(t, d.AssignPlacementsToPhase("job1", "top_1", ".*"))

	require.NoError(t, d.RecordPhaseOperation("job1", "top_1", planning.OpLoadPcbs, dispatch.ProcessOperationSetCompleted))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)
	state := loaded.PhaseStates["top_1"].ByOperation[planning.OpLoadPcbs]
	assert.Equal(t, planning.OperationComplete, state.Status)
	assert.True(t, state.ManualOverride)

	entries, err := history.ReadOrDefault(filepath.Join(dir, "top_1_log.json"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, history.KindLoadPcbs, entries[0].Kind)
}

func TestResetOperationsClearsPlacedAndManualOverride(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)
	require.NoError(t, d.CreatePhase("job1", "pnp", "top_1", "top_1_load_out.csv", planning.PCBSideTop))
	require.NoError(t, d.AssignPlacementsToPhase("job1", "top_1", ".*"))
	require.NoError(t, d.RecordPlacementsOperation("job1", []string{"panel=1::unit=1::ref_des=R1"}, history.PlacementOperationPlaced))
	require.NoError(t, d.RecordPhaseOperation("job1", "top_1", planning.OpLoadPcbs, dispatch.ProcessOperationSetCompleted))

	require.NoError(t, d.ResetOperations("job1"))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)
	for _, state := range loaded.Placements {
		assert.False(t, state.Placed)
	}
	state := loaded.PhaseStates["top_1"].ByOperation[planning.OpLoadPcbs]
	assert.False(t, state.ManualOverride)
}

func TestAssignProcessToPartsAddsProcessToMatchingParts(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)

	require.NoError(t, d.AssignProcessToParts("job1", "manual", "RES_.*", "RES1"))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)
	part := planning.Part{Manufacturer: "RES_MFR", MPN: "RES1"}
	assert.True(t, loaded.PartStates[part].HasProcess("manual"))
}

func TestSetPlacementOrderingReplacesOrdering(t *testing.T) {
	d, dir := newDispatcher(t)
	buildAssignedProject(t, d, dir)
	require.NoError(t, d.CreatePhase("job1", "pnp", "top_1", "top_1_load_out.csv", planning.PCBSideTop))

	orderings := []planning.PlacementSorting{{Mode: planning.SortModeFeederReference, Order: planning.SortAsc}}
	require.NoError(t, d.SetPlacementOrdering("job1", "top_1", orderings))

	loaded, err := store.Load(dir, "job1")
	require.NoError(t, err)
	assert.Equal(t, orderings, loaded.Phases["top_1"].PlacementOrderings)
}
