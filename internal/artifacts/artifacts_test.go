package artifacts_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/makerpnp/planner/internal/artifacts"
	"github.com/makerpnp/planner/internal/loadout"
	"github.com/makerpnp/planner/internal/objectpath"
	"github.com/makerpnp/planner/internal/planning"
	"github.com/makerpnp/planner/internal/refresh"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProject(t *testing.T, dir string) *planning.Project {
	t.Helper()

	p := planning.New("job1")
	p.AddPCB(planning.PCBKindPanel, "panel_a")

	unit := objectpath.MustParse("panel=1::unit=1")
	dv := planning.DesignVariant{DesignName: "design_a", VariantName: "variant_a"}
	p.AssignVariantToUnit(unit, dv)

	refresh.Refresh(p, refresh.ByDesignVariant{
		dv: {
			{RefDes: "R1", Part: planning.Part{Manufacturer: "RES_MFR", MPN: "RES1"}, Place: true, PCBSide: planning.PCBSideTop, X: "1.0", Y: "2.0", Rotation: "0"},
			{RefDes: "R3", Part: planning.Part{Manufacturer: "RES_MFR", MPN: "RES1"}, Place: true, PCBSide: planning.PCBSideTop, X: "3.0", Y: "4.0", Rotation: "0"},
			{RefDes: "J1", Part: planning.Part{Manufacturer: "CONN_MFR", MPN: "CONN1"}, Place: true, PCBSide: planning.PCBSideBottom, X: "5.0", Y: "6.0", Rotation: "90"},
		},
	})

	phase := planning.Phase{Reference: "top_1", Process: "pnp", LoadOutSource: filepath.Join(dir, "top_1_load_out.csv"), PCBSide: planning.PCBSideTop}
	p.CreatePhase(phase)

	require.NoError(t, loadout.EnsureExists(phase.LoadOutSource))
	p.AssignPlacementsToPhase(phase, func(string) bool { return true })
	require.NoError(t, loadout.AddParts(phase.LoadOutSource, []planning.Part{{Manufacturer: "RES_MFR", MPN: "RES1"}}))
	pnpProcess, ok := p.Process("pnp")
	require.True(t, ok)
	_, err := loadout.AssignFeeder(phase.LoadOutSource, pnpProcess, "FEEDER_1", "RES_MFR", "RES1")
	require.NoError(t, err)

	return p
}

func TestGenerateArtifactsWritesPlacementsCSVAndReport(t *testing.T) {
	dir := t.TempDir()
	p := newTestProject(t, dir)

	require.NoError(t, artifacts.GenerateArtifacts(p, dir, "job1"))

	csvBytes, err := os.ReadFile(filepath.Join(dir, "top_1_placements.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(csvBytes), "ObjectPath,FeederReference,Manufacturer,Mpn,X,Y,Rotation")
	assert.Contains(t, string(csvBytes), "FEEDER_1")
	assert.NotContains(t, string(csvBytes), "ref_des=J1") // bottom-side placement, not assigned to top_1

	reportBytes, err := os.ReadFile(filepath.Join(dir, "job1_report.json"))
	require.NoError(t, err)
	assert.Equal(t, byte('\n'), reportBytes[len(reportBytes)-1])

	var report map[string]any
	require.NoError(t, json.Unmarshal(reportBytes, &report))
	assert.Equal(t, "job1", report["name"])

	issues, ok := report["issues"].([]any)
	require.True(t, ok)

	var sawUnassignedPlacement, sawSeverityOrderOK bool
	prevSeverity := ""
	for _, raw := range issues {
		issue := raw.(map[string]any)
		kind := issue["kind"].(string)
		if kind == "unassigned_placement" {
			sawUnassignedPlacement = true
			assert.Contains(t, issue["object_path"].(string), "ref_des=J1")
		}
		severity := issue["severity"].(string)
		if prevSeverity == "warning" {
			assert.NotEqual(t, "severe", severity, "severe issues must sort before warning issues")
		} else {
			sawSeverityOrderOK = true
		}
		prevSeverity = severity
	}
	assert.True(t, sawUnassignedPlacement)
	assert.True(t, sawSeverityOrderOK)
}

func TestGenerateArtifactsIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	p := newTestProject(t, dir)

	require.NoError(t, artifacts.GenerateArtifacts(p, dir, "job1"))
	first, err := os.ReadFile(filepath.Join(dir, "job1_report.json"))
	require.NoError(t, err)

	require.NoError(t, artifacts.GenerateArtifacts(p, dir, "job1"))
	second, err := os.ReadFile(filepath.Join(dir, "job1_report.json"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestGenerateArtifactsFlagsNoPcbsAndNoPhases(t *testing.T) {
	dir := t.TempDir()
	p := planning.New("empty")

	require.NoError(t, artifacts.GenerateArtifacts(p, dir, "empty"))

	reportBytes, err := os.ReadFile(filepath.Join(dir, "empty_report.json"))
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal(reportBytes, &report))
	issues := report["issues"].([]any)
	require.Len(t, issues, 2)

	kinds := map[string]bool{}
	for _, raw := range issues {
		kinds[raw.(map[string]any)["kind"].(string)] = true
	}
	assert.True(t, kinds["no_pcbs_assigned"])
	assert.True(t, kinds["no_phases_created"])
}
