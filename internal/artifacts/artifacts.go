package artifacts

import (
	"github.com/makerpnp/planner/internal/loadout"
	"github.com/makerpnp/planner/internal/planning"
)

// GenerateArtifacts writes every phase's placements CSV and the project
// report JSON into dir (spec §4.9, grounded on project.rs's
// generate_artifacts). Phase CSVs may be written even if report generation
// subsequently fails; generate-artifacts is idempotent and safe to re-run.
func GenerateArtifacts(project *planning.Project, dir, name string) error {
	issues := newIssueSet()

	phaseLoadOuts := map[planning.Reference][]planning.LoadOutItem{}
	phasePlacements := map[planning.Reference][]phasePlacement{}

	for _, ref := range project.PhaseOrderings {
		phase := project.Phases[ref]

		items, err := loadout.Load(phase.LoadOutSource)
		if err != nil {
			return err
		}

		placements, partFeederIssues, err := GeneratePhasePlacements(project, phase, items, dir)
		if err != nil {
			return err
		}
		issues.addAll(partFeederIssues)

		phaseLoadOuts[ref] = items
		phasePlacements[ref] = placements
	}

	return GenerateReport(project, dir, name, phaseLoadOuts, phasePlacements, issues)
}
