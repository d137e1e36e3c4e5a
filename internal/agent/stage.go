package agent

import "strings"

// Stage is one of the three tool-catalog scopes.
type Stage string

const (
	StagePlanning     Stage = "planning"
	StageExecution    Stage = "execution"
	StageProofreading Stage = "proofreading"
)

// ResolveStage derives the current stage from job shape alone.
// Proofreading wins while it is enabled or still holds pending units;
// otherwise a planning-flavored phase marker means planning; everything
// else is execution.
func ResolveStage(j *Job) Stage {
	if j.Proofreading.Active() {
		return StageProofreading
	}
	phase := ""
	if j.Agent != nil {
		phase = j.Agent.Phase
	}
	if strings.Contains(phase, "planning") || strings.Contains(phase, "awaiting_categories") ||
		j.Status == StatusPlanning || j.Status == StatusAwaitingCategories || j.Status == StatusPreparing {
		return StagePlanning
	}
	return StageExecution
}
