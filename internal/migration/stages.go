package migration

import "fmt"

const invalidTransitionTemplateConstant = "invalid stage transition %s -> %s"

// Stage names a state of a synchronization run.
type Stage string

// Run stages in the order they are visited.
const (
	StageStart               Stage = "start"
	StageToolChecked         Stage = "tool-checked"
	StageSessionsEstablished Stage = "sessions-established"
	StageExported            Stage = "exported"
	StageSanitized           Stage = "sanitized"
	StageImported            Stage = "imported"
	StageLoggedOut           Stage = "logged-out"
	StageDone                Stage = "done"
	StageFailed              Stage = "failed"
)

var stageSuccessors = map[Stage]Stage{
	StageStart:               StageToolChecked,
	StageToolChecked:         StageSessionsEstablished,
	StageSessionsEstablished: StageExported,
	StageExported:            StageSanitized,
	StageSanitized:           StageImported,
	StageImported:            StageLoggedOut,
	StageLoggedOut:           StageDone,
}

type stageMachine struct {
	current Stage
	visited []Stage
}

func newStageMachine() *stageMachine {
	return &stageMachine{current: StageStart, visited: []Stage{StageStart}}
}

func (machine *stageMachine) advance(next Stage) error {
	if successor, allowed := stageSuccessors[machine.current]; !allowed || successor != next {
		return fmt.Errorf(invalidTransitionTemplateConstant, machine.current, next)
	}
	machine.current = next
	machine.visited = append(machine.visited, next)
	return nil
}

// fail moves the machine into the absorbing failed state.
func (machine *stageMachine) fail() {
	if machine.current == StageFailed {
		return
	}
	machine.current = StageFailed
	machine.visited = append(machine.visited, StageFailed)
}

func (machine *stageMachine) visitedStages() []Stage {
	return append([]Stage{}, machine.visited...)
}
