// Package planner is the deterministic stand-in that exercises the Task
// Orchestrator end to end. Real language-model planning is an external
// collaborator and is not implemented here.
package planner

import (
	"context"
	"strings"

	"github.com/desktopai/runcontrol/internal/domain"
)

// Step is one planned unit, independent of the orchestrator package so
// this planner carries no dependency on it.
type Step struct {
	Action         domain.Action
	Preconditions  []string
	Postconditions []string
}

// Planner produces a step list for an objective.
type Planner interface {
	BuildPlan(ctx context.Context, objective string) (mode string, steps []Step, err error)
}

// Deterministic is a keyword-driven stand-in planner: it always opens
// with an observation step, recognizes a handful of irreversible intents
// by keyword, and closes with a verification step.
type Deterministic struct{}

// NewDeterministic constructs a Deterministic planner.
func NewDeterministic() *Deterministic { return &Deterministic{} }

// Mode is the planner_mode tag this planner stamps onto every run it
// plans for.
const Mode = "deterministic-stub"

var irreversibleIntents = []struct {
	keywords []string
	action   string
	desc     string
}{
	{[]string{"delete", "remove", "erase"}, "delete_file", "delete the referenced file"},
	{[]string{"pay", "purchase", "checkout", "buy"}, "submit_payment", "submit a payment or purchase"},
	{[]string{"send", "reply", "submit", "email"}, "send_or_submit", "send or submit composed content"},
}

func (p *Deterministic) BuildPlan(_ context.Context, objective string) (string, []Step, error) {
	lower := strings.ToLower(objective)

	steps := []Step{
		{
			Action: domain.Action{
				Name:        "observe_desktop",
				Description: "capture the current desktop state before acting",
			},
			Postconditions: []string{"current observation is fresh"},
		},
	}

	for _, intent := range irreversibleIntents {
		if !containsAny(lower, intent.keywords) {
			continue
		}
		if intent.action == "send_or_submit" {
			steps = append(steps, Step{
				Action: domain.Action{
					Name:        "compose_text",
					Description: "draft the text to send",
					Parameters:  map[string]any{},
				},
			})
		}
		steps = append(steps, Step{
			Action: domain.Action{
				Name:         intent.action,
				Description:  intent.desc,
				Parameters:   map[string]any{"objective": objective},
				Irreversible: true,
			},
			Preconditions: []string{"composed content or target is confirmed"},
		})
		break
	}

	steps = append(steps, Step{
		Action: domain.Action{
			Name:        "verify_outcome",
			Description: "confirm the objective was achieved",
		},
	})

	return Mode, steps, nil
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(haystack, n) {
			return true
		}
	}
	return false
}
