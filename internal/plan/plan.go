// Package plan implements the TaskPlan data model from SPEC_FULL.md §3:
// an ordered sequence of Tasks, each owning an append-only stack of
// PlanRevisions, with a single active task/revision/item selected by
// convention rather than by explicit pointers.
package plan

import "fmt"

// PlanItem is one step of a revision's ordered plan.
type PlanItem struct {
	Index     int    `json:"index" bson:"index"`
	Plan      string `json:"plan" bson:"plan"`
	Completed bool   `json:"completed" bson:"completed"`
	Summary   string `json:"summary,omitempty" bson:"summary,omitempty"`
}

// PlanRevision is one immutable snapshot of a task's plan items. Editing a
// plan never mutates a revision in place; it appends a new one.
type PlanRevision struct {
	Items []PlanItem `json:"items" bson:"items"`
}

// Task owns a stack of revisions; only the last (active) revision is ever
// read by the engine, earlier ones are retained for audit/history.
type Task struct {
	Title     string         `json:"title" bson:"title"`
	Revisions []PlanRevision `json:"revisions" bson:"revisions"`
}

// TaskPlan is the ordered sequence of Tasks with one active task index.
type TaskPlan struct {
	Tasks           []Task `json:"tasks" bson:"tasks"`
	ActiveTaskIndex int    `json:"activeTaskIndex" bson:"activeTaskIndex"`
}

// Default returns a single-task plan with an empty first revision, used by
// the turn driver (SPEC_FULL.md §4.5 step 4) when no plan exists yet.
func Default(title string) *TaskPlan {
	return &TaskPlan{
		Tasks: []Task{{
			Title:     title,
			Revisions: []PlanRevision{{}},
		}},
		ActiveTaskIndex: 0,
	}
}

// ActiveTask returns the currently active task.
func (p *TaskPlan) ActiveTask() (*Task, error) {
	if p == nil || len(p.Tasks) == 0 {
		return nil, fmt.Errorf("plan: no tasks")
	}
	if p.ActiveTaskIndex < 0 || p.ActiveTaskIndex >= len(p.Tasks) {
		return nil, fmt.Errorf("plan: active task index %d out of range", p.ActiveTaskIndex)
	}
	return &p.Tasks[p.ActiveTaskIndex], nil
}

// ActiveRevision returns the active task's latest (active) revision.
func (t *Task) ActiveRevision() (*PlanRevision, error) {
	if t == nil || len(t.Revisions) == 0 {
		return nil, fmt.Errorf("plan: task %q has no revisions", t.Title)
	}
	return &t.Revisions[len(t.Revisions)-1], nil
}

// CurrentItem returns the current plan item of a revision: the first
// incomplete item, or the last item if all are complete.
func (r *PlanRevision) CurrentItem() (*PlanItem, error) {
	if r == nil || len(r.Items) == 0 {
		return nil, fmt.Errorf("plan: revision has no items")
	}
	for i := range r.Items {
		if !r.Items[i].Completed {
			return &r.Items[i], nil
		}
	}
	return &r.Items[len(r.Items)-1], nil
}

// Reviseappends a new revision to the given task built from items,
// preserving append-only history.
func Revise(t *Task, items []PlanItem) {
	t.Revisions = append(t.Revisions, PlanRevision{Items: items})
}

// Text renders the active task's current plan as a human-readable block,
// used by the turn driver to embed the active plan in the trailing human
// message (SPEC_FULL.md §4.5 step 7).
func (p *TaskPlan) Text() string {
	task, err := p.ActiveTask()
	if err != nil {
		return ""
	}
	rev, err := task.ActiveRevision()
	if err != nil {
		return ""
	}
	out := fmt.Sprintf("Task: %s\n", task.Title)
	for _, item := range rev.Items {
		mark := " "
		if item.Completed {
			mark = "x"
		}
		out += fmt.Sprintf("[%s] %d. %s\n", mark, item.Index, item.Plan)
	}
	return out
}
