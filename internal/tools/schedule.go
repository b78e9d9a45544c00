package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// JobSummary is the tool-facing view of a scheduled job.
type JobSummary struct {
	ID            int64
	Kind          string
	Spec          string
	Action        string
	NextFireEpoch int64
	Active        bool
}

// SchedulerService is the subset of the scheduler the tool handlers
// delegate to; defined here (not imported from internal/scheduler) so
// the dependency runs tools → interface, scheduler → implements, with
// no import from tools back into scheduler.
type SchedulerService interface {
	CreateJob(ctx context.Context, kind, spec, actionText string) (JobSummary, error)
	ListJobs(ctx context.Context) ([]JobSummary, error)
	DeleteJob(ctx context.Context, id int64) error
}

type ScheduleCreateTool struct{ Scheduler SchedulerService }

func (t *ScheduleCreateTool) Name() string { return "schedule_create" }
func (t *ScheduleCreateTool) Description() string {
	return "Create a scheduled job that re-submits an action-text message at a future time."
}
func (t *ScheduleCreateTool) Schema() json.RawMessage {
	return json.RawMessage(`{
		"type": "object",
		"properties": {
			"kind": {"type": "string", "enum": ["once", "daily", "periodic"]},
			"spec": {"type": "string", "description": "e.g. 'once in 10 minute', 'once at 08:15', 'every day at 08:15', 'every 30 minute'"},
			"action": {"type": "string", "description": "text re-submitted to the agent when the job fires, max 256 bytes"}
		},
		"required": ["kind", "spec", "action"]
	}`)
}
func (t *ScheduleCreateTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		Kind   string `json:"kind"`
		Spec   string `json:"spec"`
		Action string `json:"action"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if len(in.Action) > 256 {
		return "", fmt.Errorf("action must be at most 256 bytes")
	}
	job, err := t.Scheduler.CreateJob(ctx, in.Kind, in.Spec, in.Action)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Created job #%d (%s), next fire at epoch %d", job.ID, job.Kind, job.NextFireEpoch), nil
}

type ScheduleListTool struct{ Scheduler SchedulerService }

func (t *ScheduleListTool) Name() string        { return "schedule_list" }
func (t *ScheduleListTool) Description() string { return "List all scheduled jobs." }
func (t *ScheduleListTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{}}`)
}
func (t *ScheduleListTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	jobs, err := t.Scheduler.ListJobs(ctx)
	if err != nil {
		return "", err
	}
	if len(jobs) == 0 {
		return "No scheduled jobs.", nil
	}
	var parts []string
	for _, j := range jobs {
		status := "active"
		if !j.Active {
			status = "inactive"
		}
		parts = append(parts, fmt.Sprintf("#%d %s %q next=%d (%s)", j.ID, j.Kind, j.Action, j.NextFireEpoch, status))
	}
	return strings.Join(parts, "; "), nil
}

type ScheduleDeleteTool struct{ Scheduler SchedulerService }

func (t *ScheduleDeleteTool) Name() string        { return "schedule_delete" }
func (t *ScheduleDeleteTool) Description() string { return "Delete a scheduled job by id." }
func (t *ScheduleDeleteTool) Schema() json.RawMessage {
	return json.RawMessage(`{"type":"object","properties":{"id":{"type":"integer"}},"required":["id"]}`)
}
func (t *ScheduleDeleteTool) Handle(ctx context.Context, input json.RawMessage) (string, error) {
	var in struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(input, &in); err != nil {
		return "", fmt.Errorf("invalid arguments: %w", err)
	}
	if err := t.Scheduler.DeleteJob(ctx, in.ID); err != nil {
		return "", err
	}
	return fmt.Sprintf("Deleted job #%d", in.ID), nil
}
