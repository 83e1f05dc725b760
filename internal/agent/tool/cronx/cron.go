package cronx

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/gg/gconv"
	"github.com/cloudwego/eino/schema"

	"github.com/deca-sh/gateway/internal/cronjob"
	"github.com/deca-sh/gateway/internal/pkg/logs"
)

type CronTool struct{}

func NewCronTool() *CronTool {
	return &CronTool{}
}

func (t *CronTool) Name() string {
	return "cronx"
}

func (t *CronTool) Description() string {
	return "Manage scheduled cron jobs: create, list, delete, or update periodic and one-shot tasks"
}

func (t *CronTool) ToolInfo() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name: t.Name(),
		Desc: t.Description(),
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"action": {
				Type:     schema.String,
				Desc:     `Action to perform: "create", "list", "delete", or "update"`,
				Required: true,
			},
			"job_id": {
				Type: schema.String,
				Desc: `Job ID (required for delete/update)`,
			},
			"name": {
				Type: schema.String,
				Desc: `Human-readable job name (required for create)`,
			},
			"schedule_kind": {
				Type: schema.String,
				Desc: `Schedule kind: "every" (fixed interval duration like "5m", "1h30m"), "at" (one-shot ISO 8601 timestamp like "2026-03-01T09:00:00Z"), or "expr" (restricted 5-field expression: "* * * * *", "M * * * *", or "M H * * *"). Required for create.`,
			},
			"schedule": {
				Type: schema.String,
				Desc: `Schedule value matching schedule_kind. Required for create.`,
			},
			"instruction": {
				Type: schema.String,
				Desc: `The instruction sent to the agent when the job fires. Required for create.`,
			},
			"enabled": {
				Type: schema.Boolean,
				Desc: `Enable or disable the job (used with update, default: true for create)`,
			},
		}),
	}
}

func (t *CronTool) Execute(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	scheduler := cronjob.Default()
	if scheduler == nil {
		return nil, fmt.Errorf("cron scheduler is not initialized")
	}

	action := strings.ToLower(strings.TrimSpace(gconv.To[string](args["action"])))
	switch action {
	case "create":
		return t.create(ctx, scheduler, args)
	case "list":
		return t.list(ctx, scheduler)
	case "delete":
		return t.delete(ctx, scheduler, args)
	case "update":
		return t.update(ctx, scheduler, args)
	default:
		return nil, fmt.Errorf("unknown action %q, must be one of: create, list, delete, update", action)
	}
}

func (t *CronTool) create(ctx context.Context, s *cronjob.Scheduler, args map[string]interface{}) (interface{}, error) {
	name := gconv.To[string](args["name"])
	if name == "" {
		return nil, fmt.Errorf("name is required for create")
	}
	instruction := gconv.To[string](args["instruction"])
	if instruction == "" {
		return nil, fmt.Errorf("instruction is required for create")
	}

	sched, err := parseSchedule(gconv.To[string](args["schedule_kind"]), gconv.To[string](args["schedule"]))
	if err != nil {
		return nil, err
	}

	enabled := true
	if v, ok := args["enabled"]; ok {
		enabled = gconv.To[bool](v)
	}

	job, err := s.AddJob(cronjob.JobInput{
		Name:        name,
		Instruction: instruction,
		Schedule:    sched,
		Enabled:     enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("add job: %w", err)
	}

	logs.CtxInfo(ctx, "[tool:cronx] created job %s (%s) kind=%s", job.ID, name, sched.Kind)

	return map[string]interface{}{
		"success": true,
		"job_id":  job.ID,
		"name":    job.Name,
		"message": fmt.Sprintf("Job %q created successfully", job.Name),
	}, nil
}

func (t *CronTool) list(_ context.Context, s *cronjob.Scheduler) (interface{}, error) {
	jobs := s.ListJobs()
	result := make([]map[string]interface{}, 0, len(jobs))
	for _, j := range jobs {
		entry := map[string]interface{}{
			"job_id":        j.ID,
			"name":          j.Name,
			"schedule_kind": string(j.Schedule.Kind),
			"schedule":      scheduleValue(j.Schedule),
			"enabled":       j.Enabled,
			"created_at":    j.CreatedAt.Format(time.RFC3339),
		}
		if j.LastRunAtMS != 0 {
			entry["last_run_at"] = time.UnixMilli(j.LastRunAtMS).Format(time.RFC3339)
		}
		if j.HasNextRun() {
			entry["next_run_at"] = time.UnixMilli(j.NextRunAtMS).Format(time.RFC3339)
		}
		instr := j.Instruction
		if len(instr) > 120 {
			instr = instr[:120] + "..."
		}
		entry["instruction"] = instr
		result = append(result, entry)
	}
	return map[string]interface{}{
		"jobs":  result,
		"count": len(result),
	}, nil
}

func (t *CronTool) delete(ctx context.Context, s *cronjob.Scheduler, args map[string]interface{}) (interface{}, error) {
	jobID := gconv.To[string](args["job_id"])
	if jobID == "" {
		return nil, fmt.Errorf("job_id is required for delete")
	}

	if err := s.RemoveJob(jobID); err != nil {
		return nil, fmt.Errorf("remove job: %w", err)
	}

	logs.CtxInfo(ctx, "[tool:cronx] deleted job %s", jobID)
	return map[string]interface{}{
		"success": true,
		"job_id":  jobID,
		"message": fmt.Sprintf("Job %q deleted", jobID),
	}, nil
}

func (t *CronTool) update(ctx context.Context, s *cronjob.Scheduler, args map[string]interface{}) (interface{}, error) {
	jobID := gconv.To[string](args["job_id"])
	if jobID == "" {
		return nil, fmt.Errorf("job_id is required for update")
	}

	found, ok := s.GetJob(jobID)
	if !ok {
		return nil, fmt.Errorf("job %q not found", jobID)
	}

	updated := false

	if v, ok := args["name"]; ok {
		found.Name = gconv.To[string](v)
		updated = true
	}
	if v, ok := args["instruction"]; ok {
		found.Instruction = gconv.To[string](v)
		updated = true
	}
	if _, ok := args["schedule_kind"]; ok {
		sched, err := parseSchedule(gconv.To[string](args["schedule_kind"]), gconv.To[string](args["schedule"]))
		if err != nil {
			return nil, err
		}
		found.Schedule = sched
		updated = true
	}
	if v, ok := args["enabled"]; ok {
		found.Enabled = gconv.To[bool](v)
		updated = true
	}

	if !updated {
		return nil, fmt.Errorf("no fields to update")
	}

	if err := s.UpdateJob(found); err != nil {
		return nil, fmt.Errorf("update job: %w", err)
	}

	logs.CtxInfo(ctx, "[tool:cronx] updated job %s", jobID)
	return map[string]interface{}{
		"success": true,
		"job_id":  jobID,
		"message": fmt.Sprintf("Job %q updated", jobID),
	}, nil
}

// parseSchedule converts a tool-facing (kind, value) pair into the
// cronjob package's Schedule shape.
func parseSchedule(kind, value string) (cronjob.Schedule, error) {
	kind = strings.ToLower(strings.TrimSpace(kind))
	value = strings.TrimSpace(value)
	if kind == "" {
		return cronjob.Schedule{}, fmt.Errorf("schedule_kind is required for create")
	}
	if value == "" {
		return cronjob.Schedule{}, fmt.Errorf("schedule is required for create")
	}

	switch cronjob.ScheduleKind(kind) {
	case cronjob.ScheduleEvery:
		d, err := time.ParseDuration(value)
		if err != nil {
			return cronjob.Schedule{}, fmt.Errorf("invalid every duration %q: %w", value, err)
		}
		return cronjob.Schedule{Kind: cronjob.ScheduleEvery, EveryMS: d.Milliseconds()}, nil
	case cronjob.ScheduleAt:
		ts, err := time.Parse(time.RFC3339, value)
		if err != nil {
			return cronjob.Schedule{}, fmt.Errorf("invalid at timestamp %q: %w", value, err)
		}
		return cronjob.Schedule{Kind: cronjob.ScheduleAt, AtMS: ts.UnixMilli()}, nil
	case cronjob.ScheduleExpr:
		return cronjob.Schedule{Kind: cronjob.ScheduleExpr, Expr: value}, nil
	default:
		return cronjob.Schedule{}, fmt.Errorf(`unknown schedule_kind %q, must be one of: "every", "at", "expr"`, kind)
	}
}

func scheduleValue(s cronjob.Schedule) string {
	switch s.Kind {
	case cronjob.ScheduleEvery:
		return time.Duration(s.EveryMS * int64(time.Millisecond)).String()
	case cronjob.ScheduleAt:
		return time.UnixMilli(s.AtMS).Format(time.RFC3339)
	case cronjob.ScheduleExpr:
		return s.Expr
	default:
		return ""
	}
}
