package mcp

import (
	"context"
	"fmt"
	"sort"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/wardlabs/wardclaw/internal/approval"
	"github.com/wardlabs/wardclaw/internal/policy"
	"github.com/wardlabs/wardclaw/internal/types"
)

// RunTaskInput defines parameters for the wardclaw_run_task tool.
type RunTaskInput struct {
	Text    string `json:"text" jsonschema:"the task to run"`
	Profile string `json:"profile,omitempty" jsonschema:"permission profile name, defaults to the configured profile"`
}

// RunTaskOutput carries the completed task's id and final answer.
type RunTaskOutput struct {
	TaskID string `json:"task_id"`
	Answer string `json:"answer"`
}

// CheckInput defines parameters for the wardclaw_check tool.
type CheckInput struct {
	Skill   string            `json:"skill" jsonschema:"skill name, e.g. shell.run"`
	Args    map[string]string `json:"args,omitempty" jsonschema:"skill arguments"`
	Profile string            `json:"profile,omitempty" jsonschema:"permission profile name"`
}

// CheckOutput contains the policy decision for a dry-run check.
type CheckOutput struct {
	Allowed              bool   `json:"allowed"`
	Reason               string `json:"reason,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
	Preview              string `json:"preview,omitempty"`
}

// SkillsInput is empty; the tool takes no parameters.
type SkillsInput struct{}

// SkillsOutput lists registered skills.
type SkillsOutput struct {
	Skills []SkillItem `json:"skills"`
}

// SkillItem describes one registered skill.
type SkillItem struct {
	Name                 string `json:"name"`
	Description          string `json:"description,omitempty"`
	RequiresConfirmation bool   `json:"requires_confirmation,omitempty"`
}

// ApproveInput defines parameters for the wardclaw_approve tool.
type ApproveInput struct {
	Key      string `json:"key" jsonschema:"confirmation key from a pending request"`
	Duration string `json:"duration,omitempty" jsonschema:"approval window (e.g. 5m), omit for one-time approval"`
}

// ApproveOutput confirms the approval.
type ApproveOutput struct {
	Key      string `json:"key"`
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
}

// PendingInput is empty; the tool takes no parameters.
type PendingInput struct{}

// PendingOutput lists unresolved confirmation requests.
type PendingOutput struct {
	Pending []PendingItem `json:"pending"`
}

// PendingItem describes one confirmation request.
type PendingItem struct {
	Key       string `json:"key"`
	Skill     string `json:"skill"`
	Preview   string `json:"preview"`
	Reason    string `json:"reason,omitempty"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) handleRunTask(ctx context.Context, req *mcpsdk.CallToolRequest, input RunTaskInput) (*mcpsdk.CallToolResult, RunTaskOutput, error) {
	if input.Text == "" {
		return nil, RunTaskOutput{}, fmt.Errorf("text is required")
	}

	res, err := s.orch.RunTask(ctx, input.Text, input.Profile)
	if err != nil {
		return nil, RunTaskOutput{}, fmt.Errorf("task failed: %w", err)
	}
	return nil, RunTaskOutput{TaskID: res.TaskID, Answer: res.Answer}, nil
}

func (s *Server) handleCheck(ctx context.Context, req *mcpsdk.CallToolRequest, input CheckInput) (*mcpsdk.CallToolResult, CheckOutput, error) {
	if input.Skill == "" {
		return nil, CheckOutput{}, fmt.Errorf("skill is required")
	}

	manifest, ok := s.registry.Get(input.Skill)
	if !ok {
		return &mcpsdk.CallToolResult{IsError: true}, CheckOutput{
			Allowed: false,
			Reason:  fmt.Sprintf("skill %s not registered", input.Skill),
		}, nil
	}

	var args types.Args
	keys := make([]string, 0, len(input.Args))
	for k := range input.Args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		args.Set(k, input.Args[k])
	}

	d := s.engine.Evaluate(input.Skill, args, manifest, input.Profile)
	out := CheckOutput{
		Allowed:              d.Allowed,
		Reason:               string(d.Reason),
		RequiresConfirmation: d.RequiresConfirmation,
		Preview:              d.Preview,
	}
	if d.Allowed {
		out.Preview = policy.RenderPreview(input.Skill, args)
	}
	return nil, out, nil
}

func (s *Server) handleSkills(ctx context.Context, req *mcpsdk.CallToolRequest, input SkillsInput) (*mcpsdk.CallToolResult, SkillsOutput, error) {
	manifests := s.registry.Manifests()
	items := make([]SkillItem, len(manifests))
	for i, m := range manifests {
		items[i] = SkillItem{
			Name:                 m.Name,
			Description:          m.Description,
			RequiresConfirmation: m.RequiresConfirmation,
		}
	}
	return nil, SkillsOutput{Skills: items}, nil
}

func (s *Server) handleApprove(ctx context.Context, req *mcpsdk.CallToolRequest, input ApproveInput) (*mcpsdk.CallToolResult, ApproveOutput, error) {
	var window time.Duration
	if input.Duration != "" {
		d, err := time.ParseDuration(input.Duration)
		if err != nil {
			return nil, ApproveOutput{}, fmt.Errorf("invalid duration %q: %w", input.Duration, err)
		}
		window = d
	}

	if err := s.approvals.Approve(input.Key, window); err != nil {
		return nil, ApproveOutput{}, err
	}

	out := ApproveOutput{Key: input.Key, Status: string(approval.StatusApproved)}
	if window > 0 {
		out.Duration = window.String()
	}
	return nil, out, nil
}

func (s *Server) handlePending(ctx context.Context, req *mcpsdk.CallToolRequest, input PendingInput) (*mcpsdk.CallToolResult, PendingOutput, error) {
	list, err := s.approvals.List()
	if err != nil {
		return nil, PendingOutput{}, err
	}

	items := make([]PendingItem, len(list))
	for i, r := range list {
		items[i] = PendingItem{
			Key:       r.Key,
			Skill:     r.Skill,
			Preview:   r.Preview,
			Reason:    r.Reason,
			Status:    string(r.Status),
			CreatedAt: r.CreatedAt.Format(time.RFC3339),
		}
	}
	return nil, PendingOutput{Pending: items}, nil
}
