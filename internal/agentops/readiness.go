package agentops

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatchlogs"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	lambdatypes "github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"
)

var (
	// ErrAgentFailed is returned when the agent reaches FAILED.
	ErrAgentFailed = errors.New("agent preparation failed")
	// ErrNotReady is returned when the agent is not stable before the timeout.
	ErrNotReady = errors.New("agent not ready before timeout")
)

const statusFailed = "FAILED"

// ReadyOptions tunes WaitReady. Zero values take the defaults.
type ReadyOptions struct {
	Interval time.Duration // default 5s
	Timeout  time.Duration // default 5m
	// Consecutive PREPARED observations required; default 3.
	Consecutive int
}

func (o ReadyOptions) withDefaults() ReadyOptions {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.Timeout <= 0 {
		o.Timeout = 5 * time.Minute
	}
	if o.Consecutive <= 0 {
		o.Consecutive = 3
	}
	return o
}

// Readiness checks whether an agent and its Lambda are ready for traffic.
type Readiness struct {
	agents BedrockAgentAPI
	lambda LambdaAPI
	logs   LogsAPI
	logger *zap.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewReadiness(agents BedrockAgentAPI, fn LambdaAPI, logs LogsAPI, logger *zap.Logger) *Readiness {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Readiness{agents: agents, lambda: fn, logs: logs, logger: logger, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// WaitReady polls GetAgent until the agent is PREPARED on opts.Consecutive
// checks in a row. Any other status resets the count; FAILED ends the wait.
func (r *Readiness) WaitReady(ctx context.Context, agentID string, opts ReadyOptions) error {
	opts = opts.withDefaults()
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	stable := 0
	for {
		out, err := r.agents.GetAgent(ctx, &bedrockagent.GetAgentInput{AgentId: aws.String(agentID)})
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("%w: %s", ErrNotReady, agentID)
			}
			return fmt.Errorf("GetAgent: %w", err)
		}
		status := ""
		var reasons []string
		if out.Agent != nil {
			status = string(out.Agent.AgentStatus)
			reasons = out.Agent.FailureReasons
		}
		switch status {
		case statusPrepared:
			stable++
		case statusFailed:
			return fmt.Errorf("%w: %s", ErrAgentFailed, strings.Join(reasons, "; "))
		default:
			stable = 0
		}
		r.logger.Info("agent status",
			zap.String("agent_id", agentID),
			zap.String("status", status),
			zap.Int("stable_checks", stable),
		)
		if stable >= opts.Consecutive {
			return nil
		}
		if err := r.sleep(ctx, opts.Interval); err != nil {
			return fmt.Errorf("%w: %s", ErrNotReady, agentID)
		}
	}
}

// ActionGroupIssue describes an action group that cannot serve traffic.
type ActionGroupIssue struct {
	Name    string
	Problem string
}

// CheckActionGroups verifies every DRAFT action group is ENABLED with a
// Lambda executor, and returns the groups alongside any issues.
func (r *Readiness) CheckActionGroups(ctx context.Context, agentID string) ([]ActionGroupRecord, []ActionGroupIssue, error) {
	groups, err := ActionGroups(ctx, r.agents, agentID, DraftVersion)
	if err != nil {
		return nil, nil, err
	}
	var issues []ActionGroupIssue
	if len(groups) == 0 {
		issues = append(issues, ActionGroupIssue{Problem: "agent has no action groups"})
	}
	for _, g := range groups {
		if g.State != stateEnabled {
			issues = append(issues, ActionGroupIssue{Name: g.Name, Problem: "state is " + g.State})
		}
		if g.LambdaARN == "" {
			issues = append(issues, ActionGroupIssue{Name: g.Name, Problem: "no Lambda executor"})
		}
	}
	return groups, issues, nil
}

const bedrockPrincipal = "bedrock.amazonaws.com"

// CheckLambdaPermission reports whether the function's resource policy lets
// Bedrock invoke it. A function without a policy is not invokable.
func (r *Readiness) CheckLambdaPermission(ctx context.Context, function string) (bool, error) {
	out, err := r.lambda.GetPolicy(ctx, &lambda.GetPolicyInput{FunctionName: aws.String(function)})
	if err != nil {
		var notFound *lambdatypes.ResourceNotFoundException
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("GetPolicy: %w", err)
	}
	return strings.Contains(aws.ToString(out.Policy), bedrockPrincipal), nil
}

// recentLogFetch and recentLogShow bound the log excerpt.
const (
	recentLogFetch = 20
	recentLogShow  = 10
)

// RecentLogs returns the last lines logged by a Lambda function since
// since, oldest first.
func (r *Readiness) RecentLogs(ctx context.Context, function string, since time.Time) ([]string, error) {
	out, err := r.logs.FilterLogEvents(ctx, &cloudwatchlogs.FilterLogEventsInput{
		LogGroupName: aws.String(LogGroupName(function)),
		StartTime:    aws.Int64(since.UnixMilli()),
		Limit:        aws.Int32(recentLogFetch),
	})
	if err != nil {
		return nil, fmt.Errorf("FilterLogEvents: %w", err)
	}
	events := out.Events
	if len(events) > recentLogShow {
		events = events[len(events)-recentLogShow:]
	}
	lines := make([]string, 0, len(events))
	for _, e := range events {
		lines = append(lines, strings.TrimRight(aws.ToString(e.Message), "\n"))
	}
	return lines, nil
}

// LogGroupName is the CloudWatch log group of a Lambda function, given its
// name or ARN.
func LogGroupName(function string) string {
	if strings.HasPrefix(function, "arn:") {
		parts := strings.Split(function, ":")
		if len(parts) >= 7 {
			function = parts[6]
		}
	}
	return "/aws/lambda/" + function
}
