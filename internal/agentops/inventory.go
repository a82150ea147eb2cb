package agentops

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockagent"
	batypes "github.com/aws/aws-sdk-go-v2/service/bedrockagent/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DraftVersion is the working version whose action groups can be edited.
const DraftVersion = "DRAFT"

const (
	statusPrepared = "PREPARED"
	stateEnabled   = "ENABLED"
)

// Inventory is a snapshot of every agent in one region.
type Inventory struct {
	Region      string        `json:"region"`
	GeneratedAt time.Time     `json:"generated_at"`
	Agents      []AgentRecord `json:"agents"`
}

type AgentRecord struct {
	ID           string              `json:"id"`
	Name         string              `json:"name"`
	Status       string              `json:"status"`
	Description  string              `json:"description,omitempty"`
	Versions     []VersionRecord     `json:"versions"`
	Aliases      []AliasRecord       `json:"aliases"`
	ActionGroups []ActionGroupRecord `json:"action_groups"`
}

type VersionRecord struct {
	Version string `json:"version"`
	Status  string `json:"status"`
}

// AliasRecord names an alias and the agent version it routes to.
type AliasRecord struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Status         string `json:"status"`
	RoutingVersion string `json:"routing_version,omitempty"`
}

// ActionGroupRecord is one DRAFT action group. LambdaARN is empty for
// return-of-control groups.
type ActionGroupRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	State     string `json:"state"`
	LambdaARN string `json:"lambda_arn,omitempty"`
}

// ActiveConfig is what an agent currently serves: its first prepared alias
// and enabled action groups.
type ActiveConfig struct {
	AgentID      string              `json:"agent_id"`
	AgentName    string              `json:"agent_name"`
	Alias        *AliasRecord        `json:"alias,omitempty"`
	ActionGroups []ActionGroupRecord `json:"action_groups"`
}

// Collector builds inventories.
type Collector struct {
	api    BedrockAgentAPI
	logger *zap.Logger
	now    func() time.Time
}

func NewCollector(api BedrockAgentAPI, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{api: api, logger: logger, now: time.Now}
}

// describeLimit bounds concurrent per-agent describe calls.
const describeLimit = 4

// Collect lists all agents with their versions, aliases and DRAFT action
// groups. A failure to describe one agent is logged; the agent keeps
// whatever detail was read before it.
func (c *Collector) Collect(ctx context.Context, region string) (*Inventory, error) {
	inv := &Inventory{Region: region, GeneratedAt: c.now().UTC()}
	in := &bedrockagent.ListAgentsInput{}
	for {
		out, err := c.api.ListAgents(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("ListAgents: %w", err)
		}
		for _, s := range out.AgentSummaries {
			inv.Agents = append(inv.Agents, AgentRecord{
				ID:          aws.ToString(s.AgentId),
				Name:        aws.ToString(s.AgentName),
				Status:      string(s.AgentStatus),
				Description: aws.ToString(s.Description),
			})
		}
		if aws.ToString(out.NextToken) == "" {
			break
		}
		in.NextToken = out.NextToken
	}

	// Each goroutine owns one slice element.
	var g errgroup.Group
	g.SetLimit(describeLimit)
	for i := range inv.Agents {
		rec := &inv.Agents[i]
		g.Go(func() error {
			if err := c.describe(ctx, rec); err != nil {
				c.logger.Warn("describe agent failed",
					zap.String("agent_id", rec.ID),
					zap.String("aws_error_code", ErrorCode(err)),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()
	return inv, nil
}

func (c *Collector) describe(ctx context.Context, rec *AgentRecord) error {
	agentID := aws.String(rec.ID)

	versions, err := c.api.ListAgentVersions(ctx, &bedrockagent.ListAgentVersionsInput{AgentId: agentID})
	if err != nil {
		return fmt.Errorf("ListAgentVersions: %w", err)
	}
	for _, v := range versions.AgentVersionSummaries {
		rec.Versions = append(rec.Versions, VersionRecord{
			Version: aws.ToString(v.AgentVersion),
			Status:  string(v.AgentStatus),
		})
	}

	aliases, err := c.api.ListAgentAliases(ctx, &bedrockagent.ListAgentAliasesInput{AgentId: agentID})
	if err != nil {
		return fmt.Errorf("ListAgentAliases: %w", err)
	}
	for _, a := range aliases.AgentAliasSummaries {
		alias := AliasRecord{
			ID:     aws.ToString(a.AgentAliasId),
			Name:   aws.ToString(a.AgentAliasName),
			Status: string(a.AgentAliasStatus),
		}
		if len(a.RoutingConfiguration) > 0 {
			alias.RoutingVersion = aws.ToString(a.RoutingConfiguration[0].AgentVersion)
		}
		rec.Aliases = append(rec.Aliases, alias)
	}

	groups, err := ActionGroups(ctx, c.api, rec.ID, DraftVersion)
	if err != nil {
		return err
	}
	rec.ActionGroups = groups
	return nil
}

// ActionGroups lists an agent version's action groups with their Lambda
// executors.
func ActionGroups(ctx context.Context, api BedrockAgentAPI, agentID, version string) ([]ActionGroupRecord, error) {
	out, err := api.ListAgentActionGroups(ctx, &bedrockagent.ListAgentActionGroupsInput{
		AgentId:      aws.String(agentID),
		AgentVersion: aws.String(version),
	})
	if err != nil {
		return nil, fmt.Errorf("ListAgentActionGroups: %w", err)
	}
	var groups []ActionGroupRecord
	for _, s := range out.ActionGroupSummaries {
		g := ActionGroupRecord{
			ID:    aws.ToString(s.ActionGroupId),
			Name:  aws.ToString(s.ActionGroupName),
			State: string(s.ActionGroupState),
		}
		detail, err := api.GetAgentActionGroup(ctx, &bedrockagent.GetAgentActionGroupInput{
			AgentId:       aws.String(agentID),
			AgentVersion:  aws.String(version),
			ActionGroupId: s.ActionGroupId,
		})
		if err != nil {
			return nil, fmt.Errorf("GetAgentActionGroup %s: %w", g.Name, err)
		}
		if detail.AgentActionGroup != nil {
			if exec, ok := detail.AgentActionGroup.ActionGroupExecutor.(*batypes.ActionGroupExecutorMemberLambda); ok {
				g.LambdaARN = exec.Value
			}
		}
		groups = append(groups, g)
	}
	return groups, nil
}

// FindByName returns agents whose name contains name, ignoring case.
func (inv *Inventory) FindByName(name string) []AgentRecord {
	needle := strings.ToLower(name)
	var out []AgentRecord
	for _, a := range inv.Agents {
		if strings.Contains(strings.ToLower(a.Name), needle) {
			out = append(out, a)
		}
	}
	return out
}

// ActiveConfig returns the agent's serving configuration.
func (a AgentRecord) ActiveConfig() ActiveConfig {
	cfg := ActiveConfig{AgentID: a.ID, AgentName: a.Name, ActionGroups: []ActionGroupRecord{}}
	for i := range a.Aliases {
		if a.Aliases[i].Status == statusPrepared {
			alias := a.Aliases[i]
			cfg.Alias = &alias
			break
		}
	}
	for _, g := range a.ActionGroups {
		if g.State == stateEnabled {
			cfg.ActionGroups = append(cfg.ActionGroups, g)
		}
	}
	return cfg
}

// WriteText renders a human-readable report.
func (inv *Inventory) WriteText(w io.Writer) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Bedrock agents in %s (%d)\n", inv.Region, len(inv.Agents))
	for _, a := range inv.Agents {
		fmt.Fprintf(&b, "\n%s (%s) status=%s\n", a.Name, a.ID, a.Status)
		for _, v := range a.Versions {
			fmt.Fprintf(&b, "  version %s: %s\n", v.Version, v.Status)
		}
		for _, al := range a.Aliases {
			fmt.Fprintf(&b, "  alias %s (%s) -> %s: %s\n", al.Name, al.ID, orDash(al.RoutingVersion), al.Status)
		}
		for _, g := range a.ActionGroups {
			fmt.Fprintf(&b, "  action group %s: %s lambda=%s\n", g.Name, g.State, orDash(g.LambdaARN))
		}
		active := a.ActiveConfig()
		if active.Alias != nil {
			fmt.Fprintf(&b, "  active: alias %s with %d enabled action group(s)\n", active.Alias.Name, len(active.ActionGroups))
		} else {
			b.WriteString("  active: no prepared alias\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// SaveJSON writes the inventory to path.
func (inv *Inventory) SaveJSON(path string) error {
	data, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("SaveJSON: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("SaveJSON: %w", err)
	}
	return nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
