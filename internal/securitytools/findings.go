package securitytools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/guardduty"
	"github.com/aws/aws-sdk-go-v2/service/securityhub"
	shtypes "github.com/aws/aws-sdk-go-v2/service/securityhub/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
)

var defaultSecurityServices = []string{"guardduty", "inspector", "accessanalyzer", "securityhub", "trustedadvisor", "macie"}

// Service states reported by CheckSecurityServices.
const (
	stateEnabled  = "enabled"
	stateDisabled = "disabled"
	stateUnknown  = "unknown"
)

func (t *Toolset) checkSecurityServices(ctx context.Context, args mapper.Arguments) (map[string]any, error) {
	c, err := t.clientsFor(ctx, args)
	if err != nil {
		return nil, err
	}

	accountID := args.StringOr("account_id", "")
	if accountID == "" {
		if out, err := c.STS.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{}); err == nil {
			accountID = aws.ToString(out.Account)
		}
	}

	states := make(map[string]string)
	problems := make(map[string]string)
	enabled := 0
	for _, svc := range listedServices(args, defaultSecurityServices...) {
		state, err := t.serviceState(ctx, c, svc)
		if err != nil {
			problems[svc] = err.Error()
		}
		if state == stateEnabled {
			enabled++
		}
		states[svc] = state
	}

	result := map[string]any{
		"region":        region(args),
		"account_id":    accountID,
		"services":      states,
		"enabled_count": enabled,
		"total_checked": len(states),
	}
	if args.BoolOr("debug", false) && len(problems) > 0 {
		result["debug"] = problems
	}
	return result, nil
}

// serviceState reports whether a security service is on. Any API error
// counts as disabled; services without a probe are unknown.
func (t *Toolset) serviceState(ctx context.Context, c *Clients, svc string) (string, error) {
	switch strings.ToLower(svc) {
	case "guardduty":
		out, err := c.GuardDuty.ListDetectors(ctx, &guardduty.ListDetectorsInput{})
		if err != nil {
			return stateDisabled, err
		}
		if len(out.DetectorIds) == 0 {
			return stateDisabled, nil
		}
		return stateEnabled, nil
	case "securityhub":
		if _, err := c.SecurityHub.GetEnabledStandards(ctx, &securityhub.GetEnabledStandardsInput{}); err != nil {
			return stateDisabled, err
		}
		return stateEnabled, nil
	default:
		return stateUnknown, nil
	}
}

// Finding is the summary returned for every finding, whatever its source.
type Finding struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Severity    string   `json:"severity"`
	Type        string   `json:"type,omitempty"`
	Resources   []string `json:"resources,omitempty"`
	UpdatedAt   string   `json:"updated_at,omitempty"`
	Description string   `json:"description,omitempty"`
}

var errUnsupportedService = errors.New("service not supported")

func (t *Toolset) getSecurityFindings(ctx context.Context, args mapper.Arguments) (map[string]any, error) {
	c, err := t.clientsFor(ctx, args)
	if err != nil {
		return nil, err
	}
	service := strings.ToLower(args.StringOr("service", "securityhub"))
	maxFindings := int(args.IntOr("max_findings", 100))
	if maxFindings <= 0 {
		maxFindings = 100
	}
	severity := strings.ToUpper(args.StringOr("severity_filter", ""))

	result := map[string]any{
		"region":          region(args),
		"service":         service,
		"severity_filter": severity,
	}

	if args.BoolOr("check_enabled", false) {
		state, err := t.serviceState(ctx, c, service)
		if state == stateDisabled {
			result["enabled"] = false
			result["count"] = 0
			result["findings"] = []Finding{}
			if err != nil {
				result["message"] = fmt.Sprintf("%s is not enabled in %s: %v", service, region(args), err)
			} else {
				result["message"] = fmt.Sprintf("%s is not enabled in %s", service, region(args))
			}
			return result, nil
		}
		result["enabled"] = state == stateEnabled
	}

	var findings []Finding
	switch service {
	case "securityhub":
		findings, err = securityHubFindings(ctx, c.SecurityHub, severity, maxFindings)
	case "guardduty":
		findings, err = guardDutyFindings(ctx, c.GuardDuty, severity, maxFindings)
	default:
		return nil, fmt.Errorf("%w: %s", errUnsupportedService, service)
	}
	if err != nil {
		return nil, err
	}
	if findings == nil {
		findings = []Finding{}
	}
	result["count"] = len(findings)
	result["findings"] = findings
	return result, nil
}

type securityHubFindingView struct {
	ID          string `json:"Id"`
	Title       string
	Description string
	UpdatedAt   string
	Types       []string
	Severity    struct{ Label string }
	Resources   []struct {
		Type string
		ID   string `json:"Id"`
	}
}

func securityHubFindings(ctx context.Context, api SecurityHubAPI, severity string, limit int) ([]Finding, error) {
	in := &securityhub.GetFindingsInput{}
	if severity != "" {
		in.Filters = &shtypes.AwsSecurityFindingFilters{
			SeverityLabel: []shtypes.StringFilter{{
				Value:      aws.String(severity),
				Comparison: shtypes.StringFilterComparisonEquals,
			}},
		}
	}
	var out []Finding
	for len(out) < limit {
		page, err := api.GetFindings(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("securityhub GetFindings: %w", err)
		}
		for _, raw := range page.Findings {
			var v securityHubFindingView
			if err := jsonView(raw, &v); err != nil {
				return nil, err
			}
			f := Finding{
				ID:          v.ID,
				Title:       v.Title,
				Severity:    v.Severity.Label,
				UpdatedAt:   v.UpdatedAt,
				Description: v.Description,
			}
			if len(v.Types) > 0 {
				f.Type = v.Types[0]
			}
			for _, r := range v.Resources {
				f.Resources = append(f.Resources, r.Type+":"+r.ID)
			}
			out = append(out, f)
			if len(out) == limit {
				break
			}
		}
		if page.NextToken == nil || aws.ToString(page.NextToken) == "" {
			break
		}
		in.NextToken = page.NextToken
	}
	return out, nil
}

type guardDutyFindingView struct {
	ID          string `json:"Id"`
	Title       string
	Description string
	Type        string
	UpdatedAt   string
	Severity    float64
	Resource    struct{ ResourceType string }
}

// guardDutySeverityLabel buckets GuardDuty's numeric severity the way the
// GuardDuty console does.
func guardDutySeverityLabel(score float64) string {
	switch {
	case score >= 9:
		return "CRITICAL"
	case score >= 7:
		return "HIGH"
	case score >= 4:
		return "MEDIUM"
	default:
		return "LOW"
	}
}

const guardDutyGetFindingsBatch = 50

func guardDutyFindings(ctx context.Context, api GuardDutyAPI, severity string, limit int) ([]Finding, error) {
	detectors, err := api.ListDetectors(ctx, &guardduty.ListDetectorsInput{})
	if err != nil {
		return nil, fmt.Errorf("guardduty ListDetectors: %w", err)
	}
	if len(detectors.DetectorIds) == 0 {
		return nil, nil
	}
	detectorID := detectors.DetectorIds[0]

	var out []Finding
	in := &guardduty.ListFindingsInput{DetectorId: aws.String(detectorID)}
	for len(out) < limit {
		page, err := api.ListFindings(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("guardduty ListFindings: %w", err)
		}
		for start := 0; start < len(page.FindingIds) && len(out) < limit; start += guardDutyGetFindingsBatch {
			end := min(start+guardDutyGetFindingsBatch, len(page.FindingIds))
			details, err := api.GetFindings(ctx, &guardduty.GetFindingsInput{
				DetectorId: aws.String(detectorID),
				FindingIds: page.FindingIds[start:end],
			})
			if err != nil {
				return nil, fmt.Errorf("guardduty GetFindings: %w", err)
			}
			for _, raw := range details.Findings {
				var v guardDutyFindingView
				if err := jsonView(raw, &v); err != nil {
					return nil, err
				}
				label := guardDutySeverityLabel(v.Severity)
				if severity != "" && severity != label {
					continue
				}
				f := Finding{
					ID:          v.ID,
					Title:       v.Title,
					Severity:    label,
					Type:        v.Type,
					UpdatedAt:   v.UpdatedAt,
					Description: v.Description,
				}
				if v.Resource.ResourceType != "" {
					f.Resources = []string{v.Resource.ResourceType}
				}
				out = append(out, f)
				if len(out) == limit {
					break
				}
			}
		}
		if page.NextToken == nil || aws.ToString(page.NextToken) == "" {
			break
		}
		in.NextToken = page.NextToken
	}
	return out, nil
}
