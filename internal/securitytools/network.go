package securitytools

import (
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ec2"
	ec2types "github.com/aws/aws-sdk-go-v2/service/ec2/types"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
)

var defaultNetworkServices = []string{"elb", "vpc", "apigateway", "cloudfront"}

// NetworkResource is one resource inspected for network exposure.
type NetworkResource struct {
	Service      string   `json:"service"`
	ResourceType string   `json:"resource_type"`
	ResourceID   string   `json:"resource_id"`
	Compliant    bool     `json:"compliant"`
	Issues       []string `json:"issues,omitempty"`
}

type networkSummary struct {
	Checked      int    `json:"checked"`
	Compliant    int    `json:"compliant"`
	NonCompliant int    `json:"non_compliant"`
	Status       string `json:"status,omitempty"`
}

// checkNetworkSecurity reports VPCs and their security groups. The "vpc"
// service covers both; "sg" and "security_groups" select security groups
// alone.
func (t *Toolset) checkNetworkSecurity(ctx context.Context, args mapper.Arguments) (map[string]any, error) {
	c, err := t.clientsFor(ctx, args)
	if err != nil {
		return nil, err
	}
	nonCompliantOnly := args.BoolOr("include_non_compliant_only", false)

	byService := make(map[string]networkSummary)
	var all []NetworkResource
	for _, svc := range listedServices(args, defaultNetworkServices...) {
		var found []NetworkResource
		switch strings.ToLower(svc) {
		case "vpc":
			vpcs, err := vpcResources(ctx, c.EC2)
			if err != nil {
				return nil, err
			}
			sgs, err := securityGroupResources(ctx, c.EC2)
			if err != nil {
				return nil, err
			}
			found = append(vpcs, sgs...)
		case "sg", "security_groups":
			found, err = securityGroupResources(ctx, c.EC2)
			if err != nil {
				return nil, err
			}
		default:
			byService[svc] = networkSummary{Status: "not_checked"}
			continue
		}
		var sum networkSummary
		for _, r := range found {
			sum.Checked++
			if r.Compliant {
				sum.Compliant++
			} else {
				sum.NonCompliant++
			}
		}
		byService[svc] = sum
		all = append(all, found...)
	}

	var compliant, nonCompliant int
	details := []NetworkResource{}
	var recommendations []string
	for _, r := range all {
		if r.Compliant {
			compliant++
		} else {
			nonCompliant++
			recommendations = append(recommendations, recommendationFor(r))
		}
		if !nonCompliantOnly || !r.Compliant {
			details = append(details, r)
		}
	}
	if recommendations == nil {
		recommendations = []string{}
	}

	return map[string]any{
		"region":                  region(args),
		"resources_checked":       len(all),
		"compliant_resources":     compliant,
		"non_compliant_resources": nonCompliant,
		"compliance_by_service":   byService,
		"resource_details":        details,
		"recommendations":         recommendations,
	}, nil
}

func recommendationFor(r NetworkResource) string {
	switch r.ResourceType {
	case "security_group":
		return fmt.Sprintf("Restrict internet-facing ingress on %s", r.ResourceID)
	case "vpc":
		return fmt.Sprintf("Move workloads out of default VPC %s", r.ResourceID)
	default:
		return fmt.Sprintf("Review %s %s", r.ResourceType, r.ResourceID)
	}
}

func vpcResources(ctx context.Context, api EC2API) ([]NetworkResource, error) {
	var found []NetworkResource
	in := &ec2.DescribeVpcsInput{}
	for {
		out, err := api.DescribeVpcs(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("ec2 DescribeVpcs: %w", err)
		}
		for _, v := range out.Vpcs {
			r := NetworkResource{Service: "vpc", ResourceType: "vpc", ResourceID: aws.ToString(v.VpcId), Compliant: true}
			if aws.ToBool(v.IsDefault) {
				r.Compliant = false
				r.Issues = []string{"default VPC"}
			}
			found = append(found, r)
		}
		if aws.ToString(out.NextToken) == "" {
			return found, nil
		}
		in.NextToken = out.NextToken
	}
}

func securityGroupResources(ctx context.Context, api EC2API) ([]NetworkResource, error) {
	var found []NetworkResource
	in := &ec2.DescribeSecurityGroupsInput{}
	for {
		out, err := api.DescribeSecurityGroups(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("ec2 DescribeSecurityGroups: %w", err)
		}
		for _, sg := range out.SecurityGroups {
			issues := openIngress(sg.IpPermissions)
			found = append(found, NetworkResource{
				Service:      "vpc",
				ResourceType: "security_group",
				ResourceID:   aws.ToString(sg.GroupId),
				Compliant:    len(issues) == 0,
				Issues:       issues,
			})
		}
		if aws.ToString(out.NextToken) == "" {
			return found, nil
		}
		in.NextToken = out.NextToken
	}
}

// openIngress describes every ingress rule reachable from the whole internet.
func openIngress(perms []ec2types.IpPermission) []string {
	var issues []string
	for _, p := range perms {
		open := false
		for _, r := range p.IpRanges {
			if aws.ToString(r.CidrIp) == "0.0.0.0/0" {
				open = true
			}
		}
		for _, r := range p.Ipv6Ranges {
			if aws.ToString(r.CidrIpv6) == "::/0" {
				open = true
			}
		}
		if open {
			issues = append(issues, fmt.Sprintf("ingress open to the internet on %s", portRange(p)))
		}
	}
	return issues
}

func portRange(p ec2types.IpPermission) string {
	proto := aws.ToString(p.IpProtocol)
	if proto == "-1" {
		return "all traffic"
	}
	from, to := aws.ToInt32(p.FromPort), aws.ToInt32(p.ToPort)
	if from == to {
		return fmt.Sprintf("%s %d", proto, from)
	}
	return fmt.Sprintf("%s %d-%d", proto, from, to)
}
