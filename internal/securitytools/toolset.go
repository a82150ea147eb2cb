// Package securitytools implements the SecurityMCPTools tools on top of the
// AWS security APIs. Every tool takes arguments already mapped and coerced
// against the tool registry.
package securitytools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/contextstore"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
)

// ErrUnknownTool is returned by Call for names with no implementation.
var ErrUnknownTool = errors.New("no such security tool")

// Local tool names, as served by the tool server.
const (
	CheckSecurityServices    = "CheckSecurityServices"
	GetSecurityFindings      = "GetSecurityFindings"
	CheckStorageEncryption   = "CheckStorageEncryption"
	CheckNetworkSecurity     = "CheckNetworkSecurity"
	ListServicesInRegion     = "ListServicesInRegion"
	GetStoredSecurityContext = "GetStoredSecurityContext"
)

type toolFunc func(ctx context.Context, args mapper.Arguments) (map[string]any, error)

// Toolset dispatches tool calls by local name.
type Toolset struct {
	clients ClientFactory
	store   *contextstore.Store
	logger  *zap.Logger
	tools   map[string]toolFunc
}

// New builds the toolset. store may be nil, which disables context storage.
func New(clients ClientFactory, store *contextstore.Store, logger *zap.Logger) *Toolset {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Toolset{clients: clients, store: store, logger: logger}
	t.tools = map[string]toolFunc{
		CheckSecurityServices:    t.checkSecurityServices,
		GetSecurityFindings:      t.getSecurityFindings,
		CheckStorageEncryption:   t.checkStorageEncryption,
		CheckNetworkSecurity:     t.checkNetworkSecurity,
		ListServicesInRegion:     t.listServicesInRegion,
		GetStoredSecurityContext: t.getStoredSecurityContext,
	}
	return t
}

// Names returns the implemented tool names, sorted.
func (t *Toolset) Names() []string {
	out := make([]string, 0, len(t.tools))
	for name := range t.tools {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Call runs a tool. name may be local ("GetSecurityFindings") or carry the
// gateway target prefix. Results are stored in the context store when the
// tool's store_in_context argument is true. Tools get their own copy of
// args.
func (t *Toolset) Call(ctx context.Context, name string, args mapper.Arguments) (map[string]any, error) {
	local := registry.LocalToolName(name)
	fn, ok := t.tools[local]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	result, err := fn(ctx, args.Clone())
	if err != nil {
		t.logger.Warn("security tool failed",
			zap.String("tool", local),
			zap.String("region", region(args)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%s: %w", local, err)
	}
	if t.store != nil && args.BoolOr("store_in_context", false) {
		t.store.Set(region(args), local, result)
	}
	return result, nil
}

func region(args mapper.Arguments) string {
	return args.StringOr("region", registry.DefaultRegion)
}

func (t *Toolset) clientsFor(ctx context.Context, args mapper.Arguments) (*Clients, error) {
	return t.clients.Clients(ctx, region(args), args.StringOr("aws_profile", "default"))
}

// listedServices returns the services argument, or def when it is unset.
func listedServices(args mapper.Arguments, def ...string) []string {
	if list, ok := args.Strings("services"); ok && len(list) > 0 {
		return list
	}
	return def
}

// jsonView re-decodes an SDK output struct into out through JSON. SDK
// structs marshal with their Go field names, which keeps summaries
// independent of pointer-vs-value field shapes.
func jsonView(in, out any) error {
	data, err := json.Marshal(in)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func (t *Toolset) listServicesInRegion(_ context.Context, args mapper.Arguments) (map[string]any, error) {
	return map[string]any{
		"region":             region(args),
		"available_services": []string{"ec2", "s3", "rds", "lambda", "dynamodb"},
	}, nil
}

func (t *Toolset) getStoredSecurityContext(_ context.Context, args mapper.Arguments) (map[string]any, error) {
	reg := region(args)
	detailed := args.BoolOr("detailed", false)
	var entries []map[string]any
	if t.store != nil {
		for _, r := range t.store.Region(reg) {
			e := map[string]any{
				"tool":      r.Entry.Tool,
				"stored_at": r.Entry.StoredAt.UTC().Format("2006-01-02T15:04:05Z"),
				"stale":     r.Stale,
			}
			if detailed {
				e["data"] = r.Entry.Data
			} else {
				keys := make([]string, 0, len(r.Entry.Data))
				for k := range r.Entry.Data {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				e["fields"] = keys
			}
			entries = append(entries, e)
		}
	}
	if entries == nil {
		entries = []map[string]any{}
	}
	return map[string]any{
		"region":  reg,
		"count":   len(entries),
		"entries": entries,
	}, nil
}
