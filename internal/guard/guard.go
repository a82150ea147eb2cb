// Package guard checks mapped tool arguments before they leave the process.
package guard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"go.uber.org/zap"

	"github.com/triage-ai/palisade/services/agent_gateway/internal/mapper"
	"github.com/triage-ai/palisade/services/agent_gateway/internal/registry"
)

// ErrRejected matches every *Violation.
var ErrRejected = errors.New("arguments rejected")

// Pre-compiled injection patterns for argument scanning.
var injectionPatterns = []struct {
	re     *regexp.Regexp
	detail string
}{
	{regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|ALTER|UNION)\b.*\b(FROM|INTO|TABLE|SET|WHERE|ALL)\b`), "SQL injection"},
	{regexp.MustCompile(`(?i);\s*(rm|cat|curl|wget|chmod|chown|sudo|bash|sh|exec)\b`), "command injection"},
	{regexp.MustCompile(`(?i)(\||&&)\s*(rm|cat|curl|wget|chmod|chown|sudo|bash|sh)\b`), "command injection (pipe/chain)"},
	{regexp.MustCompile(`(?i)\$\(.*\)`), "command substitution"},
	{regexp.MustCompile("(?i)`[^`]*`"), "backtick command execution"},
}

// regionPattern accepts commercial, GovCloud and ISO partition regions.
var regionPattern = regexp.MustCompile(`^[a-z]{2}(-gov|-iso[a-z]?)?-[a-z]+-\d+$`)

// Violation lists every problem found in one tool's arguments.
type Violation struct {
	Tool   string
	Issues []string
}

func (v *Violation) Error() string {
	return fmt.Sprintf("arguments for %s rejected: %s", v.Tool, strings.Join(v.Issues, "; "))
}

func (v *Violation) Is(target error) bool { return target == ErrRejected }

// Guard validates arguments against each tool's JSON Schema and scans string
// values for injection payloads. Compiled schemas are cached per tool.
type Guard struct {
	catalog *registry.Catalog
	schemas sync.Map // tool name -> *jsonschema.Schema
	logger  *zap.Logger
}

func New(catalog *registry.Catalog, logger *zap.Logger) *Guard {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Guard{catalog: catalog, logger: logger}
}

// Check returns nil when args are safe to send to tool, a *Violation when
// they are not, or another error when the tool's schema cannot be built.
func (g *Guard) Check(ctx context.Context, tool string, args mapper.Arguments) error {
	sch, err := g.schema(tool)
	if err != nil {
		return err
	}

	var issues []string
	if issue := validateSchema(sch, args); issue != "" {
		issues = append(issues, issue)
	}

	for _, name := range args.Names() {
		if ctx.Err() != nil {
			break
		}
		for _, s := range stringValues(args[name]) {
			for _, p := range injectionPatterns {
				if p.re.MatchString(s) {
					issues = append(issues, fmt.Sprintf("injection pattern in %s: %s", name, p.detail))
				}
			}
		}
	}

	if region, ok := args.String("region"); ok && !regionPattern.MatchString(region) {
		issues = append(issues, fmt.Sprintf("region %q is not a valid AWS region name", region))
	}

	if len(issues) == 0 {
		return nil
	}
	g.logger.Warn("arguments rejected",
		zap.String("tool", tool),
		zap.Strings("issues", issues),
	)
	return &Violation{Tool: tool, Issues: issues}
}

func (g *Guard) schema(tool string) (*jsonschema.Schema, error) {
	if cached, ok := g.schemas.Load(tool); ok {
		return cached.(*jsonschema.Schema), nil
	}
	sig, ok := g.catalog.Signature(tool)
	if !ok {
		return nil, fmt.Errorf("guard: unknown tool %q", tool)
	}
	sch, err := compileSchema(sig.Schema())
	if err != nil {
		return nil, fmt.Errorf("guard: schema for %s: %w", tool, err)
	}
	actual, _ := g.schemas.LoadOrStore(tool, sch)
	return actual.(*jsonschema.Schema), nil
}

func compileSchema(schema map[string]any) (*jsonschema.Schema, error) {
	schemaBytes, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var schemaObj any
	if err := json.Unmarshal(schemaBytes, &schemaObj); err != nil {
		return nil, err
	}
	c := jsonschema.NewCompiler()
	if err := c.AddResource("schema.json", schemaObj); err != nil {
		return nil, err
	}
	return c.Compile("schema.json")
}

func validateSchema(sch *jsonschema.Schema, args mapper.Arguments) string {
	argsJSON, err := args.JSON()
	if err != nil {
		return fmt.Sprintf("arguments are not serializable: %v", err)
	}
	var decoded any
	if err := json.Unmarshal(argsJSON, &decoded); err != nil {
		return fmt.Sprintf("arguments are not valid JSON: %v", err)
	}
	if err := sch.Validate(decoded); err != nil {
		return fmt.Sprintf("schema validation failed: %v", err)
	}
	return ""
}

func stringValues(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []string:
		return t
	default:
		return nil
	}
}
