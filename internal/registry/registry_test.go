package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestDefaultCatalog_IsConsistent(t *testing.T) {
	c, err := NewCatalog(DefaultCatalogSpec())
	if err != nil {
		t.Fatal(err)
	}
	if c.Version() != DefaultVersion {
		t.Fatalf("expected version %s, got %s", DefaultVersion, c.Version())
	}
	if len(c.Tools()) != 6 {
		t.Fatalf("expected 6 tools, got %d", len(c.Tools()))
	}
	for _, op := range c.Operations() {
		tool, ok := c.ResolveOperation(op)
		if !ok {
			t.Fatalf("operation %s does not resolve", op)
		}
		if _, ok := c.Signature(tool); !ok {
			t.Fatalf("operation %s resolves to unregistered tool %s", op, tool)
		}
	}
}

func TestDefaultCatalog_GetSecurityFindingsSignature(t *testing.T) {
	c := DefaultCatalog()
	tool, ok := c.ResolveOperation("getSecurityFindings")
	if !ok || tool != ToolGetSecurityFindings {
		t.Fatalf("expected %s, got %q", ToolGetSecurityFindings, tool)
	}
	sig, _ := c.Signature(tool)
	p, ok := sig.Param("max_findings")
	if !ok {
		t.Fatal("expected max_findings parameter")
	}
	if n, _ := p.Default.Int(); p.Type != TypeInteger || n != 100 {
		t.Fatalf("expected integer default 100, got %s %s", p.Type, p.Default)
	}
	if canonical, _ := c.Canonical(tool, "severity"); canonical != "severity_filter" {
		t.Fatalf("expected severity -> severity_filter, got %q", canonical)
	}
	if canonical, _ := c.Canonical(tool, "region"); canonical != "region" {
		t.Fatalf("expected identity alias for region, got %q", canonical)
	}
}

func TestNewCatalog_RejectsUnregisteredOperationTarget(t *testing.T) {
	spec := CatalogSpec{
		Tools:      []ToolSignature{{Name: "a"}},
		Operations: map[string]string{"op": "b"},
	}
	_, err := NewCatalog(spec)
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
	if !strings.Contains(err.Error(), `"b"`) {
		t.Fatalf("expected error to name the missing tool, got %v", err)
	}
}

func TestNewCatalog_RejectsBadAliasTarget(t *testing.T) {
	spec := CatalogSpec{
		Tools: []ToolSignature{{
			Name:       "a",
			Parameters: []ParameterSpec{{Name: "x", Type: TypeString}},
		}},
		Aliases: map[string]map[string]string{"a": {"y": "z"}},
	}
	if _, err := NewCatalog(spec); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestNewCatalog_RejectsDefaultTypeMismatch(t *testing.T) {
	spec := CatalogSpec{
		Tools: []ToolSignature{{
			Name:       "a",
			Parameters: []ParameterSpec{{Name: "n", Type: TypeInteger, Default: String("ten")}},
		}},
	}
	if _, err := NewCatalog(spec); !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestNewCatalog_RejectsDuplicates(t *testing.T) {
	spec := CatalogSpec{
		Tools: []ToolSignature{
			{Name: "a", Parameters: []ParameterSpec{{Name: "x", Type: TypeString}, {Name: "x", Type: TypeString}}},
			{Name: "a"},
		},
	}
	_, err := NewCatalog(spec)
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
	if !strings.Contains(err.Error(), "duplicate tool") || !strings.Contains(err.Error(), "duplicate parameter") {
		t.Fatalf("expected both problems reported, got %v", err)
	}
}

func TestCatalog_IsolatedFromSpecMutation(t *testing.T) {
	spec := CatalogSpec{
		Tools: []ToolSignature{{
			Name:       "a",
			Parameters: []ParameterSpec{{Name: "list", Type: TypeArray, Default: Strings("x", "y")}},
		}},
		Operations: map[string]string{"op": "a"},
	}
	c := MustNewCatalog(spec)

	spec.Tools[0].Parameters[0].Name = "mutated"
	spec.Operations["op"] = "other"

	sig, _ := c.Signature("a")
	if sig.Parameters[0].Name != "list" {
		t.Fatal("catalog signature changed after spec mutation")
	}
	if tool, _ := c.ResolveOperation("op"); tool != "a" {
		t.Fatal("catalog operation map changed after spec mutation")
	}

	// Mutating a returned signature must not leak back either.
	sig.Parameters[0].Name = "leaked"
	again, _ := c.Signature("a")
	if again.Parameters[0].Name != "list" {
		t.Fatal("Signature returned shared storage")
	}
}

func TestLocalToolName(t *testing.T) {
	if got := LocalToolName(ToolCheckNetworkSecurity); got != "CheckNetworkSecurity" {
		t.Fatalf("expected CheckNetworkSecurity, got %s", got)
	}
	if got := LocalToolName("plain"); got != "plain" {
		t.Fatalf("expected plain, got %s", got)
	}
	c := DefaultCatalog()
	if name, ok := c.ToolByLocalName("GetSecurityFindings"); !ok || name != ToolGetSecurityFindings {
		t.Fatalf("expected %s, got %q", ToolGetSecurityFindings, name)
	}
}

func TestSchema_RequiredAndDefaults(t *testing.T) {
	sig := ToolSignature{
		Name: "t",
		Parameters: []ParameterSpec{
			{Name: "id", Type: TypeString, Required: true},
			{Name: "limit", Type: TypeInteger, Required: true, Default: Integer(10)},
			{Name: "tags", Type: TypeArray},
		},
	}
	schema := sig.Schema()
	required, _ := schema["required"].([]any)
	if len(required) != 1 || required[0] != "id" {
		t.Fatalf("expected only id required, got %v", required)
	}
	props := schema["properties"].(map[string]any)
	tags := props["tags"].(map[string]any)
	if tags["type"] != "array" {
		t.Fatalf("expected array type, got %v", tags["type"])
	}
	limit := props["limit"].(map[string]any)
	if limit["default"] != int64(10) {
		t.Fatalf("expected default 10, got %v", limit["default"])
	}
}

func TestSchemaJSON_UnknownTool(t *testing.T) {
	if _, err := DefaultCatalog().SchemaJSON("nope"); err == nil {
		t.Fatal("expected error for unknown tool")
	}
	data, err := DefaultCatalog().SchemaJSON(ToolListServicesInRegion)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["type"] != "object" {
		t.Fatalf("expected object schema, got %v", decoded["type"])
	}
}

const testRegistryYAML = `
version: test/v1
tools:
  - name: Demo___Scan
    description: scan things
    parameters:
      - name: region
        type: string
        default: us-east-1
      - name: targets
        type: array
        default: [a, b]
      - name: limit
        type: integer
        default: 5
      - name: dry_run
        type: boolean
operations:
  scan: Demo___Scan
aliases:
  Demo___Scan:
    target: targets
`

func TestParseDocument_YAML(t *testing.T) {
	c, err := ParseDocument([]byte(testRegistryYAML))
	if err != nil {
		t.Fatal(err)
	}
	if c.Version() != "test/v1" {
		t.Fatalf("expected test/v1, got %s", c.Version())
	}
	sig, ok := c.Signature("Demo___Scan")
	if !ok {
		t.Fatal("expected Demo___Scan")
	}
	targets, _ := sig.Param("targets")
	if !targets.Default.Equal(Strings("a", "b")) {
		t.Fatalf("expected [a b] default, got %s", targets.Default)
	}
	limit, _ := sig.Param("limit")
	if n, ok := limit.Default.Int(); !ok || n != 5 {
		t.Fatalf("expected integer default 5, got %s", limit.Default)
	}
	if canonical, _ := c.Canonical("Demo___Scan", "target"); canonical != "targets" {
		t.Fatalf("expected alias target -> targets, got %q", canonical)
	}
}

func TestParseDocument_RejectsUnknownFields(t *testing.T) {
	if _, err := ParseDocument([]byte("version: x\nbogus: 1\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseDocument_RejectsUnknownType(t *testing.T) {
	doc := "tools:\n  - name: a\n    parameters:\n      - name: x\n        type: object\n"
	if _, err := ParseDocument([]byte(doc)); err == nil {
		t.Fatal("expected error for unknown parameter type")
	}
}

func TestLoadFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.json")
	doc := `{"version":"json/v1","tools":[{"name":"t","parameters":[{"name":"n","type":"integer","default":3}]}],"operations":{"op":"t"}}`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	sig, _ := c.Signature("t")
	if n, ok := sig.Parameters[0].Default.Int(); !ok || n != 3 {
		t.Fatalf("expected integer default 3, got %s", sig.Parameters[0].Default)
	}
}

func TestLoadFile_Missing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// stubSignatureStore is a test helper.
type stubSignatureStore struct {
	sigs    []signatureRow
	ops     []operationRow
	aliases []aliasRow
	err     error
}

func (s *stubSignatureStore) LoadSignatures(_ context.Context) ([]signatureRow, error) {
	return s.sigs, s.err
}

func (s *stubSignatureStore) LoadOperations(_ context.Context) ([]operationRow, error) {
	return s.ops, nil
}

func (s *stubSignatureStore) LoadAliases(_ context.Context) ([]aliasRow, error) {
	return s.aliases, nil
}

func TestLoadFromStore_BuildsCatalog(t *testing.T) {
	logger, _ := zap.NewDevelopment()
	store := &stubSignatureStore{
		sigs: []signatureRow{{
			ToolName:    "SecurityMCPTools___GetSecurityFindings",
			Description: sql.NullString{String: "findings", Valid: true},
			Parameters:  `[{"name":"max_findings","type":"integer","default":100},{"name":"severity_filter","type":"string"}]`,
		}},
		ops:     []operationRow{{OperationID: "getSecurityFindings", ToolName: "SecurityMCPTools___GetSecurityFindings"}},
		aliases: []aliasRow{{ToolName: "SecurityMCPTools___GetSecurityFindings", InboundName: "severity", CanonicalName: "severity_filter"}},
	}
	c, err := loadFromStore(context.Background(), store, PostgresLoaderConfig{Version: "pg/1", Logger: logger})
	if err != nil {
		t.Fatal(err)
	}
	sig, ok := c.Signature("SecurityMCPTools___GetSecurityFindings")
	if !ok {
		t.Fatal("expected tool loaded")
	}
	if sig.Description != "findings" {
		t.Fatalf("expected description, got %q", sig.Description)
	}
	p, _ := sig.Param("max_findings")
	if n, ok := p.Default.Int(); !ok || n != 100 {
		t.Fatalf("expected integer default from JSONB, got %s", p.Default)
	}
	if canonical, _ := c.Canonical("SecurityMCPTools___GetSecurityFindings", "severity"); canonical != "severity_filter" {
		t.Fatalf("expected alias loaded, got %q", canonical)
	}
}

func TestLoadFromStore_StoreError(t *testing.T) {
	store := &stubSignatureStore{err: errors.New("connection refused")}
	_, err := loadFromStore(context.Background(), store, PostgresLoaderConfig{})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestLoadFromStore_InconsistentRows(t *testing.T) {
	store := &stubSignatureStore{
		ops: []operationRow{{OperationID: "op", ToolName: "missing"}},
	}
	_, err := loadFromStore(context.Background(), store, PostgresLoaderConfig{})
	if !errors.Is(err, ErrInvalidCatalog) {
		t.Fatalf("expected ErrInvalidCatalog, got %v", err)
	}
}

func TestValue_JSONRoundTripKeepsIntegers(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`[1, "a", true, 2.5]`), &v); err != nil {
		t.Fatal(err)
	}
	items, ok := v.Items()
	if !ok || len(items) != 4 {
		t.Fatalf("expected 4 items, got %s", v)
	}
	if items[0].Kind() != KindInteger || items[3].Kind() != KindFloat {
		t.Fatalf("expected integer then float, got %s and %s", items[0].Kind(), items[3].Kind())
	}
}

func TestValue_ObjectDecodesWithoutError(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"b": [1, 2], "a": 1}`), &v); err != nil {
		t.Fatal(err)
	}
	if v.Kind() != KindObject {
		t.Fatalf("expected object kind, got %s", v.Kind())
	}
	if v.String() != `{"a":1,"b":[1,2]}` {
		t.Fatalf("unexpected object text %s", v)
	}
	out, err := json.Marshal(v)
	if err != nil || string(out) != `{"a":1,"b":[1,2]}` {
		t.Fatalf("unexpected re-encoding %s (%v)", out, err)
	}
}

func TestValueOf_Uint64Overflow(t *testing.T) {
	v, err := ValueOf(uint64(math.MaxInt64))
	if err != nil {
		t.Fatal(err)
	}
	if n, _ := v.Int(); n != math.MaxInt64 {
		t.Fatalf("expected MaxInt64, got %s", v)
	}
	if _, err := ValueOf(uint64(math.MaxInt64) + 1); err == nil {
		t.Fatal("expected overflow error")
	}
}
