// Package importer reconciles parsed tabular records against the records
// already present for an entity: each incoming row is classified as
// inserted, updated, skipped, invalid or error, and dangling foreign-key
// references are resolved or backfilled with minimal placeholder records.
//
// One generic engine consumes declarative per-entity configurations instead
// of one hand-written import routine per entity.
package importer

import "github.com/expr-lang/expr/vm"

// FieldSpec declares one reconcilable field of an entity: where it comes
// from in a raw record and what shape it must have.
type FieldSpec struct {
	Name     string
	Aliases  []string
	Required bool
	Numeric  bool
	Email    bool
}

// Check is a boolean guard expression evaluated against a validated payload.
// The expression describes the violation: evaluating to true fails the row.
type Check struct {
	Expr    string
	Message string

	compiled *vm.Program
}

// RefConfig describes an entity's foreign-key dependency and how to repair
// it: resolve a supplied id, fall back to by-name matching, or create a
// minimal placeholder parent.
type RefConfig struct {
	IDField          string // FK field on the importing record
	NameField        string // optional name field used for by-name resolution
	Entity           string // parent entity key in the registry
	ParentNameColumn string // parent column matched against NameField
	AlwaysCreate     bool   // create a placeholder even when no reference is supplied

	// Placeholder builds the minimal parent record created to satisfy the
	// reference. It receives the validated payload of the importing row.
	Placeholder func(payload map[string]any) map[string]any
}

// EntityConfig is the declarative import configuration for one entity.
type EntityConfig struct {
	Name          string // route segment, e.g. "customers"
	Table         string
	IDColumn      string
	NaturalKey    string // matched case-insensitively when no primary key is supplied
	Fields        []FieldSpec
	Checks        []Check
	Ref           *RefConfig
	CompareFields []string
}

func (c *EntityConfig) fieldNumeric(name string) bool {
	for _, f := range c.Fields {
		if f.Name == name {
			return f.Numeric
		}
	}
	return false
}

// Registry maps entity route names to their import configuration.
type Registry map[string]*EntityConfig

// DefaultRegistry returns the built-in entity configurations.
func DefaultRegistry() Registry {
	customers := &EntityConfig{
		Name:       "customers",
		Table:      "customers",
		IDColumn:   "customer_id",
		NaturalKey: "email",
		Fields: []FieldSpec{
			{Name: "full_name", Aliases: []string{"name", "fullName"}, Required: true},
			{Name: "date_of_birth", Aliases: []string{"dob"}},
			{Name: "email", Email: true},
			{Name: "phone_number", Aliases: []string{"phone"}},
			{Name: "address"},
		},
		CompareFields: []string{"full_name", "date_of_birth", "email", "phone_number", "address"},
	}

	agents := &EntityConfig{
		Name:       "agents",
		Table:      "agents",
		IDColumn:   "agent_id",
		NaturalKey: "email",
		Fields: []FieldSpec{
			{Name: "full_name", Aliases: []string{"name"}, Required: true},
			{Name: "email", Email: true},
			{Name: "phone_number", Aliases: []string{"phone"}},
		},
		CompareFields: []string{"full_name", "email", "phone_number"},
	}

	policies := &EntityConfig{
		Name:     "policies",
		Table:    "policies",
		IDColumn: "policy_id",
		Fields: []FieldSpec{
			{Name: "policy_type", Aliases: []string{"type"}},
			{Name: "premium_amount", Aliases: []string{"premium"}, Numeric: true},
			{Name: "coverage_amount", Aliases: []string{"coverage"}, Numeric: true},
			{Name: "start_date"},
			{Name: "end_date"},
			{Name: "customer_name"},
			{Name: "customer_id", Numeric: true},
			{Name: "status"},
		},
		Checks: []Check{
			{Expr: "premium_amount != nil && premium_amount < 0.0", Message: "premium_amount must be non-negative"},
			{Expr: "coverage_amount != nil && coverage_amount < 0.0", Message: "coverage_amount must be non-negative"},
		},
		Ref: &RefConfig{
			IDField:          "customer_id",
			NameField:        "customer_name",
			Entity:           "customers",
			ParentNameColumn: "full_name",
			Placeholder: func(payload map[string]any) map[string]any {
				return map[string]any{"full_name": payload["customer_name"]}
			},
		},
		CompareFields: []string{"policy_type", "premium_amount", "coverage_amount", "start_date", "end_date", "customer_id"},
	}

	claims := &EntityConfig{
		Name:     "claims",
		Table:    "claims",
		IDColumn: "claim_id",
		Fields: []FieldSpec{
			{Name: "policy_id", Numeric: true},
			{Name: "claim_date"},
			{Name: "claim_amount", Aliases: []string{"amount"}, Numeric: true},
			{Name: "status"},
			{Name: "reason"},
		},
		Ref: &RefConfig{
			IDField:      "policy_id",
			Entity:       "policies",
			AlwaysCreate: true,
			Placeholder: func(map[string]any) map[string]any {
				return map[string]any{"policy_type": "imported"}
			},
		},
		CompareFields: []string{"policy_id", "claim_date", "claim_amount"},
	}

	dashboards := &EntityConfig{
		Name:       "dashboards",
		Table:      "dashboards",
		IDColumn:   "dashboard_id",
		NaturalKey: "name",
		Fields: []FieldSpec{
			{Name: "name", Aliases: []string{"title"}, Required: true},
			{Name: "description"},
		},
		CompareFields: []string{"name", "description"},
	}

	return Registry{
		customers.Name:  customers,
		agents.Name:     agents,
		policies.Name:   policies,
		claims.Name:     claims,
		dashboards.Name: dashboards,
	}
}
