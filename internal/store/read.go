package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/activerules/internal/ir"
	"github.com/roach88/activerules/internal/queryir"
	"github.com/roach88/activerules/internal/querysql"
)

// paramBatchSize bounds the IN list of batched parameter reads, well under
// SQLite's host parameter limit.
const paramBatchSize = 500

var activeRuleColumns = []string{
	"id", "profile_id", "rule_id", "profile_kee", "repository", "rule",
	"severity", "inheritance", "parent_id", "parent_key",
}

var activeRuleParamColumns = []string{
	"id", "active_rule_id", "rules_parameter_id", "rules_parameter_key", "value",
}

var profileColumns = []string{"id", "kee", "name", "language", "parent_kee"}

var ruleColumns = []string{
	"id", "plugin_name", "plugin_rule_key", "plugin_config_key", "name",
	"description", "status", "language", "priority", "cardinality",
}

var ruleParamColumns = []string{"id", "rule_id", "name", "param_type", "default_value", "description"}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// reader holds the finders shared by Store and Session. Through a Store
// they see committed rows; through a Session they also see that
// session's own uncommitted writes.
type reader struct {
	q queryer
}

// selectRows compiles q and scans every result row.
// Returns an empty slice (not nil) when nothing matches.
func selectRows[T any](ctx context.Context, db queryer, q queryir.Select, scan func(*sql.Rows) (T, error)) ([]T, error) {
	query, args, err := querysql.Compile(q)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.From, err)
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", q.From, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s: %w", q.From, err)
	}
	return out, nil
}

func activeRuleQuery(filter queryir.Predicate) queryir.Select {
	return queryir.Select{From: "active_rule_rows", Columns: activeRuleColumns, Filter: filter}
}

func keyFilter(key ir.ActiveRuleKey) queryir.Predicate {
	return queryir.Where(
		queryir.Equals{Field: "profile_kee", Value: string(key.Profile)},
		queryir.Equals{Field: "repository", Value: key.Rule.Repository},
		queryir.Equals{Field: "rule", Value: key.Rule.Rule},
	)
}

// FindActiveRuleByKey returns the activation with the given key.
func (r reader) FindActiveRuleByKey(ctx context.Context, key ir.ActiveRuleKey) (ActiveRuleRow, bool, error) {
	rows, err := selectRows(ctx, r.q, activeRuleQuery(keyFilter(key)), scanActiveRule)
	if err != nil {
		return ActiveRuleRow{}, false, fmt.Errorf("find active rule %s: %w", key, err)
	}
	if len(rows) == 0 {
		return ActiveRuleRow{}, false, nil
	}
	return rows[0], true, nil
}

// FindActiveRulesByRule returns every activation of a rule, across profiles.
func (r reader) FindActiveRulesByRule(ctx context.Context, rule ir.RuleKey) ([]ActiveRuleRow, error) {
	q := activeRuleQuery(queryir.Where(
		queryir.Equals{Field: "repository", Value: rule.Repository},
		queryir.Equals{Field: "rule", Value: rule.Rule},
	))
	rows, err := selectRows(ctx, r.q, q, scanActiveRule)
	if err != nil {
		return nil, fmt.Errorf("find active rules by rule %s: %w", rule, err)
	}
	return rows, nil
}

// FindActiveRulesByProfile returns every activation in a profile.
func (r reader) FindActiveRulesByProfile(ctx context.Context, profile ir.ProfileKey) ([]ActiveRuleRow, error) {
	q := activeRuleQuery(queryir.Equals{Field: "profile_kee", Value: string(profile)})
	rows, err := selectRows(ctx, r.q, q, scanActiveRule)
	if err != nil {
		return nil, fmt.Errorf("find active rules by profile %s: %w", profile, err)
	}
	return rows, nil
}

// AllActiveRules returns every activation ordered by id.
func (r reader) AllActiveRules(ctx context.Context) ([]ActiveRuleRow, error) {
	rows, err := selectRows(ctx, r.q, activeRuleQuery(nil), scanActiveRule)
	if err != nil {
		return nil, fmt.Errorf("all active rules: %w", err)
	}
	return rows, nil
}

// FindActiveRuleParams returns the parameters of one activation in insertion order.
func (r reader) FindActiveRuleParams(ctx context.Context, activeRuleID int64) ([]ActiveRuleParamRow, error) {
	q := queryir.Select{
		From:    "active_rule_parameters",
		Columns: activeRuleParamColumns,
		Filter:  queryir.Equals{Field: "active_rule_id", Value: activeRuleID},
	}
	rows, err := selectRows(ctx, r.q, q, scanActiveRuleParam)
	if err != nil {
		return nil, fmt.Errorf("find params of active rule %d: %w", activeRuleID, err)
	}
	return rows, nil
}

// FindActiveRuleParamsByIDs returns parameters for several activations,
// grouped by activation id. Activations without parameters are absent
// from the map.
func (r reader) FindActiveRuleParamsByIDs(ctx context.Context, ids []int64) (map[int64][]ActiveRuleParamRow, error) {
	out := make(map[int64][]ActiveRuleParamRow, len(ids))
	for start := 0; start < len(ids); start += paramBatchSize {
		end := min(start+paramBatchSize, len(ids))
		values := make([]any, 0, end-start)
		for _, id := range ids[start:end] {
			values = append(values, id)
		}

		q := queryir.Select{
			From:    "active_rule_parameters",
			Columns: activeRuleParamColumns,
			Filter:  queryir.In{Field: "active_rule_id", Values: values},
			OrderBy: []string{"active_rule_id", "id"},
		}
		rows, err := selectRows(ctx, r.q, q, scanActiveRuleParam)
		if err != nil {
			return nil, fmt.Errorf("find params of %d active rules: %w", len(values), err)
		}
		for _, p := range rows {
			out[p.ActiveRuleID] = append(out[p.ActiveRuleID], p)
		}
	}
	return out, nil
}

// FindProfile returns the profile with the given key.
func (r reader) FindProfile(ctx context.Context, kee ir.ProfileKey) (ProfileRow, bool, error) {
	q := queryir.Select{
		From:    "quality_profiles",
		Columns: profileColumns,
		Filter:  queryir.Equals{Field: "kee", Value: string(kee)},
	}
	rows, err := selectRows(ctx, r.q, q, scanProfile)
	if err != nil {
		return ProfileRow{}, false, fmt.Errorf("find profile %s: %w", kee, err)
	}
	if len(rows) == 0 {
		return ProfileRow{}, false, nil
	}
	return rows[0], true, nil
}

// FindRule returns the rule with the given key.
func (r reader) FindRule(ctx context.Context, key ir.RuleKey) (RuleRow, bool, error) {
	q := queryir.Select{
		From:    "rules",
		Columns: ruleColumns,
		Filter: queryir.Where(
			queryir.Equals{Field: "plugin_name", Value: key.Repository},
			queryir.Equals{Field: "plugin_rule_key", Value: key.Rule},
		),
	}
	rows, err := selectRows(ctx, r.q, q, scanRule)
	if err != nil {
		return RuleRow{}, false, fmt.Errorf("find rule %s: %w", key, err)
	}
	if len(rows) == 0 {
		return RuleRow{}, false, nil
	}
	return rows[0], true, nil
}

// FindRuleParams returns the parameters declared by a rule.
func (r reader) FindRuleParams(ctx context.Context, ruleID int64) ([]RuleParamRow, error) {
	q := queryir.Select{
		From:    "rules_parameters",
		Columns: ruleParamColumns,
		Filter:  queryir.Equals{Field: "rule_id", Value: ruleID},
	}
	rows, err := selectRows(ctx, r.q, q, scanRuleParam)
	if err != nil {
		return nil, fmt.Errorf("find params of rule %d: %w", ruleID, err)
	}
	return rows, nil
}

func scanActiveRule(rows *sql.Rows) (ActiveRuleRow, error) {
	var (
		a           ActiveRuleRow
		inheritance sql.NullString
		parentID    sql.NullInt64
		parentKey   sql.NullString
	)
	err := rows.Scan(&a.ID, &a.ProfileID, &a.RuleID, &a.ProfileKee, &a.Repository, &a.RuleKey,
		&a.Severity, &inheritance, &parentID, &parentKey)
	if err != nil {
		return ActiveRuleRow{}, err
	}
	a.Inheritance = inheritance.String
	a.ParentID = parentID.Int64
	a.ParentKey = parentKey.String
	return a, nil
}

func scanActiveRuleParam(rows *sql.Rows) (ActiveRuleParamRow, error) {
	var (
		p           ActiveRuleParamRow
		ruleParamID sql.NullInt64
		value       sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.ActiveRuleID, &ruleParamID, &p.Key, &value); err != nil {
		return ActiveRuleParamRow{}, err
	}
	p.RuleParamID = ruleParamID.Int64
	p.Value = value.String
	return p, nil
}

func scanProfile(rows *sql.Rows) (ProfileRow, error) {
	var (
		p         ProfileRow
		parentKee sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.Kee, &p.Name, &p.Language, &parentKee); err != nil {
		return ProfileRow{}, err
	}
	p.ParentKee = parentKee.String
	return p, nil
}

func scanRule(rows *sql.Rows) (RuleRow, error) {
	var (
		r                                                             RuleRow
		configKey, name, description, status, language, sev, cardinal sql.NullString
	)
	err := rows.Scan(&r.ID, &r.Repository, &r.RuleKey, &configKey, &name, &description,
		&status, &language, &sev, &cardinal)
	if err != nil {
		return RuleRow{}, err
	}
	r.ConfigKey = configKey.String
	r.Name = name.String
	r.Description = description.String
	r.Status = status.String
	r.Language = language.String
	r.Severity = sev.String
	r.Cardinality = cardinal.String
	return r, nil
}

func scanRuleParam(rows *sql.Rows) (RuleParamRow, error) {
	var (
		p                         RuleParamRow
		defaultValue, description sql.NullString
	)
	if err := rows.Scan(&p.ID, &p.RuleID, &p.Name, &p.Type, &defaultValue, &description); err != nil {
		return RuleParamRow{}, err
	}
	p.DefaultValue = defaultValue.String
	p.Description = description.String
	return p, nil
}
