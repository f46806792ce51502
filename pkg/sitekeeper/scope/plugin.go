// Package scope rewrites security-group reads so each request only sees the
// groups visible in its active subsite. It is installed as a GORM plugin and
// runs before query SQL is built, injecting a membership join and a single
// disjunctive predicate: a group qualifies when it is linked to the active
// subsite or carries the access-all-subsites flag.
package scope

import (
	"regexp"
	"strings"

	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/models"
	"github.com/sitekeeper/sitekeeper/pkg/sitekeeper/tenant"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// FilterSetting is the per-query opt-out. Set it to false on a query to skip
// subsite filtering for that query only:
//
//	db.Set(scope.FilterSetting, false).Find(&groups)
const FilterSetting = "subsite:filter"

const (
	groupTable = "security_groups"
	linkTable  = "group_subsites"
)

// Config controls the plugin. The zero value filters normally.
type Config struct {
	// Disabled turns subsite filtering off for every query on this DB handle.
	// Passed explicitly at install time rather than read from ambient state so
	// both settings are testable.
	Disabled bool
}

// Plugin is the subsite query filter. Install with db.Use(scope.New(cfg)).
type Plugin struct {
	cfg Config
}

// New returns a subsite scope plugin with the given configuration.
func New(cfg Config) *Plugin {
	return &Plugin{cfg: cfg}
}

// Name implements gorm.Plugin.
func (p *Plugin) Name() string {
	return "sitekeeper:subsite_scope"
}

// Initialize implements gorm.Plugin.
func (p *Plugin) Initialize(db *gorm.DB) error {
	return db.Callback().Query().Before("gorm:query").Register("sitekeeper:subsite_scope", p.scopeGroups)
}

type action int

const (
	actionNone action = iota
	// actionJoin joins the membership table for a specific subsite and keeps
	// rows with a matching link or the global-access flag.
	actionJoin
	// actionGlobalOnly keeps only flagged rows; used for the subsite-0 global
	// administrative context, where a membership join could never match.
	actionGlobalOnly
)

type decision struct {
	action    action
	subsiteID uint
}

// scopeGroups is the query callback. All reasoning happens in decide; this
// only applies the returned clauses.
func (p *Plugin) scopeGroups(tx *gorm.DB) {
	stmt := tx.Statement
	d := p.decide(tx)
	if d.action == actionNone {
		return
	}

	// Decided before the select list is touched below.
	addOrdering := !isCount(stmt) && selectsFlagColumn(stmt)

	switch d.action {
	case actionJoin:
		// Pin the select list to the group's own columns; the join table
		// repeats id/created_at/group_id and a bare SELECT * would scan the
		// link row's values over the group's.
		if len(stmt.Selects) == 0 && !isCount(stmt) {
			stmt.Selects = []string{groupTable + ".*"}
		}
		stmt.AddClause(clause.From{Joins: []clause.Join{{
			Type:  clause.LeftJoin,
			Table: clause.Table{Name: linkTable},
			ON: clause.Where{Exprs: []clause.Expression{
				clause.Eq{
					Column: clause.Column{Table: linkTable, Name: "group_id"},
					Value:  clause.Column{Table: groupTable, Name: "id"},
				},
				clause.Eq{
					Column: clause.Column{Table: linkTable, Name: "subsite_id"},
					Value:  d.subsiteID,
				},
			}},
		}}})
		// One predicate, not two: splitting the disjunction would drop
		// global-access groups whenever the join finds no link row.
		stmt.AddClause(clause.Where{Exprs: []clause.Expression{
			clause.Expr{
				SQL:  linkTable + ".subsite_id IS NOT NULL OR " + groupTable + ".access_all_subsites = ?",
				Vars: []interface{}{true},
			},
		}})
	case actionGlobalOnly:
		stmt.AddClause(clause.Where{Exprs: []clause.Expression{
			clause.Eq{
				Column: clause.Column{Table: groupTable, Name: "access_all_subsites"},
				Value:  true,
			},
		}})
	default:
		return
	}

	// Tie-break so global groups sort first. Skipped for counts and for
	// queries whose explicit column list omits the flag; some backends reject
	// ordering by an unselected column.
	if addOrdering {
		stmt.AddClause(clause.OrderBy{Columns: []clause.OrderByColumn{{
			Column: clause.Column{Table: groupTable, Name: "access_all_subsites"},
			Desc:   true,
		}}})
	}
}

// decide inspects the statement and tenant context and returns what, if
// anything, to inject. It never mutates the statement.
func (p *Plugin) decide(tx *gorm.DB) decision {
	stmt := tx.Statement

	if p.cfg.Disabled || tenant.ScopingDisabled(stmt.Context) {
		return decision{}
	}
	if v, ok := tx.Get(FilterSetting); ok {
		if enabled, isBool := v.(bool); isBool && !enabled {
			return decision{}
		}
	}
	if !targetsGroups(stmt) {
		return decision{}
	}
	// Raw SQL is never rewritten.
	if stmt.SQL.Len() > 0 {
		return decision{}
	}
	subsiteID, ok := tenant.SubsiteID(stmt.Context)
	if !ok {
		// No subsite context at all: administrative browsing, no filtering.
		return decision{}
	}
	// Single-row access by primary key is trusted as-is; the caller already
	// named the exact group it wants.
	if filteredByPrimaryKey(stmt) {
		return decision{}
	}
	// Compose safely when invoked more than once on the same statement, or
	// when the caller joined the membership table itself.
	if hasLinkJoin(stmt) {
		return decision{}
	}
	if subsiteID == 0 {
		return decision{action: actionGlobalOnly}
	}
	return decision{action: actionJoin, subsiteID: subsiteID}
}

// targetsGroups reports whether the statement reads the security group table.
func targetsGroups(stmt *gorm.Statement) bool {
	if stmt.Table == groupTable {
		return true
	}
	for _, v := range []interface{}{stmt.Model, stmt.Dest} {
		switch v.(type) {
		case *models.SecurityGroup, models.SecurityGroup,
			*[]models.SecurityGroup, []models.SecurityGroup, *[]*models.SecurityGroup:
			return true
		}
	}
	return false
}

// idPredicate matches hand-written conditions on the group's primary key,
// e.g. "id = ?" or "security_groups.id IN (?)", without also matching
// foreign keys like subsite_id.
var idPredicate = regexp.MustCompile(`(?i)(^|[^a-z0-9_])id\s*(=|in\b)`)

func filteredByPrimaryKey(stmt *gorm.Statement) bool {
	c, ok := stmt.Clauses[clause.Where{}.Name()]
	if !ok {
		return false
	}
	where, ok := c.Expression.(clause.Where)
	if !ok {
		return false
	}
	return exprsFilterByID(where.Exprs)
}

func exprsFilterByID(exprs []clause.Expression) bool {
	for _, e := range exprs {
		switch expr := e.(type) {
		case clause.Eq:
			if isIDColumn(expr.Column) {
				return true
			}
		case clause.IN:
			if isIDColumn(expr.Column) {
				return true
			}
		case clause.AndConditions:
			if exprsFilterByID(expr.Exprs) {
				return true
			}
		case clause.Expr:
			if idPredicate.MatchString(expr.SQL) {
				return true
			}
		case clause.NamedExpr:
			if idPredicate.MatchString(expr.SQL) {
				return true
			}
		}
	}
	return false
}

func isIDColumn(col interface{}) bool {
	switch c := col.(type) {
	case clause.Column:
		return c.Name == clause.PrimaryKey || strings.EqualFold(c.Name, "id")
	case string:
		return strings.EqualFold(c, "id") || strings.EqualFold(c, groupTable+".id")
	}
	return false
}

// hasLinkJoin reports whether the membership table is already among the
// statement's join sources.
func hasLinkJoin(stmt *gorm.Statement) bool {
	for _, j := range stmt.Joins {
		if strings.Contains(j.Name, linkTable) {
			return true
		}
	}
	if c, ok := stmt.Clauses[clause.From{}.Name()]; ok {
		if from, ok := c.Expression.(clause.From); ok {
			for _, j := range from.Joins {
				if j.Table.Name == linkTable {
					return true
				}
			}
		}
	}
	return false
}

// isCount recognizes count queries by their destination; gorm's Count always
// scans into an int64.
func isCount(stmt *gorm.Statement) bool {
	if _, ok := stmt.Dest.(*int64); ok {
		return true
	}
	for _, s := range stmt.Selects {
		if strings.Contains(strings.ToLower(s), "count(") {
			return true
		}
	}
	return false
}

// selectsFlagColumn reports whether the flag column is part of the selected
// set. An empty select list means every column.
func selectsFlagColumn(stmt *gorm.Statement) bool {
	if len(stmt.Selects) == 0 {
		return true
	}
	for _, s := range stmt.Selects {
		if s == "*" || strings.Contains(strings.ToLower(s), "access_all_subsites") {
			return true
		}
	}
	return false
}
