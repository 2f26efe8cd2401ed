package sqlstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/conduit-lang/datarest/internal/rest/repository"
)

// Dialect adapts the document queries to one SQL engine
type Dialect struct {
	// Name is the configuration name: "sqlite" or "postgres"
	Name string

	// Driver is the database/sql driver name
	Driver string

	numbered bool
	jsonPath func(column, property string) string
	bodyType string
}

var (
	// SQLite stores documents with mattn/go-sqlite3
	SQLite = Dialect{
		Name:     "sqlite",
		Driver:   "sqlite3",
		bodyType: "TEXT",
		jsonPath: func(column, property string) string {
			return fmt.Sprintf("json_extract(%s, '$.%s')", column, property)
		},
	}

	// Postgres stores documents through the pgx stdlib driver
	Postgres = Dialect{
		Name:     "postgres",
		Driver:   "pgx",
		numbered: true,
		bodyType: "JSONB",
		jsonPath: func(column, property string) string {
			return fmt.Sprintf("(%s::jsonb)->%s", column, pq.QuoteLiteral(property))
		},
	}
)

// DialectFor returns the dialect for a configuration name
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported sql dialect %q", name)
	}
}

// Quote quotes an identifier
func (d Dialect) Quote(name string) string {
	return pq.QuoteIdentifier(name)
}

// Rebind rewrites ? placeholders into the dialect's form
func (d Dialect) Rebind(query string) string {
	if !d.numbered {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

var propertyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidProperty reports whether a sort property can be used in a query
func ValidProperty(name string) bool {
	return propertyPattern.MatchString(name)
}

// orderExpr returns the ORDER BY expression for a property
func (d Dialect) orderExpr(property string, idType repository.IDType) (string, error) {
	switch property {
	case repository.KeyID:
		return d.idOrder(idType), nil
	case repository.KeyVersion:
		return "version", nil
	case repository.KeyLastModified:
		return "last_modified", nil
	}
	if !ValidProperty(property) {
		return "", fmt.Errorf("invalid sort property %q", property)
	}
	return d.jsonPath("body", property), nil
}

func (d Dialect) idOrder(idType repository.IDType) string {
	if idType != repository.IDInt64 {
		return "id"
	}
	if d.numbered {
		return "id::bigint"
	}
	return "CAST(id AS INTEGER)"
}

func (d Dialect) orderBy(sort repository.Sort, idType repository.IDType) (string, error) {
	parts := make([]string, 0, len(sort)+1)
	for _, o := range sort {
		expr, err := d.orderExpr(o.Property, idType)
		if err != nil {
			return "", err
		}
		dir := "ASC"
		if o.Direction == repository.Desc {
			dir = "DESC"
		}
		parts = append(parts, expr+" "+dir)
	}
	parts = append(parts, d.idOrder(idType)+" ASC")
	return " ORDER BY " + strings.Join(parts, ", "), nil
}
