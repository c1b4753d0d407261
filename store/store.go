// Package store loads placement rounds from PostgreSQL. Groups are stored
// in the discrete house_rank_1..5 / house_rank_sub shape used by the
// registration forms.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"

	"github.com/lib/pq"
	"github.com/rotisserie/eris"

	"placement/solver"
)

//go:embed schema.sql
var Schema string

var (
	ErrRoundNotFound = eris.New("round not found")
	ErrNoSchema      = eris.New("placement schema is not installed")
)

const undefinedTable = "42P01"

// Querier is the subset of *sql.DB and *sql.Tx the loader needs.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, Schema); err != nil {
		return eris.Wrap(err, "applying schema")
	}
	return nil
}

// Load reads the houses and groups of a round, in insertion order. A
// non-empty groupIDs restricts the groups to those ids.
func Load(ctx context.Context, q Querier, roundID string, groupIDs []string) (*solver.Problem, error) {
	var exists bool
	err := q.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM rounds WHERE id = $1)", roundID).Scan(&exists)
	if err != nil {
		return nil, classify(err, "checking round")
	}
	if !exists {
		return nil, eris.Wrapf(ErrRoundNotFound, "round %s", roundID)
	}

	houses, err := loadHouses(ctx, q, roundID)
	if err != nil {
		return nil, err
	}
	groups, err := loadGroups(ctx, q, roundID, groupIDs)
	if err != nil {
		return nil, err
	}
	return solver.NewProblem(houses, groups)
}

func loadHouses(ctx context.Context, q Querier, roundID string) ([]solver.House, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, min_capacity, max_capacity, overflow
		FROM houses
		WHERE round_id = $1
		ORDER BY seq`, roundID)
	if err != nil {
		return nil, classify(err, "querying houses")
	}
	defer rows.Close()

	var houses []solver.House
	for rows.Next() {
		var (
			h          solver.House
			minC, over sql.NullInt64
		)
		if err := rows.Scan(&h.ID, &minC, &h.Max, &over); err != nil {
			return nil, eris.Wrap(err, "scanning house")
		}
		if minC.Valid {
			h.Min, h.HasMin = int(minC.Int64), true
		}
		if over.Valid {
			h.Overflow, h.HasOverflow = int(over.Int64), true
		}
		houses = append(houses, h)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "reading houses")
	}
	return houses, nil
}

func loadGroups(ctx context.Context, q Querier, roundID string, groupIDs []string) ([]solver.Group, error) {
	query := `
		SELECT id, member_count,
			house_rank_1, house_rank_2, house_rank_3, house_rank_4, house_rank_5,
			house_rank_sub
		FROM groups
		WHERE round_id = $1`
	args := []any{roundID}
	if len(groupIDs) > 0 {
		query += " AND id = ANY($2)"
		args = append(args, pq.Array(groupIDs))
	}
	query += " ORDER BY seq"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err, "querying groups")
	}
	defer rows.Close()

	var groups []solver.Group
	for rows.Next() {
		var (
			g     solver.Group
			ranks [solver.MaxRanked]sql.NullString
			sub   sql.NullString
		)
		if err := rows.Scan(&g.ID, &g.Size, &ranks[0], &ranks[1], &ranks[2], &ranks[3], &ranks[4], &sub); err != nil {
			return nil, eris.Wrap(err, "scanning group")
		}
		for _, r := range ranks {
			if r.Valid && r.String != "" {
				g.Ranked = append(g.Ranked, r.String)
			}
		}
		if sub.Valid && sub.String != "" {
			g.SubPref = []string{sub.String}
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "reading groups")
	}
	return groups, nil
}

func classify(err error, msg string) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return eris.Wrapf(ErrNoSchema, "%s: %s", msg, pqErr.Message)
	}
	return eris.Wrap(err, msg)
}
