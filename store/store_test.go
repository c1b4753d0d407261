package store

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"placement/solver"
)

func expectRound(mock sqlmock.Sqlmock, id string, exists bool) {
	mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM rounds`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(exists))
}

func houseRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "min_capacity", "max_capacity", "overflow"}).
		AddRow("d847", 90, 96, nil).
		AddRow("a1", nil, 10, 2)
}

func groupColumns() []string {
	return []string{"id", "member_count", "house_rank_1", "house_rank_2", "house_rank_3", "house_rank_4", "house_rank_5", "house_rank_sub"}
}

func TestLoad(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectRound(mock, "r1", true)
	mock.ExpectQuery(`FROM houses`).WithArgs("r1").WillReturnRows(houseRows())
	mock.ExpectQuery(`FROM groups\s+WHERE round_id = \$1 ORDER BY seq`).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(groupColumns()).
			AddRow("g1", 3, "a1", nil, "d847", nil, nil, "ghost").
			AddRow("g2", 1, nil, nil, nil, nil, nil, nil))

	p, err := Load(context.Background(), db, "r1", nil)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{"d847", "a1"}, p.HouseIDs())
	h, _ := p.House("d847")
	assert.Equal(t, solver.House{ID: "d847", Min: 90, Max: 96, HasMin: true}, h)
	h, _ = p.House("a1")
	assert.Equal(t, solver.House{ID: "a1", Max: 10, Overflow: 2, HasOverflow: true}, h)

	require.Len(t, p.Groups, 2)
	assert.Equal(t, "g1", p.Groups[0].ID)
	assert.Equal(t, 3, p.Groups[0].Size)
	assert.Equal(t, []string{"a1", "d847"}, p.Groups[0].Ranked)
	assert.Empty(t, p.Groups[0].SubPref, "unknown sub-preference is dropped")
	assert.Empty(t, p.Groups[1].Ranked)
}

func TestLoad_FilteredGroups(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectRound(mock, "r1", true)
	mock.ExpectQuery(`FROM houses`).WithArgs("r1").WillReturnRows(houseRows())
	mock.ExpectQuery(`AND id = ANY\(\$2\) ORDER BY seq`).
		WithArgs("r1", pq.Array([]string{"g2"})).
		WillReturnRows(sqlmock.NewRows(groupColumns()).
			AddRow("g2", 2, "d847", nil, nil, nil, nil, "a1"))

	p, err := Load(context.Background(), db, "r1", []string{"g2"})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
	require.Len(t, p.Groups, 1)
	assert.Equal(t, []string{"a1"}, p.Groups[0].SubPref)
}

func TestLoad_RoundNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectRound(mock, "missing", false)

	_, err = Load(context.Background(), db, "missing", nil)
	assert.True(t, eris.Is(err, ErrRoundNotFound), "got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLoad_NoSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("r1").
		WillReturnError(&pq.Error{Code: "42P01", Message: `relation "rounds" does not exist`})

	_, err = Load(context.Background(), db, "r1", nil)
	assert.True(t, eris.Is(err, ErrNoSchema), "got %v", err)
}

func TestLoad_InvalidRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	expectRound(mock, "r1", true)
	mock.ExpectQuery(`FROM houses`).WithArgs("r1").WillReturnRows(houseRows().AddRow("a1", nil, 4, nil))
	mock.ExpectQuery(`FROM groups`).WithArgs("r1").WillReturnRows(sqlmock.NewRows(groupColumns()))

	_, err = Load(context.Background(), db, "r1", nil)
	assert.True(t, eris.Is(err, solver.ErrInvalidInput), "got %v", err)
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS rounds`).WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, Migrate(context.Background(), db))
	require.NoError(t, mock.ExpectationsWereMet())
}
