package mutate

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ormcore/internal/dialect"
	"ormcore/internal/ormerr"
)

func TestUpdate_ScalarChange(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `posts` WHERE `id` = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("UPDATE `posts` SET `title` = ? WHERE `id` = ?").
		WithArgs("Renamed", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `title`, `views`, `authorId` FROM `posts` WHERE `id` = ? LIMIT 1").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "views", "authorId"}).
			AddRow(int64(1), "Renamed", int64(0), nil))

	entity, err := o.Update(context.Background(), "Post",
		Entity{"id": 1}, Entity{"title": "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", entity["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_NoMatchIsNotFound(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `posts` WHERE `id` = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := o.Update(context.Background(), "Post",
		Entity{"id": 1}, Entity{"title": "Renamed"})
	assert.True(t, ormerr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_RelationOnlyPayloadLeavesRowUntouched(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	// Only the join table changes; no UPDATE hits the posts table, so
	// auto-updated timestamps stay as they were.
	mock.ExpectQuery("SELECT `id` FROM `posts` WHERE `id` = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT `id` FROM `tags` WHERE `id` = ? LIMIT 2").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec("INSERT IGNORE INTO `_PostToTag` (`A`,`B`) VALUES (?,?)").
		WithArgs(int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `title`, `views`, `authorId` FROM `posts` WHERE `id` = ? LIMIT 1").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "views", "authorId"}).
			AddRow(int64(1), "Intro", int64(0), nil))

	_, err := o.Update(context.Background(), "Post", Entity{"id": 1}, Entity{
		"tags": map[string]any{"connect": []any{map[string]any{"id": 5}}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_ScalarChangeStampsUpdatedAt(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `drafts` WHERE `id` = ?").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectExec("UPDATE `drafts` SET `title` = ?, `updatedAt` = ? WHERE `id` = ?").
		WithArgs("Redraft", sqlmock.AnyArg(), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `title`, `updatedAt` FROM `drafts` WHERE `id` = ? LIMIT 1").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "updatedAt"}).
			AddRow(int64(2), "Redraft", "2026-09-01 10:00:00"))

	entity, err := o.Update(context.Background(), "Draft",
		Entity{"id": 2}, Entity{"title": "Redraft"})
	require.NoError(t, err)
	assert.Equal(t, "Redraft", entity["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_RelationOnlyPayloadSkipsUpdatedAtStamp(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	// Only the join table changes: no UPDATE hits the drafts table, so
	// the auto-updated timestamp stays as it was.
	mock.ExpectQuery("SELECT `id` FROM `drafts` WHERE `id` = ?").
		WithArgs(2).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectQuery("SELECT `id` FROM `labels` WHERE `id` = ? LIMIT 2").
		WithArgs(7).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec("INSERT IGNORE INTO `_DraftToLabel` (`A`,`B`) VALUES (?,?)").
		WithArgs(int64(2), int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `title`, `updatedAt` FROM `drafts` WHERE `id` = ? LIMIT 1").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "updatedAt"}).
			AddRow(int64(2), "Notes", "2026-08-30 08:00:00"))

	_, err := o.Update(context.Background(), "Draft", Entity{"id": 2}, Entity{
		"labels": map[string]any{"connect": []any{map[string]any{"id": 7}}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_ConnectReadsNonIDReferenceFromParent(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `accounts` WHERE `id` = ?").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	// The relation references the account's email; one extra read
	// resolves it from the anchored id.
	mock.ExpectQuery("SELECT `email` FROM `accounts` WHERE `id` = ? LIMIT 2").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"email"}).AddRow("ops@example.com"))
	mock.ExpectQuery("SELECT `id` FROM `apikeys` WHERE `id` = ? LIMIT 2").
		WithArgs(8).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(8)))
	mock.ExpectExec("UPDATE `apikeys` SET `accountEmail` = ? WHERE `id` = ?").
		WithArgs("ops@example.com", int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `email` FROM `accounts` WHERE `id` = ? LIMIT 1").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email"}).
			AddRow(int64(3), "ops@example.com"))

	_, err := o.Update(context.Background(), "Account", Entity{"id": 3}, Entity{
		"keys": map[string]any{"connect": map[string]any{"id": 8}},
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_ManyToManyDisconnectMissingLinkIsNotFound(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	// The tag exists but is not a member; naming it in a disconnect list
	// expects a join row to go.
	mock.ExpectQuery("SELECT `id` FROM `posts` WHERE `id` = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectQuery("SELECT `id` FROM `tags` WHERE `id` = ? LIMIT 2").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(5)))
	mock.ExpectExec("DELETE FROM `_PostToTag` WHERE `A` = ? AND `B` = ?").
		WithArgs(int64(1), int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err := o.Update(context.Background(), "Post", Entity{"id": 1}, Entity{
		"tags": map[string]any{"disconnect": []any{map[string]any{"id": 5}}},
	})
	assert.True(t, ormerr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_IncrementCompilesToArithmetic(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `posts` WHERE `id` = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)))
	mock.ExpectExec("UPDATE `posts` SET `views` = `views` + ? WHERE `id` = ?").
		WithArgs(5, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `title`, `views`, `authorId` FROM `posts` WHERE `id` = ? LIMIT 1").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "views", "authorId"}).
			AddRow(int64(1), "Intro", int64(6), nil))

	entity, err := o.Update(context.Background(), "Post",
		Entity{"id": 1}, Entity{"views": map[string]any{"increment": 5}})
	require.NoError(t, err)
	assert.Equal(t, int64(6), entity["views"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_DisconnectRequiredRelationNotSupported(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `comments` WHERE `id` = ?").
		WithArgs(11).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(11)))

	_, err := o.Update(context.Background(), "Comment", Entity{"id": 11},
		Entity{"post": map[string]any{"disconnect": true}})
	assert.True(t, ormerr.IsNotSupported(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_InheritedScalarRoutesToBaseTable(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `articles` WHERE `id` = ?").
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectQuery("SELECT `id` FROM `contents` WHERE `id` = ?").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))
	mock.ExpectExec("UPDATE `contents` SET `status` = ? WHERE `id` = ?").
		WithArgs("live", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE `articles` SET `title` = ? WHERE `id` = ?").
		WithArgs("Tour v2", int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `title` FROM `articles` WHERE `id` = ? LIMIT 1").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(4), "Tour v2"))

	_, err := o.Update(context.Background(), "Article", Entity{"id": 4},
		Entity{"status": "live", "title": "Tour v2"})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_SharedDelegateIDNotSupported(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `articles` WHERE `id` = ?").
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(4)))

	_, err := o.Update(context.Background(), "Article", Entity{"id": 4}, Entity{"id": 9})
	assert.True(t, ormerr.IsNotSupported(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMany_UsesNativeLimit(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectExec("UPDATE `posts` SET `views` = ? WHERE `views` = ? LIMIT 10").
		WithArgs(1, 0).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := o.UpdateMany(context.Background(), "Post",
		Entity{"views": 0}, Entity{"views": map[string]any{"set": 1}}, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMany_PinsIDsWithoutNativeLimit(t *testing.T) {
	o, mock := newEngine(t, dialect.Postgres())

	// No UPDATE ... LIMIT here: the candidate ids are read under the
	// limit first and the update targets exactly that set.
	mock.ExpectQuery(`SELECT "id" FROM "posts" WHERE "views" = $1 LIMIT 2`).
		WithArgs(0).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(1)).AddRow(int64(2)))
	mock.ExpectExec(`UPDATE "posts" SET "views" = $1 WHERE "id" IN ($2,$3)`).
		WithArgs(1, int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := o.UpdateMany(context.Background(), "Post",
		Entity{"views": 0}, Entity{"views": 1}, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateMany_RejectsRelationPayload(t *testing.T) {
	o, _ := newEngine(t, dialect.MySQL())

	_, err := o.UpdateMany(context.Background(), "Post", nil, Entity{
		"tags": map[string]any{"connect": []any{map[string]any{"id": 5}}},
	}, 0)
	assert.True(t, ormerr.IsInvalidInput(err))
}

func TestUpsert_CreatesWhenMissing(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `users` WHERE `email` = ? LIMIT 2").
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO `users` (`email`,`name`) VALUES (?,?)").
		WithArgs("a@example.com", "Ada").
		WillReturnResult(sqlmock.NewResult(3, 1))

	entity, err := o.Upsert(context.Background(), "User",
		Entity{"email": "a@example.com"},
		Entity{"email": "a@example.com", "name": "Ada"},
		Entity{"name": "Ada L."})
	require.NoError(t, err)
	assert.Equal(t, int64(3), entity["id"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsert_UpdatesWhenPresent(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id` FROM `users` WHERE `email` = ? LIMIT 2").
		WithArgs("a@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectQuery("SELECT `id` FROM `users` WHERE `id` = ?").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(3)))
	mock.ExpectExec("UPDATE `users` SET `name` = ? WHERE `id` = ?").
		WithArgs("Ada L.", int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT `id`, `email`, `name` FROM `users` WHERE `id` = ? LIMIT 1").
		WithArgs(int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(int64(3), "a@example.com", "Ada L."))

	entity, err := o.Upsert(context.Background(), "User",
		Entity{"email": "a@example.com"},
		Entity{"email": "a@example.com", "name": "Ada"},
		Entity{"name": "Ada L."})
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", entity["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}
