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

func TestDelete_ReturnsRemovedRowAndCleansJoins(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id`, `name` FROM `tags` WHERE `id` = ?").
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(5), "go"))
	// Join rows go before the row itself; the Tag side owns column B.
	mock.ExpectExec("DELETE FROM `_PostToTag` WHERE `B` = ?").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM `tags` WHERE `id` = ?").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entity, err := o.Delete(context.Background(), "Tag", Entity{"id": 5})
	require.NoError(t, err)
	assert.Equal(t, "go", entity["name"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_NoMatchIsNotFound(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id`, `email`, `name` FROM `users` WHERE `id` = ?").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}))

	_, err := o.Delete(context.Background(), "User", Entity{"id": 3})
	assert.True(t, ormerr.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_SetNullOnDependents(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id`, `email`, `name` FROM `users` WHERE `id` = ?").
		WithArgs(3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "name"}).
			AddRow(int64(3), "a@example.com", "Ada"))
	mock.ExpectExec("UPDATE `posts` SET `authorId` = ? WHERE `authorId` IN (?)").
		WithArgs(nil, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec("DELETE FROM `users` WHERE `id` = ?").
		WithArgs(int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := o.Delete(context.Background(), "User", Entity{"id": 3})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_CascadeDeletesDependents(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id`, `title`, `views`, `authorId` FROM `posts` WHERE `id` = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "views", "authorId"}).
			AddRow(int64(1), "Intro", int64(0), nil))
	// Comments cascade first, then the post's join rows, then the post.
	mock.ExpectQuery("SELECT `id`, `body`, `postId` FROM `comments` WHERE `postId` IN (?)").
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "body", "postId"}).
			AddRow(int64(11), "nice", int64(1)))
	mock.ExpectExec("DELETE FROM `comments` WHERE `id` = ?").
		WithArgs(int64(11)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `_PostToTag` WHERE `A` = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `posts` WHERE `id` = ?").
		WithArgs(int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := o.Delete(context.Background(), "Post", Entity{"id": 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete_DelegateTargetsBaseTableOnly(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id`, `title` FROM `articles` WHERE `id` = ?").
		WithArgs(4).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}).AddRow(int64(4), "Tour"))
	// The only DELETE hits the chain root; the articles row falls to the
	// database's ON DELETE CASCADE.
	mock.ExpectQuery("SELECT `id`, `contentType`, `status` FROM `contents` WHERE `id` = ?").
		WithArgs(int64(4)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "contentType", "status"}).
			AddRow(int64(4), "Article", nil))
	mock.ExpectExec("DELETE FROM `contents` WHERE `id` = ?").
		WithArgs(int64(4)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entity, err := o.Delete(context.Background(), "Article", Entity{"id": 4})
	require.NoError(t, err)
	assert.Equal(t, "Tour", entity["title"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMany_LimitAnchorsByID(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id`, `name` FROM `tags` LIMIT 2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(5), "go").AddRow(int64(6), "db"))
	mock.ExpectExec("DELETE FROM `_PostToTag` WHERE `B` = ?").
		WithArgs(int64(5)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `_PostToTag` WHERE `B` = ?").
		WithArgs(int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM `tags` WHERE `id` IN (?,?)").
		WithArgs(int64(5), int64(6)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := o.DeleteMany(context.Background(), "Tag", nil, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDeleteMany_NoMatchesIsZero(t *testing.T) {
	o, mock := newEngine(t, dialect.MySQL())

	mock.ExpectQuery("SELECT `id`, `name` FROM `tags` WHERE `name` = ?").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))

	n, err := o.DeleteMany(context.Background(), "Tag", Entity{"name": "ghost"}, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
