package mutate

import (
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"ormcore/internal/dbexec"
	"ormcore/internal/dialect"
	"ormcore/internal/schema"
)

// testSchema is the shared fixture: a blog graph with a to-one FK
// (Post.author, SetNull), a required to-one FK (Comment.post, Cascade),
// an implicit many-to-many (Post.tags), a delegate chain
// (Content <- Article), a relation referencing a non-id unique column
// (ApiKey.account via Account.email), and an auto-updated timestamp
// (Draft.updatedAt).
func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	b := schema.NewBuilder()

	b.Model(&schema.Model{Name: "User", TableName: "users", IDFields: []string{"id"}})
	b.AddField("User", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("User", &schema.Field{Name: "email", Type: "String", Unique: true})
	b.AddField("User", &schema.Field{Name: "name", Type: "String", Optional: true})
	b.AddField("User", &schema.Field{Name: "posts", Type: "Post", Array: true,
		Relation: &schema.Relation{Opposite: "author"}})

	b.Model(&schema.Model{Name: "Post", TableName: "posts", IDFields: []string{"id"}})
	b.AddField("Post", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("Post", &schema.Field{Name: "title", Type: "String"})
	b.AddField("Post", &schema.Field{Name: "views", Type: "Int", Optional: true})
	b.AddField("Post", &schema.Field{Name: "authorId", Type: "Int", Optional: true,
		ForeignKeyFor: []string{"author"}})
	b.AddField("Post", &schema.Field{Name: "author", Type: "User", Optional: true,
		Relation: &schema.Relation{Fields: []string{"authorId"}, References: []string{"id"},
			Opposite: "posts", OnDelete: schema.ActionSetNull}})
	b.AddField("Post", &schema.Field{Name: "tags", Type: "Tag", Array: true,
		Relation: &schema.Relation{Opposite: "posts"}})
	b.AddField("Post", &schema.Field{Name: "comments", Type: "Comment", Array: true,
		Relation: &schema.Relation{Opposite: "post"}})

	b.Model(&schema.Model{Name: "Tag", TableName: "tags", IDFields: []string{"id"}})
	b.AddField("Tag", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("Tag", &schema.Field{Name: "name", Type: "String", Unique: true})
	b.AddField("Tag", &schema.Field{Name: "posts", Type: "Post", Array: true,
		Relation: &schema.Relation{Opposite: "tags"}})

	b.Model(&schema.Model{Name: "Comment", TableName: "comments", IDFields: []string{"id"}})
	b.AddField("Comment", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("Comment", &schema.Field{Name: "body", Type: "String"})
	b.AddField("Comment", &schema.Field{Name: "postId", Type: "Int",
		ForeignKeyFor: []string{"post"}})
	b.AddField("Comment", &schema.Field{Name: "post", Type: "Post",
		Relation: &schema.Relation{Fields: []string{"postId"}, References: []string{"id"},
			Opposite: "comments", OnDelete: schema.ActionCascade}})

	b.Model(&schema.Model{Name: "Content", TableName: "contents", IDFields: []string{"id"},
		IsDelegate: true, Discriminator: "contentType"})
	b.AddField("Content", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("Content", &schema.Field{Name: "contentType", Type: "String"})
	b.AddField("Content", &schema.Field{Name: "status", Type: "String", Optional: true})

	b.Model(&schema.Model{Name: "Article", TableName: "articles", BaseModel: "Content"})
	b.AddField("Article", &schema.Field{Name: "title", Type: "String"})

	b.Model(&schema.Model{Name: "Account", TableName: "accounts", IDFields: []string{"id"}})
	b.AddField("Account", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("Account", &schema.Field{Name: "email", Type: "String", Unique: true})
	b.AddField("Account", &schema.Field{Name: "keys", Type: "ApiKey", Array: true,
		Relation: &schema.Relation{Opposite: "account"}})

	b.Model(&schema.Model{Name: "ApiKey", TableName: "apikeys", IDFields: []string{"id"}})
	b.AddField("ApiKey", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("ApiKey", &schema.Field{Name: "label", Type: "String"})
	b.AddField("ApiKey", &schema.Field{Name: "accountEmail", Type: "String", Optional: true,
		ForeignKeyFor: []string{"account"}})
	b.AddField("ApiKey", &schema.Field{Name: "account", Type: "Account", Optional: true,
		Relation: &schema.Relation{Fields: []string{"accountEmail"}, References: []string{"email"},
			Opposite: "keys", OnDelete: schema.ActionSetNull}})

	b.Model(&schema.Model{Name: "Draft", TableName: "drafts", IDFields: []string{"id"}})
	b.AddField("Draft", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("Draft", &schema.Field{Name: "title", Type: "String"})
	b.AddField("Draft", &schema.Field{Name: "updatedAt", Type: "DateTime", UpdatedAt: true})
	b.AddField("Draft", &schema.Field{Name: "labels", Type: "Label", Array: true,
		Relation: &schema.Relation{Opposite: "drafts"}})

	b.Model(&schema.Model{Name: "Label", TableName: "labels", IDFields: []string{"id"}})
	b.AddField("Label", &schema.Field{Name: "id", Type: "Int", ID: true,
		Default: &schema.Default{Kind: schema.DefaultAutoIncrement}})
	b.AddField("Label", &schema.Field{Name: "name", Type: "String", Unique: true})
	b.AddField("Label", &schema.Field{Name: "drafts", Type: "Draft", Array: true,
		Relation: &schema.Relation{Opposite: "labels"}})

	s, err := b.Build()
	require.NoError(t, err)
	return s
}

// newEngine wires an orchestrator over sqlmock with exact statement
// matching, so every test asserts the full SQL text the engine emits.
func newEngine(t *testing.T, d *dialect.Dialect) (*Orchestrator, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return New(testSchema(t), d, dbexec.New(db, nil)), mock
}
