package mapper_test

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratakv/strata/pkg/errors"
	"github.com/stratakv/strata/pkg/mapper"
)

func postsMapper() *mapper.Mapper {
	return &mapper.Mapper{
		Name: "posts",
		Relations: []mapper.Relation{
			{Type: mapper.BelongsTo, Relation: "users", LocalField: "author", ForeignKey: "authorId"},
			{Type: mapper.HasMany, Relation: "comments", LocalField: "comments", ForeignKey: "postId"},
		},
	}
}

func TestMapper_Defaults(t *testing.T) {
	m := &mapper.Mapper{Name: "users"}
	assert.Equal(t, "users", m.StorageKind())
	assert.Equal(t, "id", m.IDField())
	assert.Empty(t, m.RelationFieldNames())

	m = &mapper.Mapper{Name: "users", Kind: "User", IDAttribute: "uid"}
	assert.Equal(t, "User", m.StorageKind())
	assert.Equal(t, "uid", m.IDField())
}

func TestMapper_RelationFieldNames(t *testing.T) {
	m := postsMapper()
	assert.Equal(t, []string{"author", "comments"}, m.RelationFieldNames())

	m.RelationFields = []string{"author"}
	assert.Equal(t, []string{"author"}, m.RelationFieldNames())
}

func TestMapper_Validate(t *testing.T) {
	require.NoError(t, postsMapper().Validate())

	bad := &mapper.Mapper{}
	assert.True(t, stderrors.Is(bad.Validate(), errors.ErrInvalidMapper))

	bad = &mapper.Mapper{
		Name:      "posts",
		Relations: []mapper.Relation{{Type: "hasTwo", Relation: "users", LocalField: "author", ForeignKey: "authorId"}},
	}
	assert.True(t, stderrors.Is(bad.Validate(), errors.ErrInvalidMapper))

	bad = &mapper.Mapper{
		Name:      "posts",
		Relations: []mapper.Relation{{Type: mapper.BelongsTo, Relation: "users", LocalField: "author"}},
	}
	assert.True(t, stderrors.Is(bad.Validate(), errors.ErrInvalidMapper))

	bad = &mapper.Mapper{
		Name: "posts",
		Relations: []mapper.Relation{{
			Type: mapper.HasMany, Relation: "tags", LocalField: "tags",
			ForeignKey: "postId", LocalKeys: "tagIds",
		}},
	}
	assert.True(t, stderrors.Is(bad.Validate(), errors.ErrInvalidMapper))
}

func TestForEachRelation_SelectsByNameOrLocalField(t *testing.T) {
	m := postsMapper()

	var visited []string
	err := mapper.ForEachRelation(m, []string{"users", "comments"}, func(rel *mapper.Relation) error {
		visited = append(visited, rel.Relation)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"users", "comments"}, visited)

	// localField selects too; unknown names are ignored.
	visited = nil
	err = mapper.ForEachRelation(m, []string{"author", "nonexistent"}, func(rel *mapper.Relation) error {
		visited = append(visited, rel.Relation)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"users"}, visited)

	// Empty with visits nothing.
	err = mapper.ForEachRelation(m, nil, func(rel *mapper.Relation) error {
		t.Fatal("should not be called")
		return nil
	})
	require.NoError(t, err)
}

func TestForEachRelation_StopsOnError(t *testing.T) {
	m := postsMapper()
	calls := 0
	err := mapper.ForEachRelation(m, []string{"users", "comments"}, func(rel *mapper.Relation) error {
		calls++
		return errors.ErrUnsupportedRelationShape
	})
	assert.True(t, errors.IsUnsupportedRelationShape(err))
	assert.Equal(t, 1, calls)
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := mapper.NewRegistry()
	require.NoError(t, reg.Register(postsMapper()))
	require.NoError(t, reg.Register(&mapper.Mapper{Name: "users"}))

	m, err := reg.Get("posts")
	require.NoError(t, err)
	assert.Equal(t, "posts", m.Name)

	_, err = reg.Get("missing")
	assert.True(t, stderrors.Is(err, errors.ErrUnknownMapper))

	// Double registration is a no-op.
	require.NoError(t, reg.Register(&mapper.Mapper{Name: "users", Kind: "Other"}))
	m, err = reg.Get("users")
	require.NoError(t, err)
	assert.Equal(t, "users", m.StorageKind())

	assert.Equal(t, []string{"posts", "users"}, reg.Names())
}

func TestParseYAML(t *testing.T) {
	doc := []byte(`
mappers:
  - name: users
    kind: User
    idAttribute: uid
    encryptedFields: [ssn]
  - name: posts
    relations:
      - type: belongsTo
        relation: users
        localField: author
        foreignKey: authorId
      - type: hasMany
        relation: tags
        localField: tags
        localKeys: tagIds
`)
	mappers, err := mapper.ParseYAML(doc)
	require.NoError(t, err)
	require.Len(t, mappers, 2)

	users := mappers[0]
	assert.Equal(t, "User", users.StorageKind())
	assert.Equal(t, "uid", users.IDField())
	assert.Equal(t, []string{"ssn"}, users.EncryptedFields)

	posts := mappers[1]
	require.Len(t, posts.Relations, 2)
	assert.Equal(t, mapper.BelongsTo, posts.Relations[0].Type)
	assert.Equal(t, "tagIds", posts.Relations[1].LocalKeys)
}

func TestParseYAML_InvalidRelation(t *testing.T) {
	doc := []byte(`
mappers:
  - name: posts
    relations:
      - type: belongsTo
        relation: users
        localField: author
`)
	_, err := mapper.ParseYAML(doc)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidMapper))
}

func TestRegistry_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mappers.yaml")
	require.NoError(t, os.WriteFile(path, []byte("mappers:\n  - name: users\n"), 0o600))

	reg := mapper.NewRegistry()
	require.NoError(t, reg.LoadFile(path))

	m, err := reg.Get("users")
	require.NoError(t, err)
	assert.Equal(t, "users", m.StorageKind())

	assert.Error(t, reg.LoadFile(filepath.Join(dir, "absent.yaml")))
}
