package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Author struct {
	ID   uint
	Name string
}

type Tag struct {
	ID   uint
	Name string
}

type Comment struct {
	ID     uint
	PostID uint
	Body   string
	Spam   bool
}

type Post struct {
	ID       uint
	Title    string
	Score    int
	AuthorID *uint
	Author   *Author
	Tags     []Tag `gorm:"many2many:post_tags"`
	Comments []Comment
}

func seed(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&Author{}, &Tag{}, &Post{}, &Comment{}))

	ann := Author{Name: "Ann"}
	bob := Author{Name: "Bob"}
	require.NoError(t, db.Create(&ann).Error)
	require.NoError(t, db.Create(&bob).Error)
	urgent := Tag{Name: "urgent"}
	later := Tag{Name: "later"}
	require.NoError(t, db.Create(&urgent).Error)
	require.NoError(t, db.Create(&later).Error)

	posts := []Post{
		{Title: "Quarterly Report", Score: 10, AuthorID: &ann.ID, Tags: []Tag{urgent},
			Comments: []Comment{{Body: "nice"}, {Body: "buy now", Spam: true}}},
		{Title: "Holiday plan", Score: 3, AuthorID: &bob.ID, Tags: []Tag{later},
			Comments: []Comment{{Body: "ok"}}},
		{Title: "Budget report", Score: 7, Tags: []Tag{urgent, later}},
	}
	require.NoError(t, db.Create(&posts).Error)
	return db
}

func titles(t *testing.T, db *gorm.DB, where Tree) []string {
	t.Helper()
	tx, err := Filter(db, &Post{}, where)
	require.NoError(t, err)
	var out []string
	require.NoError(t, tx.Order("id").Pluck("title", &out).Error)
	return out
}

func TestFilterLeafOperators(t *testing.T) {
	db := seed(t)

	assert.Equal(t, []string{"Holiday plan"}, titles(t, db, Tree{"score": Tree{"lt": 5}}))
	assert.Equal(t, []string{"Quarterly Report", "Budget report"}, titles(t, db, Tree{"title": Tree{"contains": "REPORT"}}))
	assert.Equal(t, []string{"Budget report"}, titles(t, db, Tree{"title": Tree{"startsWith": "bud"}}))
	assert.Equal(t, []string{"Quarterly Report", "Holiday plan"}, titles(t, db, Tree{"score": Tree{"in": []int{10, 3}}}))
	assert.Equal(t, []string{"Budget report"}, titles(t, db, Tree{"authorId": nil}))
	assert.Equal(t, []string{"Holiday plan", "Budget report"}, titles(t, db, Tree{"score": Tree{"not": 10}}))
}

func TestFilterCombinators(t *testing.T) {
	db := seed(t)

	or := Tree{"OR": []Tree{
		{"score": Tree{"equals": 3}},
		{"score": Tree{"equals": 7}},
	}}
	assert.Equal(t, []string{"Holiday plan", "Budget report"}, titles(t, db, or))

	not := Tree{"NOT": Tree{"title": Tree{"contains": "report"}}}
	assert.Equal(t, []string{"Holiday plan"}, titles(t, db, not))

	and := Tree{"AND": []any{
		map[string]any{"score": map[string]any{"gte": 5}},
		map[string]any{"title": map[string]any{"endsWith": "report"}},
	}}
	assert.Equal(t, []string{"Quarterly Report", "Budget report"}, titles(t, db, and))
}

func TestFilterRelations(t *testing.T) {
	db := seed(t)

	assert.Equal(t, []string{"Quarterly Report"},
		titles(t, db, Tree{"author": Tree{"name": Tree{"equals": "Ann"}}}))
	assert.Equal(t, []string{"Quarterly Report"},
		titles(t, db, Tree{"comments": Tree{"some": Tree{"spam": true}}}))
	assert.Equal(t, []string{"Holiday plan", "Budget report"},
		titles(t, db, Tree{"comments": Tree{"none": Tree{"spam": true}}}))
	assert.Equal(t, []string{"Holiday plan", "Budget report"},
		titles(t, db, Tree{"comments": Tree{"every": Tree{"spam": false}}}))
	assert.Equal(t, []string{"Quarterly Report", "Budget report"},
		titles(t, db, Tree{"tags": Tree{"some": Tree{"name": Tree{"equals": "urgent"}}}}))
}

func TestFilterHasMatchesAnyRelatedID(t *testing.T) {
	db := seed(t)
	var later Tag
	require.NoError(t, db.Where("name = ?", "later").First(&later).Error)

	q := NewBuilder().ArrayContains("tags", later.ID).Build()
	assert.Equal(t, []string{"Holiday plan", "Budget report"}, titles(t, db, q.Where))
}

func TestFilterRejectsUnknownField(t *testing.T) {
	db := seed(t)
	_, err := Filter(db, &Post{}, Tree{"password": Tree{"equals": "x"}})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = Filter(db, &Post{}, Tree{"score": Tree{"regex": ".*"}})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestApplyOrdersPagesAndPreloads(t *testing.T) {
	db := seed(t)
	q := NewBuilder().
		SetOrderBy("score", Desc).
		SetInclude(map[string]any{"author": true, "tags": true}).
		SetPagination(1, 2).
		Build()

	tx, err := Apply(db, &Post{}, q)
	require.NoError(t, err)
	var posts []Post
	require.NoError(t, tx.Find(&posts).Error)

	require.Len(t, posts, 2)
	assert.Equal(t, 10, posts[0].Score)
	assert.Equal(t, 7, posts[1].Score)
	require.NotNil(t, posts[0].Author)
	assert.Equal(t, "Ann", posts[0].Author.Name)
	assert.Len(t, posts[1].Tags, 2)
}

func TestPreloadsRejectsUnknownRelation(t *testing.T) {
	db := seed(t)
	s, err := Schema(db, &Post{})
	require.NoError(t, err)

	_, err = Preloads(s, map[string]any{"editor": true})
	assert.ErrorIs(t, err, ErrInvalid)

	paths, err := Preloads(s, map[string]any{"comments": true, "author": false})
	require.NoError(t, err)
	assert.Equal(t, []string{"Comments"}, paths)
}

func TestFilterWildcardsMatchLiterally(t *testing.T) {
	db := seed(t)
	require.NoError(t, db.Create(&[]Post{
		{Title: "rate_limit notes"},
		{Title: "rateXlimit notes"},
		{Title: "100% done"},
		{Title: "100 done"},
		{Title: `C:\temp`},
	}).Error)

	assert.Equal(t, []string{"rate_limit notes"},
		titles(t, db, Tree{"title": Tree{"contains": "e_l"}}))
	assert.Equal(t, []string{"100% done"},
		titles(t, db, Tree{"title": Tree{"startsWith": "100%"}}))
	assert.Equal(t, []string{`C:\temp`},
		titles(t, db, Tree{"title": Tree{"endsWith": `:\temp`}}))
	assert.Empty(t, titles(t, db, Tree{"title": Tree{"contains": "r_port"}}))
}

type Board struct {
	ID    uint
	Name  string
	Notes []Note
}

type Note struct {
	ID      uint
	BoardID *uint
	Spam    bool
}

func TestFilterNoneIgnoresOrphanRows(t *testing.T) {
	db := seed(t)
	require.NoError(t, db.AutoMigrate(&Board{}, &Note{}))
	boards := []Board{{Name: "alpha"}, {Name: "beta"}}
	require.NoError(t, db.Create(&boards).Error)
	require.NoError(t, db.Create(&[]Note{
		{BoardID: &boards[0].ID},
		{BoardID: &boards[1].ID, Spam: true},
		{Spam: true},
	}).Error)

	names := func(where Tree) []string {
		tx, err := Filter(db, &Board{}, where)
		require.NoError(t, err)
		var out []string
		require.NoError(t, tx.Order("id").Pluck("name", &out).Error)
		return out
	}

	assert.Equal(t, []string{"alpha"}, names(Tree{"notes": Tree{"none": Tree{"spam": true}}}))
	assert.Equal(t, []string{"alpha"}, names(Tree{"notes": Tree{"every": Tree{"spam": false}}}))
	assert.Equal(t, []string{"beta"}, names(Tree{"notes": Tree{"some": Tree{"spam": true}}}))
}
