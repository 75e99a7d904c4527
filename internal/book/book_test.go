package book

import (
	"encoding/json"
	"testing"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validBook() Book {
	return Book{
		Title:       "The Go Programming Language",
		Description: "Donovan and Kernighan",
		Category:    "technology",
		CoverImage:  "book-1.png",
		OldPrice:    decimal.RequireFromString("39.99"),
		NewPrice:    decimal.RequireFromString("29.99"),
	}
}

func TestBook_ValidateNew(t *testing.T) {
	require.NoError(t, validBook().ValidateNew())

	missing := validBook()
	missing.Title = ""
	err := missing.ValidateNew()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalid))
	assert.Contains(t, err.Error(), "title")

	negative := validBook()
	negative.NewPrice = decimal.NewFromInt(-1)
	assert.ErrorIs(t, negative.ValidateNew(), ErrInvalid)
}

func TestBook_ValidateRequiresID(t *testing.T) {
	b := validBook()
	assert.ErrorIs(t, b.Validate(), ErrInvalid)

	b.ID = "b1"
	assert.NoError(t, b.Validate())
}

func TestValidationError_ExposesFields(t *testing.T) {
	b := validBook()
	b.Title = ""
	err := b.ValidateNew()

	require.ErrorIs(t, err, ErrInvalid)
	var fields validation.Errors
	require.True(t, errors.As(err, &fields))
	assert.Contains(t, fields, "title")
	assert.Contains(t, err.Error(), "invalid book: ")
}

func TestBook_WireFormat(t *testing.T) {
	raw := `{"_id":"b1","title":"Dune","category":"fiction","newPrice":9.5,"oldPrice":"12.00","trending":true}`

	var b Book
	require.NoError(t, json.Unmarshal([]byte(raw), &b))
	assert.Equal(t, "b1", b.ID)
	assert.True(t, b.NewPrice.Equal(decimal.RequireFromString("9.5")))
	assert.True(t, b.OldPrice.Equal(decimal.NewFromInt(12)))
	assert.True(t, b.Trending)
	assert.True(t, b.CreatedAt.IsZero())
}

func TestPatch(t *testing.T) {
	assert.ErrorIs(t, Patch{}.Validate(), ErrInvalid)

	empty := ""
	assert.ErrorIs(t, Patch{Title: &empty}.Validate(), ErrInvalid)

	title := "Dune Messiah"
	price := decimal.RequireFromString("7.25")
	p := Patch{Title: &title, NewPrice: &price}
	require.NoError(t, p.Validate())

	got := p.Apply(Book{ID: "b1", Title: "Dune", Category: "fiction"})
	assert.Equal(t, "Dune Messiah", got.Title)
	assert.Equal(t, "fiction", got.Category)
	assert.True(t, got.NewPrice.Equal(price))

	body, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"Dune Messiah","newPrice":"7.25"}`, string(body))
}

func TestCoverURL(t *testing.T) {
	assert.Equal(t, "https://cdn.example.com/books/book-1.png", CoverURL("https://cdn.example.com/books/", "book-1.png"))
	assert.Equal(t, "https://img.example.com/x.png", CoverURL("https://cdn.example.com", "https://img.example.com/x.png"))
	assert.Equal(t, "book-1.png", CoverURL("", "book-1.png"))
	assert.Equal(t, "", CoverURL("https://cdn.example.com", ""))
}
