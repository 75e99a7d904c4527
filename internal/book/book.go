// Package book holds the catalog record shared by the catalog service, the
// remote client and the cart.
package book

import (
	"net/url"
	"strings"
	"time"

	"github.com/go-faster/errors"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/shopspring/decimal"
)

// ErrInvalid marks a Book or Patch that fails schema validation.
var ErrInvalid = errors.New("invalid book")

// ValidationError carries the field errors of a rejected Book or Patch. It
// matches ErrInvalid and unwraps to validation.Errors.
type ValidationError struct {
	Err error
}

func (e *ValidationError) Error() string { return ErrInvalid.Error() + ": " + e.Err.Error() }

func (e *ValidationError) Unwrap() error { return e.Err }

func (e *ValidationError) Is(target error) bool { return target == ErrInvalid }

// Book is a catalog record. The identifier travels as "_id" on the wire.
type Book struct {
	ID          string          `json:"_id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Trending    bool            `json:"trending"`
	CoverImage  string          `json:"coverImage"`
	OldPrice    decimal.Decimal `json:"oldPrice"`
	NewPrice    decimal.Decimal `json:"newPrice"`
	CreatedAt   time.Time       `json:"createdAt,omitzero"`
	UpdatedAt   time.Time       `json:"updatedAt,omitzero"`
}

// Patch carries the fields of an update. Nil fields are left untouched.
type Patch struct {
	Title       *string          `json:"title,omitempty"`
	Description *string          `json:"description,omitempty"`
	Category    *string          `json:"category,omitempty"`
	Trending    *bool            `json:"trending,omitempty"`
	CoverImage  *string          `json:"coverImage,omitempty"`
	OldPrice    *decimal.Decimal `json:"oldPrice,omitempty"`
	NewPrice    *decimal.Decimal `json:"newPrice,omitempty"`
}

// ValidateNew checks a book about to be created; the server assigns the ID.
func (b Book) ValidateNew() error {
	return wrap(validation.ValidateStruct(&b,
		validation.Field(&b.Title, validation.Required, validation.Length(1, 300)),
		validation.Field(&b.Description, validation.Required),
		validation.Field(&b.Category, validation.Required, validation.Length(1, 100)),
		validation.Field(&b.CoverImage, validation.Required),
		validation.Field(&b.NewPrice, validation.By(nonNegative)),
		validation.Field(&b.OldPrice, validation.By(nonNegative)),
	))
}

// Validate checks a book received from or stored by the catalog.
func (b Book) Validate() error {
	return wrap(validation.ValidateStruct(&b,
		validation.Field(&b.ID, validation.Required),
		validation.Field(&b.Title, validation.Required),
		validation.Field(&b.NewPrice, validation.By(nonNegative)),
		validation.Field(&b.OldPrice, validation.By(nonNegative)),
	))
}

func (p Patch) Validate() error {
	if p.IsEmpty() {
		return errors.Wrap(ErrInvalid, "empty patch")
	}
	return wrap(validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty),
		validation.Field(&p.Category, validation.NilOrNotEmpty),
		validation.Field(&p.CoverImage, validation.NilOrNotEmpty),
		validation.Field(&p.NewPrice, validation.By(nonNegative)),
		validation.Field(&p.OldPrice, validation.By(nonNegative)),
	))
}

func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil &&
		p.Trending == nil && p.CoverImage == nil && p.OldPrice == nil && p.NewPrice == nil
}

// Apply returns b with the non-nil fields of p copied over.
func (p Patch) Apply(b Book) Book {
	if p.Title != nil {
		b.Title = *p.Title
	}
	if p.Description != nil {
		b.Description = *p.Description
	}
	if p.Category != nil {
		b.Category = *p.Category
	}
	if p.Trending != nil {
		b.Trending = *p.Trending
	}
	if p.CoverImage != nil {
		b.CoverImage = *p.CoverImage
	}
	if p.OldPrice != nil {
		b.OldPrice = *p.OldPrice
	}
	if p.NewPrice != nil {
		b.NewPrice = *p.NewPrice
	}
	return b
}

// CoverURL resolves a cover image name against an asset base URL. Absolute
// URLs are returned unchanged.
func CoverURL(base, image string) string {
	if image == "" || base == "" {
		return image
	}
	if u, err := url.Parse(image); err == nil && u.IsAbs() {
		return image
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(image, "/")
}

func nonNegative(v any) error {
	var d decimal.Decimal
	switch x := v.(type) {
	case decimal.Decimal:
		d = x
	case *decimal.Decimal:
		if x == nil {
			return nil
		}
		d = *x
	default:
		return nil
	}
	if d.IsNegative() {
		return errors.New("must not be negative")
	}
	return nil
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return &ValidationError{Err: err}
}
