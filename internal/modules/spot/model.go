// README: Spot inventory model and the closed set of spot categories.
package spot

import (
	"errors"
	"strings"
)

type ID int

type Category string

const (
	CategoryRegular  Category = "regular"
	CategoryVIP      Category = "vip"
	CategoryDisabled Category = "disabled"
)

// Categories lists every category in a stable order.
var Categories = []Category{CategoryRegular, CategoryVIP, CategoryDisabled}

var (
	ErrUnknownCategory = errors.New("unknown spot category")
	ErrSpotUnavailable = errors.New("no free spot in category")
	ErrUnknownSpot     = errors.New("unknown spot")
	ErrSpotNotOccupied = errors.New("spot is not occupied")
	ErrDuplicateSpot   = errors.New("duplicate spot id")
	ErrInvalidSpotID   = errors.New("spot id must be positive")
)

func (c Category) Valid() bool {
	switch c {
	case CategoryRegular, CategoryVIP, CategoryDisabled:
		return true
	}
	return false
}

// ParseCategory accepts the canonical names case-insensitively.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}

type Spot struct {
	ID       ID       `json:"id"`
	Category Category `json:"category"`
	Occupied bool     `json:"occupied"`
}
