// Package query turns raw product search parameters into a typed filter.
package query

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"storefront/internal/models"
)

// None is the placeholder a path segment carries when the caller wants no
// constraint for that parameter.
const None = "none"

// SortField is a product attribute the repository knows how to order by.
type SortField string

const (
	SortByID          SortField = "id"
	SortByName        SortField = "name"
	SortByPrice       SortField = "price"
	SortByUnitInStock SortField = "unit_in_stock"
)

// sortColumns maps the accepted sortBy values to table columns.
var sortColumns = map[SortField]string{
	SortByID:          "id",
	SortByName:        "name",
	SortByPrice:       "price",
	SortByUnitInStock: "unit_in_stock",
}

// Column returns the column name for f and whether f is sortable.
func (f SortField) Column() (string, bool) {
	col, ok := sortColumns[f]
	return col, ok
}

// Direction is the ordering direction of a sort.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// Sort is a validated (field, direction) pair.
type Sort struct {
	Field     SortField
	Direction Direction
}

// ProductFilter constrains a product search. Nil fields impose no constraint.
type ProductFilter struct {
	PriceGreaterThan *decimal.Decimal
	NameContains     *string
	Sort             *Sort
}

// SearchParams are the raw, untrusted search inputs.
type SearchParams struct {
	Price  string
	Name   string
	SortBy string
	Order  string
}

func present(v string) bool {
	return v != "" && v != None
}

// Build validates params and produces the filter for a product search.
func Build(params SearchParams) (ProductFilter, error) {
	var filter ProductFilter
	fieldErrs := models.FieldErrors{}

	if present(params.Price) {
		price, err := decimal.NewFromString(params.Price)
		if err != nil {
			fieldErrs["price"] = fmt.Sprintf("%q is not a number", params.Price)
		} else {
			filter.PriceGreaterThan = &price
		}
	}

	if present(params.Name) {
		name := params.Name
		filter.NameContains = &name
	}

	if present(params.SortBy) && present(params.Order) {
		field := SortField(params.SortBy)
		if _, ok := field.Column(); !ok {
			fieldErrs["sortBy"] = fmt.Sprintf("cannot sort by %q (allowed: id, name, price, unit_in_stock)", params.SortBy)
		}

		// anything other than desc sorts ascending
		dir := Ascending
		if strings.EqualFold(params.Order, "desc") {
			dir = Descending
		}

		if len(fieldErrs) == 0 {
			filter.Sort = &Sort{Field: field, Direction: dir}
		}
	}

	if len(fieldErrs) > 0 {
		return ProductFilter{}, fieldErrs
	}
	return filter, nil
}
