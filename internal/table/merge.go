package table

import "github.com/MarcoPoloResearchLab/roster/internal/records"

// Merge returns remote followed by the local rows whose key remote lacks.
// Duplicate keys within either side keep their first occurrence.
func Merge[T records.Keyed](remote, local []T) []T {
	seen := make(map[int]struct{}, len(remote)+len(local))
	merged := make([]T, 0, len(remote)+len(local))
	for _, side := range [][]T{remote, local} {
		for _, row := range side {
			if _, dup := seen[row.Key()]; dup {
				continue
			}
			seen[row.Key()] = struct{}{}
			merged = append(merged, row)
		}
	}
	return merged
}

// UserColumns is the column set of the users table.
func UserColumns() []Column[records.Record] {
	return []Column[records.Record]{
		{ID: "id", Header: "ID", Kind: Numeric, Width: 6, Value: func(r records.Record) any { return r.ID }},
		{ID: "firstName", Header: "First Name", Width: 14, Value: func(r records.Record) any { return r.FirstName }},
		{ID: "lastName", Header: "Last Name", Width: 14, Value: func(r records.Record) any { return r.LastName }},
		{ID: "email", Header: "Email", Width: 28, Value: func(r records.Record) any { return r.Email }},
		{ID: "phone", Header: "Phone", Width: 18, Value: func(r records.Record) any { return r.Phone }},
		{ID: "age", Header: "Age", Kind: Numeric, Width: 5, Value: func(r records.Record) any { return r.Age }},
		{ID: "birthDate", Header: "Birth Date", Width: 12, Value: func(r records.Record) any { return r.BirthDate }},
	}
}

// ProductColumns is the column set of the products table.
func ProductColumns() []Column[records.Product] {
	return []Column[records.Product]{
		{ID: "id", Header: "ID", Kind: Numeric, Width: 6, Value: func(p records.Product) any { return p.ID }},
		{ID: "title", Header: "Product Name", Width: 28, Value: func(p records.Product) any { return p.Title }},
		{ID: "brand", Header: "Brand", Width: 16, Value: func(p records.Product) any { return p.Brand }},
		{ID: "category", Header: "Category", Width: 16, Value: func(p records.Product) any { return p.Category }},
		{ID: "price", Header: "Price", Kind: Numeric, Width: 10, Value: func(p records.Product) any { return p.Price }},
		{ID: "rating", Header: "Rating", Kind: Numeric, Width: 7, Value: func(p records.Product) any { return p.Rating }},
		{ID: "stock", Header: "Stock", Kind: Numeric, Width: 7, Value: func(p records.Product) any { return p.Stock }},
	}
}
