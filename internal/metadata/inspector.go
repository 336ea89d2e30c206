package metadata

import (
	"reflect"
	"slices"
)

// DBColumns extracts all column names from struct "db" tags, descending into
// embedded structs (entity.BaseEntity, entity.SoftDeleted, ...).
func DBColumns(t reflect.Type) []string {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var cols []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if field.Anonymous {
			cols = append(cols, DBColumns(field.Type)...)
			continue
		}

		tag := field.Tag.Get("db")
		if tag == "" || tag == "-" {
			continue
		}
		cols = append(cols, tag)
	}
	return cols
}

// missingColumns returns declared columns the scanner could not populate.
func missingColumns(t reflect.Type, declared []string) []string {
	tagged := DBColumns(t)
	var missing []string
	for _, col := range declared {
		if !slices.Contains(tagged, col) {
			missing = append(missing, col)
		}
	}
	return missing
}
