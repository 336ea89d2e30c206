package changeslog

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ValueProjector turns a non-nil property value into the string stored in the
// changes log. declared is the property's declared type, which may be an
// interface or pointer type wider than the dynamic type of value.
type ValueProjector func(declared reflect.Type, value any) string

// Projector is a ValueProjector with per-type formatters.
type Projector struct {
	mu         sync.RWMutex
	formatters map[reflect.Type]func(any) string
}

// NewProjector creates a projector with no custom formatters.
func NewProjector() *Projector {
	return &Projector{formatters: make(map[reflect.Type]func(any) string)}
}

// RegisterFormatter makes p render values of type T with format.
func RegisterFormatter[T any](p *Projector, format func(T) string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.formatters[reflect.TypeFor[T]()] = func(v any) string { return format(v.(T)) }
}

// Project implements ValueProjector.
func (p *Projector) Project(declared reflect.Type, value any) string {
	if value == nil {
		return ""
	}

	p.mu.RLock()
	format, ok := p.formatters[reflect.TypeOf(value)]
	if !ok && declared != nil {
		format, ok = p.formatters[declared]
	}
	p.mu.RUnlock()
	if ok {
		return format(value)
	}

	return projectValue(value)
}

func projectValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case *string:
		return *v
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case *time.Time:
		return v.Format(time.RFC3339)
	case uuid.UUID:
		return v.String()
	case decimal.Decimal:
		return v.String()
	case fmt.Stringer:
		return v.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	}

	rv := reflect.ValueOf(value)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		return projectValue(rv.Elem().Interface())
	}
	return fmt.Sprint(value)
}

var defaultProjector = NewProjector()

// DefaultProjector formats scalars and anything implementing fmt.Stringer.
var DefaultProjector ValueProjector = defaultProjector.Project
