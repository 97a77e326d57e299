package schema

import "fmt"

// SchemaError reports a declared column that the loaded source does not
// expose, or a column declared with two incompatible roles.
type SchemaError struct {
	Source string
	Column string
	Msg    string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema: source %q: column %q: %s", e.Source, e.Column, e.Msg)
}

// DateParseError reports a date column value that matches no known layout.
// Row is the 1-based data row.
type DateParseError struct {
	Source string
	Column string
	Row    int
	Value  any
}

func (e *DateParseError) Error() string {
	return fmt.Sprintf("schema: source %q: column %q row %d: cannot parse %q as a date", e.Source, e.Column, e.Row, fmt.Sprint(e.Value))
}

// MetricTypeError reports a non-null metric value that is not numeric.
type MetricTypeError struct {
	Source string
	Column string
	Row    int
	Value  any
}

func (e *MetricTypeError) Error() string {
	return fmt.Sprintf("schema: source %q: column %q row %d: value %q (%T) is not numeric", e.Source, e.Column, e.Row, fmt.Sprint(e.Value), e.Value)
}
