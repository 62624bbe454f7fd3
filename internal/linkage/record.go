package linkage

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RecordID identifies one data row of one source file.
type RecordID struct {
	Source string
	Row    int
}

func (id RecordID) String() string {
	return id.Source + "#" + strconv.Itoa(id.Row)
}

// ParseRecordID reverses RecordID.String. The row index follows the last '#'.
func ParseRecordID(value string) (RecordID, error) {
	idx := strings.LastIndexByte(value, '#')
	if idx <= 0 || idx == len(value)-1 {
		return RecordID{}, fmt.Errorf("record id %q: expected source#row", value)
	}
	row, err := strconv.Atoi(value[idx+1:])
	if err != nil || row < 0 {
		return RecordID{}, fmt.Errorf("record id %q: invalid row index", value)
	}
	return RecordID{Source: value[:idx], Row: row}, nil
}

func (id RecordID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *RecordID) UnmarshalText(text []byte) error {
	parsed, err := ParseRecordID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// Value is a normalized field value. Valid is false for the absent marker.
type Value struct {
	Text  string
	Valid bool
}

// Present returns a valid Value.
func Present(text string) Value { return Value{Text: text, Valid: true} }

// Absent returns the absent marker.
func Absent() Value { return Value{} }

func (v Value) MarshalJSON() ([]byte, error) {
	if !v.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(v.Text)
}

func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = Value{}
		return nil
	}
	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return err
	}
	*v = Value{Text: text, Valid: text != ""}
	return nil
}

// Record maps field names to normalized values. The zero Record has no
// fields. Records are never mutated after construction.
type Record struct {
	values map[string]Value
}

// NewRecord copies values into a new Record.
func NewRecord(values map[string]Value) Record {
	cp := make(map[string]Value, len(values))
	for k, v := range values {
		if v.Text == "" {
			v = Value{}
		}
		cp[k] = v
	}
	return Record{values: cp}
}

// Get returns the value for field and false when the field is absent or
// unknown.
func (r Record) Get(field string) (string, bool) {
	v, ok := r.values[field]
	if !ok || !v.Valid {
		return "", false
	}
	return v.Text, true
}

// Fields returns the field names in sorted order.
func (r Record) Fields() []string {
	names := make([]string, 0, len(r.values))
	for name := range r.values {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports the number of fields, absent ones included.
func (r Record) Len() int { return len(r.values) }

func (r Record) MarshalJSON() ([]byte, error) {
	if r.values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.values)
}

func (r *Record) UnmarshalJSON(data []byte) error {
	var values map[string]Value
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	*r = NewRecord(values)
	return nil
}

// Dataset holds the rows of one source file in file order.
type Dataset struct {
	Source string
	Header []string

	ids     []RecordID
	records map[RecordID]Record
	raw     map[RecordID][]string
}

// NewDataset creates an empty dataset for source.
func NewDataset(source string, header []string) *Dataset {
	return &Dataset{
		Source:  source,
		Header:  append([]string(nil), header...),
		records: make(map[RecordID]Record),
		raw:     make(map[RecordID][]string),
	}
}

// Append adds the next row and returns its RecordID.
func (d *Dataset) Append(record Record, raw []string) RecordID {
	id := RecordID{Source: d.Source, Row: len(d.ids)}
	d.ids = append(d.ids, id)
	d.records[id] = record
	d.raw[id] = append([]string(nil), raw...)
	return id
}

// Len reports the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.ids)
}

// IDs returns the record ids in file order.
func (d *Dataset) IDs() []RecordID {
	if d == nil {
		return nil
	}
	return append([]RecordID(nil), d.ids...)
}

// Record returns the normalized record for id.
func (d *Dataset) Record(id RecordID) (Record, bool) {
	if d == nil {
		return Record{}, false
	}
	r, ok := d.records[id]
	return r, ok
}

// Raw returns the original, un-normalized row values for id.
func (d *Dataset) Raw(id RecordID) ([]string, bool) {
	if d == nil {
		return nil, false
	}
	row, ok := d.raw[id]
	if !ok {
		return nil, false
	}
	return append([]string(nil), row...), true
}
