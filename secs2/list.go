package secs2

import (
	"strconv"
	"strings"
)

// ListItem represents an ordered list of items in a SECS-II message.
//
// The size of a ListItem is the number of its direct children, which is also the value carried
// in its encoded header.
type ListItem struct {
	baseItem
	values []Item
}

// NewListItem creates a new ListItem holding the given items. Nil items are skipped.
func NewListItem(values ...Item) Item {
	item := &ListItem{values: make([]Item, 0, len(values))}
	for _, value := range values {
		if value == nil {
			continue
		}
		item.values = append(item.values, value)
	}

	if len(item.values) > MaxByteSize {
		item.setError(newItemError("list size %d exceeds %d", len(item.values), MaxByteSize))
	}

	return item
}

// Get retrieves the nested item at the given indices, e.g. Get(1, 0) returns the first child
// of the second child.
func (item *ListItem) Get(indices ...int) (Item, error) {
	var current Item = item
	for _, idx := range indices {
		list, ok := current.(*ListItem)
		if !ok {
			return nil, newItemError("item %s is not a list, indices %v", current.Type(), indices)
		}

		if idx < 0 || idx >= len(list.values) {
			return nil, newItemError("index %d out of range [0, %d), indices %v", idx, len(list.values), indices)
		}
		current = list.values[idx]
	}

	return current, nil
}

// ToList returns the child items.
func (item *ListItem) ToList() ([]Item, error) {
	return item.values, nil
}

func (item *ListItem) Size() int {
	return len(item.values)
}

// Values returns the child items as []Item.
func (item *ListItem) Values() any {
	return item.values
}

func (item *ListItem) ToBytes() []byte {
	data, err := Encode(item)
	if err != nil {
		return nil
	}

	return data
}

func (item *ListItem) appendBytes(dst []byte) ([]byte, error) {
	if item.itemErr != nil {
		return dst, &EncodeError{Kind: InvalidValue, Type: ListType, Err: item.itemErr}
	}

	dst, err := appendHeader(dst, ListType, len(item.values))
	if err != nil {
		return dst, err
	}

	for _, child := range item.values {
		dst, err = child.appendBytes(dst)
		if err != nil {
			return dst, err
		}
	}

	return dst, nil
}

// ToSML renders the list with one child per line, indented by nesting level.
//
//	<L[2]
//	  <A[4] "MDLN">
//	  <A[3] "1.0">
//	>
func (item *ListItem) ToSML() string {
	var sb strings.Builder
	item.writeSML(&sb, 0)

	return sb.String()
}

func (item *ListItem) writeSML(sb *strings.Builder, level int) {
	indent := strings.Repeat("  ", level)
	sb.WriteString(indent)

	if len(item.values) == 0 {
		sb.WriteString("<L[0]>")
		return
	}

	sb.WriteString("<L[")
	sb.WriteString(strconv.Itoa(len(item.values)))
	sb.WriteString("]\n")

	for _, child := range item.values {
		if list, ok := child.(*ListItem); ok {
			list.writeSML(sb, level+1)
		} else {
			sb.WriteString(indent)
			sb.WriteString("  ")
			sb.WriteString(child.ToSML())
		}
		sb.WriteByte('\n')
	}

	sb.WriteString(indent)
	sb.WriteByte('>')
}

func (item *ListItem) Clone() Item {
	values := make([]Item, 0, len(item.values))
	for _, v := range item.values {
		values = append(values, v.Clone())
	}

	return &ListItem{values: values}
}

func (item *ListItem) Type() string { return ListType }

func (item *ListItem) IsList() bool { return true }
