package param

import (
	"fmt"
	"math"
)

// Access is the cardinality of a slot. The numeric values match the wire encoding.
type Access int

const (
	AccessItem Access = 0
	AccessList Access = 1
	AccessTree Access = 2
)

// Unbounded is the AtMost value used for list parameters
const Unbounded = math.MaxInt32

func (a Access) String() string {
	switch a {
	case AccessItem:
		return "item"
	case AccessList:
		return "list"
	case AccessTree:
		return "tree"
	default:
		return fmt.Sprintf("access(%d)", int(a))
	}
}

// InputAccess picks item cardinality for exactly-one inputs and list otherwise
func InputAccess(atLeast, atMost int) Access {
	if atLeast == 1 && atMost == 1 {
		return AccessItem
	}
	return AccessList
}

// Direction says which side of the node a slot lives on
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)
