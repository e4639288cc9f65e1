package clone_test

import (
	"errors"
	"fmt"
	"sync"

	"github.com/openfroyo/deepclone/pkg/clone"
)

type Node struct {
	Name     string
	Next     *Node
	OnChange func()
	mu       sync.Mutex
}

// ExampleClone shows that cycles and sharing survive a deep copy.
func ExampleClone() {
	a := &Node{Name: "a"}
	b := &Node{Name: "b", Next: a}
	a.Next = b

	c := clone.Clone(a)
	fmt.Println(c != a, c.Next.Name, c.Next.Next == c)
	// Output: true b true
}

// ExampleClone_eventFields shows that event fields are not carried over.
func ExampleClone_eventFields() {
	n := &Node{Name: "n", OnChange: func() {}}

	c := clone.Clone(n)
	fmt.Println(n.OnChange != nil, c.OnChange == nil)
	// Output: true true
}

// ExampleCopyInto shows the argument contract.
func ExampleCopyInto() {
	dst := &Node{}
	err := clone.CopyInto(&Node{Name: "src"}, dst, true)
	fmt.Println(err, dst.Name)

	err = clone.CopyInto("text", dst, true)
	fmt.Println(errors.Is(err, clone.ErrStringSource))
	// Output:
	// <nil> src
	// true
}
