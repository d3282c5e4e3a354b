package main

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/wilsonzlin/aerojit/wasm"
)

var sectionNames = map[byte]string{
	0: "custom", 1: "type", 2: "import", 3: "function", 4: "table",
	5: "memory", 6: "global", 7: "export", 8: "start", 9: "element",
	10: "code", 11: "data", 12: "data count",
}

var kindNames = map[byte]string{0: "func", 1: "table", 2: "memory", 3: "global"}

// cursor walks an encoded section payload; the first malformed read sticks.
type cursor struct {
	b   []byte
	off int
	err error
}

func (c *cursor) u() uint64 {
	if c.err != nil {
		return 0
	}
	v, n := wasm.Uleb128(c.b[c.off:])
	if n == 0 {
		c.err = fmt.Errorf("truncated varint at offset %d", c.off)
		return 0
	}
	c.off += n
	return v
}

func (c *cursor) byte() byte {
	if c.err != nil {
		return 0
	}
	if c.off >= len(c.b) {
		c.err = fmt.Errorf("truncated byte at offset %d", c.off)
		return 0
	}
	b := c.b[c.off]
	c.off++
	return b
}

func (c *cursor) name() string {
	n := int(c.u())
	if c.err != nil {
		return ""
	}
	if c.off+n > len(c.b) {
		c.err = fmt.Errorf("truncated name at offset %d", c.off)
		return ""
	}
	s := string(c.b[c.off : c.off+n])
	c.off += n
	return s
}

func (c *cursor) limits() string {
	flags := c.byte()
	min := c.u()
	switch flags {
	case 0x00:
		return fmt.Sprintf("min %d", min)
	case 0x01:
		return fmt.Sprintf("min %d, max %d", min, c.u())
	case 0x03:
		return fmt.Sprintf("min %d, max %d, shared", min, c.u())
	}
	if c.err == nil {
		c.err = fmt.Errorf("unknown limits flags %#x", flags)
	}
	return ""
}

// moduleTree renders the section layout of an encoded module with import,
// memory, and export entries spelled out.
func moduleTree(mod []byte) (treeprint.Tree, error) {
	magic := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	if len(mod) < len(magic) || string(mod[:8]) != string(magic) {
		return nil, fmt.Errorf("not a wasm module")
	}
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("module (%d bytes)", len(mod)))

	off := 8
	for off < len(mod) {
		id := mod[off]
		off++
		size, n := wasm.Uleb128(mod[off:])
		if n == 0 || off+n+int(size) > len(mod) {
			return nil, fmt.Errorf("truncated section %d at offset %d", id, off)
		}
		off += n
		payload := mod[off : off+int(size)]
		off += int(size)

		name, ok := sectionNames[id]
		if !ok {
			name = fmt.Sprintf("id %d", id)
		}
		branch := tree.AddBranch(fmt.Sprintf("%s section (%d bytes)", name, size))

		var err error
		switch id {
		case 2:
			err = addImports(branch, payload)
		case 5:
			err = addMemories(branch, payload)
		case 7:
			err = addExports(branch, payload)
		case 3, 10:
			c := cursor{b: payload}
			if count := c.u(); c.err == nil {
				branch.AddNode(fmt.Sprintf("%d functions", count))
			}
			err = c.err
		}
		if err != nil {
			return nil, fmt.Errorf("%s section: %w", name, err)
		}
	}
	return tree, nil
}

func addImports(branch treeprint.Tree, payload []byte) error {
	c := cursor{b: payload}
	count := c.u()
	for i := uint64(0); i < count && c.err == nil; i++ {
		module, field := c.name(), c.name()
		switch kind := c.byte(); kind {
		case 0x00:
			branch.AddNode(fmt.Sprintf("func %s.%s (type %d)", module, field, c.u()))
		case 0x02:
			branch.AddNode(fmt.Sprintf("memory %s.%s (%s)", module, field, c.limits()))
		default:
			return fmt.Errorf("unsupported import kind %#x", kind)
		}
	}
	return c.err
}

func addMemories(branch treeprint.Tree, payload []byte) error {
	c := cursor{b: payload}
	count := c.u()
	for i := uint64(0); i < count && c.err == nil; i++ {
		branch.AddNode(fmt.Sprintf("memory (%s)", c.limits()))
	}
	return c.err
}

func addExports(branch treeprint.Tree, payload []byte) error {
	c := cursor{b: payload}
	count := c.u()
	for i := uint64(0); i < count && c.err == nil; i++ {
		name := c.name()
		kind, ok := kindNames[c.byte()]
		if !ok {
			kind = "?"
		}
		branch.AddNode(fmt.Sprintf("%s %q (index %d)", kind, name, c.u()))
	}
	return c.err
}
