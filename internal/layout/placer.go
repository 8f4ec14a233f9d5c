package layout

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/roach88/mdbgen/internal/mdb"
)

// placer runs the single left-to-right placement pass over an effective
// entry list.
type placer struct {
	owner      string
	placements []Placement
	byName     map[string]int
	cursor     int64
	dynamic    int // index of the first dynamic placement, -1 for none
}

func newPlacer(owner string) *placer {
	return &placer{owner: owner, byName: make(map[string]int), dynamic: -1}
}

// placed reports whether an entry named name precedes the cursor.
func (p *placer) placed(name string) (Placement, bool) {
	i, ok := p.byName[name]
	if !ok {
		return Placement{}, false
	}
	return p.placements[i], true
}

// place computes the start bit of pl from its location and advances the
// cursor to its end.
func (p *placer) place(pl Placement) error {
	loc := pl.Location
	var start int64
	switch loc.Reference {
	case mdb.ContainerStart:
		start = loc.OffsetBits
	case mdb.PreviousEntry:
		if p.dynamic >= 0 {
			return &DynamicPlacementError{
				Container: p.owner, Entry: pl.Name, Dynamic: p.placements[p.dynamic].Name,
				Message: "previous-entry location cannot follow a dynamic entry",
			}
		}
		start = p.cursor + loc.OffsetBits
	case mdb.NamedEntry:
		ref, ok := p.placed(loc.Entry)
		if !ok {
			return &DanglingReferenceError{Container: p.owner, Entry: pl.Name, Reference: loc.Entry}
		}
		if ref.Dynamic {
			return &DynamicPlacementError{
				Container: p.owner, Entry: pl.Name, Dynamic: ref.Name,
				Message: "location is anchored to the end of a dynamic entry",
			}
		}
		start = ref.StartBit + ref.SizeBits + loc.OffsetBits
	default:
		return fmt.Errorf("%w: %s: entry %s has unknown location reference %d", ErrResolution, p.owner, pl.Name, loc.Reference)
	}
	if start < 0 {
		return &OffsetError{Container: p.owner, Entry: pl.Name, StartBit: start}
	}

	if p.dynamic >= 0 {
		d := p.placements[p.dynamic]
		if pl.Dynamic {
			return &DynamicPlacementError{
				Container: p.owner, Entry: pl.Name, Dynamic: d.Name,
				Message: "only one dynamic entry is allowed",
			}
		}
		if start+pl.SizeBits > d.StartBit {
			return &DynamicPlacementError{
				Container: p.owner, Entry: pl.Name, Dynamic: d.Name,
				Message: fmt.Sprintf("bits [%d, %d) reach past the dynamic entry start %d", start, start+pl.SizeBits, d.StartBit),
			}
		}
	}

	pl.StartBit = start
	p.placements = append(p.placements, pl)
	idx := len(p.placements) - 1
	p.byName[pl.Name] = idx
	p.cursor = start + pl.SizeBits
	if pl.Dynamic && p.dynamic < 0 {
		p.dynamic = idx
	}
	return nil
}

// finish checks for overlaps and computes the total size. A declared size
// must cover the computed one and then replaces it.
func (p *placer) finish(declared int64) (size int64, dynamic bool, err error) {
	order := make([]int, len(p.placements))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		return cmp.Compare(p.placements[a].StartBit, p.placements[b].StartBit)
	})

	widest := -1
	var reach int64
	for _, i := range order {
		pl := p.placements[i]
		if widest >= 0 && pl.StartBit < reach {
			return 0, false, &OverlapError{
				Container: p.owner,
				First:     p.placements[widest].bitRange(),
				Second:    pl.bitRange(),
			}
		}
		if end := pl.EndBit(); widest < 0 || end > reach {
			reach = end
			widest = i
		}
	}

	for _, pl := range p.placements {
		size = max(size, pl.StartBit+pl.SizeBits)
	}
	dynamic = p.dynamic >= 0

	if declared > 0 {
		if declared < size {
			return 0, false, &SizeMismatchError{Container: p.owner, Declared: declared, Computed: size}
		}
		return declared, false, nil
	}
	return size, dynamic, nil
}
