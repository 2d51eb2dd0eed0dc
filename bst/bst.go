// Package bst implements the threaded binary search tree from spec section
// 4.7: an unbalanced BST whose empty child slots are replaced by "thread"
// pointers to the in-order predecessor/successor, so removal never needs
// to touch more than a small, bounded neighbourhood of fields — all of
// them updated together through one package mcas transaction, so a
// concurrent reader never observes a half-finished restructuring.
//
// No repo in this corpus implements a threaded BST; the four removal cases
// and their field sets are grounded directly in spec section 4.7's
// description, built on package mcas for the atomic multi-field commit and
// constraints.Ordered (the teacher's declared golang.org/x/exp dependency)
// for the key order.
package bst

import (
	"golang.org/x/exp/constraints"

	"github.com/joeycumines/go-lockfree/mcas"
)

type linkKind int8

const (
	linkThread linkKind = iota
	linkChild
)

// link is a child slot's content: either a thread to the in-order
// neighbour (node may be nil at the tree's two extremes) or a pointer to a
// real child subtree.
type link[K constraints.Ordered, V any] struct {
	kind linkKind
	node *treeNode[K, V]
}

// treeNode holds every mutable field behind its own mcas.Word, since any
// structural change (insert, remove, successor-copy on two-child removal)
// may need to move several of them atomically together.
type treeNode[K constraints.Ordered, V any] struct {
	key   *mcas.Word // holds K
	value *mcas.Word // holds *V; nil *V marks the node BEING_DELETED
	left  *mcas.Word // holds link[K, V]
	right *mcas.Word // holds link[K, V]
}

func newTreeNode[K constraints.Ordered, V any](key K, value V, left, right link[K, V]) *treeNode[K, V] {
	return &treeNode[K, V]{
		key:   mcas.NewWord(key),
		value: mcas.NewWord(&value),
		left:  mcas.NewWord(left),
		right: mcas.NewWord(right),
	}
}

func (n *treeNode[K, V]) readKey() K { return n.key.Read().(K) }

func (n *treeNode[K, V]) readLeft() link[K, V] { return n.left.Read().(link[K, V]) }

func (n *treeNode[K, V]) readRight() link[K, V] { return n.right.Read().(link[K, V]) }

// Tree is a threaded binary search tree, safe for any number of concurrent
// Find/Update/Remove callers. The zero value is not usable; construct with
// New.
type Tree[K constraints.Ordered, V any] struct {
	root *mcas.Word // holds *treeNode[K, V]; typed-nil means empty
}

// New constructs an empty Tree.
func New[K constraints.Ordered, V any]() *Tree[K, V] {
	return &Tree[K, V]{root: mcas.NewWord((*treeNode[K, V])(nil))}
}

func (t *Tree[K, V]) readRoot() *treeNode[K, V] {
	n, _ := t.root.Read().(*treeNode[K, V])
	return n
}

// Find searches from the root, cooperating with any in-progress MCAS via
// mcas.Word.Read at every field access, and returns the value stored at
// key. A node whose value has been nulled by a concurrent Remove (the
// implicit BEING_DELETED state) reads back as not-found; it will shortly
// be fully unlinked.
func (t *Tree[K, V]) Find(key K) (value V, ok bool) {
	n := t.readRoot()
	for n != nil {
		nk := n.readKey()
		switch {
		case key < nk:
			l := n.readLeft()
			if l.kind != linkChild {
				return value, false
			}
			n = l.node
		case key > nk:
			r := n.readRight()
			if r.kind != linkChild {
				return value, false
			}
			n = r.node
		default:
			vp, _ := n.value.Read().(*V)
			if vp == nil {
				return value, false
			}
			return *vp, true
		}
	}
	return value, false
}

// Contains reports whether key is present and not under concurrent
// deletion.
func (t *Tree[K, V]) Contains(key K) bool {
	_, ok := t.Find(key)
	return ok
}

// Update sets key's value, inserting a new node if key is not yet present.
// Insertion publishes the new node through the parent-side child pointer in
// a single MCAS; the new node's own thread pointers are set before it is
// published.
func (t *Tree[K, V]) Update(key K, value V) {
outer:
	for {
		root := t.readRoot()
		if root == nil {
			newNode := newTreeNode[K, V](key, value, link[K, V]{kind: linkThread}, link[K, V]{kind: linkThread})
			if mcas.MCAS([]*mcas.Word{t.root}, []any{(*treeNode[K, V])(nil)}, []any{newNode}) {
				return
			}
			continue outer
		}

		parent := root
		for {
			pk := parent.readKey()

			if key < pk {
				l := parent.readLeft()
				if l.kind == linkChild {
					parent = l.node
					continue
				}
				pred := l.node
				newNode := newTreeNode[K, V](key, value,
					link[K, V]{kind: linkThread, node: pred},
					link[K, V]{kind: linkThread, node: parent})

				words := []*mcas.Word{parent.left}
				expected := []any{l}
				newVals := []any{link[K, V]{kind: linkChild, node: newNode}}
				if pred != nil {
					predRight := pred.readRight()
					words = append(words, pred.right)
					expected = append(expected, predRight)
					newVals = append(newVals, link[K, V]{kind: linkThread, node: newNode})
				}
				if mcas.MCAS(words, expected, newVals) {
					return
				}
				continue outer
			}

			if key > pk {
				r := parent.readRight()
				if r.kind == linkChild {
					parent = r.node
					continue
				}
				succ := r.node
				newNode := newTreeNode[K, V](key, value,
					link[K, V]{kind: linkThread, node: parent},
					link[K, V]{kind: linkThread, node: succ})

				words := []*mcas.Word{parent.right}
				expected := []any{r}
				newVals := []any{link[K, V]{kind: linkChild, node: newNode}}
				if mcas.MCAS(words, expected, newVals) {
					return
				}
				continue outer
			}

			// key == pk: update in place, conditioned on the node not
			// already being removed (spec section 4.7's "non-null value").
			curVal := parent.value.Read()
			if curVal.(*V) == nil {
				continue outer
			}
			nv := value
			if mcas.MCAS([]*mcas.Word{parent.value}, []any{curVal}, []any{any(&nv)}) {
				return
			}
			continue outer
		}
	}
}

// Remove deletes key if present, returning whether it was. It dispatches
// on the victim's child shape (spec section 4.7's four removal cases) and
// commits the whole restructuring — parent link, thread-pointer repairs,
// and the victim's value going to nil — as one MCAS. A losing MCAS (the
// tree changed underneath) restarts the whole operation from the root.
func (t *Tree[K, V]) Remove(key K) bool {
	for {
		root := t.readRoot()
		if root == nil {
			return false
		}

		var parent *treeNode[K, V]
		var onLeft bool
		victim := root
		found := true
		for {
			vk := victim.readKey()
			if key < vk {
				l := victim.readLeft()
				if l.kind != linkChild {
					found = false
					break
				}
				parent, onLeft, victim = victim, true, l.node
				continue
			}
			if key > vk {
				r := victim.readRight()
				if r.kind != linkChild {
					found = false
					break
				}
				parent, onLeft, victim = victim, false, r.node
				continue
			}
			break
		}
		if !found {
			return false
		}

		curVal := victim.value.Read()
		if curVal.(*V) == nil {
			return false
		}

		vLeft := victim.readLeft()
		vRight := victim.readRight()

		var committed bool
		switch {
		case vLeft.kind == linkThread && vRight.kind == linkThread:
			committed = t.removeLeaf(parent, onLeft, victim, vLeft, vRight, curVal)
		case vLeft.kind == linkChild && vRight.kind == linkThread:
			committed = t.removeWithLeftChild(parent, onLeft, victim, vLeft, vRight, curVal)
		case vLeft.kind == linkThread && vRight.kind == linkChild:
			committed = t.removeWithRightChild(parent, onLeft, victim, vLeft, vRight, curVal)
		default:
			committed = t.removeWithTwoChildren(victim, vRight, curVal)
		}

		if committed {
			return true
		}
		// lost the race (structure changed, or an in-flight neighbour
		// update moved underneath us); restart the whole removal
	}
}

// parentLink returns the word, expected value, and new value needed to
// repoint parent's link to victim at newTarget, or (when parent is nil,
// i.e. victim is the root) the equivalent triple for the tree's root word.
func (t *Tree[K, V]) parentLink(parent *treeNode[K, V], onLeft bool, victim *treeNode[K, V], newTarget link[K, V]) (word *mcas.Word, expected, newVal any) {
	if parent == nil {
		return t.root, any(victim), any(newTarget.childOrNil())
	}
	if onLeft {
		return parent.left, link[K, V]{kind: linkChild, node: victim}, newTarget
	}
	return parent.right, link[K, V]{kind: linkChild, node: victim}, newTarget
}

// childOrNil converts a link meant to replace the root word (which holds a
// bare *treeNode, not a link) into that bare form: a child link's node, or
// a typed nil for an (impossible at the root, but handled) thread link.
func (l link[K, V]) childOrNil() any {
	if l.kind == linkChild {
		return l.node
	}
	var zero *treeNode[K, V]
	return zero
}

// removeLeaf handles spec section 4.7's case where both of victim's
// children are threads: it has no real subtree at all. No node threads to
// such a victim: its predecessor and successor (victim's own thread
// targets) each reach it through a real child link, and one of the two is
// victim's parent (a left child's successor and a right child's
// predecessor are always its parent). So besides victim's value, only the
// parent-link word changes: it becomes a thread to whichever neighbour lies
// on victim's side of the parent.
func (t *Tree[K, V]) removeLeaf(parent *treeNode[K, V], onLeft bool, victim *treeNode[K, V], vLeft, vRight link[K, V], curVal any) bool {
	pred := vLeft.node
	succ := vRight.node

	words := []*mcas.Word{victim.value}
	expected := []any{curVal}
	newVals := []any{(*V)(nil)}

	var newTarget link[K, V]
	if onLeft {
		newTarget = link[K, V]{kind: linkThread, node: pred}
	} else {
		newTarget = link[K, V]{kind: linkThread, node: succ}
	}
	w, e, nv := t.parentLink(parent, onLeft, victim, newTarget)
	words = append(words, w)
	expected = append(expected, e)
	newVals = append(newVals, nv)

	return mcas.MCAS(words, expected, newVals)
}

// removeWithLeftChild handles victim having a real left subtree L and a
// thread right (to its own successor sv). L's rightmost node m is victim's
// immediate in-order predecessor and, by the threading invariant, already
// threads forward to victim; m takes victim's place as the predecessor of
// sv once victim is spliced out.
func (t *Tree[K, V]) removeWithLeftChild(parent *treeNode[K, V], onLeft bool, victim *treeNode[K, V], vLeft, vRight link[K, V], curVal any) bool {
	l := vLeft.node
	sv := vRight.node

	m := l
	mRight := m.readRight()
	for mRight.kind == linkChild {
		m = mRight.node
		mRight = m.readRight()
	}

	words := []*mcas.Word{victim.value, m.right}
	expected := []any{curVal, mRight}
	newVals := []any{(*V)(nil), link[K, V]{kind: linkThread, node: sv}}

	w, e, nv := t.parentLink(parent, onLeft, victim, link[K, V]{kind: linkChild, node: l})
	words = append(words, w)
	expected = append(expected, e)
	newVals = append(newVals, nv)

	// Skip this update when sv is victim's own parent (only possible when
	// victim is its parent's left child, which is exactly when a thread
	// right always points at the parent): the parent-link update above
	// already repoints parent.left to child(l), and sv.left is the very
	// same mcas.Word — adding it again would target one word twice.
	if sv != nil && sv != parent {
		svLeft := sv.readLeft()
		words = append(words, sv.left)
		expected = append(expected, svLeft)
		newVals = append(newVals, link[K, V]{kind: linkThread, node: m})
	}

	return mcas.MCAS(words, expected, newVals)
}

// removeWithRightChild is removeWithLeftChild's mirror: victim has a
// thread left (to its predecessor pv) and a real right subtree r, whose
// leftmost node n is victim's immediate in-order successor.
func (t *Tree[K, V]) removeWithRightChild(parent *treeNode[K, V], onLeft bool, victim *treeNode[K, V], vLeft, vRight link[K, V], curVal any) bool {
	r := vRight.node
	pv := vLeft.node

	n := r
	nLeft := n.readLeft()
	for nLeft.kind == linkChild {
		n = nLeft.node
		nLeft = n.readLeft()
	}

	words := []*mcas.Word{victim.value, n.left}
	expected := []any{curVal, nLeft}
	newVals := []any{(*V)(nil), link[K, V]{kind: linkThread, node: pv}}

	w, e, nv := t.parentLink(parent, onLeft, victim, link[K, V]{kind: linkChild, node: r})
	words = append(words, w)
	expected = append(expected, e)
	newVals = append(newVals, nv)

	// pv itself needs no update: it reaches victim through a real right
	// child link (or is victim's parent, covered by the parent-link update).

	return mcas.MCAS(words, expected, newVals)
}

// removeWithTwoChildren handles victim having two real subtrees: its
// in-order successor s (the leftmost node of victim's right subtree r) is
// found, and its key/value are copied into victim in place; s itself is
// then spliced out of its original position using the same thread-repair
// patterns as the single-child cases above, since s (being leftmost) is
// always thread-left. Victim's own parent link is untouched — only its
// key and value fields change.
func (t *Tree[K, V]) removeWithTwoChildren(victim *treeNode[K, V], vRight link[K, V], curVal any) bool {
	r := vRight.node

	var sp *treeNode[K, V]
	s := r
	sLeft := s.readLeft()
	for sLeft.kind == linkChild {
		sp = s
		s = sLeft.node
		sLeft = s.readLeft()
	}

	sRight := s.readRight()
	sVal := s.value.Read()
	if sVal.(*V) == nil {
		return false // s is concurrently being removed; let the caller retry
	}
	sKey := s.readKey()
	victimKey := victim.readKey()

	words := []*mcas.Word{victim.key, victim.value, s.value}
	expected := []any{any(victimKey), curVal, sVal}
	newVals := []any{sKey, sVal, (*V)(nil)}

	if sRight.kind == linkThread {
		successor := sRight.node
		if sp == nil {
			// s == r itself: victim's right slot must skip s entirely.
			words = append(words, victim.right)
			expected = append(expected, link[K, V]{kind: linkChild, node: r})
			newVals = append(newVals, link[K, V]{kind: linkThread, node: successor})
		} else {
			words = append(words, sp.left)
			expected = append(expected, link[K, V]{kind: linkChild, node: s})
			newVals = append(newVals, link[K, V]{kind: linkThread, node: victim})

			// successor == sp whenever s is sp's left child with no right
			// subtree of its own (s's thread-right then necessarily points
			// back at sp); the sp.left update above already sets that same
			// mcas.Word to the value this step wants, so skip the repeat.
			if successor != nil && successor != sp {
				succLeft := successor.readLeft()
				words = append(words, successor.left)
				expected = append(expected, succLeft)
				newVals = append(newVals, link[K, V]{kind: linkThread, node: victim})
			}
		}
	} else {
		sr := sRight.node
		n := sr
		nLeft := n.readLeft()
		for nLeft.kind == linkChild {
			n = nLeft.node
			nLeft = n.readLeft()
		}

		if sp == nil {
			words = append(words, victim.right)
			expected = append(expected, link[K, V]{kind: linkChild, node: r})
			newVals = append(newVals, link[K, V]{kind: linkChild, node: sr})
		} else {
			words = append(words, sp.left)
			expected = append(expected, link[K, V]{kind: linkChild, node: s})
			newVals = append(newVals, link[K, V]{kind: linkChild, node: sr})
		}

		words = append(words, n.left)
		expected = append(expected, nLeft)
		newVals = append(newVals, link[K, V]{kind: linkThread, node: victim})
	}

	return mcas.MCAS(words, expected, newVals)
}
