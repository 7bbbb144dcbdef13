package board

import "math/rand"

// Randomizer yields the sequence of shapes handed to a player. Instances are
// not safe for concurrent use; each player owns one.
type Randomizer interface {
	Next() Shape
}

// RandomizerKind selects how a Randomizer picks shapes.
type RandomizerKind string

const (
	// RandomizerUniform picks every shape independently with equal odds.
	RandomizerUniform RandomizerKind = "uniform"
	// RandomizerBag deals shuffled bags of all seven shapes.
	RandomizerBag RandomizerKind = "bag"
)

// NewRandomizer builds a randomizer of the given kind. Unknown kinds fall
// back to uniform picks.
func NewRandomizer(kind RandomizerKind, seed int64) Randomizer {
	rng := rand.New(rand.NewSource(seed))
	if kind == RandomizerBag {
		return &bagRandomizer{rng: rng}
	}
	return &uniformRandomizer{rng: rng}
}

type uniformRandomizer struct {
	rng *rand.Rand
}

func (u *uniformRandomizer) Next() Shape {
	return Shapes[u.rng.Intn(len(Shapes))]
}

type bagRandomizer struct {
	rng   *rand.Rand
	queue []Shape
}

func (b *bagRandomizer) Next() Shape {
	if len(b.queue) == 0 {
		b.queue = append(b.queue[:0], Shapes[:]...)
		b.rng.Shuffle(len(b.queue), func(i, j int) {
			b.queue[i], b.queue[j] = b.queue[j], b.queue[i]
		})
	}
	next := b.queue[0]
	b.queue = b.queue[1:]
	return next
}

// Sequence replays a fixed list of shapes in a loop. It is handy for
// deterministic rounds and tests.
type Sequence struct {
	Shapes []Shape
	next   int
}

// Next returns the following shape of the loop.
func (s *Sequence) Next() Shape {
	if len(s.Shapes) == 0 {
		return ShapeO
	}
	shape := s.Shapes[s.next%len(s.Shapes)]
	s.next++
	return shape
}
