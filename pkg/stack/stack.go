package stack

// Stack is a slice-backed LIFO of T.
type Stack[T any] struct {
	a []T
}

// NewStack creates a new stack holding elm, bottom first
func NewStack[T any](elm ...T) *Stack[T] {
	s := Stack[T]{a: make([]T, 0, len(elm)+8)}
	s.a = append(s.a, elm...)
	return &s
}

// Push adds an element to the top of the stack
func (s *Stack[T]) Push(elm T) {
	s.a = append(s.a, elm)
}

// Pop removes and returns the top element of the stack
func (s *Stack[T]) Pop() (T, bool) {
	var zero T
	if len(s.a) == 0 {
		return zero, false
	}

	n := len(s.a) - 1
	elm := s.a[n]
	s.a[n] = zero
	s.a = s.a[:n]

	return elm, true
}

// Peek returns the top element of the stack without removing it
func (s *Stack[T]) Peek() (T, bool) {
	if len(s.a) == 0 {
		var zero T
		return zero, false
	}

	return s.a[len(s.a)-1], true
}

// At returns the element i positions from the bottom
func (s *Stack[T]) At(i int) (T, bool) {
	if i < 0 || i >= len(s.a) {
		var zero T
		return zero, false
	}

	return s.a[i], true
}

// Size returns the number of elements on the stack
func (s *Stack[T]) Size() int {
	return len(s.a)
}

// Array returns the underlying array of the stack, bottom first
func (s *Stack[T]) Array() []T {
	return s.a
}
