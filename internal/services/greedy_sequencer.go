package services

import (
	"fmt"
)

// SequenceGreedy orders the indices of a square cost matrix starting at start, always moving
// to the cheapest unvisited index. The matrix may hold distances, static durations or
// traffic-weighted durations. Ties go to the lowest index; +Inf costs are still visited last.
//
// The returned permutation begins with start and contains every index exactly once.
func SequenceGreedy(cost [][]float64, start int) ([]int, error) {
	n := len(cost)
	if n == 0 {
		return []int{}, nil
	}
	for i, row := range cost {
		if len(row) != n {
			return nil, fmt.Errorf("%w: cost matrix row %d has %d columns, want %d", ErrInvalidInput, i, len(row), n)
		}
	}
	if start < 0 || start >= n {
		return nil, fmt.Errorf("%w: start index %d out of range [0,%d)", ErrInvalidInput, start, n)
	}

	visited := make([]bool, n)
	path := make([]int, 0, n)
	path = append(path, start)
	visited[start] = true
	current := start

	for len(path) < n {
		next := -1
		for j := 0; j < n; j++ {
			if visited[j] {
				continue
			}
			if next == -1 || cost[current][j] < cost[current][next] {
				next = j
			}
		}

		path = append(path, next)
		visited[next] = true
		current = next
	}

	return path, nil
}
