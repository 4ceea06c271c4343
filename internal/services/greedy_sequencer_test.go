package services

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestSequenceGreedy(t *testing.T) {
	inf := math.Inf(1)

	tests := []struct {
		name  string
		cost  [][]float64
		start int
		want  []int
	}{
		{
			name: "cheapest next",
			cost: [][]float64{
				{0, 5, 1, 9},
				{5, 0, 4, 2},
				{1, 4, 0, 3},
				{9, 2, 3, 0},
			},
			start: 0,
			want:  []int{0, 2, 3, 1},
		},
		{
			name: "ties take lowest index",
			cost: [][]float64{
				{0, 1, 1},
				{1, 0, 1},
				{1, 1, 0},
			},
			start: 0,
			want:  []int{0, 1, 2},
		},
		{
			name: "unreachable still visited",
			cost: [][]float64{
				{0, inf, inf},
				{inf, 0, inf},
				{inf, inf, 0},
			},
			start: 0,
			want:  []int{0, 1, 2},
		},
		{
			name: "unreachable visited last",
			cost: [][]float64{
				{0, inf, 7},
				{1, 0, 1},
				{3, inf, 0},
			},
			start: 0,
			want:  []int{0, 2, 1},
		},
		{
			name: "non-zero start",
			cost: [][]float64{
				{0, 5, 1, 9},
				{5, 0, 4, 2},
				{1, 4, 0, 3},
				{9, 2, 3, 0},
			},
			start: 3,
			want:  []int{3, 1, 2, 0},
		},
		{
			name:  "single",
			cost:  [][]float64{{0}},
			start: 0,
			want:  []int{0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SequenceGreedy(tt.cost, tt.start)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("path = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSequenceGreedyRejectsBadInput(t *testing.T) {
	if _, err := SequenceGreedy([][]float64{{0, 1}, {1}}, 0); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("ragged matrix: err = %v, want ErrInvalidInput", err)
	}
	if _, err := SequenceGreedy([][]float64{{0}}, 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("start out of range: err = %v, want ErrInvalidInput", err)
	}
}
