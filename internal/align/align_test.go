package align

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"

	"github.com/sitetrace/extension/pkg/spatial"
)

func TestSolveScaleOnly(t *testing.T) {
	a := Anchors{
		Model1: r3.Vector{},
		World1: r3.Vector{X: 10},
		Model2: r3.Vector{X: 2},
		World2: r3.Vector{X: 16},
	}
	res, err := Solve(a)
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}
	if res.Scale != 3.0 {
		t.Errorf("Scale = %v, want 3.0", res.Scale)
	}
	if res.Angle != 0 {
		t.Errorf("Angle = %v, want 0", res.Angle)
	}
}

func TestSolveQuarterTurn(t *testing.T) {
	a := Anchors{
		Model1: r3.Vector{},
		World1: r3.Vector{},
		Model2: r3.Vector{X: 1},
		World2: r3.Vector{Z: 1},
	}
	res, err := Solve(a)
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}
	if math.Abs(res.Angle-math.Pi/2) > 1e-12 {
		t.Errorf("Angle = %v, want pi/2", res.Angle)
	}
	wantAxis := r3.Vector{Y: -1}
	if !spatial.ApproxEqual(res.Axis.Normalize(), wantAxis, 1e-12) {
		t.Errorf("Axis = %v, want %v", res.Axis.Normalize(), wantAxis)
	}
}

func TestApplyMapsAnchors(t *testing.T) {
	tests := []struct {
		name string
		a    Anchors
	}{
		{
			"quarter turn",
			Anchors{
				Model1: r3.Vector{X: 1, Z: 2},
				World1: r3.Vector{X: -4, Z: 0.5},
				Model2: r3.Vector{X: 3, Z: 2},
				World2: r3.Vector{X: -4, Z: 6.5},
			},
		},
		{
			"scale and oblique rotation",
			Anchors{
				Model1: r3.Vector{X: 0.2, Z: -1},
				World1: r3.Vector{X: 12, Z: 7},
				Model2: r3.Vector{X: 2.2, Z: 0.5},
				World2: r3.Vector{X: 4, Z: 2},
			},
		},
		{
			"opposed directions",
			Anchors{
				Model1: r3.Vector{},
				World1: r3.Vector{X: 5},
				Model2: r3.Vector{X: 2},
				World2: r3.Vector{X: -1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Solve(tt.a)
			if err != nil {
				t.Fatalf("Solve() error: %v", err)
			}
			if got := res.Apply(tt.a.Model1); !spatial.ApproxEqual(got, tt.a.World1, 1e-9) {
				t.Errorf("Apply(model1) = %v, want %v", got, tt.a.World1)
			}
			if got := res.Apply(tt.a.Model2); !spatial.ApproxEqual(got, tt.a.World2, 1e-9) {
				t.Errorf("Apply(model2) = %v, want %v", got, tt.a.World2)
			}
		})
	}
}

func TestSolveIdempotent(t *testing.T) {
	a := Anchors{
		Model1: r3.Vector{X: 1, Y: 0.3, Z: 2},
		World1: r3.Vector{X: -2, Y: 1, Z: 4},
		Model2: r3.Vector{X: 5, Y: 0.3, Z: -1},
		World2: r3.Vector{X: 3, Y: 1, Z: 9},
	}
	r1, err := Solve(a)
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}
	r2, err := Solve(a)
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}
	if r1 != r2 {
		t.Errorf("Solve is not deterministic: %+v vs %+v", r1, r2)
	}
}

func TestSolveRejectsDegenerateAnchors(t *testing.T) {
	tests := []struct {
		name string
		a    Anchors
	}{
		{"coincident model points", Anchors{
			Model1: r3.Vector{X: 1}, Model2: r3.Vector{X: 1},
			World1: r3.Vector{}, World2: r3.Vector{X: 5},
		}},
		{"coincident world points", Anchors{
			Model1: r3.Vector{}, Model2: r3.Vector{X: 2},
			World1: r3.Vector{Z: 3}, World2: r3.Vector{Z: 3},
		}},
		{"model points differ only vertically", Anchors{
			Model1: r3.Vector{}, Model2: r3.Vector{Y: 4},
			World1: r3.Vector{}, World2: r3.Vector{X: 5},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Solve(tt.a)
			if err != ErrDegenerateAnchors {
				t.Fatalf("Solve() = %+v, %v; want ErrDegenerateAnchors", res, err)
			}
		})
	}
}

func TestApplyNoNaN(t *testing.T) {
	a := Anchors{
		Model1: r3.Vector{X: 0.001},
		World1: r3.Vector{},
		Model2: r3.Vector{X: 0.002},
		World2: r3.Vector{Z: 100},
	}
	res, err := Solve(a)
	if err != nil {
		t.Fatalf("Solve() error: %v", err)
	}
	got := res.Apply(r3.Vector{X: 1, Y: 2, Z: 3})
	if math.IsNaN(got.X) || math.IsNaN(got.Y) || math.IsNaN(got.Z) {
		t.Errorf("Apply produced NaN: %v", got)
	}
}
