package catalog

import "testing"

func TestCategoryOf(t *testing.T) {
	tests := []struct {
		label  string
		want   Category
		wantOK bool
	}{
		{VinoDeLaCasa, Premium, true},
		{GranCapitana, Premium, true},
		{PequenaCrianza, Standard, true},
		{LaTrucha, Standard, true},
		{"vino de la casa", "", false},
		{"RIOJA", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, ok := CategoryOf(tt.label)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("CategoryOf(%q) = (%q, %v), want (%q, %v)", tt.label, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestSum(t *testing.T) {
	tests := []struct {
		name  string
		lines []Line
		want  Totals
	}{
		{
			name: "empty",
			want: Totals{},
		},
		{
			name: "mixed categories",
			lines: []Line{
				{VinoDeLaCasa, 2},
				{LaTrucha, 1},
				{GranCapitana, 3},
				{PequenaCrianza, 4},
			},
			want: Totals{Premium: 5, Standard: 5},
		},
		{
			name: "unknown labels ignored",
			lines: []Line{
				{"RIOJA", 10},
				{GranCapitana, 1},
			},
			want: Totals{Premium: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sum(tt.lines); got != tt.want {
				t.Errorf("Sum() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
