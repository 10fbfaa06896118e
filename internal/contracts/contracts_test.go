package contracts

import "testing"

func TestSelectionFieldSet(t *testing.T) {
	sel := SelectionSpec{
		Selects: []Select{
			{Source: "valuation", Fields: []string{"pe", "pb"}},
			{Source: "quality", Fields: []string{"roe", "pe"}},
		},
	}

	fields := sel.FieldSet()
	want := []string{"pb", "pe", "roe"}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %d", len(want), len(fields))
	}
	for i, f := range want {
		if fields[i] != f {
			t.Errorf("fields[%d] = %q, want %q", i, fields[i], f)
		}
	}

	if !sel.HasField("roe") {
		t.Error("expected HasField(roe) = true")
	}
	if sel.HasField("eps") {
		t.Error("expected HasField(eps) = false")
	}
}

func TestStageWeightsSumTo100(t *testing.T) {
	total := 0.0
	for _, s := range AllStages() {
		total += s.Weight()
	}
	if total != 100 {
		t.Errorf("stage weights must sum to 100, got %.1f", total)
	}
}

func TestRunStatusTerminal(t *testing.T) {
	if RunRunning.Terminal() {
		t.Error("RUNNING must not be terminal")
	}
	for _, s := range []RunStatus{RunCompleted, RunFailed, RunCancelled} {
		if !s.Terminal() {
			t.Errorf("%s must be terminal", s)
		}
	}
}

func TestTableHelpers(t *testing.T) {
	tbl := Table{
		{KeyCode: "005930", KeyDate: "2024-01-01", "pe": 9.1},
		{KeyCode: "000660", KeyDate: "2024-01-01", "pe": 12.4},
	}

	if got := tbl.FilterByCode("005930"); len(got) != 1 {
		t.Errorf("expected 1 row for 005930, got %d", len(got))
	}

	cols := tbl.Columns()
	want := []string{KeyCode, KeyDate, "pe"}
	if len(cols) != len(want) {
		t.Fatalf("expected %d columns, got %v", len(want), cols)
	}
	for i, c := range want {
		if cols[i] != c {
			t.Errorf("cols[%d] = %q, want %q", i, cols[i], c)
		}
	}

	if got := JoinKeys(); len(got) != 2 || got[0] != KeyCode || got[1] != KeyDate {
		t.Errorf("JoinKeys() = %v", got)
	}

	if v, ok := AsFloat(int64(3)); !ok || v != 3 {
		t.Errorf("AsFloat(int64) = %v, %v", v, ok)
	}
	if _, ok := AsFloat("3"); ok {
		t.Error("AsFloat(string) should fail")
	}
}
