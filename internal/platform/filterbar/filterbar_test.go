package filterbar

import (
	"net/url"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/carecenter/dashboard/internal/platform/formschema"
)

type session struct {
	Patient  string
	Status   string
	Machine  string
	Starts   time.Time
	Flagged  bool
	Modality []string
}

func sessionAccessor(s session, key string) any {
	switch key {
	case "patient":
		return s.Patient
	case "status":
		return s.Status
	case "machine":
		return s.Machine
	case "scheduled":
		return s.Starts
	case "day":
		return s.Starts
	case "flagged":
		return s.Flagged
	case "modality":
		return s.Modality
	}
	return nil
}

func sessionBar() Bar {
	return New(
		Definition{Key: "patient", Label: "Patient", Kind: KindText, Column: "p.full_name"},
		Definition{Key: "status", Label: "Status", Kind: KindSelect, Options: []formschema.Option{
			{Value: "scheduled", Label: "Scheduled"}, {Value: "completed", Label: "Completed"},
		}},
		Definition{Key: "machine", Label: "Machine serial", Kind: KindText, Op: OpEquals},
		Definition{Key: "day", Label: "Day", Kind: KindDate, Column: "scheduled_at"},
		Definition{Key: "scheduled", Label: "Scheduled", Kind: KindDateRange, Column: "scheduled_at"},
		Definition{Key: "flagged", Label: "Flagged", Kind: KindBoolean},
	)
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParse(t *testing.T) {
	b := sessionBar()
	got, err := b.Parse(url.Values{
		"patient":        {"  ana "},
		"status":         {"scheduled"},
		"machine":        {""},
		"scheduled_from": {"2024-03-01"},
		"flagged":        {"yes"},
		"unknown":        {"x"},
	})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := Values{
		"patient":   {Text: "ana"},
		"status":    {Text: "scheduled"},
		"scheduled": {From: date(2024, 3, 1)},
		"flagged":   {Bool: true},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Parse() mismatch (-want +got):\n%s", diff)
	}
}

func TestParse_Errors(t *testing.T) {
	b := sessionBar()
	_, err := b.Parse(url.Values{
		"status":         {"exploded"},
		"day":            {"03/01/2024"},
		"scheduled_from": {"2024-03-10"},
		"scheduled_to":   {"2024-03-01"},
		"flagged":        {"maybe"},
	})
	ve, ok := formschema.AsValidationError(err)
	if !ok {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	for _, key := range []string{"status", "day", "scheduled", "flagged"} {
		if len(ve.Fields[key]) == 0 {
			t.Errorf("expected an error for %q, got %v", key, ve.Fields)
		}
	}
}

func TestSQL(t *testing.T) {
	b := sessionBar()
	cond, args := b.SQL(Values{
		"patient":   {Text: "o'neil_"},
		"status":    {Text: "completed"},
		"machine":   {Text: "FX-1"},
		"scheduled": {From: date(2024, 3, 1), To: date(2024, 3, 31)},
		"flagged":   {Bool: false},
	}, 2)
	wantCond := "CAST(p.full_name AS TEXT) ILIKE $2 AND CAST(status AS TEXT) = $3 AND machine = $4" +
		" AND scheduled_at >= $5 AND scheduled_at < $6 AND (flagged) = $7"
	if cond != wantCond {
		t.Errorf("SQL() cond =\n%s\nwant\n%s", cond, wantCond)
	}
	wantArgs := []interface{}{`%o'neil\_%`, "completed", "FX-1", date(2024, 3, 1), date(2024, 4, 1), false}
	if diff := cmp.Diff(wantArgs, args); diff != "" {
		t.Errorf("SQL() args mismatch (-want +got):\n%s", diff)
	}

	if cond, args := b.SQL(Values{}, 1); cond != "" || len(args) != 0 {
		t.Errorf("no filters must produce no SQL, got %q %v", cond, args)
	}
}

func TestMatch(t *testing.T) {
	b := sessionBar()
	rows := []session{
		{Patient: "Ana Ortiz", Status: "scheduled", Machine: "FX-1", Starts: date(2024, 3, 1).Add(9 * time.Hour)},
		{Patient: "Anand Rao", Status: "completed", Machine: "FX-10", Starts: date(2024, 3, 31).Add(23 * time.Hour), Flagged: true},
		{Patient: "Bo Chen", Status: "completed", Machine: "FX-1", Starts: date(2024, 4, 1)},
		{Patient: "Ana Lima", Status: "scheduled"},
	}
	tests := []struct {
		name   string
		values Values
		want   []string
	}{
		{"none", Values{}, []string{"Ana Ortiz", "Anand Rao", "Bo Chen", "Ana Lima"}},
		{"text contains", Values{"patient": {Text: "ANA"}}, []string{"Ana Ortiz", "Anand Rao", "Ana Lima"}},
		{"text equals", Values{"machine": {Text: "FX-1"}}, []string{"Ana Ortiz", "Bo Chen"}},
		{"select", Values{"status": {Text: "completed"}}, []string{"Anand Rao", "Bo Chen"}},
		{"date", Values{"day": {Day: date(2024, 3, 31)}}, []string{"Anand Rao"}},
		{"range inclusive", Values{"scheduled": {From: date(2024, 3, 1), To: date(2024, 3, 31)}}, []string{"Ana Ortiz", "Anand Rao"}},
		{"range open end", Values{"scheduled": {From: date(2024, 3, 15)}}, []string{"Anand Rao", "Bo Chen"}},
		{"boolean", Values{"flagged": {Bool: false}}, []string{"Ana Ortiz", "Bo Chen", "Ana Lima"}},
		{"combined", Values{"patient": {Text: "an"}, "status": {Text: "scheduled"}}, []string{"Ana Ortiz", "Ana Lima"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, r := range Filter(b, tt.values, rows, sessionAccessor) {
				got = append(got, r.Patient)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Filter() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatch_SelectOverList(t *testing.T) {
	b := New(Definition{Key: "modality", Kind: KindSelect, Options: []formschema.Option{{Value: "hdf"}, {Value: "hd"}}})
	row := session{Modality: []string{"hd", "hdf"}}
	if !Match(b, Values{"modality": {Text: "hdf"}}, row, sessionAccessor) {
		t.Error("select filter must match a value contained in a list cell")
	}
}

func TestSQL_SelectAny(t *testing.T) {
	b := New(Definition{Key: "role", Kind: KindSelect, Op: OpAny, Column: "roles", Options: []formschema.Option{{Value: "nurse"}}})
	cond, args := b.SQL(Values{"role": {Text: "nurse"}}, 1)
	if cond != "$1 = ANY(roles)" || len(args) != 1 || args[0] != "nurse" {
		t.Errorf("SQL() = %q %v", cond, args)
	}
}

func TestQueryRoundTrip(t *testing.T) {
	b := sessionBar()
	in := Values{
		"patient":   {Text: "ana"},
		"day":       {Day: date(2024, 3, 2)},
		"scheduled": {To: date(2024, 3, 9)},
		"flagged":   {Bool: false},
	}
	q := b.Query(in)
	if q.Get("scheduled_to") != "2024-03-09" || q.Has("scheduled_from") {
		t.Errorf("unexpected range encoding: %v", q)
	}
	out, err := b.Parse(q)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff(in, out); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestParams(t *testing.T) {
	want := []string{"patient", "status", "machine", "day", "scheduled_from", "scheduled_to", "flagged"}
	if diff := cmp.Diff(want, sessionBar().Params()); diff != "" {
		t.Errorf("Params() mismatch (-want +got):\n%s", diff)
	}
}
