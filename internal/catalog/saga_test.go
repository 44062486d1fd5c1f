package catalog

import (
	"errors"
	"reflect"
	"testing"
)

func TestSaga_Run(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name          string
		compensate    bool
		failAt        int
		wantErr       bool
		wantLog       []string
		wantCompleted []string
	}{
		{
			name:    "all steps succeed",
			failAt:  -1,
			wantLog: []string{"do a", "do b", "do c"},
		},
		{
			name:          "failure without compensation keeps applied steps",
			failAt:        2,
			wantErr:       true,
			wantLog:       []string{"do a", "do b"},
			wantCompleted: []string{"a", "b"},
		},
		{
			name:          "failure with compensation undoes in reverse",
			compensate:    true,
			failAt:        2,
			wantErr:       true,
			wantLog:       []string{"do a", "do b", "undo b", "undo a"},
			wantCompleted: []string{"a", "b"},
		},
		{
			name:          "first step failure has nothing to undo",
			compensate:    true,
			failAt:        0,
			wantErr:       true,
			wantLog:       nil,
			wantCompleted: []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var log []string
			saga := newSaga("test", tt.compensate, NewNopLogger())
			for i, name := range []string{"a", "b", "c"} {
				i, name := i, name
				saga.Add(name, func() error {
					if i == tt.failAt {
						return boom
					}
					log = append(log, "do "+name)
					return nil
				}, func() error {
					log = append(log, "undo "+name)
					return nil
				})
			}

			err := saga.Run()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Run() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !reflect.DeepEqual(log, tt.wantLog) {
				t.Errorf("log = %v, want %v", log, tt.wantLog)
			}
			if !tt.wantErr {
				return
			}

			var stepErr *StepError
			if !errors.As(err, &stepErr) {
				t.Fatalf("error %v is not a *StepError", err)
			}
			if !errors.Is(err, boom) {
				t.Errorf("error does not wrap the step failure")
			}
			if !reflect.DeepEqual(stepErr.Completed, tt.wantCompleted) {
				t.Errorf("Completed = %v, want %v", stepErr.Completed, tt.wantCompleted)
			}
		})
	}
}

func TestSaga_RollbackSkipsMissingUndo(t *testing.T) {
	var undone []string
	saga := newSaga("test", true, NewNopLogger())
	saga.Add("a", func() error { return nil }, func() error {
		undone = append(undone, "a")
		return nil
	})
	saga.Add("b", func() error { return nil }, nil)
	saga.Add("c", func() error { return errors.New("fail") }, nil)

	if err := saga.Run(); err == nil {
		t.Fatal("Run() error = nil, want error")
	}
	if !reflect.DeepEqual(undone, []string{"a"}) {
		t.Errorf("undone = %v, want [a]", undone)
	}
}
