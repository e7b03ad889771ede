package bot

import (
	"context"
	"slices"
	"testing"

	"github.com/MrWong99/transcribot/internal/chat"
)

func TestDispatcher_StopsAtFirstDoneResult(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		results   []Result
		want      Result
		wantCalls []int
	}{
		{"nothing registered", nil, NotHandled, nil},
		{"all pass", []Result{NotHandled, NotHandled}, NotHandled, []int{0, 1}},
		{"handled stops", []Result{NotHandled, Handled, Handled}, Handled, []int{0, 1}},
		{"terminated stops", []Result{Terminated, Handled}, Terminated, []int{0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			d := NewDispatcher()
			var calls []int
			for i, r := range tc.results {
				d.OnMessage(func(context.Context, chat.Message) Result {
					calls = append(calls, i)
					return r
				})
			}
			if got := d.DispatchMessage(context.Background(), chat.Message{}); got != tc.want {
				t.Errorf("result = %v, want %v", got, tc.want)
			}
			if !slices.Equal(calls, tc.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tc.wantCalls)
			}
		})
	}
}

func TestDispatcher_Callbacks(t *testing.T) {
	t.Parallel()

	d := NewDispatcher()
	var got string
	d.OnCallback(func(_ context.Context, cb chat.Callback) Result {
		got = cb.Data
		return Handled
	})
	if r := d.DispatchCallback(context.Background(), chat.Callback{Data: "job-1"}); r != Handled {
		t.Errorf("result = %v", r)
	}
	if got != "job-1" {
		t.Errorf("data = %q", got)
	}
}

func TestResult_String(t *testing.T) {
	t.Parallel()

	for r, want := range map[Result]string{NotHandled: "not_handled", Handled: "handled", Terminated: "terminated", Result(9): "unknown"} {
		if got := r.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", int(r), got, want)
		}
	}
}
