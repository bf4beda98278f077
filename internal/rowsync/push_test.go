package rowsync

import (
	"testing"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

func TestRecordable(t *testing.T) {
	cases := []struct {
		err        error
		recordable bool
	}{
		{errors.Wrap(ErrNotFound, "list l1"), true},
		{errors.Wrap(ErrUnauthorized, "list l1"), true},
		{errors.Wrap(ErrInvalidInput, "bad args"), true},
		{&pq.Error{Code: "23505"}, true}, // unique_violation
		{&pq.Error{Code: "23503"}, true}, // foreign_key_violation
		{&pq.Error{Code: "40001"}, false}, // serialization_failure
		{errors.Wrap(ErrMutationFromFuture, "mutation 9"), false},
		{errors.Wrap(ErrWrongClientGroup, "client c1"), false},
		{errors.New("connection reset"), false},
	}
	for _, tc := range cases {
		if got := recordable(tc.err); got != tc.recordable {
			t.Fatalf("recordable(%v) = %v, expected %v", tc.err, got, tc.recordable)
		}
	}
}

func TestSortedKeys(t *testing.T) {
	keys := sortedKeys(map[string]struct{}{"b": {}, "a": {}, "c": {}})
	if len(keys) != 3 || keys[0] != "a" || keys[1] != "b" || keys[2] != "c" {
		t.Fatalf("expected [a b c], got %v", keys)
	}
}
