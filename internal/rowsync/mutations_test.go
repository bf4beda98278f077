package rowsync

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

// Validation failures surface before any statement executes, so a nil
// executor is safe in these tests.

func TestApplyMutationRejectsMalformedArgs(t *testing.T) {
	cases := []struct {
		name MutationName
		args string
	}{
		{MutationCreateList, `"not an object"`},
		{MutationCreateList, `{"id":"","ownerID":"u1","name":"groceries"}`},
		{MutationCreateList, `{"id":"l1","ownerID":"u1","name":""}`},
		{MutationUpdateList, `{"id":""}`},
		{MutationCreateTodo, `{"id":"t1","listID":""}`},
		{MutationUpdateTodo, `{"id":""}`},
		{MutationCreateShare, `{"id":"s1","listID":"l1","userID":""}`},
		{MutationDeleteList, `42`},
		{MutationDeleteTodo, `""`},
		{MutationDeleteShare, `null`},
	}
	for _, tc := range cases {
		m := Mutation{ID: 1, ClientID: "c1", Name: tc.name, Args: json.RawMessage(tc.args)}
		_, err := applyMutation(context.Background(), nil, "u1", m)
		if !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%s(%s): expected ErrInvalidInput, got %v", tc.name, tc.args, err)
		}
	}
}

func TestApplyMutationRejectsOversizedID(t *testing.T) {
	longID := strings.Repeat("x", maxIDLen+1)
	m := Mutation{ID: 1, ClientID: "c1", Name: MutationDeleteList, Args: json.RawMessage(`"` + longID + `"`)}
	_, err := applyMutation(context.Background(), nil, "u1", m)
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for oversized id, got %v", err)
	}
}

func TestApplyMutationUnknownNameIsNoOp(t *testing.T) {
	m := Mutation{ID: 1, ClientID: "c1", Name: "renameEverything", Args: json.RawMessage(`{}`)}
	affected, err := applyMutation(context.Background(), nil, "u1", m)
	if err != nil {
		t.Fatalf("expected no-op for unknown mutation, got %v", err)
	}
	if len(affected.ListIDs)+len(affected.UserIDs) != 0 {
		t.Fatalf("expected empty affected scope, got %+v", affected)
	}
}

func TestIsMutationErrorCoversSentinels(t *testing.T) {
	for _, err := range []error{ErrNotFound, ErrUnauthorized, ErrInvalidInput} {
		if !IsMutationError(err) {
			t.Fatalf("expected %v to be a mutation error", err)
		}
	}
	for _, err := range []error{ErrWrongClientGroup, ErrMutationFromFuture, errors.New("boom")} {
		if IsMutationError(err) {
			t.Fatalf("expected %v to be batch-fatal", err)
		}
	}
}
