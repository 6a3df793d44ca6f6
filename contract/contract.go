//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"
)

// Worker doesn't protect itself.
// Can be silly, focused; the Supervisor owns restarts and panic recovery.
type Worker interface {
	Run(ctx context.Context) error
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink is one live client connection's outbound side. Push must be safe
// for concurrent use and must never block the caller indefinitely.
type EventSink interface {
	Push(event string, payload any) error
}

// ISessionRegistry is the read side of the session registry needed for
// delivery: every fan-out and broadcast resolves sinks through it.
type ISessionRegistry interface {
	Sinks(userID string) []EventSink
	AllSinks(exceptUserID string) []EventSink
}

// TokenVerifier is the external credential collaborator boundary. It turns an
// opaque bearer token into a user identity, or fails. Token issuance lives
// outside this module.
type TokenVerifier interface {
	Verify(token string) (userID string, err error)
}
