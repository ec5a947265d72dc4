package instrumentation

import (
	"strings"
	"sync"
	"testing"
)

func TestScopeLifecycle(t *testing.T) {
	if got := Scopes(); len(got) != 0 {
		t.Fatalf("Expected no open scopes, got %d", len(got))
	}

	closer := Enter()
	Bind("n", 7)
	Bind("name", "widget")

	scopes := Scopes()
	if len(scopes) != 1 {
		t.Fatalf("Expected 1 open scope, got %d", len(scopes))
	}
	if !strings.Contains(scopes[0].Func, "TestScopeLifecycle") {
		t.Errorf("Scope bound to wrong function: %s", scopes[0].Func)
	}
	if scopes[0].Vars["n"] != 7 || scopes[0].Vars["name"] != "widget" {
		t.Errorf("Bindings wrong: %v", scopes[0].Vars)
	}

	closer()
	if got := Scopes(); len(got) != 0 {
		t.Errorf("Closed scope still visible: %d", len(got))
	}
}

func TestNestedScopesOutermostFirst(t *testing.T) {
	outerClose := Enter()
	defer outerClose()
	Bind("depth", 1)

	func() {
		defer Enter()()
		Bind("depth", 2)

		scopes := Scopes()
		if len(scopes) != 2 {
			t.Fatalf("Expected 2 scopes, got %d", len(scopes))
		}
		if scopes[0].Vars["depth"] != 1 || scopes[1].Vars["depth"] != 2 {
			t.Errorf("Scope order wrong: %v", scopes)
		}
	}()

	if got := Scopes(); len(got) != 1 {
		t.Errorf("Inner scope should close with its function, got %d", len(got))
	}
}

func TestBindWithoutScopeIsNoOp(t *testing.T) {
	Bind("orphan", 1)
	for _, s := range Scopes() {
		if _, ok := s.Vars["orphan"]; ok {
			t.Error("Orphan binding landed in a scope")
		}
	}
}

func TestScopesAreGoroutineLocal(t *testing.T) {
	defer Enter()()
	Bind("owner", "main")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if got := Scopes(); len(got) != 0 {
			t.Errorf("Other goroutine sees %d scopes", len(got))
		}

		defer Enter()()
		Bind("owner", "worker")
		scopes := Scopes()
		if len(scopes) != 1 || scopes[0].Vars["owner"] != "worker" {
			t.Errorf("Worker scope wrong: %v", scopes)
		}
	}()
	wg.Wait()

	scopes := Scopes()
	if len(scopes) != 1 || scopes[0].Vars["owner"] != "main" {
		t.Errorf("Main scope disturbed: %v", scopes)
	}
}

func TestScopesReturnsCopies(t *testing.T) {
	defer Enter()()
	Bind("n", 1)

	scopes := Scopes()
	scopes[0].Vars["n"] = 99

	if got := Scopes()[0].Vars["n"]; got != 1 {
		t.Errorf("Mutating the copy leaked into the scope: %v", got)
	}
}

func TestGlobals(t *testing.T) {
	RegisterGlobal("service", "orders")
	got := Globals()
	if got["service"] != "orders" {
		t.Errorf("Registered global missing: %v", got)
	}

	got["service"] = "mutated"
	if Globals()["service"] != "orders" {
		t.Error("Globals should return a copy")
	}
}

func TestUnwoundScopesSurviveUntilRecover(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Expected a panic")
		}
		scopes := Unwound()
		if len(scopes) != 2 {
			t.Fatalf("Expected 2 unwound scopes, got %d", len(scopes))
		}
		// Closers fire innermost first while the panic unwinds.
		if scopes[0].Vars["depth"] != 2 || scopes[1].Vars["depth"] != 1 {
			t.Errorf("Unwind order wrong: %v", scopes)
		}

		// A fresh instrumented call makes the buffer stale.
		Enter()()
		if got := Unwound(); len(got) != 1 || got[0].Vars["depth"] != nil {
			t.Errorf("Enter should clear the unwind buffer, got %v", got)
		}
	}()

	func() {
		defer Enter()()
		Bind("depth", 1)
		func() {
			defer Enter()()
			Bind("depth", 2)
			panic("boom")
		}()
	}()
}

func TestGoroutineIDIsStableWithinGoroutine(t *testing.T) {
	a, b := goroutineID(), goroutineID()
	if a <= 0 || a != b {
		t.Errorf("goroutineID unstable: %d %d", a, b)
	}
}
