package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"gastos/internal/core"
)

type fakeDirectory struct {
	byUsername map[string]core.User
	byChat     map[int64]core.User
	registered map[int64]int64 // userID -> chatID
}

func newFakeDirectory(users ...core.User) *fakeDirectory {
	d := &fakeDirectory{
		byUsername: make(map[string]core.User),
		byChat:     make(map[int64]core.User),
		registered: make(map[int64]int64),
	}
	for _, u := range users {
		d.byUsername[u.Username] = u
	}
	return d
}

func (d *fakeDirectory) UserByUsername(_ context.Context, username string) (core.User, error) {
	u, ok := d.byUsername[username]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) UserByChatID(_ context.Context, chatID int64) (core.User, error) {
	u, ok := d.byChat[chatID]
	if !ok {
		return core.User{}, core.ErrNotFound
	}
	return u, nil
}

func (d *fakeDirectory) RegisterChat(_ context.Context, userID, chatID int64) error {
	if _, ok := d.registered[userID]; ok {
		return errors.New("UNIQUE constraint failed")
	}
	d.registered[userID] = chatID
	for _, u := range d.byUsername {
		if u.ID == userID {
			d.byChat[chatID] = u
		}
	}
	return nil
}

type fakeStatements struct {
	statement core.Statement
	requested core.Period
}

func (f *fakeStatements) Statement(_ context.Context, p core.Period, _ int64) (core.Statement, error) {
	f.requested = p
	return f.statement, nil
}

func newTestService(directory Directory, statements Statements) *Service {
	return &Service{directory: directory, statements: statements}
}

func TestHandleRegister(t *testing.T) {
	bob := core.User{ID: 2, Username: "bob", IsActive: true}
	directory := newFakeDirectory(bob)
	svc := newTestService(directory, &fakeStatements{})
	ctx := context.Background()

	t.Run("registers known user", func(t *testing.T) {
		reply := svc.handleCommand(ctx, 555, "registrar", "bob")
		if !strings.Contains(reply, "Registered as bob") {
			t.Errorf("unexpected reply: %q", reply)
		}
		if directory.registered[bob.ID] != 555 {
			t.Error("chat was not registered")
		}
	})

	t.Run("unknown username", func(t *testing.T) {
		reply := svc.handleCommand(ctx, 556, "registrar", "nobody")
		if !strings.Contains(reply, "does not exist") {
			t.Errorf("unexpected reply: %q", reply)
		}
	})

	t.Run("double registration", func(t *testing.T) {
		reply := svc.handleCommand(ctx, 557, "registrar", "bob")
		if !strings.Contains(reply, "already registered") {
			t.Errorf("unexpected reply: %q", reply)
		}
	})

	t.Run("missing argument", func(t *testing.T) {
		reply := svc.handleCommand(ctx, 558, "registrar", "  ")
		if !strings.Contains(reply, "Usage") {
			t.Errorf("unexpected reply: %q", reply)
		}
	})
}

func TestHandleStatement(t *testing.T) {
	bob := core.User{ID: 2, Username: "bob", IsActive: true}
	directory := newFakeDirectory(bob)
	total, err := core.ParseMoney("30.00")
	if err != nil {
		t.Fatalf("parse money: %v", err)
	}
	statements := &fakeStatements{statement: core.Statement{
		UserID:   2,
		Username: "bob",
		Period:   core.Period{Year: 2024, Month: 3},
		Subtotal: total,
		Discount: core.ZeroMoney(),
		Total:    total,
	}}
	svc := newTestService(directory, statements)
	ctx := context.Background()

	t.Run("unregistered chat", func(t *testing.T) {
		reply := svc.handleCommand(ctx, 999, "gastos", "3 2024")
		if !strings.Contains(reply, "not registered") {
			t.Errorf("unexpected reply: %q", reply)
		}
	})

	svc.handleCommand(ctx, 555, "registrar", "bob")

	t.Run("renders statement", func(t *testing.T) {
		reply := svc.handleCommand(ctx, 555, "gastos", "3 2024")
		if !strings.Contains(reply, "2024-03") {
			t.Errorf("reply should name the period: %q", reply)
		}
		if !strings.Contains(reply, "```") {
			t.Errorf("reply should wrap the table in a code block: %q", reply)
		}
		if !strings.Contains(reply, "30.00") {
			t.Errorf("reply should carry the totals: %q", reply)
		}
		if statements.requested != (core.Period{Year: 2024, Month: 3}) {
			t.Errorf("requested period = %+v", statements.requested)
		}
	})

	t.Run("malformed arguments", func(t *testing.T) {
		for _, args := range []string{"", "3", "x 2024", "3 y", "13 2024", "0 2024", "3 2024 extra"} {
			reply := svc.handleCommand(ctx, 555, "gastos", args)
			if !strings.Contains(reply, "Usage") {
				t.Errorf("args %q: unexpected reply %q", args, reply)
			}
		}
	})
}

func TestHandleUnknownCommand(t *testing.T) {
	svc := newTestService(newFakeDirectory(), &fakeStatements{})

	if reply := svc.handleCommand(context.Background(), 1, "frobnicate", ""); reply != "" {
		t.Errorf("unknown command should be ignored, got %q", reply)
	}
	if reply := svc.handleCommand(context.Background(), 1, "help", ""); !strings.Contains(reply, "/registrar") {
		t.Errorf("help should list commands, got %q", reply)
	}
}

func TestParsePeriod(t *testing.T) {
	p, err := parsePeriod(" 12  2023 ")
	if err != nil {
		t.Fatalf("parsePeriod failed: %v", err)
	}
	if p != (core.Period{Year: 2023, Month: 12}) {
		t.Errorf("parsePeriod = %+v", p)
	}
}
