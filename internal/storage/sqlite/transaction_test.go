package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/z3z1ma/lookervault-sub000/internal/storage"
	"github.com/z3z1ma/lookervault-sub000/internal/types"
)

func TestRunInTransactionCommitVisibility(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.RunInTransaction(ctx, func(tx storage.Tx) error {
		if err := tx.SaveContent(ctx, testItem("d1", "First")); err != nil {
			return err
		}
		if err := tx.SaveContent(ctx, testItem("d2", "Second")); err != nil {
			return err
		}
		// Reads through the transaction see uncommitted writes.
		got, err := tx.GetContent(ctx, types.TypeDashboard, "d1")
		if err != nil {
			return err
		}
		if got.Name != "First" {
			t.Errorf("read-your-writes: Name = %q, want First", got.Name)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	for _, id := range []string{"d1", "d2"} {
		if _, err := s.GetContent(ctx, types.TypeDashboard, id); err != nil {
			t.Errorf("committed item %s not visible: %v", id, err)
		}
	}
}

func TestRunInTransactionPanicRollsBack(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	func() {
		defer func() {
			r := recover()
			if r == nil {
				t.Error("panic should propagate out of RunInTransaction")
			} else if r != "mid-transaction failure" {
				t.Errorf("unexpected panic value: %v", r)
			}
		}()
		_ = s.RunInTransaction(ctx, func(tx storage.Tx) error {
			if err := tx.SaveContent(ctx, testItem("doomed", "Doomed")); err != nil {
				return err
			}
			panic("mid-transaction failure")
		})
	}()

	if _, err := s.GetContent(ctx, types.TypeDashboard, "doomed"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("write should be rolled back after panic, got err=%v", err)
	}

	// The store must stay usable after the panic unwind released the
	// transaction's connection.
	if err := s.SaveContent(ctx, testItem("after", "After")); err != nil {
		t.Errorf("store unusable after panic: %v", err)
	}
}

func TestRunInTransactionMarkContentDeleted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveContent(ctx, testItem("d1", "Victim")); err != nil {
		t.Fatalf("seed: %v", err)
	}

	err := s.RunInTransaction(ctx, func(tx storage.Tx) error {
		return tx.MarkContentDeleted(ctx, types.TypeDashboard, "d1")
	})
	if err != nil {
		t.Fatalf("transaction failed: %v", err)
	}

	got, err := s.GetContent(ctx, types.TypeDashboard, "d1")
	if err != nil {
		t.Fatalf("get after soft delete: %v", err)
	}
	if !got.Deleted {
		t.Error("Deleted flag not set after MarkContentDeleted in transaction")
	}
}

func TestRunInTransactionSequential(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Back-to-back transactions must each get a clean connection; a leaked
	// BEGIN would make the second one fail.
	for i := 0; i < 5; i++ {
		err := s.RunInTransaction(ctx, func(tx storage.Tx) error {
			return tx.SaveContent(ctx, testItem("seq", "Sequential"))
		})
		if err != nil {
			t.Fatalf("transaction %d: %v", i, err)
		}
	}
}
