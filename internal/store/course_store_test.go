package store

import (
	"context"
	"database/sql"
	"strings"
	"testing"
)

func TestCourseStoreCreate(t *testing.T) {
	ctx := context.Background()
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO courses") {
				t.Fatalf("unexpected query: %s", query)
			}
			if !strings.Contains(query, "'active'") {
				t.Fatalf("new courses must start active: %s", query)
			}
			if len(args) != 6 || args[4] != int64(80000) {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewCourseStore(stubDB{})
	err := store.Create(ctx, execer, CourseInput{
		ID: "course-1", InstructorID: "instructor-1", Title: "Practical Go",
		Description: "d", Price: 80000, UploadFee: 10000,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCourseStoreCountActiveUsesTx(t *testing.T) {
	ctx := context.Background()
	getter := stubGetter{
		getFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE status = 'active'") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*int) = 3
			return nil
		},
	}
	store := NewCourseStore(stubDB{})
	count, err := store.CountActive(ctx, getter)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("unexpected count: %d", count)
	}
}

func TestCourseStoreListActive(t *testing.T) {
	ctx := context.Background()
	store := NewCourseStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "WHERE status = 'active'") {
				t.Fatalf("unexpected query: %s", query)
			}
			*dest.(*[]Course) = []Course{{ID: "course-1"}}
			return nil
		},
	})
	rows, err := store.ListActive(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("unexpected rows: %#v", rows)
	}
}

func TestCourseStoreCreateMaterial(t *testing.T) {
	ctx := context.Background()
	content := "lesson text"
	execer := stubExecer{
		execFn: func(_ context.Context, query string, args ...any) (sql.Result, error) {
			if !strings.Contains(query, "INSERT INTO course_materials") {
				t.Fatalf("unexpected query: %s", query)
			}
			if len(args) != 7 || args[3] != "document" || args[6] != 2 {
				t.Fatalf("unexpected args: %#v", args)
			}
			return stubResult{rows: 1}, nil
		},
	}
	store := NewCourseStore(stubDB{})
	err := store.CreateMaterial(ctx, execer, MaterialInput{
		ID: "mat-1", CourseID: "course-1", Title: "Lesson", Type: "document",
		Content: &content, OrderIndex: 2,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCourseStoreListMaterialsOrdered(t *testing.T) {
	ctx := context.Background()
	store := NewCourseStore(stubDB{
		selectFn: func(_ context.Context, dest any, query string, args ...any) error {
			if !strings.Contains(query, "ORDER BY order_index") {
				t.Fatalf("materials must come back in order: %s", query)
			}
			if len(args) != 1 || args[0] != "course-1" {
				t.Fatalf("unexpected args: %#v", args)
			}
			return nil
		},
	})
	if _, err := store.ListMaterials(ctx, "course-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
