package gallery

import (
	"errors"
	"image"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/vigil/internal/types"
)

func newSample(v uint8) *image.Gray {
	g := image.NewGray(image.Rect(0, 0, types.SampleSize, types.SampleSize))
	for i := range g.Pix {
		g.Pix[i] = v
	}
	return g
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestParseName(t *testing.T) {
	tests := []struct {
		name      string
		wantID    string
		wantIndex int
		wantOK    bool
	}{
		{"bob_1.jpg", "bob", 1, true},
		{"ali_veli_12.jpg", "ali_veli", 12, true},
		{"bob_3.PNG", "bob", 3, true},
		{"bob_3.jpeg", "bob", 3, true},
		{"bob.jpg", "", 0, false},
		{"_4.jpg", "", 0, false},
		{"___4.jpg", "__", 4, true},
		{" _4.jpg", "", 0, false},
		{"bob_x.jpg", "", 0, false},
		{"bob_0.jpg", "bob", 0, true},
		{"bob_2.txt", "", 0, false},
		{"bob_2", "", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, idx, ok := ParseName(tt.name)
			if ok != tt.wantOK || id != tt.wantID || idx != tt.wantIndex {
				t.Errorf("ParseName(%q) = (%q, %d, %v), want (%q, %d, %v)",
					tt.name, id, idx, ok, tt.wantID, tt.wantIndex, tt.wantOK)
			}
		})
	}
}

func TestSaveThenList(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "dataset"))
	if err != nil {
		t.Fatal(err)
	}

	for i := 1; i <= 3; i++ {
		e, err := s.Save("alice", newSample(uint8(i*40)))
		if err != nil {
			t.Fatalf("Save #%d failed: %v", i, err)
		}
		if e.Index != i {
			t.Errorf("Save #%d got index %d", i, e.Index)
		}
		if filepath.Base(e.Path) != "alice_"+string(rune('0'+i))+".jpg" {
			t.Errorf("unexpected file name %s", filepath.Base(e.Path))
		}

		entries, err := s.List()
		if err != nil {
			t.Fatal(err)
		}
		found := false
		for _, got := range entries {
			if got == e {
				found = true
			}
		}
		if !found {
			t.Errorf("List() does not contain saved entry %+v", e)
		}

		next, err := s.NextIndex("alice")
		if err != nil {
			t.Fatal(err)
		}
		if next != e.Index+1 {
			t.Errorf("NextIndex after saving %d = %d", e.Index, next)
		}
	}
}

func TestNextIndexIsMaxBased(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"bob_1.jpg", "bob_2.jpg", "bob_5.jpg", "bobby_9.jpg", "notes.txt"} {
		touch(t, dir, n)
	}
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	got, err := s.NextIndex("bob")
	if err != nil {
		t.Fatal(err)
	}
	if got != 6 {
		t.Errorf("NextIndex(bob) = %d, want 6", got)
	}

	got, _ = s.NextIndex("carol")
	if got != 1 {
		t.Errorf("NextIndex(carol) = %d, want 1", got)
	}
}

func TestZeroIndexSampleIsListed(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "dave_0.jpg")
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Identity != "dave" || entries[0].Index != 0 {
		t.Fatalf("List() = %+v", entries)
	}
	if got, _ := s.NextIndex("dave"); got != 1 {
		t.Errorf("NextIndex(dave) = %d, want 1", got)
	}
}

func TestIndexNeverReused(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	first, _ := s.Save("dan", newSample(10))
	second, _ := s.Save("dan", newSample(20))
	if err := os.Remove(first.Path); err != nil {
		t.Fatal(err)
	}

	third, err := s.Save("dan", newSample(30))
	if err != nil {
		t.Fatal(err)
	}
	if third.Index != second.Index+1 {
		t.Errorf("expected index %d after deleting an earlier sample, got %d", second.Index+1, third.Index)
	}
}

func TestListSkipsMalformed(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"ayse_1.jpg", "README.md", "x.jpg", "mehmet_1.jpg"} {
		touch(t, dir, n)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub_1.jpg"), 0755); err != nil {
		t.Fatal(err)
	}
	s, _ := Open(dir)

	entries, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 || entries[0].Identity != "ayse" || entries[1].Identity != "mehmet" {
		t.Errorf("unexpected entries %+v", entries)
	}
}

func TestMissingDirectoryIsIOFailure(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "gone")
	s, err := Open(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}

	if _, err := s.List(); !errors.Is(err, types.ErrIO) {
		t.Errorf("List() error = %v, want ErrIO", err)
	}
	if _, err := s.Save("eve", newSample(1)); !errors.Is(err, types.ErrIO) {
		t.Errorf("Save() error = %v, want ErrIO", err)
	}
}

func TestLoadNormalizes(t *testing.T) {
	s, _ := Open(t.TempDir())
	e, err := s.Save("frank", newSample(200))
	if err != nil {
		t.Fatal(err)
	}

	img, err := s.Load(e)
	if err != nil {
		t.Fatal(err)
	}
	if img.Bounds() != image.Rect(0, 0, types.SampleSize, types.SampleSize) {
		t.Errorf("Load bounds = %v", img.Bounds())
	}

	touch(t, s.Dir(), "broken_1.jpg")
	if _, err := s.Load(Entry{Identity: "broken", Index: 1, Path: filepath.Join(s.Dir(), "broken_1.jpg")}); err == nil {
		t.Error("expected decode error for corrupt sample")
	}
}

func TestIdentities(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"Ayse_1.jpg", "ayse_2.jpg", "mehmet_1.jpg"} {
		touch(t, dir, n)
	}
	s, _ := Open(dir)

	order, counts, err := s.Identities()
	if err != nil {
		t.Fatal(err)
	}
	if len(order) != 2 || order[0] != "Ayse" || order[1] != "mehmet" {
		t.Errorf("order = %v", order)
	}
	if counts["Ayse"] != 2 || counts["mehmet"] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestRename(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"user_1.jpg", "user_4.jpg", "zoe_2.jpg"} {
		touch(t, dir, n)
	}
	s, _ := Open(dir)

	moved, err := s.Rename("user", "zoe")
	if err != nil {
		t.Fatal(err)
	}
	if moved != 2 {
		t.Errorf("moved = %d, want 2", moved)
	}
	for _, n := range []string{"zoe_2.jpg", "zoe_3.jpg", "zoe_4.jpg"} {
		if _, err := os.Stat(filepath.Join(dir, n)); err != nil {
			t.Errorf("expected %s to exist: %v", n, err)
		}
	}
	if next, _ := s.NextIndex("user"); next != 1 {
		t.Errorf("old identity still has samples, NextIndex = %d", next)
	}
}

func TestClear(t *testing.T) {
	dir := t.TempDir()
	for _, n := range []string{"a_1.jpg", "b_1.jpg", "keep.txt"} {
		touch(t, dir, n)
	}
	s, _ := Open(dir)

	n, err := s.Clear()
	if err != nil || n != 2 {
		t.Fatalf("Clear() = %d, %v", n, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "keep.txt")); err != nil {
		t.Error("Clear removed an unrelated file")
	}
}
