package migrate

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDiscoverPairsAndOrders(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0002_indexes.up.sql", "create index a on t(x);")
	writeFile(t, dir, "0001_init.up.sql", "create table t(x int);")
	writeFile(t, dir, "0001_init.down.sql", "drop table t;")
	writeFile(t, dir, "notes.txt", "ignored")

	r := NewRunner(nil, dir, "")
	migrations, err := r.Discover()
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}

	var names []string
	for _, m := range migrations {
		names = append(names, m.Name)
	}
	if !reflect.DeepEqual(names, []string{"0001_init", "0002_indexes"}) {
		t.Errorf("names = %v", names)
	}
	if migrations[0].Down == "" {
		t.Error("0001_init should have a down file")
	}
	if migrations[1].Down != "" {
		t.Error("0002_indexes has no down file")
	}
}

func TestDiscoverRejectsOrphanDown(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "0001_init.down.sql", "drop table t;")

	r := NewRunner(nil, dir, "")
	if _, err := r.Discover(); err == nil {
		t.Error("expected error for down file without up file")
	}
}

func TestDiscoverMissingDirIsEmpty(t *testing.T) {
	r := NewRunner(nil, filepath.Join(t.TempDir(), "nope"), "")
	migrations, err := r.Discover()
	if err != nil || len(migrations) != 0 {
		t.Errorf("Discover = %v, %v", migrations, err)
	}
}

func TestSplitStatements(t *testing.T) {
	body := `create table t(x text);
insert into t values ('a;b');
-- trailing without semicolon
update t set x = 'c'`

	stmts := splitStatements(body)
	if len(stmts) != 3 {
		t.Fatalf("got %d statements: %q", len(stmts), stmts)
	}
	if stmts[1] != "\ninsert into t values ('a;b')" {
		t.Errorf("semicolon inside string split: %q", stmts[1])
	}
}

func TestChecksumIsStable(t *testing.T) {
	a := checksum([]byte("create table t(x int);"))
	b := checksum([]byte("create table t(x int);"))
	c := checksum([]byte("create table t(y int);"))
	if a != b {
		t.Error("identical bodies must hash equal")
	}
	if a == c {
		t.Error("different bodies must hash differently")
	}
}
