package migrate

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	sql := `create table a (id text);
insert into a values ('x;y');
update a set id = 'z'`

	stmts := splitStatements(sql)
	if len(stmts) != 3 {
		t.Fatalf("expected 3 statements, got %d: %#v", len(stmts), stmts)
	}
	if !strings.Contains(stmts[1], "x;y") {
		t.Fatalf("semicolon inside string literal split the statement: %q", stmts[1])
	}
}

func TestSplitStatementsEmpty(t *testing.T) {
	if stmts := splitStatements("   \n  "); len(stmts) != 0 {
		t.Fatalf("expected no statements, got %#v", stmts)
	}
}
