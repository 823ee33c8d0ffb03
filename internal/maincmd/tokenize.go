package maincmd

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"

	"github.com/mna/aster/lang/scanner"
	"github.com/mna/aster/lang/token"
)

// Tokenize runs the scanner phase only, one file at a time, printing each
// token's line, kind, and lexeme.
func (c *Cmd) Tokenize(_ context.Context, stdio mainer.Stdio, args []string) error {
	var failed bool
	for _, path := range args {
		if err := tokenizeFile(stdio, path); err != nil {
			fmt.Fprintf(stdio.Stderr, "%s: %s\n", path, err)
			failed = true
		}
	}
	if failed {
		return errScan
	}
	return nil
}

var errScan = fmt.Errorf("tokenize: one or more files failed to scan")

func tokenizeFile(stdio mainer.Stdio, path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	sc := scanner.New(string(src))
	for {
		tok := sc.Scan()
		fmt.Fprintf(stdio.Stdout, "%4d %-14s %q\n", tok.Line, tok.Kind, tok.Lexeme)
		if tok.Kind == token.EOF {
			break
		}
		if tok.IsError() {
			return fmt.Errorf("line %d: %s", tok.Line, tok.Lexeme)
		}
	}
	return nil
}
