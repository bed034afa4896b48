package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"go.uber.org/zap"

	"github.com/riverdb/riverdb/extproc"
	"github.com/riverdb/riverdb/metadata"
	"github.com/riverdb/riverdb/nsrepo/inmem"
	"github.com/riverdb/riverdb/protocol"
	"github.com/riverdb/riverdb/service"
)

// repl evaluates JSON-encoded input against an in-process store.  Each line
// is either a bare term, run as a read, or a whole query object; writes go
// through the same wire shapes a driver would send.
func repl(args []string) error {
	fs := flag.NewFlagSet("repl", flag.ExitOnError)
	db := fs.String("db", "test", "database name for the default table")
	table := fs.String("table", "docs", "default table name")
	primaryKey := fs.String("key", "id", "primary key attribute of the default table")
	if err := fs.Parse(args); err != nil {
		return err
	}
	pool, err := extproc.NewPool(noEngine, 1)
	if err != nil {
		return err
	}
	store, err := inmem.NewStore(4, zap.NewNop())
	if err != nil {
		return err
	}
	meta := metadata.NewSnapshot([]metadata.TableInfo{
		{DB: *db, Name: *table, PrimaryKey: *primaryKey},
	})
	core := service.NewCore(service.Config{}, pool, store, meta, zap.NewNop())

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	historyPath := filepath.Join(os.TempDir(), ".riverdb_history")
	if f, err := os.Open(historyPath); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if f, err := os.Create(historyPath); err == nil {
			line.WriteHistory(f)
			f.Close()
		}
	}()

	var token int64
	for {
		input, err := line.Prompt("riverdb> ")
		if err == liner.ErrPromptAborted || err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			return nil
		}
		line.AppendHistory(input)
		token++
		printResponse(core.Exec(context.Background(), decodeInput(input, token)))
	}
}

// decodeInput accepts either a whole query object or a bare term, which
// becomes a READ query.
func decodeInput(input string, token int64) *protocol.Query {
	var q protocol.Query
	if err := json.Unmarshal([]byte(input), &q); err == nil && q.Type != "" {
		if q.Token == 0 {
			q.Token = token
		}
		return &q
	}
	var term protocol.Term
	if err := json.Unmarshal([]byte(input), &term); err != nil {
		// Let the service answer with a broken-client response.
		return &protocol.Query{Token: token}
	}
	return &protocol.Query{
		Type:  protocol.QueryRead,
		Token: token,
		Read:  &protocol.ReadQuery{Term: &term},
	}
}

func printResponse(resp *protocol.Response) {
	switch resp.StatusCode {
	case protocol.StatusSuccessJSON, protocol.StatusSuccessStream, protocol.StatusSuccessPartial:
		for _, doc := range resp.Response {
			fmt.Println(doc)
		}
		if resp.StatusCode == protocol.StatusSuccessPartial {
			fmt.Println("...")
		}
	case protocol.StatusSuccessEmpty:
	default:
		fmt.Printf("%s: %s\n", resp.StatusCode, resp.ErrorMessage)
		if len(resp.Backtrace) > 0 {
			fmt.Println("  at", strings.Join(resp.Backtrace, "/"))
		}
	}
}
